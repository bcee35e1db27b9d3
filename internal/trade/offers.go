package trade

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yomicrex/coinhub-api/internal/models"
)

// Arbitrator управляет предложениями внутри обмена: создание, принятие
// с эксклюзивным победителем, отклонение.
type Arbitrator struct {
	store   Store
	catalog CoinCatalog
}

// NewArbitrator создает новый экземпляр Arbitrator
func NewArbitrator(store Store, catalog CoinCatalog) *Arbitrator {
	return &Arbitrator{store: store, catalog: catalog}
}

// Propose создает предложение внутри обмена. Первое предложение в жизни
// обмена — обычное, все последующие помечаются как контрпредложения.
// Монета в предложении не обязательна (offeredCoinID == nil — слот пуст).
func (a *Arbitrator) Propose(ctx context.Context, tradeID, offererID uuid.UUID, offeredCoinID *uuid.UUID, message string) (*models.TradeOffer, error) {
	var created *models.TradeOffer

	err := a.store.WithTrade(ctx, tradeID, func(tx Tx) error {
		t := tx.Trade()

		if offererID != t.InitiatorID && offererID != t.OwnerID {
			return ErrNotAParticipant
		}
		if t.Status == models.TradeStatusDisputed {
			return ErrTradeDisputed
		}
		if !IsNegotiable(t.Status) {
			return ErrInvalidTransition
		}

		if offeredCoinID != nil {
			owned, err := a.catalog.IsOwnedBy(ctx, *offeredCoinID, offererID)
			if err != nil {
				return StoreUnavailable(err)
			}
			if !owned {
				return ErrItemNotOwned
			}
		}

		offers, err := tx.Offers()
		if err != nil {
			return err
		}

		now := time.Now()
		offer := &models.TradeOffer{
			ID:             uuid.New(),
			TradeID:        t.ID,
			OffererID:      offererID,
			OfferedCoinID:  offeredCoinID,
			Message:        message,
			IsCounterOffer: len(offers) > 0,
			Status:         models.OfferStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.InsertOffer(offer); err != nil {
			return err
		}

		if t.Status == models.TradeStatusPending {
			if err := transition(tx, models.TradeStatusCountered); err != nil {
				return err
			}
		}

		created = offer
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// Accept принимает предложение. Критическая секция системы: выбранное
// предложение становится accepted, все остальные ожидающие — rejected,
// обмен переходит в accepted — одной атомарной транзакцией. Проигравший
// конкурентной гонки получает offer_already_decided.
func (a *Arbitrator) Accept(ctx context.Context, tradeID, offerID, actingUserID uuid.UUID) (*models.Trade, error) {
	var accepted *models.Trade

	err := a.store.WithTrade(ctx, tradeID, func(tx Tx) error {
		t := tx.Trade()

		if actingUserID != t.InitiatorID && actingUserID != t.OwnerID {
			return ErrNotAParticipant
		}
		// Принять предложение может только владелец выставленной монеты
		if actingUserID != t.OwnerID {
			return ErrForbidden
		}
		if t.Status == models.TradeStatusDisputed {
			return ErrTradeDisputed
		}

		offers, err := tx.Offers()
		if err != nil {
			return err
		}

		var target *models.TradeOffer
		for i := range offers {
			if offers[i].ID == offerID {
				target = &offers[i]
				break
			}
		}
		if target == nil {
			return ErrNotFound
		}
		if target.Status != models.OfferStatusPending {
			return ErrOfferAlreadyDecided
		}

		if !IsNegotiable(t.Status) {
			// Гонка: обмен уже принят по другому предложению
			if t.Status == models.TradeStatusAccepted {
				return ErrOfferAlreadyDecided
			}
			return ErrInvalidTransition
		}

		// Атомарно: победитель — accepted, остальные ожидающие — rejected,
		// обмен — accepted. Обесценивание конкурирующих предложений — часть
		// протокола, а не побочный эффект.
		if err := tx.SetOfferStatus(target.ID, models.OfferStatusAccepted); err != nil {
			return err
		}
		for i := range offers {
			if offers[i].ID != target.ID && offers[i].Status == models.OfferStatusPending {
				if err := tx.SetOfferStatus(offers[i].ID, models.OfferStatusRejected); err != nil {
					return err
				}
			}
		}
		if err := transition(tx, models.TradeStatusAccepted); err != nil {
			return err
		}

		accepted = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	return accepted, nil
}

// Reject отклоняет одно предложение. Статус обмена и остальные
// предложения не затрагиваются.
func (a *Arbitrator) Reject(ctx context.Context, tradeID, offerID, actingUserID uuid.UUID) (*models.TradeOffer, error) {
	var rejected *models.TradeOffer

	err := a.store.WithTrade(ctx, tradeID, func(tx Tx) error {
		t := tx.Trade()

		if actingUserID != t.InitiatorID && actingUserID != t.OwnerID {
			return ErrNotAParticipant
		}
		if actingUserID != t.OwnerID {
			return ErrForbidden
		}
		if t.Status == models.TradeStatusDisputed {
			return ErrTradeDisputed
		}

		offers, err := tx.Offers()
		if err != nil {
			return err
		}

		var target *models.TradeOffer
		for i := range offers {
			if offers[i].ID == offerID {
				target = &offers[i]
				break
			}
		}
		if target == nil {
			return ErrNotFound
		}
		if target.Status != models.OfferStatusPending {
			return ErrOfferAlreadyDecided
		}
		if !IsNegotiable(t.Status) {
			return ErrInvalidTransition
		}

		if err := tx.SetOfferStatus(target.ID, models.OfferStatusRejected); err != nil {
			return err
		}

		target.Status = models.OfferStatusRejected
		target.UpdatedAt = time.Now()
		rejected = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rejected, nil
}
