package trade

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yomicrex/coinhub-api/internal/models"
)

// Ledger управляет внешним жизненным циклом обмена: создание, отмена,
// спор, завершение. Внутренние под-леджеры (предложения, отправка)
// живут в Arbitrator и Tracker поверх того же хранилища.
type Ledger struct {
	store   Store
	catalog CoinCatalog
}

// NewLedger создает новый экземпляр Ledger
func NewLedger(store Store, catalog CoinCatalog) *Ledger {
	return &Ledger{store: store, catalog: catalog}
}

// Initiate создает новый обмен по выставленной монете.
// Обмен создается в статусе pending вместе с пустой записью об отправке.
func (l *Ledger) Initiate(ctx context.Context, initiatorID, coinID uuid.UUID) (*models.Trade, error) {
	info, err := l.catalog.Get(ctx, coinID)
	if err != nil {
		return nil, StoreUnavailable(err)
	}
	if info == nil {
		return nil, ErrItemNotFound
	}
	if !info.Tradeable {
		return nil, ErrItemNotTradeable
	}
	if info.OwnerID == initiatorID {
		return nil, ErrSelfTrade
	}

	now := time.Now()
	trade := &models.Trade{
		ID:          uuid.New(),
		CoinID:      coinID,
		InitiatorID: initiatorID,
		OwnerID:     info.OwnerID,
		Status:      models.TradeStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	shipping := &models.TradeShipping{
		TradeID:   trade.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Проверка дубликата и вставка выполняются хранилищем атомарно
	if err := l.store.CreateTrade(ctx, trade, shipping); err != nil {
		return nil, err
	}

	return trade, nil
}

// Cancel отменяет обмен. До принятия отменить может только инициатор,
// после принятия — любой из участников.
func (l *Ledger) Cancel(ctx context.Context, tradeID, actingUserID uuid.UUID) (*models.Trade, error) {
	var cancelled *models.Trade

	err := l.store.WithTrade(ctx, tradeID, func(tx Tx) error {
		t := tx.Trade()

		if actingUserID != t.InitiatorID && actingUserID != t.OwnerID {
			return ErrNotAParticipant
		}

		switch t.Status {
		case models.TradeStatusPending, models.TradeStatusCountered:
			if actingUserID != t.InitiatorID {
				return ErrInvalidTransition
			}
		case models.TradeStatusAccepted:
			// любой участник
		default:
			return ErrInvalidTransition
		}

		if err := transition(tx, models.TradeStatusCancelled); err != nil {
			return err
		}

		cancelled = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

// Report фиксирует жалобу участника и переводит обмен в статус disputed.
// Жалоба допустима в любом нетерминальном статусе; ответчиком всегда
// является второй участник обмена.
func (l *Ledger) Report(ctx context.Context, tradeID, reporterID uuid.UUID, reason, description string) (*models.Trade, *models.TradeReport, error) {
	var (
		disputed *models.Trade
		report   *models.TradeReport
	)

	err := l.store.WithTrade(ctx, tradeID, func(tx Tx) error {
		t := tx.Trade()

		var reportedUserID uuid.UUID
		switch reporterID {
		case t.InitiatorID:
			reportedUserID = t.OwnerID
		case t.OwnerID:
			reportedUserID = t.InitiatorID
		default:
			return ErrNotAParticipant
		}

		if err := transition(tx, models.TradeStatusDisputed); err != nil {
			return err
		}

		report = &models.TradeReport{
			ID:             uuid.New(),
			TradeID:        t.ID,
			ReporterID:     reporterID,
			ReportedUserID: reportedUserID,
			Reason:         reason,
			Description:    description,
			Status:         models.ReportStatusOpen,
			CreatedAt:      time.Now(),
		}
		if err := tx.InsertReport(report); err != nil {
			return err
		}

		disputed = t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return disputed, report, nil
}

// View возвращает полное представление обмена: сам обмен, предложения
// и запись об отправке. Доступно только участникам.
func (l *Ledger) View(ctx context.Context, tradeID, actingUserID uuid.UUID) (*models.TradeDetails, error) {
	t, err := l.store.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}
	if actingUserID != t.InitiatorID && actingUserID != t.OwnerID {
		return nil, ErrNotAParticipant
	}

	offers, err := l.store.GetOffers(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	shipping, err := l.store.GetShipping(ctx, tradeID)
	if err != nil {
		return nil, err
	}

	return &models.TradeDetails{
		Trade:    t,
		Offers:   offers,
		Shipping: shipping,
	}, nil
}

// List возвращает обмены пользователя с фильтром по направлению и статусу
func (l *Ledger) List(ctx context.Context, userID uuid.UUID, direction string, status models.TradeStatus) ([]models.Trade, error) {
	return l.store.ListTrades(ctx, TradeFilter{
		UserID:    userID,
		Direction: direction,
		Status:    status,
	})
}
