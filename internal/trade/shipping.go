package trade

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yomicrex/coinhub-api/internal/models"
)

// Tracker ведет двустороннюю запись об отправке и получении и выводит
// завершение обмена из факта получения обеими сторонами.
type Tracker struct {
	store Store
}

// NewTracker создает новый экземпляр Tracker
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// MarkShipped отмечает отправку со стороны участника. Идемпотентна:
// повторный вызов обновляет только трек-номер, shippedAt сохраняет
// значение первого вызова — подтверждение отправки не отзывается.
func (tr *Tracker) MarkShipped(ctx context.Context, tradeID, actingUserID uuid.UUID, trackingNumber string) (*models.TradeShipping, error) {
	var updated *models.TradeShipping

	err := tr.store.WithTrade(ctx, tradeID, func(tx Tx) error {
		t := tx.Trade()

		if actingUserID != t.InitiatorID && actingUserID != t.OwnerID {
			return ErrNotAParticipant
		}
		if t.Status == models.TradeStatusDisputed {
			return ErrTradeDisputed
		}
		if t.Status != models.TradeStatusAccepted {
			return ErrInvalidTransition
		}

		s, err := tx.Shipping()
		if err != nil {
			return err
		}

		now := time.Now()
		if actingUserID == t.InitiatorID {
			if !s.InitiatorShipped {
				s.InitiatorShipped = true
				s.InitiatorShippedAt = &now
			}
			if trackingNumber != "" {
				s.InitiatorTrackingNumber = trackingNumber
			}
		} else {
			if !s.OwnerShipped {
				s.OwnerShipped = true
				s.OwnerShippedAt = &now
			}
			if trackingNumber != "" {
				s.OwnerTrackingNumber = trackingNumber
			}
		}
		s.UpdatedAt = now

		if err := tx.UpdateShipping(s); err != nil {
			return err
		}

		updated = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// MarkReceived отмечает получение участником посылки от второй стороны.
// Допустимо только после того, как вторая сторона отметила отправку.
// Если получение подтвердили обе стороны, обмен переводится в completed
// в той же транзакции — завершение является производным состоянием.
func (tr *Tracker) MarkReceived(ctx context.Context, tradeID, actingUserID uuid.UUID) (*models.TradeShipping, bool, error) {
	var (
		updated   *models.TradeShipping
		completed bool
	)

	err := tr.store.WithTrade(ctx, tradeID, func(tx Tx) error {
		t := tx.Trade()

		if actingUserID != t.InitiatorID && actingUserID != t.OwnerID {
			return ErrNotAParticipant
		}
		if t.Status == models.TradeStatusDisputed {
			return ErrTradeDisputed
		}
		if t.Status != models.TradeStatusAccepted {
			return ErrInvalidTransition
		}

		s, err := tx.Shipping()
		if err != nil {
			return err
		}

		now := time.Now()
		if actingUserID == t.InitiatorID {
			// Инициатор подтверждает получение посылки, отправленной владельцем
			if !s.OwnerShipped {
				return ErrInvalidTransition
			}
			if !s.InitiatorReceived {
				s.InitiatorReceived = true
				s.InitiatorReceivedAt = &now
			}
		} else {
			if !s.InitiatorShipped {
				return ErrInvalidTransition
			}
			if !s.OwnerReceived {
				s.OwnerReceived = true
				s.OwnerReceivedAt = &now
			}
		}
		s.UpdatedAt = now

		if err := tx.UpdateShipping(s); err != nil {
			return err
		}

		if s.InitiatorReceived && s.OwnerReceived {
			if err := transition(tx, models.TradeStatusCompleted); err != nil {
				return err
			}
			completed = true
		}

		updated = s
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return updated, completed, nil
}
