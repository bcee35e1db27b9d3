package trade

import (
	"context"
	"errors"
	"testing"

	"github.com/yomicrex/coinhub-api/internal/models"
)

func TestTrackerMarkShipped(t *testing.T) {
	env := newTestEnv(t)
	trade := env.accept(t)

	shipping, err := env.tracker.MarkShipped(context.Background(), trade.ID, env.initiator, "RA123456789RU")
	if err != nil {
		t.Fatalf("MarkShipped() error = %v", err)
	}
	if !shipping.InitiatorShipped {
		t.Error("InitiatorShipped = false, want true")
	}
	if shipping.InitiatorShippedAt == nil {
		t.Fatal("InitiatorShippedAt is nil")
	}
	if shipping.InitiatorTrackingNumber != "RA123456789RU" {
		t.Errorf("tracking = %q, want RA123456789RU", shipping.InitiatorTrackingNumber)
	}
	if shipping.OwnerShipped {
		t.Error("OwnerShipped = true, want false")
	}

	// Повторный вызов идемпотентен: отметка времени первого вызова
	// сохраняется, трек-номер обновляется
	firstShippedAt := *shipping.InitiatorShippedAt
	shipping, err = env.tracker.MarkShipped(context.Background(), trade.ID, env.initiator, "RB987654321RU")
	if err != nil {
		t.Fatalf("MarkShipped() again error = %v", err)
	}
	if !shipping.InitiatorShippedAt.Equal(firstShippedAt) {
		t.Errorf("shippedAt changed on repeat: %v -> %v", firstShippedAt, shipping.InitiatorShippedAt)
	}
	if shipping.InitiatorTrackingNumber != "RB987654321RU" {
		t.Errorf("tracking = %q, want RB987654321RU", shipping.InitiatorTrackingNumber)
	}
}

func TestTrackerMarkShippedValidation(t *testing.T) {
	env := newTestEnv(t)

	t.Run("pending trade cannot ship", func(t *testing.T) {
		trade := env.initiate(t)
		_, err := env.tracker.MarkShipped(context.Background(), trade.ID, env.initiator, "")
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("MarkShipped() error = %v, want invalid_transition", err)
		}
	})

	t.Run("stranger is not a participant", func(t *testing.T) {
		env := newTestEnv(t)
		trade := env.accept(t)
		_, err := env.tracker.MarkShipped(context.Background(), trade.ID, env.stranger, "")
		if !errors.Is(err, ErrNotAParticipant) {
			t.Errorf("MarkShipped() error = %v, want not_a_participant", err)
		}
	})

	t.Run("disputed trade blocks shipping", func(t *testing.T) {
		env := newTestEnv(t)
		trade := env.accept(t)
		if _, _, err := env.ledger.Report(context.Background(), trade.ID, env.owner, "no_contact", ""); err != nil {
			t.Fatalf("Report() error = %v", err)
		}
		_, err := env.tracker.MarkShipped(context.Background(), trade.ID, env.initiator, "")
		if !errors.Is(err, ErrTradeDisputed) {
			t.Errorf("MarkShipped() error = %v, want trade_disputed", err)
		}
	})
}

func TestTrackerMarkReceived(t *testing.T) {
	env := newTestEnv(t)
	trade := env.accept(t)

	// Получение нельзя подтвердить раньше отправки второй стороной
	_, _, err := env.tracker.MarkReceived(context.Background(), trade.ID, env.initiator)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("MarkReceived() before ship error = %v, want invalid_transition", err)
	}

	if _, err := env.tracker.MarkShipped(context.Background(), trade.ID, env.owner, ""); err != nil {
		t.Fatalf("MarkShipped() error = %v", err)
	}

	shipping, completed, err := env.tracker.MarkReceived(context.Background(), trade.ID, env.initiator)
	if err != nil {
		t.Fatalf("MarkReceived() error = %v", err)
	}
	if !shipping.InitiatorReceived {
		t.Error("InitiatorReceived = false, want true")
	}
	if completed {
		t.Error("completed = true after one side, want false")
	}

	got, _ := env.store.GetTrade(context.Background(), trade.ID)
	if got.Status != models.TradeStatusAccepted {
		t.Errorf("trade status = %s, want accepted", got.Status)
	}
}

// Полный путь до завершения: обе стороны отправили и получили,
// обмен переходит в completed вместе с последним подтверждением.
func TestTrackerCompletion(t *testing.T) {
	env := newTestEnv(t)
	trade := env.accept(t)

	if _, err := env.tracker.MarkShipped(context.Background(), trade.ID, env.initiator, "RA1"); err != nil {
		t.Fatalf("MarkShipped() error = %v", err)
	}
	if _, err := env.tracker.MarkShipped(context.Background(), trade.ID, env.owner, "RA2"); err != nil {
		t.Fatalf("MarkShipped() error = %v", err)
	}

	_, completed, err := env.tracker.MarkReceived(context.Background(), trade.ID, env.owner)
	if err != nil {
		t.Fatalf("MarkReceived() error = %v", err)
	}
	if completed {
		t.Fatal("completed = true after first confirmation, want false")
	}

	shipping, completed, err := env.tracker.MarkReceived(context.Background(), trade.ID, env.initiator)
	if err != nil {
		t.Fatalf("MarkReceived() error = %v", err)
	}
	if !completed {
		t.Fatal("completed = false after both confirmations, want true")
	}
	if !shipping.InitiatorReceived || !shipping.OwnerReceived {
		t.Error("both received flags must be set")
	}

	got, _ := env.store.GetTrade(context.Background(), trade.ID)
	if got.Status != models.TradeStatusCompleted {
		t.Errorf("trade status = %s, want completed", got.Status)
	}

	// Завершенный обмен команд отправки не принимает
	_, err = env.tracker.MarkShipped(context.Background(), trade.ID, env.initiator, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("MarkShipped() after completion error = %v, want invalid_transition", err)
	}
}
