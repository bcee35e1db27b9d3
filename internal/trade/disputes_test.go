package trade

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yomicrex/coinhub-api/internal/models"
)

func TestRegistrarFile(t *testing.T) {
	env := newTestEnv(t)
	trade := env.initiate(t)

	disputed, report, err := env.registrar.File(context.Background(), trade.ID, env.initiator, "no_shipment", "монета так и не пришла")
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if disputed.Status != models.TradeStatusDisputed {
		t.Errorf("trade status = %s, want disputed", disputed.Status)
	}
	if report.Status != models.ReportStatusOpen {
		t.Errorf("report status = %s, want open", report.Status)
	}
	// Ответчик — всегда второй участник
	if report.ReportedUserID != env.owner {
		t.Errorf("reported user = %s, want %s", report.ReportedUserID, env.owner)
	}

	// Спор терминален: повторная жалоба недопустима
	_, _, err = env.registrar.File(context.Background(), trade.ID, env.owner, "scam", "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("File() on disputed error = %v, want invalid_transition", err)
	}
}

func TestRegistrarFileValidation(t *testing.T) {
	env := newTestEnv(t)
	trade := env.initiate(t)

	_, _, err := env.registrar.File(context.Background(), trade.ID, env.stranger, "scam", "")
	if !errors.Is(err, ErrNotAParticipant) {
		t.Errorf("File() by stranger error = %v, want not_a_participant", err)
	}

	_, _, err = env.registrar.File(context.Background(), uuid.New(), env.initiator, "scam", "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("File() unknown trade error = %v, want not_found", err)
	}

	// Завершенный обмен оспорить нельзя
	completedEnv := newTestEnv(t)
	completed := completedEnv.accept(t)
	if _, err := completedEnv.tracker.MarkShipped(context.Background(), completed.ID, completedEnv.initiator, ""); err != nil {
		t.Fatalf("MarkShipped() error = %v", err)
	}
	if _, err := completedEnv.tracker.MarkShipped(context.Background(), completed.ID, completedEnv.owner, ""); err != nil {
		t.Fatalf("MarkShipped() error = %v", err)
	}
	if _, _, err := completedEnv.tracker.MarkReceived(context.Background(), completed.ID, completedEnv.initiator); err != nil {
		t.Fatalf("MarkReceived() error = %v", err)
	}
	if _, _, err := completedEnv.tracker.MarkReceived(context.Background(), completed.ID, completedEnv.owner); err != nil {
		t.Fatalf("MarkReceived() error = %v", err)
	}

	_, _, err = completedEnv.registrar.File(context.Background(), completed.ID, completedEnv.initiator, "scam", "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("File() on completed error = %v, want invalid_transition", err)
	}
}

func TestRegistrarListReports(t *testing.T) {
	env := newTestEnv(t)
	trade := env.initiate(t)

	if _, _, err := env.registrar.File(context.Background(), trade.ID, env.initiator, "no_shipment", ""); err != nil {
		t.Fatalf("File() error = %v", err)
	}

	tests := []struct {
		name    string
		role    string
		wantErr error
	}{
		{"moderator allowed", "moderator", nil},
		{"admin allowed", "admin", nil},
		{"user forbidden", "user", ErrForbidden},
		{"empty role forbidden", "", ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports, err := env.registrar.ListReports(context.Background(), trade.ID, tt.role)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ListReports() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ListReports() error = %v", err)
			}
			if len(reports) != 1 {
				t.Errorf("reports count = %d, want 1", len(reports))
			}
		})
	}

	if _, err := env.registrar.ListReports(context.Background(), uuid.New(), "admin"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ListReports() unknown trade error = %v, want not_found", err)
	}
}

func TestErrorCodes(t *testing.T) {
	dup := DuplicateActiveTrade(uuid.New())
	if CodeOf(dup) != CodeDuplicateActiveTrade {
		t.Errorf("CodeOf(dup) = %s, want %s", CodeOf(dup), CodeDuplicateActiveTrade)
	}
	if dup.TradeID == uuid.Nil {
		t.Error("DuplicateActiveTrade must carry the existing trade ID")
	}

	wrapped := StoreUnavailable(errors.New("connection refused"))
	if CodeOf(wrapped) != CodeStoreUnavailable {
		t.Errorf("CodeOf(wrapped) = %s, want %s", CodeOf(wrapped), CodeStoreUnavailable)
	}
	if !errors.Is(wrapped, StoreUnavailable(nil)) {
		t.Error("errors.Is must match store errors by code")
	}
	if wrapped.Unwrap() == nil {
		t.Error("StoreUnavailable must wrap the underlying error")
	}

	if CodeOf(errors.New("plain")) != "" {
		t.Error("CodeOf(plain error) must be empty")
	}
}
