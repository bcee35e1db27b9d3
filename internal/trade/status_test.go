package trade

import (
	"testing"

	"github.com/yomicrex/coinhub-api/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from models.TradeStatus
		to   models.TradeStatus
		want bool
	}{
		{"pending to countered", models.TradeStatusPending, models.TradeStatusCountered, true},
		{"pending to accepted", models.TradeStatusPending, models.TradeStatusAccepted, true},
		{"pending to cancelled", models.TradeStatusPending, models.TradeStatusCancelled, true},
		{"pending to disputed", models.TradeStatusPending, models.TradeStatusDisputed, true},
		{"pending to completed", models.TradeStatusPending, models.TradeStatusCompleted, false},
		{"countered to accepted", models.TradeStatusCountered, models.TradeStatusAccepted, true},
		{"countered to pending", models.TradeStatusCountered, models.TradeStatusPending, false},
		{"countered to completed", models.TradeStatusCountered, models.TradeStatusCompleted, false},
		{"accepted to completed", models.TradeStatusAccepted, models.TradeStatusCompleted, true},
		{"accepted to cancelled", models.TradeStatusAccepted, models.TradeStatusCancelled, true},
		{"accepted to disputed", models.TradeStatusAccepted, models.TradeStatusDisputed, true},
		{"accepted to countered", models.TradeStatusAccepted, models.TradeStatusCountered, false},
		{"completed is terminal", models.TradeStatusCompleted, models.TradeStatusCancelled, false},
		{"cancelled is terminal", models.TradeStatusCancelled, models.TradeStatusPending, false},
		{"disputed is terminal", models.TradeStatusDisputed, models.TradeStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStatusPredicates(t *testing.T) {
	terminal := []models.TradeStatus{
		models.TradeStatusCompleted,
		models.TradeStatusCancelled,
		models.TradeStatusDisputed,
	}
	for _, st := range terminal {
		if !IsTerminal(st) {
			t.Errorf("IsTerminal(%s) = false, want true", st)
		}
		if IsNegotiable(st) {
			t.Errorf("IsNegotiable(%s) = true, want false", st)
		}
		if IsActive(st) {
			t.Errorf("IsActive(%s) = true, want false", st)
		}
	}

	negotiable := []models.TradeStatus{
		models.TradeStatusPending,
		models.TradeStatusCountered,
	}
	for _, st := range negotiable {
		if IsTerminal(st) {
			t.Errorf("IsTerminal(%s) = true, want false", st)
		}
		if !IsNegotiable(st) {
			t.Errorf("IsNegotiable(%s) = false, want true", st)
		}
		if !IsActive(st) {
			t.Errorf("IsActive(%s) = false, want true", st)
		}
	}

	// accepted занимает пару, но предложения уже закрыты
	if IsNegotiable(models.TradeStatusAccepted) {
		t.Error("IsNegotiable(accepted) = true, want false")
	}
	if !IsActive(models.TradeStatusAccepted) {
		t.Error("IsActive(accepted) = false, want true")
	}
	if IsTerminal(models.TradeStatusAccepted) {
		t.Error("IsTerminal(accepted) = true, want false")
	}
}
