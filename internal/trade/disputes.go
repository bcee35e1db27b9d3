package trade

import (
	"context"

	"github.com/google/uuid"

	"github.com/yomicrex/coinhub-api/internal/models"
)

// Registrar — тонкая обертка над жалобами: сохраняет их через Ledger
// и отдает список жалоб привилегированным ролям.
type Registrar struct {
	ledger *Ledger
	store  Store
}

// NewRegistrar создает новый экземпляр Registrar
func NewRegistrar(ledger *Ledger, store Store) *Registrar {
	return &Registrar{ledger: ledger, store: store}
}

// File фиксирует жалобу участника и переводит обмен в спор
func (r *Registrar) File(ctx context.Context, tradeID, reporterID uuid.UUID, reason, description string) (*models.Trade, *models.TradeReport, error) {
	return r.ledger.Report(ctx, tradeID, reporterID, reason, description)
}

// ListReports возвращает жалобы по обмену. Доступно только модераторам
// и администраторам.
func (r *Registrar) ListReports(ctx context.Context, tradeID uuid.UUID, requesterRole string) ([]models.TradeReport, error) {
	if requesterRole != "moderator" && requesterRole != "admin" {
		return nil, ErrForbidden
	}

	t, err := r.store.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}

	return r.store.GetReports(ctx, tradeID)
}
