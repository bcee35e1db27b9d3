package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yomicrex/coinhub-api/internal/db"
	"github.com/yomicrex/coinhub-api/internal/trade"
)

// PgCatalog предоставляет ядру обменов доступ к таблице монет
type PgCatalog struct{}

// NewPgCatalog создает новый экземпляр PgCatalog
func NewPgCatalog() *PgCatalog {
	return &PgCatalog{}
}

// Get возвращает владельца и доступность монеты для обмена.
// Монета доступна, если она активна и владелец разрешил обмен.
func (c *PgCatalog) Get(ctx context.Context, coinID uuid.UUID) (*trade.CoinInfo, error) {
	var (
		ownerID    uuid.UUID
		allowTrade bool
		status     string
	)

	err := db.Pool.QueryRow(ctx, `
        SELECT user_id, allow_trade, status FROM coins WHERE id = $1
    `, coinID).Scan(&ownerID, &allowTrade, &status)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка при запросе монеты: %w", err)
	}

	return &trade.CoinInfo{
		OwnerID:   ownerID,
		Tradeable: allowTrade && status == "active",
	}, nil
}

// IsOwnedBy проверяет, принадлежит ли монета пользователю
func (c *PgCatalog) IsOwnedBy(ctx context.Context, coinID, userID uuid.UUID) (bool, error) {
	var ownerID uuid.UUID

	err := db.Pool.QueryRow(ctx, `
        SELECT user_id FROM coins WHERE id = $1 AND status != 'deleted'
    `, coinID).Scan(&ownerID)

	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ошибка при проверке владельца монеты: %w", err)
	}

	return ownerID == userID, nil
}
