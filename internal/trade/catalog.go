package trade

import (
	"context"

	"github.com/google/uuid"
)

// CoinInfo описывает сведения о монете, необходимые ядру обменов
type CoinInfo struct {
	OwnerID   uuid.UUID
	Tradeable bool
}

// CoinCatalog предоставляет ядру доступ к каталогу монет.
// Get возвращает nil, если монета не найдена.
type CoinCatalog interface {
	Get(ctx context.Context, coinID uuid.UUID) (*CoinInfo, error)
	IsOwnedBy(ctx context.Context, coinID, userID uuid.UUID) (bool, error)
}
