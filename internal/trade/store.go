package trade

import (
	"context"

	"github.com/google/uuid"

	"github.com/yomicrex/coinhub-api/internal/models"
)

// Tx предоставляет операции над одним обменом внутри атомарного изменения.
// Все мутации, выполненные замыканием WithTrade, фиксируются одной
// транзакцией; ошибка замыкания откатывает их целиком.
type Tx interface {
	// Trade возвращает обмен в его текущем зафиксированном состоянии
	Trade() *models.Trade
	// SetTradeStatus меняет статус обмена без проверки таблицы переходов;
	// легальность перехода проверяет ядро
	SetTradeStatus(status models.TradeStatus) error
	// Offers возвращает все предложения обмена в порядке создания
	Offers() ([]models.TradeOffer, error)
	InsertOffer(offer *models.TradeOffer) error
	SetOfferStatus(offerID uuid.UUID, status models.OfferStatus) error
	Shipping() (*models.TradeShipping, error)
	UpdateShipping(shipping *models.TradeShipping) error
	InsertReport(report *models.TradeReport) error
}

// TradeFilter задает фильтр для списка обменов пользователя
type TradeFilter struct {
	UserID    uuid.UUID
	Direction string // incoming, outgoing, all
	Status    models.TradeStatus
}

// Store отвечает за хранение обменов. Хранилище — единственный источник
// истины по статусу: каждая команда перечитывает его под блокировкой
// непосредственно перед применением эффекта.
type Store interface {
	// CreateTrade атомарно создает обмен вместе с записью об отправке.
	// Если по паре (инициатор, монета) уже есть активный обмен,
	// возвращает duplicate_active_trade с его ID.
	CreateTrade(ctx context.Context, trade *models.Trade, shipping *models.TradeShipping) error

	// WithTrade загружает обмен с блокировкой, выполняет замыкание и
	// фиксирует изменения одной транзакцией. Возвращает not_found,
	// если обмена не существует.
	WithTrade(ctx context.Context, tradeID uuid.UUID, fn func(tx Tx) error) error

	GetTrade(ctx context.Context, tradeID uuid.UUID) (*models.Trade, error)
	ListTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error)
	GetOffers(ctx context.Context, tradeID uuid.UUID) ([]models.TradeOffer, error)
	GetShipping(ctx context.Context, tradeID uuid.UUID) (*models.TradeShipping, error)
	GetReports(ctx context.Context, tradeID uuid.UUID) ([]models.TradeReport, error)
}
