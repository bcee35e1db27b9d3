package trade

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yomicrex/coinhub-api/internal/models"
)

// MemStore реализует Store в памяти. Используется в тестах и при
// локальной разработке без PostgreSQL. Мьютекс удерживается на все
// время команды, поэтому команды по любому обмену линеаризованы;
// замыкание WithTrade работает с копиями и фиксируется целиком —
// ошибка не оставляет частично примененных изменений.
type MemStore struct {
	mu       sync.Mutex
	trades   map[uuid.UUID]models.Trade
	offers   map[uuid.UUID][]models.TradeOffer
	shipping map[uuid.UUID]models.TradeShipping
	reports  map[uuid.UUID][]models.TradeReport
}

// NewMemStore создает новый экземпляр MemStore
func NewMemStore() *MemStore {
	return &MemStore{
		trades:   make(map[uuid.UUID]models.Trade),
		offers:   make(map[uuid.UUID][]models.TradeOffer),
		shipping: make(map[uuid.UUID]models.TradeShipping),
		reports:  make(map[uuid.UUID][]models.TradeReport),
	}
}

// CreateTrade атомарно создает обмен вместе с записью об отправке
func (s *MemStore) CreateTrade(ctx context.Context, trade *models.Trade, shipping *models.TradeShipping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.trades {
		if t.InitiatorID == trade.InitiatorID && t.CoinID == trade.CoinID && IsActive(t.Status) {
			return DuplicateActiveTrade(t.ID)
		}
	}

	s.trades[trade.ID] = *trade
	s.shipping[shipping.TradeID] = *shipping
	return nil
}

// WithTrade выполняет команду над обменом под блокировкой хранилища
func (s *MemStore) WithTrade(ctx context.Context, tradeID uuid.UUID, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[tradeID]
	if !ok {
		return ErrNotFound
	}

	mtx := &memTx{
		trade:    &t,
		offers:   append([]models.TradeOffer(nil), s.offers[tradeID]...),
		shipping: s.shipping[tradeID],
		reports:  append([]models.TradeReport(nil), s.reports[tradeID]...),
	}

	if err := fn(mtx); err != nil {
		return err
	}

	// Фиксация: рабочие копии становятся новым состоянием
	s.trades[tradeID] = *mtx.trade
	s.offers[tradeID] = mtx.offers
	s.shipping[tradeID] = mtx.shipping
	s.reports[tradeID] = mtx.reports
	return nil
}

// GetTrade возвращает обмен или nil, если его нет
func (s *MemStore) GetTrade(ctx context.Context, tradeID uuid.UUID) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[tradeID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// ListTrades возвращает обмены пользователя по фильтру
func (s *MemStore) ListTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var trades []models.Trade
	for _, t := range s.trades {
		switch filter.Direction {
		case "incoming":
			if t.OwnerID != filter.UserID {
				continue
			}
		case "outgoing":
			if t.InitiatorID != filter.UserID {
				continue
			}
		default:
			if t.InitiatorID != filter.UserID && t.OwnerID != filter.UserID {
				continue
			}
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		trades = append(trades, t)
	}

	sort.Slice(trades, func(i, j int) bool {
		return trades[i].CreatedAt.After(trades[j].CreatedAt)
	})
	return trades, nil
}

// GetOffers возвращает предложения обмена в порядке создания
func (s *MemStore) GetOffers(ctx context.Context, tradeID uuid.UUID) ([]models.TradeOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.TradeOffer(nil), s.offers[tradeID]...), nil
}

// GetShipping возвращает запись об отправке или nil, если ее нет
func (s *MemStore) GetShipping(ctx context.Context, tradeID uuid.UUID) (*models.TradeShipping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shipping[tradeID]
	if !ok {
		return nil, nil
	}
	return &sh, nil
}

// GetReports возвращает жалобы по обмену
func (s *MemStore) GetReports(ctx context.Context, tradeID uuid.UUID) ([]models.TradeReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.TradeReport(nil), s.reports[tradeID]...), nil
}

// memTx реализует Tx над рабочими копиями состояния одного обмена
type memTx struct {
	trade    *models.Trade
	offers   []models.TradeOffer
	shipping models.TradeShipping
	reports  []models.TradeReport
}

func (m *memTx) Trade() *models.Trade {
	return m.trade
}

func (m *memTx) SetTradeStatus(status models.TradeStatus) error {
	m.trade.Status = status
	m.trade.UpdatedAt = time.Now()
	return nil
}

func (m *memTx) Offers() ([]models.TradeOffer, error) {
	return append([]models.TradeOffer(nil), m.offers...), nil
}

func (m *memTx) InsertOffer(offer *models.TradeOffer) error {
	m.offers = append(m.offers, *offer)
	return nil
}

func (m *memTx) SetOfferStatus(offerID uuid.UUID, status models.OfferStatus) error {
	for i := range m.offers {
		if m.offers[i].ID == offerID {
			m.offers[i].Status = status
			m.offers[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (m *memTx) Shipping() (*models.TradeShipping, error) {
	sh := m.shipping
	return &sh, nil
}

func (m *memTx) UpdateShipping(shipping *models.TradeShipping) error {
	m.shipping = *shipping
	return nil
}

func (m *memTx) InsertReport(report *models.TradeReport) error {
	m.reports = append(m.reports, *report)
	return nil
}
