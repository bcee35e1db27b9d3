package trade

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yomicrex/coinhub-api/internal/models"
)

// PgStore реализует Store поверх PostgreSQL. Все мутации WithTrade
// выполняются в одной транзакции со строчной блокировкой обмена
// (SELECT ... FOR UPDATE), поэтому конкурентные команды по одному
// обмену линеаризуются хранилищем.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore создает новый экземпляр PgStore
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// CreateTrade атомарно создает обмен вместе с записью об отправке.
// Транзакция сначала берет advisory-блокировку на пару (инициатор,
// монета): проверка на дубликат по несуществующей строке ничего не
// блокирует, и без нее два конкурентных создания прошли бы оба.
// Блокировка снимается вместе с завершением транзакции.
func (s *PgStore) CreateTrade(ctx context.Context, trade *models.Trade, shipping *models.TradeShipping) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return StoreUnavailable(err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        SELECT pg_advisory_xact_lock(hashtextextended($1::text || '/' || $2::text, 0))
    `, trade.InitiatorID, trade.CoinID)
	if err != nil {
		return StoreUnavailable(err)
	}

	var existingID uuid.UUID
	err = tx.QueryRow(ctx, `
        SELECT id FROM trades
        WHERE initiator_id = $1 AND coin_id = $2
          AND status IN ('pending', 'countered', 'accepted')
    `, trade.InitiatorID, trade.CoinID).Scan(&existingID)

	if err == nil {
		return DuplicateActiveTrade(existingID)
	}
	if err != pgx.ErrNoRows {
		return StoreUnavailable(err)
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO trades (id, coin_id, initiator_id, owner_id, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, trade.ID, trade.CoinID, trade.InitiatorID, trade.OwnerID, trade.Status, trade.CreatedAt, trade.UpdatedAt)
	if err != nil {
		return StoreUnavailable(err)
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO trade_shipping (trade_id, created_at, updated_at)
        VALUES ($1, $2, $3)
    `, shipping.TradeID, shipping.CreatedAt, shipping.UpdatedAt)
	if err != nil {
		return StoreUnavailable(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return StoreUnavailable(err)
	}

	return nil
}

// WithTrade загружает обмен под блокировкой FOR UPDATE, выполняет
// замыкание и фиксирует транзакцию. Ошибка замыкания откатывает все
// изменения целиком.
func (s *PgStore) WithTrade(ctx context.Context, tradeID uuid.UUID, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return StoreUnavailable(err)
	}
	defer tx.Rollback(ctx)

	var t models.Trade
	err = tx.QueryRow(ctx, `
        SELECT id, coin_id, initiator_id, owner_id, status, created_at, updated_at
        FROM trades
        WHERE id = $1
        FOR UPDATE
    `, tradeID).Scan(&t.ID, &t.CoinID, &t.InitiatorID, &t.OwnerID, &t.Status, &t.CreatedAt, &t.UpdatedAt)

	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return StoreUnavailable(err)
	}

	ptx := &pgTx{ctx: ctx, tx: tx, trade: &t}
	if err := fn(ptx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return StoreUnavailable(err)
	}

	return nil
}

// GetTrade возвращает обмен или nil, если его нет
func (s *PgStore) GetTrade(ctx context.Context, tradeID uuid.UUID) (*models.Trade, error) {
	var t models.Trade
	err := s.pool.QueryRow(ctx, `
        SELECT id, coin_id, initiator_id, owner_id, status, created_at, updated_at
        FROM trades
        WHERE id = $1
    `, tradeID).Scan(&t.ID, &t.CoinID, &t.InitiatorID, &t.OwnerID, &t.Status, &t.CreatedAt, &t.UpdatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, StoreUnavailable(err)
	}

	return &t, nil
}

// ListTrades возвращает обмены пользователя по фильтру
func (s *PgStore) ListTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := `
        SELECT id, coin_id, initiator_id, owner_id, status, created_at, updated_at
        FROM trades
        WHERE `
	args := []interface{}{filter.UserID}

	switch filter.Direction {
	case "incoming":
		query += `owner_id = $1`
	case "outgoing":
		query += `initiator_id = $1`
	default:
		query += `(initiator_id = $1 OR owner_id = $1)`
	}

	if filter.Status != "" {
		query += ` AND status = $2`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, StoreUnavailable(err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.CoinID, &t.InitiatorID, &t.OwnerID, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, StoreUnavailable(err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, StoreUnavailable(err)
	}

	return trades, nil
}

// GetOffers возвращает предложения обмена в порядке создания
func (s *PgStore) GetOffers(ctx context.Context, tradeID uuid.UUID) ([]models.TradeOffer, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, trade_id, offerer_id, offered_coin_id, message, is_counter_offer, status, created_at, updated_at
        FROM trade_offers
        WHERE trade_id = $1
        ORDER BY created_at ASC
    `, tradeID)
	if err != nil {
		return nil, StoreUnavailable(err)
	}
	defer rows.Close()

	return scanOffers(rows)
}

// GetShipping возвращает запись об отправке или nil, если ее нет
func (s *PgStore) GetShipping(ctx context.Context, tradeID uuid.UUID) (*models.TradeShipping, error) {
	sh, err := scanShipping(s.pool.QueryRow(ctx, shippingSelect+` WHERE trade_id = $1`, tradeID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, StoreUnavailable(err)
	}
	return sh, nil
}

// GetReports возвращает жалобы по обмену
func (s *PgStore) GetReports(ctx context.Context, tradeID uuid.UUID) ([]models.TradeReport, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, trade_id, reporter_id, reported_user_id, reason, description, status, created_at
        FROM trade_reports
        WHERE trade_id = $1
        ORDER BY created_at ASC
    `, tradeID)
	if err != nil {
		return nil, StoreUnavailable(err)
	}
	defer rows.Close()

	var reports []models.TradeReport
	for rows.Next() {
		var r models.TradeReport
		if err := rows.Scan(&r.ID, &r.TradeID, &r.ReporterID, &r.ReportedUserID, &r.Reason, &r.Description, &r.Status, &r.CreatedAt); err != nil {
			return nil, StoreUnavailable(err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, StoreUnavailable(err)
	}

	return reports, nil
}

const shippingSelect = `
        SELECT trade_id,
               initiator_shipped, initiator_shipped_at, initiator_tracking_number,
               initiator_received, initiator_received_at,
               owner_shipped, owner_shipped_at, owner_tracking_number,
               owner_received, owner_received_at,
               created_at, updated_at
        FROM trade_shipping`

func scanShipping(row pgx.Row) (*models.TradeShipping, error) {
	var sh models.TradeShipping
	err := row.Scan(
		&sh.TradeID,
		&sh.InitiatorShipped, &sh.InitiatorShippedAt, &sh.InitiatorTrackingNumber,
		&sh.InitiatorReceived, &sh.InitiatorReceivedAt,
		&sh.OwnerShipped, &sh.OwnerShippedAt, &sh.OwnerTrackingNumber,
		&sh.OwnerReceived, &sh.OwnerReceivedAt,
		&sh.CreatedAt, &sh.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

func scanOffers(rows pgx.Rows) ([]models.TradeOffer, error) {
	var offers []models.TradeOffer
	for rows.Next() {
		var o models.TradeOffer
		if err := rows.Scan(&o.ID, &o.TradeID, &o.OffererID, &o.OfferedCoinID, &o.Message, &o.IsCounterOffer, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, StoreUnavailable(err)
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, StoreUnavailable(err)
	}
	return offers, nil
}

// pgTx реализует Tx поверх открытой транзакции pgx
type pgTx struct {
	ctx   context.Context
	tx    pgx.Tx
	trade *models.Trade
}

func (p *pgTx) Trade() *models.Trade {
	return p.trade
}

func (p *pgTx) SetTradeStatus(status models.TradeStatus) error {
	now := time.Now()
	_, err := p.tx.Exec(p.ctx, `
        UPDATE trades SET status = $1, updated_at = $2 WHERE id = $3
    `, status, now, p.trade.ID)
	if err != nil {
		return StoreUnavailable(err)
	}

	p.trade.Status = status
	p.trade.UpdatedAt = now
	return nil
}

func (p *pgTx) Offers() ([]models.TradeOffer, error) {
	rows, err := p.tx.Query(p.ctx, `
        SELECT id, trade_id, offerer_id, offered_coin_id, message, is_counter_offer, status, created_at, updated_at
        FROM trade_offers
        WHERE trade_id = $1
        ORDER BY created_at ASC
    `, p.trade.ID)
	if err != nil {
		return nil, StoreUnavailable(err)
	}
	defer rows.Close()

	return scanOffers(rows)
}

func (p *pgTx) InsertOffer(offer *models.TradeOffer) error {
	_, err := p.tx.Exec(p.ctx, `
        INSERT INTO trade_offers (id, trade_id, offerer_id, offered_coin_id, message, is_counter_offer, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, offer.ID, offer.TradeID, offer.OffererID, offer.OfferedCoinID, offer.Message, offer.IsCounterOffer, offer.Status, offer.CreatedAt, offer.UpdatedAt)
	if err != nil {
		return StoreUnavailable(err)
	}
	return nil
}

func (p *pgTx) SetOfferStatus(offerID uuid.UUID, status models.OfferStatus) error {
	_, err := p.tx.Exec(p.ctx, `
        UPDATE trade_offers SET status = $1, updated_at = $2 WHERE id = $3
    `, status, time.Now(), offerID)
	if err != nil {
		return StoreUnavailable(err)
	}
	return nil
}

func (p *pgTx) Shipping() (*models.TradeShipping, error) {
	sh, err := scanShipping(p.tx.QueryRow(p.ctx, shippingSelect+` WHERE trade_id = $1 FOR UPDATE`, p.trade.ID))
	if err != nil {
		return nil, StoreUnavailable(err)
	}
	return sh, nil
}

func (p *pgTx) UpdateShipping(shipping *models.TradeShipping) error {
	_, err := p.tx.Exec(p.ctx, `
        UPDATE trade_shipping
        SET initiator_shipped = $1, initiator_shipped_at = $2, initiator_tracking_number = $3,
            initiator_received = $4, initiator_received_at = $5,
            owner_shipped = $6, owner_shipped_at = $7, owner_tracking_number = $8,
            owner_received = $9, owner_received_at = $10,
            updated_at = $11
        WHERE trade_id = $12
    `, shipping.InitiatorShipped, shipping.InitiatorShippedAt, shipping.InitiatorTrackingNumber,
		shipping.InitiatorReceived, shipping.InitiatorReceivedAt,
		shipping.OwnerShipped, shipping.OwnerShippedAt, shipping.OwnerTrackingNumber,
		shipping.OwnerReceived, shipping.OwnerReceivedAt,
		shipping.UpdatedAt, shipping.TradeID)
	if err != nil {
		return StoreUnavailable(err)
	}
	return nil
}

func (p *pgTx) InsertReport(report *models.TradeReport) error {
	_, err := p.tx.Exec(p.ctx, `
        INSERT INTO trade_reports (id, trade_id, reporter_id, reported_user_id, reason, description, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, report.ID, report.TradeID, report.ReporterID, report.ReportedUserID, report.Reason, report.Description, report.Status, report.CreatedAt)
	if err != nil {
		return StoreUnavailable(err)
	}
	return nil
}
