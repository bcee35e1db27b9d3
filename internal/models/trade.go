package models

import (
	"time"

	"github.com/google/uuid"
)

// TradeStatus представляет статус обмена
type TradeStatus string

// Возможные статусы обмена
const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusCountered TradeStatus = "countered"
	TradeStatusAccepted  TradeStatus = "accepted"
	TradeStatusCompleted TradeStatus = "completed"
	TradeStatusCancelled TradeStatus = "cancelled"
	TradeStatusDisputed  TradeStatus = "disputed"
)

// OfferStatus представляет статус предложения внутри обмена
type OfferStatus string

// Возможные статусы предложения
const (
	OfferStatusPending  OfferStatus = "pending"
	OfferStatusAccepted OfferStatus = "accepted"
	OfferStatusRejected OfferStatus = "rejected"
)

// ReportStatus представляет статус жалобы
type ReportStatus string

// Возможные статусы жалобы
const (
	ReportStatusOpen   ReportStatus = "open"
	ReportStatusClosed ReportStatus = "closed"
)

// Trade представляет переговоры об обмене одной выставленной монеты
type Trade struct {
	ID          uuid.UUID   `json:"id"`
	CoinID      uuid.UUID   `json:"coin_id"`
	InitiatorID uuid.UUID   `json:"initiator_id"`
	OwnerID     uuid.UUID   `json:"owner_id"`
	Status      TradeStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	// Дополнительные поля для API
	Coin      *Coin     `json:"coin,omitempty"`
	Initiator *User     `json:"initiator,omitempty"`
	Owner     *User     `json:"owner,omitempty"`
	ChatID    uuid.UUID `json:"chat_id,omitempty"` // ID связанного чата
}

// TradeOffer представляет предложение (или контрпредложение) внутри обмена.
// OfferedCoinID может быть nil — участник ещё не выбрал монету для обмена.
type TradeOffer struct {
	ID             uuid.UUID   `json:"id"`
	TradeID        uuid.UUID   `json:"trade_id"`
	OffererID      uuid.UUID   `json:"offerer_id"`
	OfferedCoinID  *uuid.UUID  `json:"offered_coin_id,omitempty"`
	Message        string      `json:"message,omitempty"`
	IsCounterOffer bool        `json:"is_counter_offer"`
	Status         OfferStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`

	// Дополнительные поля для API
	OfferedCoin *Coin `json:"offered_coin,omitempty"`
	Offerer     *User `json:"offerer,omitempty"`
}

// TradeShipping представляет запись об отправке с обеих сторон обмена.
// Создаётся вместе с обменом, один к одному.
type TradeShipping struct {
	TradeID uuid.UUID `json:"trade_id"`

	InitiatorShipped        bool       `json:"initiator_shipped"`
	InitiatorShippedAt      *time.Time `json:"initiator_shipped_at,omitempty"`
	InitiatorTrackingNumber string     `json:"initiator_tracking_number,omitempty"`
	InitiatorReceived       bool       `json:"initiator_received"`
	InitiatorReceivedAt     *time.Time `json:"initiator_received_at,omitempty"`

	OwnerShipped        bool       `json:"owner_shipped"`
	OwnerShippedAt      *time.Time `json:"owner_shipped_at,omitempty"`
	OwnerTrackingNumber string     `json:"owner_tracking_number,omitempty"`
	OwnerReceived       bool       `json:"owner_received"`
	OwnerReceivedAt     *time.Time `json:"owner_received_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TradeReport представляет жалобу участника обмена
type TradeReport struct {
	ID             uuid.UUID    `json:"id"`
	TradeID        uuid.UUID    `json:"trade_id"`
	ReporterID     uuid.UUID    `json:"reporter_id"`
	ReportedUserID uuid.UUID    `json:"reported_user_id"`
	Reason         string       `json:"reason"`
	Description    string       `json:"description,omitempty"`
	Status         ReportStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
}

// TradeDetails представляет полное представление обмена для API:
// сам обмен, все предложения и запись об отправке.
type TradeDetails struct {
	Trade    *Trade         `json:"trade"`
	Offers   []TradeOffer   `json:"offers"`
	Shipping *TradeShipping `json:"shipping"`
}
