package trade

import (
	"github.com/google/uuid"
)

// Коды ошибок ядра обменов. Возвращаются клиенту в поле "code".
const (
	CodeNotAParticipant      = "not_a_participant"
	CodeForbidden            = "forbidden"
	CodeNotFound             = "not_found"
	CodeItemNotFound         = "item_not_found"
	CodeItemNotTradeable     = "item_not_tradeable"
	CodeItemNotOwned         = "item_not_owned"
	CodeSelfTrade            = "self_trade"
	CodeDuplicateActiveTrade = "duplicate_active_trade"
	CodeInvalidTransition    = "invalid_transition"
	CodeOfferAlreadyDecided  = "offer_already_decided"
	CodeTradeDisputed        = "trade_disputed"
	CodeStoreUnavailable     = "store_unavailable"
)

// Error представляет типизированную ошибку ядра обменов.
// TradeID заполняется для duplicate_active_trade — клиент может продолжить
// существующий обмен вместо повторной попытки.
type Error struct {
	Code    string
	Message string
	TradeID uuid.UUID
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает ошибки по коду, чтобы работал errors.Is с сентинелами
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Сентинельные ошибки ядра
var (
	ErrNotAParticipant     = &Error{Code: CodeNotAParticipant, Message: "Пользователь не является участником обмена"}
	ErrForbidden           = &Error{Code: CodeForbidden, Message: "Недостаточно прав для выполнения операции"}
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "Обмен или предложение не найдены"}
	ErrItemNotFound        = &Error{Code: CodeItemNotFound, Message: "Монета не найдена"}
	ErrItemNotTradeable    = &Error{Code: CodeItemNotTradeable, Message: "Монета не выставлена на обмен"}
	ErrItemNotOwned        = &Error{Code: CodeItemNotOwned, Message: "Предложенная монета не принадлежит пользователю"}
	ErrSelfTrade           = &Error{Code: CodeSelfTrade, Message: "Нельзя предложить обмен на собственную монету"}
	ErrInvalidTransition   = &Error{Code: CodeInvalidTransition, Message: "Операция недопустима в текущем статусе обмена"}
	ErrOfferAlreadyDecided = &Error{Code: CodeOfferAlreadyDecided, Message: "Решение по предложению уже принято"}
	ErrTradeDisputed       = &Error{Code: CodeTradeDisputed, Message: "Обмен находится в споре"}
)

// DuplicateActiveTrade создает ошибку конфликта с ID уже существующего обмена
func DuplicateActiveTrade(existingID uuid.UUID) *Error {
	return &Error{
		Code:    CodeDuplicateActiveTrade,
		Message: "Активный обмен по этой монете уже существует",
		TradeID: existingID,
	}
}

// StoreUnavailable оборачивает инфраструктурную ошибку хранилища
func StoreUnavailable(err error) *Error {
	return &Error{
		Code:    CodeStoreUnavailable,
		Message: "Ошибка хранилища",
		Err:     err,
	}
}

// CodeOf возвращает код типизированной ошибки или пустую строку
func CodeOf(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
