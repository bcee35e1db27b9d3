package trade

import (
	"github.com/yomicrex/coinhub-api/internal/models"
)

// tradeTransitions — единственная таблица допустимых переходов статуса обмена.
// Любая команда сверяется с ней; переход вне таблицы — invalid_transition.
var tradeTransitions = map[models.TradeStatus][]models.TradeStatus{
	models.TradeStatusPending: {
		models.TradeStatusCountered,
		models.TradeStatusAccepted,
		models.TradeStatusCancelled,
		models.TradeStatusDisputed,
	},
	models.TradeStatusCountered: {
		models.TradeStatusAccepted,
		models.TradeStatusCancelled,
		models.TradeStatusDisputed,
	},
	models.TradeStatusAccepted: {
		models.TradeStatusCompleted,
		models.TradeStatusCancelled,
		models.TradeStatusDisputed,
	},
	// Терминальные статусы исходящих переходов не имеют
	models.TradeStatusCompleted: {},
	models.TradeStatusCancelled: {},
	models.TradeStatusDisputed:  {},
}

// CanTransition проверяет, допустим ли переход из статуса from в статус to
func CanTransition(from, to models.TradeStatus) bool {
	for _, next := range tradeTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal проверяет, является ли статус терминальным
func IsTerminal(status models.TradeStatus) bool {
	return len(tradeTransitions[status]) == 0
}

// IsNegotiable проверяет, открыт ли обмен для предложений
func IsNegotiable(status models.TradeStatus) bool {
	return status == models.TradeStatusPending || status == models.TradeStatusCountered
}

// IsActive проверяет, занимает ли обмен пару (инициатор, монета).
// Активный обмен блокирует создание нового по той же паре.
func IsActive(status models.TradeStatus) bool {
	return status == models.TradeStatusPending ||
		status == models.TradeStatusCountered ||
		status == models.TradeStatusAccepted
}

// transition переводит обмен в новый статус, сверяясь с таблицей переходов
func transition(tx Tx, to models.TradeStatus) error {
	if !CanTransition(tx.Trade().Status, to) {
		return ErrInvalidTransition
	}
	return tx.SetTradeStatus(to)
}
