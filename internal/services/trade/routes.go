package trade

import (
	"github.com/gofiber/fiber/v3"

	"github.com/yomicrex/coinhub-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API обменов
func (s *TradeService) SetupRoutes(app *fiber.App) {
	// Группа для API обменов
	api := app.Group("/api/trades")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	// Создание и просмотр обменов
	api.Post("/", s.CreateTrade)
	api.Get("/", s.GetMyTrades)
	api.Get("/:id", s.GetTrade)

	// Предложения внутри обмена
	api.Post("/:id/offers", s.CreateOffer)
	api.Post("/:id/offers/:offerId/accept", s.AcceptOffer)
	api.Post("/:id/offers/:offerId/reject", s.RejectOffer)

	// Отправка и получение
	api.Post("/:id/shipping/ship", s.MarkShipped)
	api.Post("/:id/shipping/receive", s.MarkReceived)

	// Отмена и жалобы
	api.Post("/:id/cancel", s.CancelTrade)
	api.Post("/:id/report", s.ReportTrade)
	api.Get("/:id/reports", s.GetTradeReports)
}
