package coin

import (
	"github.com/gofiber/fiber/v3"

	"github.com/yomicrex/coinhub-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для сервиса монет
func (s *CoinService) SetupRoutes(app *fiber.App) {
	coinGroup := app.Group("/api/coins")
	coinGroup.Use(middleware.AuthMiddleware(s.jwtService))

	coinGroup.Post("/create", s.CreateCoin)
	coinGroup.Get("/my", s.GetMyCoins)
	coinGroup.Get("/:id", s.GetCoin)
	coinGroup.Put("/:id", s.UpdateCoin)
	coinGroup.Delete("/:id", s.DeleteCoin)
}

// SetupPublicRoutes настраивает публичные маршруты без авторизации
func (s *CoinService) SetupPublicRoutes(app *fiber.App) {
	app.Get("/api/public/coins", s.GetPublicCoins)
}
