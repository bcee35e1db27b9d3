package auth

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты для API авторизации
func (s *AuthService) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/auth")

	// Авторизация через Telegram Mini App
	api.Post("/telegram", s.TelegramAuthHandler)
}
