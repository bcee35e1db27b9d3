package chat

import (
	"github.com/gofiber/fiber/v3"

	"github.com/yomicrex/coinhub-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для сервиса чатов
func (s *ChatService) SetupRoutes(app *fiber.App) {
	chatGroup := app.Group("/api/chats")
	chatGroup.Use(middleware.AuthMiddleware(s.jwtService))

	chatGroup.Get("/", s.GetChats)
	chatGroup.Post("/", s.CreateChat)
	chatGroup.Get("/:id/messages", s.GetChatMessages)
	chatGroup.Post("/:id/messages", s.SendMessage)
}
