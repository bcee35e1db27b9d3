package websocket

import (
	"log"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/yomicrex/coinhub-api/internal/utils"
)

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(ctx *fasthttp.RequestCtx) bool {
		return true
	},
}

// SetupRoutes настраивает маршрут для WebSocket соединений.
// Токен передается query-параметром, т.к. браузерный WebSocket API
// не позволяет задать заголовок Authorization.
func SetupRoutes(app *fiber.App, manager *Manager, jwtService *utils.JWTService) {
	app.Get("/ws", func(c fiber.Ctx) error {
		token := c.Query("token")
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Отсутствует токен", "code": "unauthenticated"})
		}

		userID, err := jwtService.ExtractUserID(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Недействительный токен", "code": "unauthenticated"})
		}
		if _, err := uuid.Parse(userID); err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Недействительный токен", "code": "unauthenticated"})
		}

		err = upgrader.Upgrade(c.RequestCtx(), func(conn *websocket.Conn) {
			client := NewClient(userID, conn, manager)
			client.Run()
		})
		if err != nil {
			log.Printf("Ошибка обновления соединения до WebSocket: %v", err)
		}
		return nil
	})
}
