package main

import (
	"log"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/yomicrex/coinhub-api/internal/catalog"
	"github.com/yomicrex/coinhub-api/internal/config"
	"github.com/yomicrex/coinhub-api/internal/db"
	"github.com/yomicrex/coinhub-api/internal/services/auth"
	"github.com/yomicrex/coinhub-api/internal/services/chat"
	"github.com/yomicrex/coinhub-api/internal/services/cloudinary"
	"github.com/yomicrex/coinhub-api/internal/services/coin"
	tradeservice "github.com/yomicrex/coinhub-api/internal/services/trade"
	"github.com/yomicrex/coinhub-api/internal/trade"
	"github.com/yomicrex/coinhub-api/internal/websocket"
)

func main() {
	// Загружаем конфигурацию
	cfg := config.LoadConfig()

	// Инициализируем базу данных
	if err := db.InitDB(cfg); err != nil {
		log.Fatalf("❌ Ошибка при инициализации базы данных: %v", err)
	}
	defer db.CloseDB()

	// Создаём экземпляр Fiber
	app := fiber.New(fiber.Config{
		AppName:      "CoinHub API",
		ErrorHandler: errorHandler,
	})

	// Добавляем middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: false,
	}))

	// WebSocket менеджер
	wsManager := websocket.NewManager()
	defer wsManager.Shutdown()

	// Хранилище обменов и каталог монет
	tradeStore := trade.NewPgStore(db.Pool)
	coinCatalog := catalog.NewPgCatalog()

	// Создаём сервисы
	authService := auth.NewAuthService(cfg)
	coinService := coin.NewCoinService(cfg)
	cloudinaryService := cloudinary.NewCloudinaryService(cfg)
	chatService := chat.NewChatService(cfg, wsManager)
	tradeService := tradeservice.NewTradeService(cfg, tradeStore, coinCatalog, wsManager)

	// Регистрируем маршруты
	authService.SetupRoutes(app)
	coinService.SetupRoutes(app)
	coinService.SetupPublicRoutes(app)
	cloudinaryService.SetupRoutes(app)
	chatService.SetupRoutes(app)
	tradeService.SetupRoutes(app)
	websocket.SetupRoutes(app, wsManager, authService.GetJWTService())

	// Запускаем сервер
	log.Printf("✅ CoinHub API запущен на порту %s", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}

// errorHandler обрабатывает ошибки Fiber
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	// Проверяем, является ли ошибка из Fiber
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	// Отправляем ошибку в JSON
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
