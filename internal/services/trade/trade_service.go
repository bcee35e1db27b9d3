package trade

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/yomicrex/coinhub-api/internal/config"
	"github.com/yomicrex/coinhub-api/internal/db"
	"github.com/yomicrex/coinhub-api/internal/models"
	"github.com/yomicrex/coinhub-api/internal/trade"
	"github.com/yomicrex/coinhub-api/internal/utils"
	"github.com/yomicrex/coinhub-api/internal/websocket"
)

// TradeService представляет сервис для работы с обменами
type TradeService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
	ledger     *trade.Ledger
	arbitrator *trade.Arbitrator
	tracker    *trade.Tracker
	registrar  *trade.Registrar
	wsManager  *websocket.Manager
}

// NewTradeService создает новый экземпляр TradeService
func NewTradeService(cfg *config.Config, store trade.Store, catalog trade.CoinCatalog, wsManager *websocket.Manager) *TradeService {
	ledger := trade.NewLedger(store, catalog)
	return &TradeService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		ledger:     ledger,
		arbitrator: trade.NewArbitrator(store, catalog),
		tracker:    trade.NewTracker(store),
		registrar:  trade.NewRegistrar(ledger, store),
		wsManager:  wsManager,
	}
}

// CreateTrade создает новый обмен по выставленной монете
func (s *TradeService) CreateTrade(c fiber.Ctx) error {
	userUUID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован", "code": "unauthenticated"})
	}

	var requestData struct {
		CoinID string `json:"coin_id"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}
	if requestData.CoinID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Необходимо указать ID монеты"})
	}

	coinID, err := uuid.Parse(requestData.CoinID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID монеты"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	created, err := s.ledger.Initiate(ctx, userUUID, coinID)
	if err != nil {
		return respondTradeError(c, err)
	}

	// Уведомляем владельца монеты о новом обмене
	s.wsManager.SendToUser(created.OwnerID.String(), websocket.Event{
		Type:    websocket.EventTradeInitiated,
		TradeID: created.ID.String(),
		UserID:  userUUID.String(),
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"trade":   created,
	})
}

// GetMyTrades возвращает список входящих и исходящих обменов пользователя
func (s *TradeService) GetMyTrades(c fiber.Ctx) error {
	userUUID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован", "code": "unauthenticated"})
	}

	// Тип обменов (входящие/исходящие/все) и статус
	tradeType := c.Query("type", "all")
	status := c.Query("status", "all")

	var statusFilter models.TradeStatus
	if status != "all" {
		statusFilter = models.TradeStatus(status)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	trades, err := s.ledger.List(ctx, userUUID, tradeType, statusFilter)
	if err != nil {
		return respondTradeError(c, err)
	}

	// Загружаем дополнительную информацию о монетах, участниках и чатах
	for i := range trades {
		trades[i].Coin = s.getCoinInfo(ctx, trades[i].CoinID)
		trades[i].Initiator = s.getUserInfo(ctx, trades[i].InitiatorID)
		trades[i].Owner = s.getUserInfo(ctx, trades[i].OwnerID)

		var chatID *uuid.UUID
		err = db.Pool.QueryRow(ctx, `
            SELECT id FROM chats WHERE trade_id = $1 LIMIT 1
        `, trades[i].ID).Scan(&chatID)
		if err == nil && chatID != nil {
			trades[i].ChatID = *chatID
		}
	}

	return c.JSON(fiber.Map{
		"trades": trades,
		"count":  len(trades),
	})
}

// GetTrade возвращает полное представление обмена: предложения и отправку
func (s *TradeService) GetTrade(c fiber.Ctx) error {
	userUUID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован", "code": "unauthenticated"})
	}

	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	details, err := s.ledger.View(ctx, tradeID, userUUID)
	if err != nil {
		return respondTradeError(c, err)
	}

	details.Trade.Coin = s.getCoinInfo(ctx, details.Trade.CoinID)
	details.Trade.Initiator = s.getUserInfo(ctx, details.Trade.InitiatorID)
	details.Trade.Owner = s.getUserInfo(ctx, details.Trade.OwnerID)
	for i := range details.Offers {
		if details.Offers[i].OfferedCoinID != nil {
			details.Offers[i].OfferedCoin = s.getCoinInfo(ctx, *details.Offers[i].OfferedCoinID)
		}
	}

	return c.JSON(details)
}

// CreateOffer создает предложение внутри обмена
func (s *TradeService) CreateOffer(c fiber.Ctx) error {
	userUUID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован", "code": "unauthenticated"})
	}

	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}

	var requestData struct {
		OfferedCoinID string `json:"offered_coin_id"`
		Message       string `json:"message"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	// Монета в предложении не обязательна
	var offeredCoinID *uuid.UUID
	if requestData.OfferedCoinID != "" {
		parsed, err := uuid.Parse(requestData.OfferedCoinID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID монеты"})
		}
		offeredCoinID = &parsed
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	offer, err := s.arbitrator.Propose(ctx, tradeID, userUUID, offeredCoinID, requestData.Message)
	if err != nil {
		return respondTradeError(c, err)
	}

	s.notifyCounterparty(ctx, tradeID, userUUID, websocket.EventTradeOffer)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"offer":   offer,
	})
}

// AcceptOffer принимает предложение внутри обмена. Конкурирующие
// ожидающие предложения отклоняются той же транзакцией.
func (s *TradeService) AcceptOffer(c fiber.Ctx) error {
	userUUID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован", "code": "unauthenticated"})
	}

	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}
	offerID, err := uuid.Parse(c.Params("offerId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID предложения"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	accepted, err := s.arbitrator.Accept(ctx, tradeID, offerID, userUUID)
	if err != nil {
		return respondTradeError(c, err)
	}

	// Обмен принят — создаем чат между участниками
	chatID := s.createTradeChat(ctx, accepted)

	s.wsManager.SendToUser(accepted.InitiatorID.String(), websocket.Event{
		Type:    websocket.EventTradeAccepted,
		TradeID: accepted.ID.String(),
		UserID:  userUUID.String(),
	})

	response := fiber.Map{
		"success": true,
		"trade":   accepted,
	}
	if chatID != uuid.Nil {
		response["chat_id"] = chatID
	}

	return c.JSON(response)
}

// RejectOffer отклоняет одно предложение, не затрагивая статус обмена
func (s *TradeService) RejectOffer(c fiber.Ctx) error {
	userUUID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован", "code": "unauthenticated"})
	}

	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}
	offerID, err := uuid.Parse(c.Params("offerId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID предложения"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	offer, err := s.arbitrator.Reject(ctx, tradeID, offerID, userUUID)
	if err != nil {
		return respondTradeError(c, err)
	}

	s.notifyCounterparty(ctx, tradeID, userUUID, websocket.EventTradeOfferRejected)

	return c.JSON(fiber.Map{
		"success": true,
		"offer":   offer,
	})
}

// MarkShipped отмечает отправку монеты участником
func (s *TradeService) MarkShipped(c fiber.Ctx) error {
	userUUID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован", "code": "unauthenticated"})
	}

	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}

	var requestData struct {
		TrackingNumber string `json:"tracking_number"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	shipping, err := s.tracker.MarkShipped(ctx, tradeID, userUUID, requestData.TrackingNumber)
	if err != nil {
		return respondTradeError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"shipping": shipping,
	})
}

// MarkReceived отмечает получение посылки от второй стороны.
// Если получили обе стороны, обмен завершается той же транзакцией.
func (s *TradeService) MarkReceived(c fiber.Ctx) error {
	userUUID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован", "code": "unauthenticated"})
	}

	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	shipping, completed, err := s.tracker.MarkReceived(ctx, tradeID, userUUID)
	if err != nil {
		return respondTradeError(c, err)
	}

	if completed {
		s.notifyCounterparty(ctx, tradeID, userUUID, websocket.EventTradeCompleted)
	}

	return c.JSON(fiber.Map{
		"success":         true,
		"shipping":        shipping,
		"trade_completed": completed,
	})
}

// CancelTrade отменяет обмен
func (s *TradeService) CancelTrade(c fiber.Ctx) error {
	userUUID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован", "code": "unauthenticated"})
	}

	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	cancelled, err := s.ledger.Cancel(ctx, tradeID, userUUID)
	if err != nil {
		return respondTradeError(c, err)
	}

	s.notifyCounterparty(ctx, tradeID, userUUID, websocket.EventTradeCancelled)

	return c.JSON(fiber.Map{
		"success": true,
		"trade":   cancelled,
	})
}

// ReportTrade фиксирует жалобу и переводит обмен в спор
func (s *TradeService) ReportTrade(c fiber.Ctx) error {
	userUUID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован", "code": "unauthenticated"})
	}

	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}

	var requestData struct {
		Reason      string `json:"reason"`
		Description string `json:"description"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}
	if requestData.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Необходимо указать причину жалобы"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	disputed, report, err := s.registrar.File(ctx, tradeID, userUUID, requestData.Reason, requestData.Description)
	if err != nil {
		return respondTradeError(c, err)
	}

	s.notifyCounterparty(ctx, tradeID, userUUID, websocket.EventTradeDisputed)

	return c.JSON(fiber.Map{
		"success": true,
		"trade":   disputed,
		"report":  report,
	})
}

// GetTradeReports возвращает жалобы по обмену (только модератор/админ)
func (s *TradeService) GetTradeReports(c fiber.Ctx) error {
	userUUID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован", "code": "unauthenticated"})
	}

	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}

	role, err := db.GetUserRole(userUUID)
	if err != nil {
		log.Printf("Ошибка получения роли пользователя: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Внутренняя ошибка сервера"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	reports, err := s.registrar.ListReports(ctx, tradeID, role)
	if err != nil {
		return respondTradeError(c, err)
	}

	return c.JSON(fiber.Map{
		"reports": reports,
		"count":   len(reports),
	})
}

// currentUserID извлекает UUID пользователя из контекста запроса
func currentUserID(c fiber.Ctx) (uuid.UUID, error) {
	userID, _ := c.Locals("userID").(string)
	return uuid.Parse(userID)
}

// respondTradeError транслирует типизированную ошибку ядра в HTTP-ответ
func respondTradeError(c fiber.Ctx, err error) error {
	var e *trade.Error
	if !errors.As(err, &e) {
		log.Printf("Непредвиденная ошибка ядра обменов: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Внутренняя ошибка сервера"})
	}

	var status int
	switch e.Code {
	case trade.CodeNotAParticipant, trade.CodeForbidden:
		status = fiber.StatusForbidden
	case trade.CodeNotFound, trade.CodeItemNotFound:
		status = fiber.StatusNotFound
	case trade.CodeDuplicateActiveTrade, trade.CodeInvalidTransition,
		trade.CodeOfferAlreadyDecided, trade.CodeTradeDisputed:
		status = fiber.StatusConflict
	case trade.CodeItemNotTradeable, trade.CodeItemNotOwned, trade.CodeSelfTrade:
		status = fiber.StatusBadRequest
	case trade.CodeStoreUnavailable:
		log.Printf("Ошибка хранилища: %v", e)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Внутренняя ошибка сервера"})
	default:
		status = fiber.StatusInternalServerError
	}

	body := fiber.Map{
		"error": e.Message,
		"code":  e.Code,
	}
	if e.Code == trade.CodeDuplicateActiveTrade {
		body["trade_id"] = e.TradeID
	}

	return c.Status(status).JSON(body)
}

// createTradeChat создает чат для принятого обмена. Ошибка не фатальна —
// основная операция уже зафиксирована.
func (s *TradeService) createTradeChat(ctx context.Context, t *models.Trade) uuid.UUID {
	chatID := uuid.New()
	now := time.Now()
	initialMessage := "Обмен был принят. Вы можете обсудить детали отправки здесь."

	_, err := db.Pool.Exec(ctx, `
        INSERT INTO chats (id, trade_id, initiator_id, owner_id, created_at, updated_at, last_message_text, last_message_time, is_active)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, chatID, t.ID, t.InitiatorID, t.OwnerID, now, now, initialMessage, now, true)

	if err != nil {
		log.Printf("Ошибка создания чата для обмена: %v", err)
		return uuid.Nil
	}

	messageID := uuid.New()
	_, err = db.Pool.Exec(ctx, `
        INSERT INTO messages (id, chat_id, sender_id, text, is_read, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, messageID, chatID, t.OwnerID, initialMessage, false, now, now)

	if err != nil {
		log.Printf("Ошибка создания системного сообщения: %v", err)
	}

	return chatID
}

// notifyCounterparty отправляет событие второму участнику обмена
func (s *TradeService) notifyCounterparty(ctx context.Context, tradeID, actingUserID uuid.UUID, eventType websocket.EventType) {
	var initiatorID, ownerID uuid.UUID
	err := db.Pool.QueryRow(ctx, `
        SELECT initiator_id, owner_id FROM trades WHERE id = $1
    `, tradeID).Scan(&initiatorID, &ownerID)
	if err != nil {
		log.Printf("Ошибка получения участников обмена %s: %v", tradeID, err)
		return
	}

	counterparty := initiatorID
	if actingUserID == initiatorID {
		counterparty = ownerID
	}

	s.wsManager.SendToUser(counterparty.String(), websocket.Event{
		Type:    eventType,
		TradeID: tradeID.String(),
		UserID:  actingUserID.String(),
	})
}

// getCoinInfo получает информацию о монете
func (s *TradeService) getCoinInfo(ctx context.Context, coinID uuid.UUID) *models.Coin {
	var coin models.Coin
	var categoriesData []byte

	err := db.Pool.QueryRow(ctx, `
        SELECT id, user_id, title, description, country, year, categories, condition, allow_trade, status
        FROM coins
        WHERE id = $1
    `, coinID).Scan(
		&coin.ID,
		&coin.UserID,
		&coin.Title,
		&coin.Description,
		&coin.Country,
		&coin.Year,
		&categoriesData,
		&coin.Condition,
		&coin.AllowTrade,
		&coin.Status,
	)

	if err != nil {
		log.Printf("Ошибка получения монеты %s: %v", coinID, err)
		return nil
	}

	// Преобразуем JSONB категории в массив строк
	if err := json.Unmarshal(categoriesData, &coin.Categories); err != nil {
		log.Printf("Ошибка разбора категорий: %v", err)
		coin.Categories = []string{}
	}

	// Получаем изображения монеты
	rows, err := db.Pool.Query(ctx, `
        SELECT id, url, preview_url, is_main
        FROM coin_images
        WHERE coin_id = $1
        ORDER BY position ASC
    `, coinID)

	if err != nil {
		log.Printf("Ошибка получения изображений: %v", err)
	} else {
		defer rows.Close()

		var images []models.CoinImage
		for rows.Next() {
			var image models.CoinImage
			if err := rows.Scan(&image.ID, &image.URL, &image.PreviewURL, &image.IsMain); err != nil {
				log.Printf("Ошибка сканирования изображения: %v", err)
				continue
			}
			image.CoinID = coinID
			images = append(images, image)
		}
		coin.Images = images
	}

	return &coin
}

// getUserInfo получает информацию о пользователе
func (s *TradeService) getUserInfo(ctx context.Context, userID uuid.UUID) *models.User {
	var user models.User
	err := db.Pool.QueryRow(ctx, `
        SELECT id, username, first_name, last_name, avatar_url
        FROM users
        WHERE id = $1
    `, userID).Scan(
		&user.ID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.AvatarURL,
	)

	if err != nil {
		log.Printf("Ошибка получения пользователя %s: %v", userID, err)
		return nil
	}

	return &user
}
