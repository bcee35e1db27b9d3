package coin

import (
	"context"
	"encoding/json"
	"log"
	"strconv"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yomicrex/coinhub-api/internal/config"
	"github.com/yomicrex/coinhub-api/internal/db"
	"github.com/yomicrex/coinhub-api/internal/models"
	"github.com/yomicrex/coinhub-api/internal/utils"
)

// RequestImage представляет структуру изображения в запросе создания монеты
type RequestImage struct {
	URL                string          `json:"url"`
	PublicID           string          `json:"public_id"`
	FileName           string          `json:"file_name"`
	IsMain             bool            `json:"is_main"`
	CloudinaryResponse json.RawMessage `json:"cloudinary_response,omitempty"`
}

// CoinService представляет сервис для работы с монетами
type CoinService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
	cld        *cloudinary.Cloudinary
}

// NewCoinService создает новый экземпляр CoinService
func NewCoinService(cfg *config.Config) *CoinService {
	cld, err := cloudinary.NewFromParams(
		cfg.CloudinaryConfig.CloudName,
		cfg.CloudinaryConfig.APIKey,
		cfg.CloudinaryConfig.APISecret,
	)
	if err != nil {
		log.Printf("⚠️ Cloudinary недоступен: %v", err)
	}

	return &CoinService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		cld:        cld,
	}
}

// CreateCoin обрабатывает создание новой монеты
func (s *CoinService) CreateCoin(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	var requestData struct {
		Title       string         `json:"title"`
		Description string         `json:"description"`
		Country     string         `json:"country"`
		Year        int            `json:"year"`
		Categories  []string       `json:"categories"`
		Condition   string         `json:"condition"`
		AllowTrade  bool           `json:"allow_trade"`
		Status      string         `json:"status"`
		Images      []RequestImage `json:"images"`
	}

	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	// Валидация обязательных полей
	if requestData.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Название обязательно"})
	}

	// Активная монета должна иметь хотя бы одну категорию и изображение
	if requestData.Status == "active" && len(requestData.Categories) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Выберите хотя бы одну категорию"})
	}
	if requestData.Status == "active" && len(requestData.Images) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Добавьте хотя бы одно изображение"})
	}

	if requestData.Status != "active" && requestData.Status != "draft" {
		requestData.Status = "draft" // По умолчанию - черновик
	}

	validConditions := map[string]bool{
		"proof": true, "uncirculated": true, "excellent": true,
		"good": true, "fair": true, "worn": true,
	}
	if !validConditions[requestData.Condition] {
		requestData.Condition = "good" // По умолчанию
	}

	coinID := uuid.New()

	categoriesJSON, err := json.Marshal(requestData.Categories)
	if err != nil {
		log.Printf("Ошибка сериализации категорий: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка обработки данных"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		log.Printf("Ошибка начала транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}
	defer tx.Rollback(ctx)

	// Вставляем монету
	_, err = tx.Exec(ctx, `
		INSERT INTO coins (id, user_id, title, description, country, year, categories, condition, allow_trade, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, coinID, userUUID, requestData.Title, requestData.Description, requestData.Country,
		requestData.Year, categoriesJSON, requestData.Condition, requestData.AllowTrade, requestData.Status)

	if err != nil {
		log.Printf("Ошибка вставки монеты: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сохранения монеты"})
	}

	// Вставляем изображения, если они есть
	for i, img := range requestData.Images {
		isMain := img.IsMain || i == 0 // Первое изображение - основное

		var metadata []byte
		var previewURL string
		if img.CloudinaryResponse != nil {
			cloudinaryResp, parseErr := models.ParseCloudinaryResponse(img.CloudinaryResponse)
			if parseErr == nil {
				meta := models.ExtractMetadata(cloudinaryResp)
				metadata, _ = json.Marshal(meta)
				previewURL = models.ExtractPreviewURL(cloudinaryResp)
			} else {
				log.Printf("Ошибка разбора ответа Cloudinary: %v", parseErr)
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO coin_images (id, coin_id, url, preview_url, public_id, file_name, is_main, position, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, uuid.New(), coinID, img.URL, previewURL, img.PublicID, img.FileName, isMain, i, metadata)

		if err != nil {
			log.Printf("Ошибка вставки изображения: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сохранения изображений"})
		}
	}

	if err = tx.Commit(ctx); err != nil {
		log.Printf("Ошибка фиксации транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"coin_id": coinID,
		"message": "Монета успешно добавлена",
	})
}

// GetMyCoins возвращает список монет текущего пользователя
func (s *CoinService) GetMyCoins(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	status := c.Query("status", "all")
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	query := `
		SELECT id, user_id, title, description, country, year, categories, condition, allow_trade, status, created_at, updated_at
		FROM coins
		WHERE user_id = $1 AND status != 'deleted'
	`
	args := []interface{}{userUUID}
	if status != "all" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit) + ` OFFSET ` + strconv.Itoa(offset)

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		log.Printf("Ошибка запроса монет: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения монет"})
	}
	defer rows.Close()

	coins, err := s.scanCoins(ctx, rows)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения монет"})
	}

	return c.JSON(fiber.Map{
		"coins":  coins,
		"count":  len(coins),
		"limit":  limit,
		"offset": offset,
	})
}

// GetPublicCoins возвращает список активных монет с пагинацией
func (s *CoinService) GetPublicCoins(c fiber.Ctx) error {
	limit := 20
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	ctx, cancel := db.GetContext()
	defer cancel()

	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_id, title, description, country, year, categories, condition, allow_trade, status, created_at, updated_at
		FROM coins
		WHERE status = 'active'
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)

	if err != nil {
		log.Printf("Ошибка запроса монет: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения монет"})
	}
	defer rows.Close()

	coins, err := s.scanCoins(ctx, rows)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения монет"})
	}

	return c.JSON(fiber.Map{
		"coins":  coins,
		"count":  len(coins),
		"limit":  limit,
		"offset": offset,
	})
}

// GetCoin возвращает детальную информацию о монете
func (s *CoinService) GetCoin(c fiber.Ctx) error {
	coinUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID монеты"})
	}

	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	var coin models.Coin
	var categoriesData []byte
	err = db.Pool.QueryRow(ctx, `
		SELECT id, user_id, title, description, country, year, categories, condition, allow_trade, status, created_at, updated_at
		FROM coins
		WHERE id = $1 AND status != 'deleted'
	`, coinUUID).Scan(
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
		&coin.CreatedAt,
		&coin.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Монета не найдена"})
		}
		log.Printf("Ошибка получения монеты: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения монеты"})
	}

	if err := json.Unmarshal(categoriesData, &coin.Categories); err != nil {
		coin.Categories = []string{}
	}

	// Черновик может видеть только автор
	if coin.Status == "draft" && coin.UserID != userUUID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "У вас нет доступа к этой монете"})
	}

	coin.Images = s.loadImages(ctx, coin.ID)

	return c.JSON(fiber.Map{"coin": coin})
}

// UpdateCoin обновляет данные монеты
func (s *CoinService) UpdateCoin(c fiber.Ctx) error {
	coinUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID монеты"})
	}

	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	var requestData struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Country     string   `json:"country"`
		Year        int      `json:"year"`
		Categories  []string `json:"categories"`
		Condition   string   `json:"condition"`
		AllowTrade  *bool    `json:"allow_trade"`
		Status      string   `json:"status"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	// Проверяем, что монета принадлежит пользователю
	var ownerID uuid.UUID
	err = db.Pool.QueryRow(ctx, `SELECT user_id FROM coins WHERE id = $1 AND status != 'deleted'`, coinUUID).Scan(&ownerID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Монета не найдена"})
		}
		log.Printf("Ошибка запроса монеты: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения монеты"})
	}
	if ownerID != userUUID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "У вас нет доступа к изменению этой монеты"})
	}

	if requestData.Status != "" && requestData.Status != "active" && requestData.Status != "draft" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Недопустимый статус монеты"})
	}

	categoriesJSON, _ := json.Marshal(requestData.Categories)

	_, err = db.Pool.Exec(ctx, `
		UPDATE coins
		SET title = COALESCE(NULLIF($1, ''), title),
		    description = $2,
		    country = $3,
		    year = $4,
		    categories = COALESCE(NULLIF($5, 'null')::jsonb, categories),
		    condition = COALESCE(NULLIF($6, ''), condition),
		    allow_trade = COALESCE($7, allow_trade),
		    status = COALESCE(NULLIF($8, ''), status),
		    updated_at = NOW()
		WHERE id = $9
	`, requestData.Title, requestData.Description, requestData.Country, requestData.Year,
		string(categoriesJSON), requestData.Condition, requestData.AllowTrade, requestData.Status, coinUUID)

	if err != nil {
		log.Printf("Ошибка обновления монеты: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка обновления монеты"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"coin_id": coinUUID,
		"message": "Монета успешно обновлена",
	})
}

// DeleteCoin помечает монету удаленной и удаляет ее изображения из Cloudinary.
// Монета не удаляется физически — на нее могут ссылаться обмены.
func (s *CoinService) DeleteCoin(c fiber.Ctx) error {
	coinUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID монеты"})
	}

	userID := c.Locals("userID").(string)
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	var ownerID uuid.UUID
	err = db.Pool.QueryRow(ctx, `SELECT user_id FROM coins WHERE id = $1 AND status != 'deleted'`, coinUUID).Scan(&ownerID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Монета не найдена"})
		}
		log.Printf("Ошибка запроса монеты: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения монеты"})
	}
	if ownerID != userUUID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "У вас нет доступа к удалению этой монеты"})
	}

	// Собираем public_id изображений для удаления из Cloudinary
	var publicIDs []string
	rows, err := db.Pool.Query(ctx, `SELECT public_id FROM coin_images WHERE coin_id = $1`, coinUUID)
	if err != nil {
		log.Printf("Ошибка запроса изображений: %v", err)
	} else {
		for rows.Next() {
			var publicID string
			if err := rows.Scan(&publicID); err == nil && publicID != "" {
				publicIDs = append(publicIDs, publicID)
			}
		}
		rows.Close()
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		log.Printf("Ошибка начала транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `DELETE FROM coin_images WHERE coin_id = $1`, coinUUID)
	if err != nil {
		log.Printf("Ошибка удаления изображений: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка удаления монеты"})
	}

	_, err = tx.Exec(ctx, `UPDATE coins SET status = 'deleted', updated_at = NOW() WHERE id = $1`, coinUUID)
	if err != nil {
		log.Printf("Ошибка удаления монеты: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка удаления монеты"})
	}

	if err = tx.Commit(ctx); err != nil {
		log.Printf("Ошибка фиксации транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	// Чистим Cloudinary уже после фиксации — ошибка здесь не критична
	go s.destroyCloudinaryAssets(publicIDs)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Монета успешно удалена",
	})
}

// destroyCloudinaryAssets удаляет изображения из Cloudinary
func (s *CoinService) destroyCloudinaryAssets(publicIDs []string) {
	if s.cld == nil {
		return
	}

	for _, publicID := range publicIDs {
		_, err := s.cld.Upload.Destroy(context.Background(), uploader.DestroyParams{PublicID: publicID})
		if err != nil {
			log.Printf("Ошибка удаления изображения %s из Cloudinary: %v", publicID, err)
		}
	}
}

// loadImages загружает изображения монеты
func (s *CoinService) loadImages(ctx context.Context, coinID uuid.UUID) []models.CoinImage {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, coin_id, url, preview_url, public_id, file_name, is_main, position, metadata, created_at
		FROM coin_images
		WHERE coin_id = $1
		ORDER BY position ASC
	`, coinID)

	if err != nil {
		log.Printf("Ошибка запроса изображений: %v", err)
		return nil
	}
	defer rows.Close()

	var images []models.CoinImage
	for rows.Next() {
		var img models.CoinImage
		var metadataBytes []byte

		if err := rows.Scan(
			&img.ID,
			&img.CoinID,
			&img.URL,
			&img.PreviewURL,
			&img.PublicID,
			&img.FileName,
			&img.IsMain,
			&img.Position,
			&metadataBytes,
			&img.CreatedAt,
		); err != nil {
			log.Printf("Ошибка сканирования изображения: %v", err)
			continue
		}

		if metadataBytes != nil {
			if err := json.Unmarshal(metadataBytes, &img.Metadata); err != nil {
				log.Printf("Ошибка разбора метаданных: %v", err)
			}
		}

		images = append(images, img)
	}

	return images
}

// scanCoins сканирует строки монет и подгружает их изображения
func (s *CoinService) scanCoins(ctx context.Context, rows pgx.Rows) ([]models.Coin, error) {
	var coins []models.Coin
	for rows.Next() {
		var coin models.Coin
		var categoriesData []byte

		if err := rows.Scan(
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
			&coin.CreatedAt,
			&coin.UpdatedAt,
		); err != nil {
			log.Printf("Ошибка сканирования монеты: %v", err)
			continue
		}

		if err := json.Unmarshal(categoriesData, &coin.Categories); err != nil {
			coin.Categories = []string{}
		}

		coins = append(coins, coin)
	}
	if err := rows.Err(); err != nil {
		log.Printf("Ошибка чтения монет: %v", err)
		return nil, err
	}

	// Изображения подгружаются отдельным запросом на каждую монету
	for i := range coins {
		coins[i].Images = s.loadImages(ctx, coins[i].ID)
	}

	return coins, nil
}
