package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yomicrex/coinhub-api/internal/models"
)

// User представляет пользователя в системе
type User struct {
	ID          uuid.UUID
	Username    string
	FirstName   string
	LastName    string
	AvatarURL   string
	Role        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt time.Time
	IsActive    bool
}

// CreateOrUpdateTelegramUser создает нового пользователя через Telegram или обновляет существующего
func CreateOrUpdateTelegramUser(telegramID int64, username, firstName, lastName, photoURL string,
	isPremium bool, languageCode string, rawData []byte) (*User, error) {
	ctx, cancel := GetContext()
	defer cancel()

	// Начинаем транзакцию
	tx, err := Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Проверяем, существует ли пользователь Telegram
	var userID uuid.UUID

	err = tx.QueryRow(ctx, `
		SELECT user_id FROM telegram_users WHERE telegram_id = $1
	`, telegramID).Scan(&userID)

	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("ошибка при проверке существования пользователя Telegram: %w", err)
	}

	if err == pgx.ErrNoRows {
		// Создаем запись в users
		err = tx.QueryRow(ctx, `
			INSERT INTO users (first_name, last_name, username, avatar_url, role, last_login_at)
			VALUES ($1, $2, $3, $4, 'user', CURRENT_TIMESTAMP)
			RETURNING id
		`, firstName, lastName, username, photoURL).Scan(&userID)

		if err != nil {
			return nil, fmt.Errorf("ошибка при создании пользователя: %w", err)
		}

		// Создаем запись в telegram_users
		_, err = tx.Exec(ctx, `
			INSERT INTO telegram_users (user_id, telegram_id, username, first_name, last_name, photo_url, is_premium, language_code, raw_data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, userID, telegramID, username, firstName, lastName, photoURL, isPremium, languageCode, rawData)

		if err != nil {
			return nil, fmt.Errorf("ошибка при создании Telegram пользователя: %w", err)
		}
	} else {
		// Обновляем данные существующего пользователя
		_, err = tx.Exec(ctx, `
			UPDATE users
			SET first_name = $1, last_name = $2, username = $3, avatar_url = $4,
			    last_login_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
			WHERE id = $5
		`, firstName, lastName, username, photoURL, userID)

		if err != nil {
			return nil, fmt.Errorf("ошибка при обновлении пользователя: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE telegram_users
			SET username = $1, first_name = $2, last_name = $3, photo_url = $4,
			    is_premium = $5, language_code = $6, raw_data = $7, updated_at = CURRENT_TIMESTAMP
			WHERE telegram_id = $8
		`, username, firstName, lastName, photoURL, isPremium, languageCode, rawData, telegramID)

		if err != nil {
			return nil, fmt.Errorf("ошибка при обновлении Telegram пользователя: %w", err)
		}
	}

	// Читаем итоговое состояние пользователя
	var user User
	err = tx.QueryRow(ctx, `
		SELECT id, username, first_name, last_name, avatar_url, role, created_at, updated_at, last_login_at, is_active
		FROM users
		WHERE id = $1
	`, userID).Scan(
		&user.ID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.AvatarURL,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLoginAt,
		&user.IsActive,
	)

	if err != nil {
		return nil, fmt.Errorf("ошибка при чтении пользователя: %w", err)
	}

	// Фиксируем транзакцию
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}

	return &user, nil
}

// GetUserByID возвращает пользователя по его ID
func GetUserByID(userID uuid.UUID) (*models.User, error) {
	ctx, cancel := GetContext()
	defer cancel()

	var user models.User
	err := Pool.QueryRow(ctx, `
		SELECT id, username, first_name, last_name, avatar_url, role
		FROM users
		WHERE id = $1
	`, userID).Scan(
		&user.ID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.AvatarURL,
		&user.Role,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка при получении пользователя: %w", err)
	}

	return &user, nil
}

// GetUserRole возвращает роль пользователя (user, moderator, admin)
func GetUserRole(userID uuid.UUID) (string, error) {
	ctx, cancel := GetContext()
	defer cancel()

	var role string
	err := Pool.QueryRow(ctx, `
		SELECT role FROM users WHERE id = $1
	`, userID).Scan(&role)

	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("ошибка при получении роли пользователя: %w", err)
	}

	return role, nil
}
