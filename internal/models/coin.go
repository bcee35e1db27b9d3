package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Coin представляет выставленную монету в каталоге
type Coin struct {
	ID          uuid.UUID   `json:"id"`
	UserID      uuid.UUID   `json:"user_id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Country     string      `json:"country,omitempty"`
	Year        int         `json:"year,omitempty"`
	Categories  []string    `json:"categories"`
	Condition   string      `json:"condition"`
	AllowTrade  bool        `json:"allow_trade"`
	Status      string      `json:"status"` // active, draft, deleted
	Images      []CoinImage `json:"images"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// CoinImage представляет изображение монеты
type CoinImage struct {
	ID         uuid.UUID     `json:"id"`
	CoinID     uuid.UUID     `json:"coin_id"`
	URL        string        `json:"url"`
	PreviewURL string        `json:"preview_url,omitempty"`
	PublicID   string        `json:"public_id"`
	FileName   string        `json:"file_name,omitempty"`
	IsMain     bool          `json:"is_main"`
	Position   int           `json:"position"`
	Metadata   ImageMetadata `json:"metadata,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ImageMetadata содержит ключевые метаданные изображения из Cloudinary
type ImageMetadata struct {
	AssetID   string    `json:"asset_id"`
	PublicID  string    `json:"public_id"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`
	Bytes     int       `json:"bytes"`
}

// CloudinaryResponse представляет ответ от Cloudinary API
type CloudinaryResponse struct {
	AssetID      string    `json:"asset_id"`
	PublicID     string    `json:"public_id"`
	Version      int       `json:"version"`
	Signature    string    `json:"signature"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Format       string    `json:"format"`
	ResourceType string    `json:"resource_type"`
	CreatedAt    time.Time `json:"created_at"`
	Bytes        int       `json:"bytes"`
	URL          string    `json:"url"`
	SecureURL    string    `json:"secure_url"`
	Eager        []Eager   `json:"eager"`
}

// Eager содержит информацию о трансформациях изображения
type Eager struct {
	Status    string `json:"status"`
	BatchID   string `json:"batch_id"`
	URL       string `json:"url"`
	SecureURL string `json:"secure_url"`
}

// ExtractMetadata извлекает основные метаданные из ответа Cloudinary
func ExtractMetadata(cr CloudinaryResponse) ImageMetadata {
	return ImageMetadata{
		AssetID:   cr.AssetID,
		PublicID:  cr.PublicID,
		Width:     cr.Width,
		Height:    cr.Height,
		CreatedAt: cr.CreatedAt,
		Bytes:     cr.Bytes,
	}
}

// ExtractPreviewURL извлекает URL превью из ответа Cloudinary
func ExtractPreviewURL(cr CloudinaryResponse) string {
	for _, eager := range cr.Eager {
		if eager.Status == "processing" || eager.Status == "completed" {
			return eager.SecureURL
		}
	}
	return ""
}

// ParseCloudinaryResponse конвертирует JSON-ответ от Cloudinary в структуру
func ParseCloudinaryResponse(jsonData []byte) (CloudinaryResponse, error) {
	var response CloudinaryResponse
	err := json.Unmarshal(jsonData, &response)
	return response, err
}
