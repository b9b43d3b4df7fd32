// Package settings persists flat key/value configuration and mirrors the
// hot subset in memory behind a read/write lock.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Persisted setting keys. The settings table is the single source of truth
// for everything listed here.
const (
	KeySigningSecret     = "jwt_secret"
	KeyFamilyName        = "family_name"
	KeyBaseURL           = "base_url"
	KeyBackgroundURL     = "background_url"
	KeyWeatherZipCode    = "weather_zip_code"
	KeyWeatherAPIKey     = "openweather_api_key"
	KeyOAuthClientID     = "google_client_id"
	KeyOAuthClientSecret = "google_client_secret"
	KeyOAuthRedirectURI  = "google_oauth_redirect_uri"
	KeyOAuthState        = "google_oauth_state"
	KeyOAuthAccessToken  = "google_photos_access_token"
	KeyOAuthRefreshToken = "google_photos_refresh_token"
	KeyOAuthTokenExpiry  = "google_photos_token_expiry"
	KeyPickedPhotos      = "google_photos_picked_items"
	KeyLastRefresh       = "last_background_refresh"
)

// ErrNotFound indicates the requested key has no persisted value.
var ErrNotFound = errors.New("settings.not_found")

// Setting is one persisted key/value row.
type Setting struct {
	Key       string    `gorm:"column:key;primaryKey" json:"key"`
	Value     string    `gorm:"column:value;not null" json:"value"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName pins the table name used by the original schema.
func (Setting) TableName() string {
	return "settings"
}

// Store reads and writes the settings table.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open gorm handle; the settings table must be migrated.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get returns the value for key, or ErrNotFound.
func (store *Store) Get(ctx context.Context, key string) (string, error) {
	var record Setting
	err := store.db.WithContext(ctx).Where("key = ?", key).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("settings.get.%s: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("settings.get.%s: %w", key, err)
	}
	return record.Value, nil
}

// GetDefault returns the value for key, or fallback when absent.
func (store *Store) GetDefault(ctx context.Context, key string, fallback string) (string, error) {
	value, err := store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Put upserts the value for key, touching updated_at.
func (store *Store) Put(ctx context.Context, key string, value string) error {
	record := Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("settings.put.%s: %w", key, err)
	}
	return nil
}

// Delete removes the given keys; missing keys are not an error.
func (store *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := store.db.WithContext(ctx).Where("key IN ?", keys).Delete(&Setting{}).Error; err != nil {
		return fmt.Errorf("settings.delete: %w", err)
	}
	return nil
}

// All returns every persisted setting row.
func (store *Store) All(ctx context.Context) ([]Setting, error) {
	var records []Setting
	if err := store.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("settings.all: %w", err)
	}
	return records, nil
}
