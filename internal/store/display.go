package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateDisplayToken inserts a display token, assigning an id when absent.
func (store *Store) CreateDisplayToken(ctx context.Context, token *DisplayToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if err := store.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("store.display.create: %w", err)
	}
	return nil
}

// ListDisplayTokens returns every display token, newest first.
func (store *Store) ListDisplayTokens(ctx context.Context) ([]DisplayToken, error) {
	var tokens []DisplayToken
	if err := store.db.WithContext(ctx).Order("created_at DESC").Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("store.display.list: %w", err)
	}
	return tokens, nil
}

// DisplayTokenExists reports whether the opaque token value is registered.
func (store *Store) DisplayTokenExists(ctx context.Context, token string) (bool, error) {
	var record DisplayToken
	err := store.db.WithContext(ctx).Where("token = ?", token).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("store.display.exists: %w", err)
	}
	return true, nil
}

// DeleteDisplayToken removes one display token.
func (store *Store) DeleteDisplayToken(ctx context.Context, id string) error {
	result := store.db.WithContext(ctx).Where("id = ?", id).Delete(&DisplayToken{})
	if result.Error != nil {
		return fmt.Errorf("store.display.delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store.display.delete: %w", ErrNotFound)
	}
	return nil
}
