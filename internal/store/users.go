package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CountUsers reports how many users exist; zero means first-run setup pending.
func (store *Store) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := store.db.WithContext(ctx).Model(&User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("store.users.count: %w", err)
	}
	return count, nil
}

// CreateUser inserts a user, assigning an id when absent.
func (store *Store) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if err := store.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("store.users.create: %w", err)
	}
	return nil
}

// GetUser returns one user by id.
func (store *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	err := store.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store.users.get: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("store.users.get: %w", err)
	}
	return &user, nil
}

// GetUserByUsername returns one user by username.
func (store *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := store.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store.users.get_by_username: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("store.users.get_by_username: %w", err)
	}
	return &user, nil
}

// ListUsers returns every user ordered by name.
func (store *Store) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := store.db.WithContext(ctx).Order("name ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("store.users.list: %w", err)
	}
	return users, nil
}

// UpdateUser applies the given column updates to one user.
func (store *Store) UpdateUser(ctx context.Context, id string, updates map[string]any) error {
	result := store.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("store.users.update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store.users.update: %w", ErrNotFound)
	}
	return nil
}

// DeleteUser removes one user.
func (store *Store) DeleteUser(ctx context.Context, id string) error {
	result := store.db.WithContext(ctx).Where("id = ?", id).Delete(&User{})
	if result.Error != nil {
		return fmt.Errorf("store.users.delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store.users.delete: %w", ErrNotFound)
	}
	return nil
}
