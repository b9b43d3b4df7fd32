package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChoreWithUser joins a chore with its assignee's display name.
type ChoreWithUser struct {
	Chore
	AssignedName string `json:"assigned_name"`
}

// CreateChore inserts a chore, assigning an id when absent.
func (store *Store) CreateChore(ctx context.Context, chore *Chore) error {
	if chore.ID == "" {
		chore.ID = uuid.NewString()
	}
	if err := store.db.WithContext(ctx).Create(chore).Error; err != nil {
		return fmt.Errorf("store.chores.create: %w", err)
	}
	return nil
}

// GetChore returns one chore by id.
func (store *Store) GetChore(ctx context.Context, id string) (*Chore, error) {
	var chore Chore
	err := store.db.WithContext(ctx).Where("id = ?", id).Take(&chore).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store.chores.get: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("store.chores.get: %w", err)
	}
	return &chore, nil
}

// ListChores returns every chore joined with assignee names, assignee first.
func (store *Store) ListChores(ctx context.Context) ([]ChoreWithUser, error) {
	var chores []ChoreWithUser
	err := store.db.WithContext(ctx).Model(&Chore{}).
		Select("chores.*, users.name AS assigned_name").
		Joins("JOIN users ON users.id = chores.assigned_to").
		Order("users.name ASC, chores.created_at ASC").
		Find(&chores).Error
	if err != nil {
		return nil, fmt.Errorf("store.chores.list: %w", err)
	}
	return chores, nil
}

// ListOpenChores returns incomplete chores joined with assignee names.
func (store *Store) ListOpenChores(ctx context.Context) ([]ChoreWithUser, error) {
	var chores []ChoreWithUser
	err := store.db.WithContext(ctx).Model(&Chore{}).
		Select("chores.*, users.name AS assigned_name").
		Joins("JOIN users ON users.id = chores.assigned_to").
		Where("chores.completed = ?", false).
		Order("users.name ASC, chores.created_at ASC").
		Find(&chores).Error
	if err != nil {
		return nil, fmt.Errorf("store.chores.list_open: %w", err)
	}
	return chores, nil
}

// UpdateChore applies the given column updates to one chore.
func (store *Store) UpdateChore(ctx context.Context, id string, updates map[string]any) error {
	result := store.db.WithContext(ctx).Model(&Chore{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("store.chores.update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store.chores.update: %w", ErrNotFound)
	}
	return nil
}

// DeleteChore removes one chore.
func (store *Store) DeleteChore(ctx context.Context, id string) error {
	result := store.db.WithContext(ctx).Where("id = ?", id).Delete(&Chore{})
	if result.Error != nil {
		return fmt.Errorf("store.chores.delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store.chores.delete: %w", ErrNotFound)
	}
	return nil
}
