package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateCalendar inserts a calendar, assigning an id when absent.
func (store *Store) CreateCalendar(ctx context.Context, calendar *Calendar) error {
	if calendar.ID == "" {
		calendar.ID = uuid.NewString()
	}
	if calendar.Color == "" {
		calendar.Color = "primary"
	}
	if err := store.db.WithContext(ctx).Create(calendar).Error; err != nil {
		return fmt.Errorf("store.calendars.create: %w", err)
	}
	return nil
}

// GetCalendar returns one calendar by id.
func (store *Store) GetCalendar(ctx context.Context, id string) (*Calendar, error) {
	var calendar Calendar
	err := store.db.WithContext(ctx).Where("id = ?", id).Take(&calendar).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store.calendars.get: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("store.calendars.get: %w", err)
	}
	return &calendar, nil
}

// ListCalendars returns every calendar in creation order. The background
// refresher relies on this ordering.
func (store *Store) ListCalendars(ctx context.Context) ([]Calendar, error) {
	var calendars []Calendar
	if err := store.db.WithContext(ctx).Order("created_at ASC").Find(&calendars).Error; err != nil {
		return nil, fmt.Errorf("store.calendars.list: %w", err)
	}
	return calendars, nil
}

// DeleteCalendar removes one calendar and its cached rows.
func (store *Store) DeleteCalendar(ctx context.Context, id string) error {
	txErr := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&Calendar{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("calendar_id = ?", id).Delete(&EventRow{}).Error; err != nil {
			return err
		}
		return tx.Where("calendar_id = ?", id).Delete(&FeedRow{}).Error
	})
	if txErr != nil {
		return fmt.Errorf("store.calendars.delete: %w", txErr)
	}
	return nil
}
