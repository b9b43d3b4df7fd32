package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoadWeather returns the persisted weather snapshot, or ErrNotFound when the
// service has never fetched one.
func (store *Store) LoadWeather(ctx context.Context) (*WeatherRow, error) {
	var row WeatherRow
	err := store.db.WithContext(ctx).Where("id = ?", 1).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store.cache.load_weather: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("store.cache.load_weather: %w", err)
	}
	return &row, nil
}

// SaveWeather upserts the single weather snapshot row.
func (store *Store) SaveWeather(ctx context.Context, data string, fetchedAt time.Time) error {
	row := WeatherRow{ID: 1, FetchedAt: fetchedAt, Data: data}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"fetched_at", "data"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store.cache.save_weather: %w", err)
	}
	return nil
}

// LoadEvents returns the persisted event list for one calendar.
func (store *Store) LoadEvents(ctx context.Context, calendarID string) (*EventRow, error) {
	var row EventRow
	err := store.db.WithContext(ctx).Where("calendar_id = ?", calendarID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store.cache.load_events: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("store.cache.load_events: %w", err)
	}
	return &row, nil
}

// SaveEvents upserts the persisted event list for one calendar.
func (store *Store) SaveEvents(ctx context.Context, calendarID string, events string, fetchedAt time.Time) error {
	row := EventRow{CalendarID: calendarID, FetchedAt: fetchedAt, Events: events}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "calendar_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"fetched_at", "events"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store.cache.save_events: %w", err)
	}
	return nil
}

// LoadFeed returns the persisted ICS payload for one subscribed calendar.
func (store *Store) LoadFeed(ctx context.Context, calendarID string) (*FeedRow, error) {
	var row FeedRow
	err := store.db.WithContext(ctx).Where("calendar_id = ?", calendarID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store.cache.load_feed: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("store.cache.load_feed: %w", err)
	}
	return &row, nil
}

// SaveFeed upserts the persisted ICS payload for one subscribed calendar.
func (store *Store) SaveFeed(ctx context.Context, calendarID string, icsData string, fetchedAt time.Time) error {
	row := FeedRow{CalendarID: calendarID, FetchedAt: fetchedAt, ICSData: icsData}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "calendar_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"fetched_at", "ics_data"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store.cache.save_feed: %w", err)
	}
	return nil
}
