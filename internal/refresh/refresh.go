// Package refresh orchestrates fetching external data into the cache slots
// and durable rows. The background scheduler drives full passes; request
// handlers use the lazy accessors.
package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/homeboard/internal/cache"
	"github.com/tyemirov/homeboard/internal/oauth"
	"github.com/tyemirov/homeboard/internal/providers"
	"github.com/tyemirov/homeboard/internal/session"
	"github.com/tyemirov/homeboard/internal/settings"
	"github.com/tyemirov/homeboard/internal/store"
)

const (
	// Google event listings refresh lazily once they are this old.
	eventsTTL = 10 * time.Minute
	// Scraped album listings are reused for a day before re-scraping.
	albumTTL = 24 * time.Hour
)

// ErrNotConfigured indicates a refresh target has no usable configuration.
var ErrNotConfigured = errors.New("refresh.not_configured")

// Config carries the collaborators a Refresher needs.
type Config struct {
	Repository *store.Store
	Settings   *settings.Store
	Runtime    *settings.Runtime
	Broker     *oauth.Broker
	Weather    *providers.WeatherClient
	Feeds      *providers.FeedClient
	Calendar   *providers.CalendarClient
	Albums     *providers.AlbumClient
	Clock      session.Clock
	Logger     *zap.Logger
}

// Refresher fetches weather, calendar feeds, Google events, and shared-album
// listings into their cache slots, persisting durable copies as it goes.
type Refresher struct {
	repository     *store.Store
	settingsStore  *settings.Store
	runtime        *settings.Runtime
	broker         *oauth.Broker
	weatherClient  *providers.WeatherClient
	feedClient     *providers.FeedClient
	calendarClient *providers.CalendarClient
	albumClient    *providers.AlbumClient
	clock          session.Clock
	logger         *zap.Logger

	weatherSlot *cache.Slot
	feedSlots   *cache.Group
	eventSlots  *cache.Group
	albumSlots  *cache.Group
}

// New builds a refresher with empty cache slots.
func New(config Config) *Refresher {
	return &Refresher{
		repository:     config.Repository,
		settingsStore:  config.Settings,
		runtime:        config.Runtime,
		broker:         config.Broker,
		weatherClient:  config.Weather,
		feedClient:     config.Feeds,
		calendarClient: config.Calendar,
		albumClient:    config.Albums,
		clock:          config.Clock,
		logger:         config.Logger,
		weatherSlot:    cache.NewSlot("weather", config.Clock, config.Logger),
		feedSlots:      cache.NewGroup("feed", config.Clock, config.Logger),
		eventSlots:     cache.NewGroup("events", config.Clock, config.Logger),
		albumSlots:     cache.NewGroup("album", config.Clock, config.Logger),
	}
}

// Hydrate fills the cache slots from durable rows so a restart serves data
// before the first background pass completes.
func (refresher *Refresher) Hydrate(ctx context.Context) {
	weatherRow, weatherErr := refresher.repository.LoadWeather(ctx)
	if weatherErr == nil {
		refresher.weatherSlot.Store(weatherRow.Data, weatherRow.FetchedAt)
	} else if !errors.Is(weatherErr, store.ErrNotFound) {
		refresher.logger.Warn("weather hydration failed", zap.Error(weatherErr))
	}

	calendars, listErr := refresher.repository.ListCalendars(ctx)
	if listErr != nil {
		refresher.logger.Warn("calendar hydration failed", zap.Error(listErr))
		return
	}
	for _, calendar := range calendars {
		if feedRow, err := refresher.repository.LoadFeed(ctx, calendar.ID); err == nil {
			refresher.feedSlots.ForKey(calendar.ID).Store(feedRow.ICSData, feedRow.FetchedAt)
		}
		if eventRow, err := refresher.repository.LoadEvents(ctx, calendar.ID); err == nil {
			refresher.eventSlots.ForKey(calendar.ID).Store(eventRow.Events, eventRow.FetchedAt)
		}
	}
}

// RunPass executes one full background refresh: weather first, then every
// calendar. Individual failures are logged and never abort the pass.
func (refresher *Refresher) RunPass(ctx context.Context) {
	if err := refresher.RefreshWeather(ctx); err != nil && !errors.Is(err, ErrNotConfigured) {
		refresher.logger.Warn("weather refresh failed", zap.Error(err))
	}
	refresher.refreshCalendars(ctx)
	stamp := refresher.clock.Now().UTC().Format(time.RFC3339)
	if err := refresher.settingsStore.Put(ctx, settings.KeyLastRefresh, stamp); err != nil {
		refresher.logger.Warn("recording refresh timestamp failed", zap.Error(err))
	}
}

// RefreshWeather fetches current conditions and persists them. Without a zip
// code and API key the refresh reports ErrNotConfigured.
func (refresher *Refresher) RefreshWeather(ctx context.Context) error {
	zipCode, zipErr := refresher.settingsStore.GetDefault(ctx, settings.KeyWeatherZipCode, "")
	if zipErr != nil {
		return zipErr
	}
	apiKey := refresher.runtime.WeatherAPIKey()
	if zipCode == "" || apiKey == "" {
		return fmt.Errorf("refresh.weather: %w", ErrNotConfigured)
	}
	payload, fetchErr := refresher.weatherClient.Fetch(ctx, zipCode, apiKey)
	if fetchErr != nil {
		return fetchErr
	}
	fetchedAt := refresher.clock.Now()
	refresher.weatherSlot.Store(payload, fetchedAt)
	return refresher.repository.SaveWeather(ctx, payload, fetchedAt)
}

func (refresher *Refresher) refreshCalendars(ctx context.Context) {
	calendars, listErr := refresher.repository.ListCalendars(ctx)
	if listErr != nil {
		refresher.logger.Warn("listing calendars failed", zap.Error(listErr))
		return
	}
	for _, calendar := range calendars {
		switch {
		case calendar.URL != "":
			if err := refresher.RefreshFeed(ctx, calendar); err != nil {
				refresher.logger.Warn("feed refresh failed",
					zap.String("calendar_id", calendar.ID),
					zap.Error(err))
			}
		case calendar.GoogleID != "":
			if err := refresher.RefreshEvents(ctx, calendar); err != nil {
				refresher.logger.Warn("event refresh failed",
					zap.String("calendar_id", calendar.ID),
					zap.Error(err))
			}
		}
	}
}

// RefreshFeed fetches one ICS feed and persists it.
func (refresher *Refresher) RefreshFeed(ctx context.Context, calendar store.Calendar) error {
	payload, fetchErr := refresher.feedClient.Fetch(ctx, calendar.URL)
	if fetchErr != nil {
		return fetchErr
	}
	fetchedAt := refresher.clock.Now()
	refresher.feedSlots.ForKey(calendar.ID).Store(payload, fetchedAt)
	return refresher.repository.SaveFeed(ctx, calendar.ID, payload, fetchedAt)
}

// RefreshEvents fetches one Google calendar's upcoming events and persists
// them as JSON.
func (refresher *Refresher) RefreshEvents(ctx context.Context, calendar store.Calendar) error {
	payload, fetchErr := refresher.fetchEventsPayload(ctx, calendar)
	if fetchErr != nil {
		return fetchErr
	}
	fetchedAt := refresher.clock.Now()
	refresher.eventSlots.ForKey(calendar.ID).Store(payload, fetchedAt)
	return refresher.repository.SaveEvents(ctx, calendar.ID, payload, fetchedAt)
}

func (refresher *Refresher) fetchEventsPayload(ctx context.Context, calendar store.Calendar) (string, error) {
	accessToken, tokenErr := refresher.broker.AccessToken(ctx)
	if tokenErr != nil {
		return "", tokenErr
	}
	events, eventsErr := refresher.calendarClient.UpcomingEvents(ctx, accessToken, calendar.GoogleID, refresher.clock.Now())
	if eventsErr != nil {
		return "", eventsErr
	}
	encoded, encodeErr := json.Marshal(events)
	if encodeErr != nil {
		return "", fmt.Errorf("refresh.events.encode: %w", encodeErr)
	}
	return string(encoded), nil
}

// Weather returns the cached weather snapshot. Only the scheduler refreshes
// it; readers see whatever the last pass produced.
func (refresher *Refresher) Weather() (cache.Entry, error) {
	return refresher.weatherSlot.Read()
}

// Feed returns the cached ICS payload for one calendar.
func (refresher *Refresher) Feed(calendarID string) (cache.Entry, error) {
	return refresher.feedSlots.ForKey(calendarID).Read()
}

// Events returns the cached event payload for one Google calendar, refreshing
// through the provider once the cached listing is older than ten minutes.
func (refresher *Refresher) Events(ctx context.Context, calendar store.Calendar) (cache.Entry, error) {
	slot := refresher.eventSlots.ForKey(calendar.ID)
	return slot.ReadThrough(ctx, eventsTTL, func(fetchCtx context.Context) (string, error) {
		payload, fetchErr := refresher.fetchEventsPayload(fetchCtx, calendar)
		if fetchErr != nil {
			return "", fetchErr
		}
		if saveErr := refresher.repository.SaveEvents(fetchCtx, calendar.ID, payload, refresher.clock.Now()); saveErr != nil {
			refresher.logger.Warn("persisting events failed",
				zap.String("calendar_id", calendar.ID),
				zap.Error(saveErr))
		}
		return payload, nil
	})
}

// AlbumImages returns the image URLs scraped from a shared album page,
// re-scraping once a day. Slots are keyed by URL so changing the configured
// album never serves the previous album's images.
func (refresher *Refresher) AlbumImages(ctx context.Context, albumURL string) ([]string, error) {
	slot := refresher.albumSlots.ForKey(albumURL)
	entry, err := slot.ReadThrough(ctx, albumTTL, func(fetchCtx context.Context) (string, error) {
		images, fetchErr := refresher.albumClient.Fetch(fetchCtx, albumURL)
		if fetchErr != nil {
			return "", fetchErr
		}
		encoded, encodeErr := json.Marshal(images)
		if encodeErr != nil {
			return "", fmt.Errorf("refresh.album.encode: %w", encodeErr)
		}
		return string(encoded), nil
	})
	if err != nil {
		return nil, err
	}
	var images []string
	if unmarshalErr := json.Unmarshal([]byte(entry.Payload), &images); unmarshalErr != nil {
		return nil, fmt.Errorf("refresh.album.decode: %w", unmarshalErr)
	}
	return images, nil
}

// DropCalendar forgets the cache slots of a deleted calendar.
func (refresher *Refresher) DropCalendar(calendarID string) {
	refresher.feedSlots.Drop(calendarID)
	refresher.eventSlots.Drop(calendarID)
}
