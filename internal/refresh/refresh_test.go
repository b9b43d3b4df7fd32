package refresh_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/homeboard/internal/oauth"
	"github.com/tyemirov/homeboard/internal/providers"
	"github.com/tyemirov/homeboard/internal/refresh"
	"github.com/tyemirov/homeboard/internal/settings"
	"github.com/tyemirov/homeboard/internal/store"
)

type movableClock struct {
	mutex  sync.Mutex
	moment time.Time
}

func (clock *movableClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.moment
}

func (clock *movableClock) Advance(delta time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.moment = clock.moment.Add(delta)
}

type fixture struct {
	refresher     *refresh.Refresher
	repository    *store.Store
	settingsStore *settings.Store
	clock         *movableClock
}

func newFixture(t *testing.T, weatherURL string, calendarEndpoint string) *fixture {
	t.Helper()
	databaseURL := "sqlite://" + filepath.Join(t.TempDir(), "refresh_test.db")
	repository, openErr := store.Open(context.Background(), databaseURL)
	if openErr != nil {
		t.Fatalf("open store: %v", openErr)
	}
	settingsStore := settings.NewStore(repository.DB())
	runtime, bootstrapErr := settings.Bootstrap(context.Background(), settingsStore, settings.Overrides{
		WeatherAPIKey:     "weather-key",
		OAuthClientID:     "client-id",
		OAuthClientSecret: "client-secret",
		OAuthRedirectURI:  "https://board.example/api/google-photos/callback",
	})
	if bootstrapErr != nil {
		t.Fatalf("bootstrap settings: %v", bootstrapErr)
	}
	clock := &movableClock{moment: time.Now()}
	httpClient := &http.Client{Timeout: 5 * time.Second}

	weatherClient := providers.NewWeatherClient(httpClient)
	if weatherURL != "" {
		weatherClient = providers.NewWeatherClientWithBaseURL(httpClient, weatherURL)
	}
	calendarClient := providers.NewCalendarClient()
	if calendarEndpoint != "" {
		calendarClient = providers.NewCalendarClientWithEndpoint(calendarEndpoint)
	}

	refresher := refresh.New(refresh.Config{
		Repository: repository,
		Settings:   settingsStore,
		Runtime:    runtime,
		Broker:     oauth.NewBroker(settingsStore, runtime, httpClient, clock),
		Weather:    weatherClient,
		Feeds:      providers.NewFeedClient(httpClient),
		Calendar:   calendarClient,
		Albums:     providers.NewAlbumClient(httpClient),
		Clock:      clock,
		Logger:     zap.NewNop(),
	})
	return &fixture{refresher: refresher, repository: repository, settingsStore: settingsStore, clock: clock}
}

func TestRefreshWeatherPersistsSlotAndRow(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(`{"main":{"temp":71.5}}`))
	}))
	defer server.Close()

	testFixture := newFixture(t, server.URL, "")
	ctx := context.Background()
	if err := testFixture.settingsStore.Put(ctx, settings.KeyWeatherZipCode, "97210"); err != nil {
		t.Fatalf("put zip: %v", err)
	}

	if err := testFixture.refresher.RefreshWeather(ctx); err != nil {
		t.Fatalf("refresh weather: %v", err)
	}

	entry, readErr := testFixture.refresher.Weather()
	if readErr != nil {
		t.Fatalf("read weather slot: %v", readErr)
	}
	if entry.Payload != `{"main":{"temp":71.5}}` {
		t.Fatalf("slot payload = %q", entry.Payload)
	}

	row, loadErr := testFixture.repository.LoadWeather(ctx)
	if loadErr != nil {
		t.Fatalf("load durable weather: %v", loadErr)
	}
	if row.Data != entry.Payload {
		t.Fatalf("durable payload %q differs from slot %q", row.Data, entry.Payload)
	}
}

func TestRefreshWeatherWithoutZipReportsNotConfigured(t *testing.T) {
	t.Parallel()
	testFixture := newFixture(t, "", "")

	err := testFixture.refresher.RefreshWeather(context.Background())
	if !errors.Is(err, refresh.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRunPassRefreshesFeedCalendar(t *testing.T) {
	t.Parallel()
	feed := "BEGIN:VCALENDAR\nEND:VCALENDAR"
	feedServer := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(feed))
	}))
	defer feedServer.Close()

	testFixture := newFixture(t, "", "")
	ctx := context.Background()
	calendar := &store.Calendar{Name: "School", URL: feedServer.URL}
	if err := testFixture.repository.CreateCalendar(ctx, calendar); err != nil {
		t.Fatalf("create calendar: %v", err)
	}

	testFixture.refresher.RunPass(ctx)

	entry, readErr := testFixture.refresher.Feed(calendar.ID)
	if readErr != nil {
		t.Fatalf("read feed slot: %v", readErr)
	}
	if entry.Payload != feed {
		t.Fatalf("feed payload = %q", entry.Payload)
	}

	stamp, stampErr := testFixture.settingsStore.Get(ctx, settings.KeyLastRefresh)
	if stampErr != nil {
		t.Fatalf("read refresh stamp: %v", stampErr)
	}
	if _, parseErr := time.Parse(time.RFC3339, stamp); parseErr != nil {
		t.Fatalf("refresh stamp %q is not RFC3339: %v", stamp, parseErr)
	}
}

func TestHydrateServesDurableRowsWithoutNetwork(t *testing.T) {
	t.Parallel()
	testFixture := newFixture(t, "", "")
	ctx := context.Background()

	calendar := &store.Calendar{Name: "School", URL: "https://calendar.google.com/feed.ics"}
	if err := testFixture.repository.CreateCalendar(ctx, calendar); err != nil {
		t.Fatalf("create calendar: %v", err)
	}
	fetchedAt := testFixture.clock.Now().Add(-time.Hour)
	if err := testFixture.repository.SaveWeather(ctx, `{"temp":60}`, fetchedAt); err != nil {
		t.Fatalf("seed weather: %v", err)
	}
	if err := testFixture.repository.SaveFeed(ctx, calendar.ID, "BEGIN:VCALENDAR\nEND:VCALENDAR", fetchedAt); err != nil {
		t.Fatalf("seed feed: %v", err)
	}

	testFixture.refresher.Hydrate(ctx)

	weather, weatherErr := testFixture.refresher.Weather()
	if weatherErr != nil {
		t.Fatalf("read weather after hydrate: %v", weatherErr)
	}
	if weather.Payload != `{"temp":60}` {
		t.Fatalf("hydrated weather = %q", weather.Payload)
	}
	if _, feedErr := testFixture.refresher.Feed(calendar.ID); feedErr != nil {
		t.Fatalf("read feed after hydrate: %v", feedErr)
	}
}

func TestEventsReadThroughHonorsTTL(t *testing.T) {
	t.Parallel()
	var eventCalls atomic.Int64
	calendarServer := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		if request.URL.Path == "/calendars/google-cal/events" {
			eventCalls.Add(1)
			_, _ = writer.Write([]byte(`{"items":[{"id":"evt","summary":"Practice","start":{"dateTime":"2026-08-26T16:00:00Z"},"end":{"dateTime":"2026-08-26T17:00:00Z"}}]}`))
			return
		}
		http.NotFound(writer, request)
	}))
	defer calendarServer.Close()

	testFixture := newFixture(t, "", calendarServer.URL)
	ctx := context.Background()

	// A stored fresh token keeps the broker off the network.
	if err := testFixture.settingsStore.Put(ctx, settings.KeyOAuthAccessToken, "fresh-access"); err != nil {
		t.Fatalf("seed access token: %v", err)
	}
	expiry := testFixture.clock.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	if err := testFixture.settingsStore.Put(ctx, settings.KeyOAuthTokenExpiry, expiry); err != nil {
		t.Fatalf("seed expiry: %v", err)
	}

	calendar := store.Calendar{ID: "local-id", Name: "Family", GoogleID: "google-cal"}

	entry, firstErr := testFixture.refresher.Events(ctx, calendar)
	if firstErr != nil {
		t.Fatalf("first events read: %v", firstErr)
	}
	if entry.Payload == "" || entry.Payload == "[]" {
		t.Fatalf("unexpected events payload %q", entry.Payload)
	}

	if _, secondErr := testFixture.refresher.Events(ctx, calendar); secondErr != nil {
		t.Fatalf("second events read: %v", secondErr)
	}
	if eventCalls.Load() != 1 {
		t.Fatalf("fresh listing refetched, %d provider calls", eventCalls.Load())
	}

	testFixture.clock.Advance(11 * time.Minute)
	if err := testFixture.settingsStore.Put(ctx, settings.KeyOAuthTokenExpiry,
		testFixture.clock.Now().Add(time.Hour).UTC().Format(time.RFC3339)); err != nil {
		t.Fatalf("extend token expiry: %v", err)
	}
	if _, thirdErr := testFixture.refresher.Events(ctx, calendar); thirdErr != nil {
		t.Fatalf("third events read: %v", thirdErr)
	}
	if eventCalls.Load() != 2 {
		t.Fatalf("stale listing not refreshed, %d provider calls", eventCalls.Load())
	}

	// The lazy path also persisted a durable copy.
	if _, rowErr := testFixture.repository.LoadEvents(ctx, calendar.ID); rowErr != nil {
		t.Fatalf("durable events row missing: %v", rowErr)
	}
}

func TestAlbumImagesKeyedByURL(t *testing.T) {
	t.Parallel()
	pageA := `"https://lh3.googleusercontent.com/pw/album_a_photo"`
	pageB := `"https://lh3.googleusercontent.com/pw/album_b_photo"`
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path == "/a" {
			_, _ = writer.Write([]byte(pageA))
			return
		}
		_, _ = writer.Write([]byte(pageB))
	}))
	defer server.Close()

	testFixture := newFixture(t, "", "")
	ctx := context.Background()

	imagesA, errA := testFixture.refresher.AlbumImages(ctx, server.URL+"/a")
	if errA != nil {
		t.Fatalf("album a: %v", errA)
	}
	if len(imagesA) != 1 || imagesA[0] != "https://lh3.googleusercontent.com/pw/album_a_photo=w1920-h1080-no" {
		t.Fatalf("unexpected album a images %v", imagesA)
	}

	imagesB, errB := testFixture.refresher.AlbumImages(ctx, server.URL+"/b")
	if errB != nil {
		t.Fatalf("album b: %v", errB)
	}
	if len(imagesB) != 1 || imagesB[0] == imagesA[0] {
		t.Fatalf("album slots shared across URLs: %v", imagesB)
	}
}
