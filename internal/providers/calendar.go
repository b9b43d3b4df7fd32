package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	calendarAPI "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ProviderCalendar is one calendar visible to the connected Google account.
type ProviderCalendar struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Primary bool   `json:"primary"`
	Color   string `json:"color,omitempty"`
}

// EventItem is one upcoming event in a cache-friendly shape.
type EventItem struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Location string `json:"location,omitempty"`
	Start    string `json:"start"`
	End      string `json:"end"`
	AllDay   bool   `json:"all_day"`
}

// CalendarClient wraps the Google Calendar API behind per-call access tokens.
type CalendarClient struct {
	endpoint string
}

// NewCalendarClient builds a calendar client against the production endpoint.
func NewCalendarClient() *CalendarClient {
	return &CalendarClient{}
}

// NewCalendarClientWithEndpoint supports pointing the client at a test server.
func NewCalendarClientWithEndpoint(endpoint string) *CalendarClient {
	return &CalendarClient{endpoint: endpoint}
}

func (client *CalendarClient) service(ctx context.Context, accessToken string) (*calendarAPI.Service, error) {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	options := []option.ClientOption{option.WithTokenSource(source)}
	if client.endpoint != "" {
		options = append(options, option.WithEndpoint(client.endpoint))
	}
	service, serviceErr := calendarAPI.NewService(ctx, options...)
	if serviceErr != nil {
		return nil, fmt.Errorf("providers.calendar.service: %w", serviceErr)
	}
	return service, nil
}

// ListCalendars returns the connected account's calendar list.
func (client *CalendarClient) ListCalendars(ctx context.Context, accessToken string) ([]ProviderCalendar, error) {
	service, serviceErr := client.service(ctx, accessToken)
	if serviceErr != nil {
		return nil, serviceErr
	}
	listing, listErr := service.CalendarList.List().Context(ctx).Do()
	if listErr != nil {
		return nil, wrapCalendarError(listErr)
	}
	calendars := make([]ProviderCalendar, 0, len(listing.Items))
	for _, item := range listing.Items {
		calendars = append(calendars, ProviderCalendar{
			ID:      item.Id,
			Summary: item.Summary,
			Primary: item.Primary,
			Color:   item.BackgroundColor,
		})
	}
	return calendars, nil
}

// UpcomingEvents returns up to 50 future events for one calendar, expanded and
// ordered by start time.
func (client *CalendarClient) UpcomingEvents(ctx context.Context, accessToken string, calendarID string, now time.Time) ([]EventItem, error) {
	service, serviceErr := client.service(ctx, accessToken)
	if serviceErr != nil {
		return nil, serviceErr
	}
	listing, listErr := service.Events.List(calendarID).
		TimeMin(now.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(50).
		Context(ctx).
		Do()
	if listErr != nil {
		return nil, wrapCalendarError(listErr)
	}
	events := make([]EventItem, 0, len(listing.Items))
	for _, item := range listing.Items {
		events = append(events, EventItem{
			ID:       item.Id,
			Summary:  item.Summary,
			Location: item.Location,
			Start:    eventTimestamp(item.Start),
			End:      eventTimestamp(item.End),
			AllDay:   item.Start != nil && item.Start.DateTime == "",
		})
	}
	return events, nil
}

func eventTimestamp(moment *calendarAPI.EventDateTime) string {
	if moment == nil {
		return ""
	}
	if moment.DateTime != "" {
		return moment.DateTime
	}
	return moment.Date
}

func wrapCalendarError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: "calendar", Status: apiErr.Code, Body: apiErr.Message}
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
