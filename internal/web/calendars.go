package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/homeboard/internal/cache"
	"github.com/tyemirov/homeboard/internal/store"
)

// Feed subscriptions are limited to the calendar providers the household
// actually uses; arbitrary URLs would let an admin point the server at
// internal endpoints.
var allowedFeedHosts = map[string]struct{}{
	"calendar.google.com":   {},
	"outlook.live.com":      {},
	"outlook.office.com":    {},
	"outlook.office365.com": {},
}

type calendarRequest struct {
	Name     string `json:"name" binding:"required"`
	URL      string `json:"url"`
	GoogleID string `json:"google_id"`
	Color    string `json:"color"`
}

func validateFeedURL(rawURL string) error {
	parsed, parseErr := url.Parse(rawURL)
	if parseErr != nil {
		return errors.New("invalid url")
	}
	if parsed.Scheme != "https" {
		return errors.New("feed url must use https")
	}
	if _, allowed := allowedFeedHosts[strings.ToLower(parsed.Hostname())]; !allowed {
		return errors.New("feed host not allowed")
	}
	return nil
}

func (server *Server) handleListCalendars(contextGin *gin.Context) {
	calendars, listErr := server.repository.ListCalendars(contextGin)
	if listErr != nil {
		server.logger.Error("listing calendars failed",
			zap.String("code", "api.calendars.list"),
			zap.Error(listErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"calendars": calendars})
}

func (server *Server) handleCreateCalendar(contextGin *gin.Context) {
	var request calendarRequest
	if bindErr := contextGin.ShouldBindJSON(&request); bindErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if (request.URL == "") == (request.GoogleID == "") {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "exactly one of url or google_id is required"})
		return
	}
	if request.URL != "" {
		if validationErr := validateFeedURL(request.URL); validationErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
			return
		}
	}

	calendar := &store.Calendar{
		Name:     strings.TrimSpace(request.Name),
		URL:      request.URL,
		GoogleID: request.GoogleID,
		Color:    request.Color,
	}
	if createErr := server.repository.CreateCalendar(contextGin, calendar); createErr != nil {
		server.logger.Error("creating calendar failed",
			zap.String("code", "api.calendars.create"),
			zap.Error(createErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.JSON(http.StatusCreated, gin.H{"calendar": calendar})
}

func (server *Server) handleDeleteCalendar(contextGin *gin.Context) {
	calendarID := contextGin.Param("id")
	if deleteErr := server.repository.DeleteCalendar(contextGin, calendarID); deleteErr != nil {
		if errors.Is(deleteErr, store.ErrNotFound) {
			contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "calendar not found"})
			return
		}
		server.logger.Error("deleting calendar failed",
			zap.String("code", "api.calendars.delete"),
			zap.String("calendar_id", calendarID),
			zap.Error(deleteErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	server.refresher.DropCalendar(calendarID)
	contextGin.Status(http.StatusNoContent)
}

// handleCalendarFeed serves the cached ICS body. An empty cache triggers one
// inline fetch so a freshly added calendar renders before the next background
// pass.
func (server *Server) handleCalendarFeed(contextGin *gin.Context) {
	calendarID := contextGin.Param("id")
	calendar, getErr := server.repository.GetCalendar(contextGin, calendarID)
	if getErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "calendar not found"})
		return
	}
	if calendar.URL == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "calendar has no feed url"})
		return
	}

	entry, readErr := server.refresher.Feed(calendarID)
	if errors.Is(readErr, cache.ErrEmpty) {
		if refreshErr := server.refresher.RefreshFeed(contextGin, *calendar); refreshErr != nil {
			server.logger.Warn("inline feed fetch failed",
				zap.String("code", "api.calendars.feed.fetch"),
				zap.String("calendar_id", calendarID),
				zap.Error(refreshErr))
			contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "feed unavailable"})
			return
		}
		entry, readErr = server.refresher.Feed(calendarID)
	}
	if readErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "feed unavailable"})
		return
	}
	contextGin.Header("Content-Type", "text/calendar; charset=utf-8")
	contextGin.String(http.StatusOK, entry.Payload)
}

func (server *Server) handleCalendarEvents(contextGin *gin.Context) {
	calendarID := contextGin.Param("id")
	calendar, getErr := server.repository.GetCalendar(contextGin, calendarID)
	if getErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "calendar not found"})
		return
	}
	if calendar.GoogleID == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "calendar is not provider-backed"})
		return
	}

	entry, eventsErr := server.refresher.Events(contextGin, *calendar)
	if eventsErr != nil {
		server.logger.Warn("event read failed",
			zap.String("code", "api.calendars.events"),
			zap.String("calendar_id", calendarID),
			zap.Error(eventsErr))
		contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "events unavailable"})
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"events":     json.RawMessage(entry.Payload),
		"fetched_at": entry.RefreshedAt,
	})
}

func (server *Server) handleAvailableGoogleCalendars(contextGin *gin.Context) {
	accessToken, tokenErr := server.broker.AccessToken(contextGin)
	if tokenErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "google account not connected"})
		return
	}
	calendars, listErr := server.calendarClient.ListCalendars(contextGin, accessToken)
	if listErr != nil {
		server.logger.Warn("provider calendar listing failed",
			zap.String("code", "api.calendars.google"),
			zap.Error(listErr))
		contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "provider unavailable"})
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"calendars": calendars})
}
