package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/homeboard/internal/session"
	"github.com/tyemirov/homeboard/internal/settings"
	"github.com/tyemirov/homeboard/internal/store"
)

const displayTokenLength = 32

type displayTokenRequest struct {
	Name string `json:"name" binding:"required"`
}

func (server *Server) handleListDisplayTokens(contextGin *gin.Context) {
	tokens, listErr := server.repository.ListDisplayTokens(contextGin)
	if listErr != nil {
		server.logger.Error("listing display tokens failed",
			zap.String("code", "api.display_tokens.list"),
			zap.Error(listErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

func (server *Server) handleCreateDisplayToken(contextGin *gin.Context) {
	var request displayTokenRequest
	if bindErr := contextGin.ShouldBindJSON(&request); bindErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	tokenValue, tokenErr := settings.RandomToken(displayTokenLength)
	if tokenErr != nil {
		server.logger.Error("generating display token failed",
			zap.String("code", "api.display_tokens.generate"),
			zap.Error(tokenErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	token := &store.DisplayToken{Name: strings.TrimSpace(request.Name), Token: tokenValue}
	if createErr := server.repository.CreateDisplayToken(contextGin, token); createErr != nil {
		server.logger.Error("creating display token failed",
			zap.String("code", "api.display_tokens.create"),
			zap.Error(createErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.JSON(http.StatusCreated, gin.H{"token": token})
}

func (server *Server) handleDeleteDisplayToken(contextGin *gin.Context) {
	tokenID := contextGin.Param("id")
	if deleteErr := server.repository.DeleteDisplayToken(contextGin, tokenID); deleteErr != nil {
		if errors.Is(deleteErr, store.ErrNotFound) {
			contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "token not found"})
			return
		}
		server.logger.Error("deleting display token failed",
			zap.String("code", "api.display_tokens.delete"),
			zap.Error(deleteErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.Status(http.StatusNoContent)
}

// displayAuthorized accepts either a verified session or a registered display
// token supplied via query or header.
func (server *Server) displayAuthorized(contextGin *gin.Context) bool {
	if session.ClaimsFrom(contextGin) != nil {
		return true
	}
	token := contextGin.Query("token")
	if token == "" {
		token = contextGin.GetHeader("X-Display-Token")
	}
	if token == "" {
		return false
	}
	exists, existsErr := server.repository.DisplayTokenExists(contextGin, token)
	if existsErr != nil {
		server.logger.Error("display token lookup failed",
			zap.String("code", "api.display.token_lookup"),
			zap.Error(existsErr))
		return false
	}
	return exists
}

// handleDisplayData aggregates everything a wall display renders in one call:
// family name, weather, calendars with cached payloads, photos, and the last
// background refresh timestamp.
func (server *Server) handleDisplayData(contextGin *gin.Context) {
	if !server.displayAuthorized(contextGin) {
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	familyName, _ := server.settingsStore.GetDefault(contextGin, settings.KeyFamilyName, "")
	lastRefresh, _ := server.settingsStore.GetDefault(contextGin, settings.KeyLastRefresh, "")

	response := gin.H{
		"family_name":  familyName,
		"last_refresh": lastRefresh,
	}

	if weather, weatherErr := server.refresher.Weather(); weatherErr == nil {
		response["weather"] = gin.H{
			"data":       json.RawMessage(weather.Payload),
			"fetched_at": weather.RefreshedAt,
		}
	}

	response["calendars"] = server.displayCalendars(contextGin)

	chores, choresErr := server.repository.ListOpenChores(contextGin)
	if choresErr == nil {
		response["chores"] = chores
	}
	if balances, balancesErr := server.repository.AllowanceBalances(contextGin); balancesErr == nil {
		response["allowance"] = balances
	}

	response["photos"] = server.displayPhotos(contextGin)

	contextGin.JSON(http.StatusOK, response)
}

func (server *Server) displayCalendars(contextGin *gin.Context) []gin.H {
	calendars, listErr := server.repository.ListCalendars(contextGin)
	if listErr != nil {
		server.logger.Error("listing calendars for display failed",
			zap.String("code", "api.display.calendars"),
			zap.Error(listErr))
		return nil
	}
	payload := make([]gin.H, 0, len(calendars))
	for _, calendar := range calendars {
		item := gin.H{
			"id":    calendar.ID,
			"name":  calendar.Name,
			"color": calendar.Color,
		}
		switch {
		case calendar.GoogleID != "":
			if entry, eventsErr := server.refresher.Events(contextGin, calendar); eventsErr == nil {
				item["events"] = json.RawMessage(entry.Payload)
				item["fetched_at"] = entry.RefreshedAt
			}
		case calendar.URL != "":
			if entry, feedErr := server.refresher.Feed(calendar.ID); feedErr == nil {
				item["ics"] = entry.Payload
				item["fetched_at"] = entry.RefreshedAt
			}
		}
		payload = append(payload, item)
	}
	return payload
}

// displayPhotos prefers picked photos served from local disk; without a
// selection it falls back to a configured shared-album scrape.
func (server *Server) displayPhotos(contextGin *gin.Context) gin.H {
	pickedValue, pickedErr := server.settingsStore.GetDefault(contextGin, settings.KeyPickedPhotos, "")
	if pickedErr == nil && pickedValue != "" {
		var filenames []string
		if unmarshalErr := json.Unmarshal([]byte(pickedValue), &filenames); unmarshalErr == nil && len(filenames) > 0 {
			urls := make([]string, 0, len(filenames))
			for _, filename := range filenames {
				urls = append(urls, "/api/photos/"+filename)
			}
			return gin.H{"source": "picker", "images": urls}
		}
	}

	backgroundURL, backgroundErr := server.settingsStore.GetDefault(contextGin, settings.KeyBackgroundURL, "")
	if backgroundErr == nil && backgroundURL != "" {
		images, albumErr := server.refresher.AlbumImages(contextGin, backgroundURL)
		if albumErr != nil {
			server.logger.Warn("album scrape failed",
				zap.String("code", "api.display.album"),
				zap.Error(albumErr))
			return gin.H{"source": "album", "images": []string{}}
		}
		return gin.H{"source": "album", "images": images}
	}
	return gin.H{"source": "none", "images": []string{}}
}

// handlePhotoFile serves one downloaded picker photo from local disk.
func (server *Server) handlePhotoFile(contextGin *gin.Context) {
	if !server.displayAuthorized(contextGin) {
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	name := contextGin.Param("name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid photo name"})
		return
	}
	path := filepath.Join(server.photosDir, name)
	if _, statErr := os.Stat(path); statErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}
	contextGin.File(path)
}
