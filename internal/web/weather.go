package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tyemirov/homeboard/internal/cache"
)

// handleWeather serves the cached snapshot. Only the background scheduler
// refreshes weather; an empty cache means no pass has succeeded yet.
func (server *Server) handleWeather(contextGin *gin.Context) {
	entry, readErr := server.refresher.Weather()
	if readErr != nil {
		if errors.Is(readErr, cache.ErrEmpty) {
			contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no weather data yet"})
			return
		}
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"weather":    json.RawMessage(entry.Payload),
		"fetched_at": entry.RefreshedAt,
	})
}
