package web

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/homeboard/internal/settings"
)

var zipCodePattern = regexp.MustCompile(`^\d{5}$`)

// Settings exposed over the API. Secrets and token rows never leave the
// server.
var readableSettingKeys = []string{
	settings.KeyFamilyName,
	settings.KeyBaseURL,
	settings.KeyBackgroundURL,
	settings.KeyWeatherZipCode,
	settings.KeyOAuthClientID,
	settings.KeyOAuthRedirectURI,
	settings.KeyLastRefresh,
}

func (server *Server) handleGetSettings(contextGin *gin.Context) {
	values := gin.H{}
	for _, key := range readableSettingKeys {
		value, readErr := server.settingsStore.GetDefault(contextGin, key, "")
		if readErr != nil {
			server.logger.Error("reading setting failed",
				zap.String("code", "api.settings.get"),
				zap.String("key", key),
				zap.Error(readErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		values[key] = value
	}
	weatherKey, keyErr := server.settingsStore.GetDefault(contextGin, settings.KeyWeatherAPIKey, "")
	if keyErr != nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	values["openweather_api_key_set"] = weatherKey != "" || server.runtime.WeatherAPIKey() != ""
	clientSecret, secretErr := server.settingsStore.GetDefault(contextGin, settings.KeyOAuthClientSecret, "")
	if secretErr != nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	values["google_client_secret_set"] = clientSecret != ""
	contextGin.JSON(http.StatusOK, gin.H{"settings": values})
}

// handleUpdateSettings applies a map of setting changes. Unknown keys are
// rejected rather than silently persisted.
func (server *Server) handleUpdateSettings(contextGin *gin.Context) {
	var request map[string]string
	if bindErr := contextGin.ShouldBindJSON(&request); bindErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(request) == 0 {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	for key, value := range request {
		if message := validateSettingValue(key, value); message != "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message})
			return
		}
	}

	for key, value := range request {
		if applyErr := server.applySetting(contextGin, key, strings.TrimSpace(value)); applyErr != nil {
			server.logger.Error("applying setting failed",
				zap.String("code", "api.settings.update"),
				zap.String("key", key),
				zap.Error(applyErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
	}
	contextGin.Status(http.StatusNoContent)
}

func validateSettingValue(key string, value string) string {
	trimmed := strings.TrimSpace(value)
	switch key {
	case settings.KeyFamilyName, settings.KeyWeatherAPIKey,
		settings.KeyOAuthClientID, settings.KeyOAuthClientSecret:
		return ""
	case settings.KeyWeatherZipCode:
		if trimmed != "" && !zipCodePattern.MatchString(trimmed) {
			return "zip code must be five digits"
		}
		return ""
	case settings.KeyBaseURL:
		if trimmed == "" {
			return "base url cannot be empty"
		}
		parsed, parseErr := url.Parse(trimmed)
		if parseErr != nil || parsed.Host == "" || (parsed.Scheme != "https" && parsed.Scheme != "http") {
			return "base url must be an absolute http(s) url"
		}
		return ""
	case settings.KeyBackgroundURL:
		if trimmed == "" {
			return ""
		}
		parsed, parseErr := url.Parse(trimmed)
		if parseErr != nil || parsed.Scheme != "https" {
			return "background url must use https"
		}
		return ""
	default:
		return "unknown setting: " + key
	}
}

// applySetting persists a value and keeps the runtime mirror in step. Changing
// the base URL also recomputes and persists the OAuth redirect URI.
func (server *Server) applySetting(contextGin *gin.Context, key string, value string) error {
	if err := server.settingsStore.Put(contextGin, key, value); err != nil {
		return err
	}
	switch key {
	case settings.KeyWeatherAPIKey:
		server.runtime.SetWeatherAPIKey(value)
	case settings.KeyOAuthClientID:
		server.runtime.SetOAuthClientID(value)
	case settings.KeyOAuthClientSecret:
		server.runtime.SetOAuthClientSecret(value)
	case settings.KeyBaseURL:
		redirectURI := server.runtime.SetBaseURL(value)
		if err := server.settingsStore.Put(contextGin, settings.KeyOAuthRedirectURI, redirectURI); err != nil {
			return err
		}
	}
	return nil
}
