package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func TestZapLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger, err := zap.NewProduction()
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	router := gin.New()
	router.Use(zapLoggerMiddleware(logger))
	router.GET("/ping", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}

func TestRunServerMissingConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	err := runServer(&cobra.Command{}, nil)
	if err == nil {
		t.Fatalf("expected configuration error")
	}

	expectedMessage := "config.uninitialized_server_config: server configuration not prepared; PreRunE must execute before RunE"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRequiresDatabaseURL(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("photos_dir", "photos")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error when database_url is missing")
	}
	expectedMessage := "config.missing_database_url: database_url must be provided"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRequiresPhotosDir(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("database_url", "sqlite://homeboard.db")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error when photos_dir is missing")
	}
	expectedMessage := "config.missing_photos_dir: photos_dir must be provided"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRequiresCORSOrigins(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("database_url", "sqlite://homeboard.db")
	viper.Set("photos_dir", "photos")
	viper.Set("enable_cors", true)

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error when cors origins are missing")
	}
	expectedMessage := "config.missing_cors_origins: cors_allowed_origins must be provided when enable_cors is true"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	command := newRootCommand()
	if err := command.ParseFlags(nil); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	serverConfig, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if serverConfig.ListenAddr != ":8080" {
		t.Fatalf("listen addr = %q", serverConfig.ListenAddr)
	}
	if serverConfig.DatabaseURL != "sqlite://homeboard.db" {
		t.Fatalf("database url = %q", serverConfig.DatabaseURL)
	}
	if serverConfig.PhotosDir != "photos" {
		t.Fatalf("photos dir = %q", serverConfig.PhotosDir)
	}
	if serverConfig.EnableCORS {
		t.Fatal("cors enabled by default")
	}
}
