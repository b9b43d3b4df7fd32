package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tyemirov/homeboard/internal/oauth"
	"github.com/tyemirov/homeboard/internal/providers"
	"github.com/tyemirov/homeboard/internal/refresh"
	"github.com/tyemirov/homeboard/internal/scheduler"
	"github.com/tyemirov/homeboard/internal/session"
	"github.com/tyemirov/homeboard/internal/settings"
	"github.com/tyemirov/homeboard/internal/store"
	"github.com/tyemirov/homeboard/internal/tasks"
	"github.com/tyemirov/homeboard/internal/web"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "homeboard",
		Short:   "Household dashboard backend with JWT sessions, chores, calendars, weather, and Google Photos",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("database_url", "sqlite://homeboard.db", "Database URL (postgres:// or sqlite://)")
	rootCmd.Flags().String("photos_dir", "photos", "Directory for downloaded picker photos")
	rootCmd.Flags().String("frontend_dir", "", "Directory with the built frontend; empty disables static serving")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("database_url", rootCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("photos_dir", rootCmd.Flags().Lookup("photos_dir"))
	_ = viper.BindPFlag("frontend_dir", rootCmd.Flags().Lookup("frontend_dir"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingDatabaseURL      = "config.missing_database_url"
	configCodeMissingPhotosDir        = "config.missing_photos_dir"
	configCodeMissingCORSOrigins      = "config.missing_cors_origins"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

// ServerConfig is the process configuration resolved from flags and APP_ env.
type ServerConfig struct {
	ListenAddr         string
	DatabaseURL        string
	PhotosDir          string
	FrontendDir        string
	EnableCORS         bool
	CORSAllowedOrigins []string
}

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func LoadServerConfig() (ServerConfig, error) {
	databaseURL := viper.GetString("database_url")
	if databaseURL == "" {
		return ServerConfig{}, configError(configCodeMissingDatabaseURL, "database_url must be provided")
	}

	photosDir := viper.GetString("photos_dir")
	if photosDir == "" {
		return ServerConfig{}, configError(configCodeMissingPhotosDir, "photos_dir must be provided")
	}

	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")
	if enableCORS && len(corsAllowedOrigins) == 0 {
		return ServerConfig{}, configError(configCodeMissingCORSOrigins, "cors_allowed_origins must be provided when enable_cors is true")
	}

	return ServerConfig{
		ListenAddr:         viper.GetString("listen_addr"),
		DatabaseURL:        databaseURL,
		PhotosDir:          photosDir,
		FrontendDir:        viper.GetString("frontend_dir"),
		EnableCORS:         enableCORS,
		CORSAllowedOrigins: corsAllowedOrigins,
	}, nil
}

// settingOverrides reads the plain-named environment variables that take
// precedence over persisted settings at boot. The signing secret is not among
// them: it is generated on first run and only ever read from the database.
func settingOverrides() settings.Overrides {
	return settings.Overrides{
		WeatherAPIKey:     os.Getenv("OPENWEATHER_API_KEY"),
		OAuthClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		OAuthClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		OAuthRedirectURI:  os.Getenv("GOOGLE_OAUTH_REDIRECT_URI"),
		BaseURL:           os.Getenv("BASE_URL"),
	}
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	bootCtx := context.Background()
	repository, openErr := store.Open(bootCtx, serverConfig.DatabaseURL)
	if openErr != nil {
		return openErr
	}
	logger.Info("database ready", zap.String("driver", repository.Driver()))

	settingsStore := settings.NewStore(repository.DB())
	runtime, bootstrapErr := settings.Bootstrap(bootCtx, settingsStore, settingOverrides())
	if bootstrapErr != nil {
		return bootstrapErr
	}

	clock := session.NewSystemClock()
	codec := session.NewCodec(session.DefaultPolicy(), clock)
	metricsRecorder := session.NewCounterMetrics()
	guard := session.NewGuard(codec, runtime, metricsRecorder, logger)

	httpClient := &http.Client{Timeout: 15 * time.Second}
	broker := oauth.NewBroker(settingsStore, runtime, httpClient, clock)
	refresher := refresh.New(refresh.Config{
		Repository: repository,
		Settings:   settingsStore,
		Runtime:    runtime,
		Broker:     broker,
		Weather:    providers.NewWeatherClient(httpClient),
		Feeds:      providers.NewFeedClient(httpClient),
		Calendar:   providers.NewCalendarClient(),
		Albums:     providers.NewAlbumClient(httpClient),
		Clock:      clock,
		Logger:     logger,
	})
	refresher.Hydrate(bootCtx)

	tracker := tasks.NewTracker(logger)

	var corsHandler gin.HandlerFunc
	if serverConfig.EnableCORS {
		configured, corsErr := web.ConfigureCORS(logger, serverConfig.CORSAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		corsHandler = configured
	}

	gin.SetMode(gin.ReleaseMode)
	httpServer := web.NewServer(web.Config{
		Logger:      logger,
		Repository:  repository,
		Settings:    settingsStore,
		Runtime:     runtime,
		Codec:       codec,
		Guard:       guard,
		Broker:      broker,
		Refresher:   refresher,
		Picker:      providers.NewPickerClient(httpClient),
		Calendar:    providers.NewCalendarClient(),
		Tracker:     tracker,
		Clock:       clock,
		PhotosDir:   serverConfig.PhotosDir,
		FrontendDir: serverConfig.FrontendDir,
		CORSHandler: corsHandler,
	})
	router := httpServer.Routes(zapLoggerMiddleware(logger))

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()
	refreshLoop := scheduler.New(refresher, scheduler.IntervalFromEnv, logger)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		refreshLoop.Run(backgroundCtx)
	}()

	server := &http.Server{
		Addr:              serverConfig.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		backgroundCancel()
		graceCtx, graceCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", serverConfig.ListenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}

	backgroundCancel()
	<-loopDone
	tracker.Wait()
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
