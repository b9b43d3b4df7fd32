// Package web exposes the HTTP API: authentication, household management,
// settings, calendars, weather, Google Photos, and the display feed.
package web

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/homeboard/internal/oauth"
	"github.com/tyemirov/homeboard/internal/providers"
	"github.com/tyemirov/homeboard/internal/refresh"
	"github.com/tyemirov/homeboard/internal/session"
	"github.com/tyemirov/homeboard/internal/settings"
	"github.com/tyemirov/homeboard/internal/store"
	"github.com/tyemirov/homeboard/internal/tasks"
)

// Config carries the collaborators the HTTP layer needs.
type Config struct {
	Logger        *zap.Logger
	Repository    *store.Store
	Settings      *settings.Store
	Runtime       *settings.Runtime
	Codec         *session.Codec
	Guard         *session.Guard
	Broker        *oauth.Broker
	Refresher     *refresh.Refresher
	Picker        *providers.PickerClient
	Calendar      *providers.CalendarClient
	Tracker       *tasks.Tracker
	Clock         session.Clock
	PhotosDir     string
	FrontendDir   string
	CORSHandler   gin.HandlerFunc
}

// Server wires the route handlers to their collaborators.
type Server struct {
	logger         *zap.Logger
	repository     *store.Store
	settingsStore  *settings.Store
	runtime        *settings.Runtime
	codec          *session.Codec
	guard          *session.Guard
	broker         *oauth.Broker
	refresher      *refresh.Refresher
	picker         *providers.PickerClient
	calendarClient *providers.CalendarClient
	tracker        *tasks.Tracker
	clock          session.Clock
	photosDir      string
	frontendDir    string
	corsHandler    gin.HandlerFunc
}

// NewServer builds the HTTP layer.
func NewServer(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		logger:         logger,
		repository:     config.Repository,
		settingsStore:  config.Settings,
		runtime:        config.Runtime,
		codec:          config.Codec,
		guard:          config.Guard,
		broker:         config.Broker,
		refresher:      config.Refresher,
		picker:         config.Picker,
		calendarClient: config.Calendar,
		tracker:        config.Tracker,
		clock:          config.Clock,
		photosDir:      config.PhotosDir,
		frontendDir:    config.FrontendDir,
		corsHandler:    config.CORSHandler,
	}
}

// Routes assembles the gin engine with every route registered. Extra
// middlewares, such as request logging, run before everything else.
func (server *Server) Routes(middlewares ...gin.HandlerFunc) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	for _, middleware := range middlewares {
		engine.Use(middleware)
	}
	engine.Use(securityHeaders())
	if server.corsHandler != nil {
		engine.Use(server.corsHandler)
	}
	engine.Use(server.guard.Middleware())

	api := engine.Group("/api")
	api.GET("/auth/status", server.handleAuthStatus)
	api.POST("/auth/login", server.handleLogin)
	api.POST("/auth/register", server.handleRegister)

	// Google redirects the user's browser here; no session is present.
	api.GET("/google-photos/callback", server.handleOAuthCallback)

	// The display feed and photo files authenticate with a display token or
	// a session, checked inside the handlers.
	api.GET("/display", server.handleDisplayData)
	api.GET("/photos/:name", server.handlePhotoFile)

	authed := api.Group("", session.RequireUser())
	authed.GET("/users", server.handleListUsers)
	authed.GET("/chores", server.handleListChores)
	authed.POST("/chores/:id/toggle", server.handleToggleChore)
	authed.GET("/allowance", server.handleAllowanceBalances)
	authed.GET("/allowance/:user_id", server.handleListAllowance)
	authed.GET("/calendars", server.handleListCalendars)
	authed.GET("/calendars/:id/feed", server.handleCalendarFeed)
	authed.GET("/calendars/:id/events", server.handleCalendarEvents)
	authed.GET("/weather", server.handleWeather)
	authed.GET("/google-photos/status", server.handlePhotosStatus)

	household := api.Group("", requireParentOrAdmin())
	household.POST("/chores", server.handleCreateChore)
	household.PUT("/chores/:id", server.handleUpdateChore)
	household.DELETE("/chores/:id", server.handleDeleteChore)
	household.POST("/allowance/:user_id", server.handleAppendAllowance)

	admin := api.Group("", session.RequireAdmin())
	admin.POST("/users", server.handleCreateUser)
	admin.PUT("/users/:id", server.handleUpdateUser)
	admin.DELETE("/users/:id", server.handleDeleteUser)
	admin.GET("/settings", server.handleGetSettings)
	admin.PUT("/settings", server.handleUpdateSettings)
	admin.POST("/calendars", server.handleCreateCalendar)
	admin.DELETE("/calendars/:id", server.handleDeleteCalendar)
	admin.GET("/google-calendars", server.handleAvailableGoogleCalendars)
	admin.GET("/display-tokens", server.handleListDisplayTokens)
	admin.POST("/display-tokens", server.handleCreateDisplayToken)
	admin.DELETE("/display-tokens/:id", server.handleDeleteDisplayToken)
	admin.POST("/google-photos/start", server.handlePhotosStart)
	admin.POST("/google-photos/session", server.handlePhotosSession)
	admin.POST("/google-photos/session/:id/confirm", server.handlePhotosConfirm)
	admin.POST("/google-photos/disconnect", server.handlePhotosDisconnect)

	if server.frontendDir != "" {
		engine.Static("/assets", filepath.Join(server.frontendDir, "assets"))
		engine.StaticFile("/", filepath.Join(server.frontendDir, "index.html"))
		engine.NoRoute(func(contextGin *gin.Context) {
			if contextGin.Request.Method == http.MethodGet {
				contextGin.File(filepath.Join(server.frontendDir, "index.html"))
				return
			}
			contextGin.AbortWithStatus(http.StatusNotFound)
		})
	}

	return engine
}

func securityHeaders() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		contextGin.Header("X-Frame-Options", "DENY")
		contextGin.Header("X-Content-Type-Options", "nosniff")
		contextGin.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		contextGin.Next()
	}
}

func requireParentOrAdmin() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		claims := session.ClaimsFrom(contextGin)
		if claims == nil || (claims.Role != store.RoleAdmin && claims.Role != store.RoleParent) {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		contextGin.Next()
	}
}
