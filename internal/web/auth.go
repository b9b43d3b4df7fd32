package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/homeboard/internal/session"
	"github.com/tyemirov/homeboard/internal/settings"
	"github.com/tyemirov/homeboard/internal/store"
	"github.com/tyemirov/homeboard/internal/vault"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	Username       string `json:"username" binding:"required"`
	Name           string `json:"name" binding:"required"`
	Password       string `json:"password" binding:"required"`
	Role           string `json:"role"`
	TrackAllowance bool   `json:"track_allowance"`
	FamilyName     string `json:"family_name"`
}

func userPayload(user *store.User) gin.H {
	return gin.H{
		"id":              user.ID,
		"username":        user.Username,
		"name":            user.Name,
		"role":            user.Role,
		"track_allowance": user.TrackAllowance,
	}
}

// handleAuthStatus reports setup state and, for authenticated callers, their
// identity. The frontend uses it to route between setup, login, and the app.
func (server *Server) handleAuthStatus(contextGin *gin.Context) {
	count, countErr := server.repository.CountUsers(contextGin)
	if countErr != nil {
		server.logger.Error("counting users failed",
			zap.String("code", "api.auth.status.count"),
			zap.Error(countErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	familyName, familyErr := server.settingsStore.GetDefault(contextGin, settings.KeyFamilyName, "")
	if familyErr != nil {
		server.logger.Error("reading family name failed",
			zap.String("code", "api.auth.status.family"),
			zap.Error(familyErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	response := gin.H{
		"setup_complete": count > 0,
		"authenticated":  false,
		"family_name":    familyName,
	}
	claims := session.ClaimsFrom(contextGin)
	if claims != nil {
		user, userErr := server.repository.GetUser(contextGin, claims.UserID())
		if userErr == nil {
			response["authenticated"] = true
			response["user"] = userPayload(user)
		}
	}
	contextGin.JSON(http.StatusOK, response)
}

// handleRegister creates the first admin during setup. Once any user exists,
// the route requires an admin session and defers to handleCreateUser rules.
func (server *Server) handleRegister(contextGin *gin.Context) {
	var request registerRequest
	if bindErr := contextGin.ShouldBindJSON(&request); bindErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	count, countErr := server.repository.CountUsers(contextGin)
	if countErr != nil {
		server.logger.Error("counting users failed",
			zap.String("code", "api.auth.register.count"),
			zap.Error(countErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if count > 0 {
		claims := session.ClaimsFrom(contextGin)
		if claims == nil || claims.Role != session.RoleAdmin {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
	}

	user, createErr := server.createUserRecord(contextGin, request, count == 0)
	if createErr != nil {
		respondUserCreateError(contextGin, createErr)
		return
	}

	if count == 0 && strings.TrimSpace(request.FamilyName) != "" {
		if putErr := server.settingsStore.Put(contextGin, settings.KeyFamilyName, strings.TrimSpace(request.FamilyName)); putErr != nil {
			server.logger.Error("persisting family name failed",
				zap.String("code", "api.auth.register.family"),
				zap.Error(putErr))
		}
	}

	token, mintErr := server.codec.Mint(user.ID, user.Role, server.runtime.SigningSecret())
	if mintErr != nil {
		server.logger.Error("minting session failed",
			zap.String("code", "api.auth.register.mint"),
			zap.Error(mintErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.JSON(http.StatusCreated, gin.H{"token": token, "user": userPayload(user)})
}

// handleLogin verifies credentials and mints a session token.
func (server *Server) handleLogin(contextGin *gin.Context) {
	var request loginRequest
	if bindErr := contextGin.ShouldBindJSON(&request); bindErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	user, lookupErr := server.repository.GetUserByUsername(contextGin, strings.TrimSpace(request.Username))
	if lookupErr != nil {
		if errors.Is(lookupErr, store.ErrNotFound) {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		server.logger.Error("user lookup failed",
			zap.String("code", "api.auth.login.lookup"),
			zap.Error(lookupErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	matches, verifyErr := vault.Verify(request.Password, user.PasswordHash)
	if verifyErr != nil {
		server.logger.Error("password verification failed",
			zap.String("code", "api.auth.login.verify"),
			zap.String("user_id", user.ID),
			zap.Error(verifyErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if !matches {
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, mintErr := server.codec.Mint(user.ID, user.Role, server.runtime.SigningSecret())
	if mintErr != nil {
		server.logger.Error("minting session failed",
			zap.String("code", "api.auth.login.mint"),
			zap.Error(mintErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"token": token, "user": userPayload(user)})
}

var (
	errPasswordTooShort = errors.New("password too short")
	errInvalidRole      = errors.New("invalid role")
	errUsernameTaken    = errors.New("username taken")
)

func (server *Server) createUserRecord(contextGin *gin.Context, request registerRequest, firstRun bool) (*store.User, error) {
	if len(request.Password) < vault.MinPasswordLength {
		return nil, errPasswordTooShort
	}
	role := request.Role
	if firstRun {
		// The setup user administers the household regardless of the payload.
		role = store.RoleAdmin
	}
	switch role {
	case store.RoleAdmin, store.RoleParent, store.RoleChild:
	default:
		return nil, errInvalidRole
	}

	hash, hashErr := vault.Hash(request.Password)
	if hashErr != nil {
		return nil, fmt.Errorf("hash password: %w", hashErr)
	}
	user := &store.User{
		Username:       strings.TrimSpace(request.Username),
		Name:           strings.TrimSpace(request.Name),
		PasswordHash:   hash,
		Role:           role,
		TrackAllowance: request.TrackAllowance,
	}
	if createErr := server.repository.CreateUser(contextGin, user); createErr != nil {
		if strings.Contains(strings.ToLower(createErr.Error()), "unique") {
			return nil, errUsernameTaken
		}
		return nil, createErr
	}
	return user, nil
}

func respondUserCreateError(contextGin *gin.Context, err error) {
	switch {
	case errors.Is(err, errPasswordTooShort):
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("password must be at least %d characters", vault.MinPasswordLength),
		})
	case errors.Is(err, errInvalidRole):
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
	case errors.Is(err, errUsernameTaken):
		contextGin.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "username already exists"})
	default:
		contextGin.AbortWithStatus(http.StatusInternalServerError)
	}
}
