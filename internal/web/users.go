package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/homeboard/internal/session"
	"github.com/tyemirov/homeboard/internal/store"
	"github.com/tyemirov/homeboard/internal/vault"
)

type updateUserRequest struct {
	Name           *string `json:"name"`
	Password       *string `json:"password"`
	Role           *string `json:"role"`
	TrackAllowance *bool   `json:"track_allowance"`
}

func (server *Server) handleListUsers(contextGin *gin.Context) {
	users, listErr := server.repository.ListUsers(contextGin)
	if listErr != nil {
		server.logger.Error("listing users failed",
			zap.String("code", "api.users.list"),
			zap.Error(listErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	payload := make([]gin.H, 0, len(users))
	for index := range users {
		payload = append(payload, userPayload(&users[index]))
	}
	contextGin.JSON(http.StatusOK, gin.H{"users": payload})
}

func (server *Server) handleCreateUser(contextGin *gin.Context) {
	var request registerRequest
	if bindErr := contextGin.ShouldBindJSON(&request); bindErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	user, createErr := server.createUserRecord(contextGin, request, false)
	if createErr != nil {
		respondUserCreateError(contextGin, createErr)
		return
	}
	contextGin.JSON(http.StatusCreated, gin.H{"user": userPayload(user)})
}

func (server *Server) handleUpdateUser(contextGin *gin.Context) {
	userID := contextGin.Param("id")
	var request updateUserRequest
	if bindErr := contextGin.ShouldBindJSON(&request); bindErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	updates := map[string]any{}
	if request.Name != nil {
		trimmed := strings.TrimSpace(*request.Name)
		if trimmed == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
			return
		}
		updates["name"] = trimmed
	}
	if request.Role != nil {
		switch *request.Role {
		case store.RoleAdmin, store.RoleParent, store.RoleChild:
		default:
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		updates["role"] = *request.Role
	}
	if request.TrackAllowance != nil {
		updates["track_allowance"] = *request.TrackAllowance
	}
	if request.Password != nil {
		if len(*request.Password) < vault.MinPasswordLength {
			respondUserCreateError(contextGin, errPasswordTooShort)
			return
		}
		hash, hashErr := vault.Hash(*request.Password)
		if hashErr != nil {
			server.logger.Error("hashing password failed",
				zap.String("code", "api.users.update.hash"),
				zap.Error(hashErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		updates["password_hash"] = hash
	}
	if len(updates) == 0 {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	if updateErr := server.repository.UpdateUser(contextGin, userID, updates); updateErr != nil {
		if errors.Is(updateErr, store.ErrNotFound) {
			contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		server.logger.Error("updating user failed",
			zap.String("code", "api.users.update"),
			zap.String("user_id", userID),
			zap.Error(updateErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.Status(http.StatusNoContent)
}

func (server *Server) handleDeleteUser(contextGin *gin.Context) {
	userID := contextGin.Param("id")
	claims := session.ClaimsFrom(contextGin)
	if claims != nil && claims.UserID() == userID {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "cannot delete your own account"})
		return
	}
	if deleteErr := server.repository.DeleteUser(contextGin, userID); deleteErr != nil {
		if errors.Is(deleteErr, store.ErrNotFound) {
			contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		server.logger.Error("deleting user failed",
			zap.String("code", "api.users.delete"),
			zap.String("user_id", userID),
			zap.Error(deleteErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.Status(http.StatusNoContent)
}
