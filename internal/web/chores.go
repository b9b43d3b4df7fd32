package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/homeboard/internal/session"
	"github.com/tyemirov/homeboard/internal/store"
)

type choreRequest struct {
	Description string `json:"description" binding:"required"`
	AssignedTo  string `json:"assigned_to" binding:"required"`
	RewardCents int64  `json:"reward_cents"`
}

func (server *Server) handleListChores(contextGin *gin.Context) {
	chores, listErr := server.repository.ListChores(contextGin)
	if listErr != nil {
		server.logger.Error("listing chores failed",
			zap.String("code", "api.chores.list"),
			zap.Error(listErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"chores": chores})
}

func (server *Server) handleCreateChore(contextGin *gin.Context) {
	var request choreRequest
	if bindErr := contextGin.ShouldBindJSON(&request); bindErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if request.RewardCents < 0 {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "reward cannot be negative"})
		return
	}
	if _, userErr := server.repository.GetUser(contextGin, request.AssignedTo); userErr != nil {
		if errors.Is(userErr, store.ErrNotFound) {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "assignee does not exist"})
			return
		}
		server.logger.Error("assignee lookup failed",
			zap.String("code", "api.chores.create.assignee"),
			zap.Error(userErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	chore := &store.Chore{
		Description: strings.TrimSpace(request.Description),
		AssignedTo:  request.AssignedTo,
		RewardCents: request.RewardCents,
	}
	if createErr := server.repository.CreateChore(contextGin, chore); createErr != nil {
		server.logger.Error("creating chore failed",
			zap.String("code", "api.chores.create"),
			zap.Error(createErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.JSON(http.StatusCreated, gin.H{"chore": chore})
}

func (server *Server) handleUpdateChore(contextGin *gin.Context) {
	choreID := contextGin.Param("id")
	var request choreRequest
	if bindErr := contextGin.ShouldBindJSON(&request); bindErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if request.RewardCents < 0 {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "reward cannot be negative"})
		return
	}
	updates := map[string]any{
		"description":  strings.TrimSpace(request.Description),
		"assigned_to":  request.AssignedTo,
		"reward_cents": request.RewardCents,
	}
	if updateErr := server.repository.UpdateChore(contextGin, choreID, updates); updateErr != nil {
		if errors.Is(updateErr, store.ErrNotFound) {
			contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "chore not found"})
			return
		}
		server.logger.Error("updating chore failed",
			zap.String("code", "api.chores.update"),
			zap.String("chore_id", choreID),
			zap.Error(updateErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.Status(http.StatusNoContent)
}

func (server *Server) handleDeleteChore(contextGin *gin.Context) {
	choreID := contextGin.Param("id")
	if deleteErr := server.repository.DeleteChore(contextGin, choreID); deleteErr != nil {
		if errors.Is(deleteErr, store.ErrNotFound) {
			contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "chore not found"})
			return
		}
		server.logger.Error("deleting chore failed",
			zap.String("code", "api.chores.delete"),
			zap.String("chore_id", choreID),
			zap.Error(deleteErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.Status(http.StatusNoContent)
}

// handleToggleChore flips completion. Children may only toggle their own
// chores. Completing a rewarded chore credits the assignee's allowance;
// reopening it debits the same amount so the ledger stays consistent.
func (server *Server) handleToggleChore(contextGin *gin.Context) {
	choreID := contextGin.Param("id")
	claims := session.ClaimsFrom(contextGin)

	chore, getErr := server.repository.GetChore(contextGin, choreID)
	if getErr != nil {
		if errors.Is(getErr, store.ErrNotFound) {
			contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "chore not found"})
			return
		}
		server.logger.Error("chore lookup failed",
			zap.String("code", "api.chores.toggle.lookup"),
			zap.String("chore_id", choreID),
			zap.Error(getErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if claims.Role == store.RoleChild && chore.AssignedTo != claims.UserID() {
		contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not your chore"})
		return
	}

	completed := !chore.Completed
	if updateErr := server.repository.UpdateChore(contextGin, choreID, map[string]any{"completed": completed}); updateErr != nil {
		server.logger.Error("toggling chore failed",
			zap.String("code", "api.chores.toggle"),
			zap.String("chore_id", choreID),
			zap.Error(updateErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	if chore.RewardCents > 0 {
		server.applyChoreReward(contextGin, chore, completed)
	}
	contextGin.JSON(http.StatusOK, gin.H{"completed": completed})
}

func (server *Server) applyChoreReward(contextGin *gin.Context, chore *store.Chore, completed bool) {
	assignee, userErr := server.repository.GetUser(contextGin, chore.AssignedTo)
	if userErr != nil || !assignee.TrackAllowance {
		return
	}
	amount := chore.RewardCents
	note := "Chore: " + chore.Description
	if !completed {
		amount = -amount
		note = "Chore reopened: " + chore.Description
	}
	if _, appendErr := server.repository.AppendAllowance(contextGin, chore.AssignedTo, amount, note); appendErr != nil {
		server.logger.Error("recording chore reward failed",
			zap.String("code", "api.chores.toggle.reward"),
			zap.String("chore_id", chore.ID),
			zap.Error(appendErr))
	}
}
