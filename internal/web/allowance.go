package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/homeboard/internal/session"
	"github.com/tyemirov/homeboard/internal/store"
)

type allowanceRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required"`
	Note        string `json:"note"`
}

func (server *Server) handleAllowanceBalances(contextGin *gin.Context) {
	balances, balancesErr := server.repository.AllowanceBalances(contextGin)
	if balancesErr != nil {
		server.logger.Error("reading balances failed",
			zap.String("code", "api.allowance.balances"),
			zap.Error(balancesErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"balances": balances})
}

// handleListAllowance returns a user's ledger. Children may only read their
// own ledger.
func (server *Server) handleListAllowance(contextGin *gin.Context) {
	userID := contextGin.Param("user_id")
	claims := session.ClaimsFrom(contextGin)
	if claims.Role == store.RoleChild && claims.UserID() != userID {
		contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not your ledger"})
		return
	}

	entries, listErr := server.repository.ListAllowance(contextGin, userID)
	if listErr != nil {
		server.logger.Error("listing ledger failed",
			zap.String("code", "api.allowance.list"),
			zap.String("user_id", userID),
			zap.Error(listErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (server *Server) handleAppendAllowance(contextGin *gin.Context) {
	userID := contextGin.Param("user_id")
	var request allowanceRequest
	if bindErr := contextGin.ShouldBindJSON(&request); bindErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	user, userErr := server.repository.GetUser(contextGin, userID)
	if userErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if !user.TrackAllowance {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "allowance not tracked for this user"})
		return
	}

	entry, appendErr := server.repository.AppendAllowance(contextGin, userID, request.AmountCents, strings.TrimSpace(request.Note))
	if appendErr != nil {
		server.logger.Error("appending ledger entry failed",
			zap.String("code", "api.allowance.append"),
			zap.String("user_id", userID),
			zap.Error(appendErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.JSON(http.StatusCreated, gin.H{"entry": entry})
}
