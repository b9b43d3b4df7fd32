package session

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// RenewalHeader carries the replacement token on sliding renewal.
	RenewalHeader = "x-new-token"
	// ContextClaimsKey is where authenticated claims land on the gin context.
	ContextClaimsKey = "session_claims"

	bearerPrefix        = "Bearer "
	exposeHeadersHeader = "Access-Control-Expose-Headers"
)

// RoleAdmin marks users allowed to change settings and manage the household.
const RoleAdmin = "admin"

// SecretSource provides the current signing secret under a read lock.
type SecretSource interface {
	SigningSecret() []byte
}

// Guard is the sliding-renewal middleware wrapping every authenticated route.
type Guard struct {
	codec   *Codec
	secrets SecretSource
	metrics *CounterMetrics
	logger  *zap.Logger
}

// NewGuard constructs the middleware. A nil metrics recorder disables counting.
func NewGuard(codec *Codec, secrets SecretSource, metrics *CounterMetrics, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewCounterMetrics()
	}
	return &Guard{codec: codec, secrets: secrets, metrics: metrics, logger: logger}
}

// Middleware verifies the bearer token and, when the token is more than half
// expired, attaches a replacement via the renewal header. Requests without a
// usable bearer token pass through unauthenticated; route-level extraction
// rejects them. Renewal is advisory: a failed renewal never blocks the request
// and leaves the old token valid until natural expiry.
func (guard *Guard) Middleware() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		token, found := bearerToken(contextGin.Request)
		if !found {
			contextGin.Next()
			return
		}

		secret := guard.secrets.SigningSecret()
		claims, verifyErr := guard.codec.Verify(token, secret)
		if verifyErr != nil {
			contextGin.Next()
			return
		}
		contextGin.Set(ContextClaimsKey, claims)

		if guard.codec.NeedsRenewal(claims) {
			replacement, mintErr := guard.codec.Mint(claims.Subject, claims.Role, secret)
			if mintErr != nil {
				guard.metrics.Increment("session.renewal_failure")
				guard.logger.Warn("sliding renewal failed",
					zap.String("code", "session.guard.renewal_failure"),
					zap.Error(mintErr))
			} else {
				guard.metrics.Increment("session.renewed")
				contextGin.Header(RenewalHeader, replacement)
				contextGin.Writer.Header().Add(exposeHeadersHeader, RenewalHeader)
			}
		}

		contextGin.Next()
	}
}

// RequireUser rejects requests whose guard-verified claims are absent.
func RequireUser() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		if ClaimsFrom(contextGin) == nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		contextGin.Next()
	}
}

// RequireAdmin rejects requests unless the verified claims carry the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		claims := ClaimsFrom(contextGin)
		if claims == nil || claims.Role != RoleAdmin {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		contextGin.Next()
	}
}

// ClaimsFrom returns the verified claims stored by the guard, or nil.
func ClaimsFrom(contextGin *gin.Context) *Claims {
	value, found := contextGin.Get(ContextClaimsKey)
	if !found {
		return nil
	}
	claims, ok := value.(*Claims)
	if !ok {
		return nil
	}
	return claims
}

func bearerToken(request *http.Request) (string, bool) {
	header := request.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
