// Package session mints, verifies, and renews signed session tokens.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors surfaced by the codec. All verification failures map to a
// generic unauthorized response upstream; the distinction exists for logs.
var (
	ErrEmptySubject = errors.New("session.codec.empty_subject")
	ErrEmptySecret  = errors.New("session.codec.empty_secret")
	ErrInvalidToken = errors.New("session.codec.invalid_token")
	ErrTokenExpired = errors.New("session.codec.expired")
)

// Policy holds the token lifetime and the sliding-renewal threshold. The
// threshold is an independent constant, not derived from the token, so both
// values must move together when the lifetime changes.
type Policy struct {
	Lifetime         time.Duration
	RenewalThreshold time.Duration
}

// DefaultPolicy mirrors the shipped behavior: 30-day tokens renewed once less
// than half the lifetime remains.
func DefaultPolicy() Policy {
	return Policy{
		Lifetime:         30 * 24 * time.Hour,
		RenewalThreshold: 15 * 24 * time.Hour,
	}
}

// Claims carry the authenticated subject and role for one session.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Subject returns the authenticated user identifier.
func (claims *Claims) UserID() string {
	if claims == nil {
		return ""
	}
	return claims.Subject
}

// Codec encodes and verifies session tokens under a runtime-supplied secret.
type Codec struct {
	policy Policy
	clock  Clock
}

// NewCodec constructs a Codec; zero policy fields fall back to defaults.
func NewCodec(policy Policy, clock Clock) *Codec {
	defaults := DefaultPolicy()
	if policy.Lifetime <= 0 {
		policy.Lifetime = defaults.Lifetime
	}
	if policy.RenewalThreshold <= 0 {
		policy.RenewalThreshold = defaults.RenewalThreshold
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &Codec{policy: policy, clock: clock}
}

// Mint signs a new HS256 token for the subject and role. Expiry is issuance
// time plus the policy lifetime.
func (codec *Codec) Mint(subject string, role string, secret []byte) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("session.codec.mint: %w", ErrEmptySubject)
	}
	if len(secret) == 0 {
		return "", fmt.Errorf("session.codec.mint: %w", ErrEmptySecret)
	}
	issuedAt := codec.clock.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(codec.policy.Lifetime)),
		},
	})
	signed, signErr := token.SignedString(secret)
	if signErr != nil {
		return "", fmt.Errorf("session.codec.mint: %w", signErr)
	}
	return signed, nil
}

// Verify parses and validates a token. Expiry is compared strictly against the
// clock with no leeway; a forged and an expired token are distinguishable only
// by the wrapped sentinel.
func (codec *Codec) Verify(token string, secret []byte) (*Claims, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("session.codec.verify: %w", ErrEmptySecret)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(token, &Claims{}, func(parsed *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return codec.clock.Now() }),
	)
	if parseErr != nil {
		if errors.Is(parseErr, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("session.codec.verify: %w", ErrTokenExpired)
		}
		return nil, fmt.Errorf("session.codec.verify: %w", ErrInvalidToken)
	}
	claims, ok := parsedToken.Claims.(*Claims)
	if !ok || !parsedToken.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("session.codec.verify: %w", ErrInvalidToken)
	}
	return claims, nil
}

// NeedsRenewal reports whether the remaining lifetime has dropped below the
// policy threshold. Monotonic for a fixed claim under an advancing clock.
func (codec *Codec) NeedsRenewal(claims *Claims) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return false
	}
	remaining := claims.ExpiresAt.Time.Sub(codec.clock.Now())
	return remaining < codec.policy.RenewalThreshold
}
