// Package oauth owns the Google OAuth connection: the authorization handshake,
// durable token storage, and refresh of expired access tokens.
package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/tyemirov/homeboard/internal/providers"
	"github.com/tyemirov/homeboard/internal/session"
	"github.com/tyemirov/homeboard/internal/settings"
)

// Scopes requested during the handshake. Picker and calendar access are
// read-only; profile and email identify the connected account.
var requestedScopes = []string{
	"https://www.googleapis.com/auth/photospicker.mediaitems.readonly",
	"https://www.googleapis.com/auth/calendar.readonly",
	"profile",
	"email",
}

const stateTokenLength = 32

var (
	// ErrNotConfigured indicates no OAuth client id has been set up yet.
	ErrNotConfigured = errors.New("oauth.not_configured")
	// ErrStateMismatch indicates the callback state differs from the one issued.
	ErrStateMismatch = errors.New("oauth.state_mismatch")
	// ErrReauthRequired indicates no refresh token survives; the user must
	// repeat the handshake.
	ErrReauthRequired = errors.New("oauth.reauth_required")
)

// ConnectionState summarizes the stored connection for status endpoints.
type ConnectionState struct {
	Configured bool `json:"configured"`
	Connected  bool `json:"connected"`
}

// Broker mediates between callers needing access tokens and the durable
// token rows. Refreshes are serialized: one caller talks to Google while the
// rest wait and re-read the persisted outcome.
type Broker struct {
	store      *settings.Store
	runtime    *settings.Runtime
	httpClient *http.Client
	clock      session.Clock
	endpoint   oauth2.Endpoint

	refreshMutex sync.Mutex
}

// NewBroker builds a broker against Google's production endpoint.
func NewBroker(store *settings.Store, runtime *settings.Runtime, httpClient *http.Client, clock session.Clock) *Broker {
	return &Broker{
		store:      store,
		runtime:    runtime,
		httpClient: httpClient,
		clock:      clock,
		endpoint:   google.Endpoint,
	}
}

// NewBrokerWithEndpoint supports pointing the broker at a test server.
func NewBrokerWithEndpoint(store *settings.Store, runtime *settings.Runtime, httpClient *http.Client, clock session.Clock, endpoint oauth2.Endpoint) *Broker {
	broker := NewBroker(store, runtime, httpClient, clock)
	broker.endpoint = endpoint
	return broker
}

func (broker *Broker) config() (*oauth2.Config, error) {
	clientID, clientSecret, redirectURI := broker.runtime.OAuthCredentials()
	if clientID == "" {
		return nil, ErrNotConfigured
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       requestedScopes,
		Endpoint:     broker.endpoint,
	}, nil
}

func (broker *Broker) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, broker.httpClient)
}

// AuthorizationURL issues a fresh state token, persists it, and returns the
// consent URL. The state is durable before the URL leaves this process so the
// callback can be validated even across a restart.
func (broker *Broker) AuthorizationURL(ctx context.Context) (string, error) {
	configuration, configErr := broker.config()
	if configErr != nil {
		return "", configErr
	}
	state, stateErr := settings.RandomToken(stateTokenLength)
	if stateErr != nil {
		return "", fmt.Errorf("oauth.authorization_url.state: %w", stateErr)
	}
	if putErr := broker.store.Put(ctx, settings.KeyOAuthState, state); putErr != nil {
		return "", putErr
	}
	return configuration.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	), nil
}

// ExchangeCode validates the callback state, trades the authorization code for
// tokens, and persists them. The state row is single-use.
func (broker *Broker) ExchangeCode(ctx context.Context, code string, state string) error {
	configuration, configErr := broker.config()
	if configErr != nil {
		return configErr
	}
	expectedState, stateErr := broker.store.Get(ctx, settings.KeyOAuthState)
	if stateErr != nil {
		if errors.Is(stateErr, settings.ErrNotFound) {
			return ErrStateMismatch
		}
		return stateErr
	}
	if subtle.ConstantTimeCompare([]byte(expectedState), []byte(state)) != 1 {
		return ErrStateMismatch
	}
	token, exchangeErr := configuration.Exchange(broker.oauthContext(ctx), code)
	if exchangeErr != nil {
		return wrapOAuthError(exchangeErr)
	}
	if persistErr := broker.persistToken(ctx, token); persistErr != nil {
		return persistErr
	}
	return broker.store.Delete(ctx, settings.KeyOAuthState)
}

// AccessToken returns a usable access token, refreshing through the stored
// refresh token when the persisted one is expired or its expiry is unreadable.
func (broker *Broker) AccessToken(ctx context.Context) (string, error) {
	accessToken, fresh, readErr := broker.storedAccessToken(ctx)
	if readErr != nil {
		return "", readErr
	}
	if fresh {
		return accessToken, nil
	}

	broker.refreshMutex.Lock()
	defer broker.refreshMutex.Unlock()

	// A waiter queued behind the refreshing caller re-reads the persisted
	// outcome instead of refreshing again.
	accessToken, fresh, readErr = broker.storedAccessToken(ctx)
	if readErr != nil {
		return "", readErr
	}
	if fresh {
		return accessToken, nil
	}
	return broker.refreshLocked(ctx)
}

func (broker *Broker) storedAccessToken(ctx context.Context) (string, bool, error) {
	accessToken, accessErr := broker.store.GetDefault(ctx, settings.KeyOAuthAccessToken, "")
	if accessErr != nil {
		return "", false, accessErr
	}
	if accessToken == "" {
		return "", false, nil
	}
	expiryValue, expiryErr := broker.store.GetDefault(ctx, settings.KeyOAuthTokenExpiry, "")
	if expiryErr != nil {
		return "", false, expiryErr
	}
	expiry, parseErr := time.Parse(time.RFC3339, expiryValue)
	if parseErr != nil {
		// An unreadable expiry is treated as expired, never as valid.
		return "", false, nil
	}
	// The token stays usable until the exact expiry instant; only a
	// strictly-future expiry avoids the refresh path.
	if !broker.clock.Now().Before(expiry) {
		return "", false, nil
	}
	return accessToken, true, nil
}

func (broker *Broker) refreshLocked(ctx context.Context) (string, error) {
	configuration, configErr := broker.config()
	if configErr != nil {
		return "", configErr
	}
	refreshToken, refreshReadErr := broker.store.GetDefault(ctx, settings.KeyOAuthRefreshToken, "")
	if refreshReadErr != nil {
		return "", refreshReadErr
	}
	if refreshToken == "" {
		return "", ErrReauthRequired
	}
	source := configuration.TokenSource(broker.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, refreshErr := source.Token()
	if refreshErr != nil {
		return "", wrapOAuthError(refreshErr)
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	if persistErr := broker.persistToken(ctx, token); persistErr != nil {
		return "", persistErr
	}
	return token.AccessToken, nil
}

func (broker *Broker) persistToken(ctx context.Context, token *oauth2.Token) error {
	if err := broker.store.Put(ctx, settings.KeyOAuthAccessToken, token.AccessToken); err != nil {
		return err
	}
	if token.RefreshToken != "" {
		if err := broker.store.Put(ctx, settings.KeyOAuthRefreshToken, token.RefreshToken); err != nil {
			return err
		}
	}
	expiryValue := ""
	if !token.Expiry.IsZero() {
		expiryValue = token.Expiry.UTC().Format(time.RFC3339)
	}
	return broker.store.Put(ctx, settings.KeyOAuthTokenExpiry, expiryValue)
}

// Disconnect forgets the stored tokens and any pending handshake state.
func (broker *Broker) Disconnect(ctx context.Context) error {
	return broker.store.Delete(ctx,
		settings.KeyOAuthAccessToken,
		settings.KeyOAuthRefreshToken,
		settings.KeyOAuthTokenExpiry,
		settings.KeyOAuthState,
	)
}

// State reports whether credentials are configured and tokens are stored.
func (broker *Broker) State(ctx context.Context) (ConnectionState, error) {
	clientID, _, _ := broker.runtime.OAuthCredentials()
	refreshToken, err := broker.store.GetDefault(ctx, settings.KeyOAuthRefreshToken, "")
	if err != nil {
		return ConnectionState{}, err
	}
	return ConnectionState{
		Configured: clientID != "",
		Connected:  refreshToken != "",
	}, nil
}

func wrapOAuthError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &providers.ProviderError{Provider: "oauth", Status: status, Body: string(retrieveErr.Body)}
	}
	return fmt.Errorf("%w: %v", providers.ErrProviderUnavailable, err)
}
