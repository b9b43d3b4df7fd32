package settings

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
)

const signingSecretByteLength = 48

// Overrides are boot-time environment values that take precedence over
// persisted settings. The signing secret is deliberately absent: it is
// generated on first run and never overridden afterwards.
type Overrides struct {
	WeatherAPIKey     string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURI  string
	BaseURL           string
}

// Runtime is the in-memory mirror of the hot settings. Reads are frequent and
// concurrent; writes happen only from the admin settings path, so a single
// read/write lock per mirror suffices.
type Runtime struct {
	mutex sync.RWMutex

	signingSecret     []byte
	weatherAPIKey     string
	oauthClientID     string
	oauthClientSecret string
	oauthRedirectURI  string
	baseURL           string
}

// Bootstrap loads the mirror from the durable store, applying environment
// overrides and generating the signing secret on first run. The generated
// secret is persisted before use so every later boot observes the same value.
func Bootstrap(ctx context.Context, store *Store, overrides Overrides) (*Runtime, error) {
	runtime := &Runtime{}

	secret, secretErr := store.GetDefault(ctx, KeySigningSecret, "")
	if secretErr != nil {
		return nil, secretErr
	}
	if secret == "" {
		generated, generateErr := randomToken(signingSecretByteLength)
		if generateErr != nil {
			return nil, fmt.Errorf("settings.bootstrap.signing_secret: %w", generateErr)
		}
		if putErr := store.Put(ctx, KeySigningSecret, generated); putErr != nil {
			return nil, putErr
		}
		secret = generated
	}
	runtime.signingSecret = []byte(secret)

	load := func(key string, override string) (string, error) {
		if override != "" {
			return override, nil
		}
		return store.GetDefault(ctx, key, "")
	}

	var loadErr error
	if runtime.weatherAPIKey, loadErr = load(KeyWeatherAPIKey, overrides.WeatherAPIKey); loadErr != nil {
		return nil, loadErr
	}
	if runtime.oauthClientID, loadErr = load(KeyOAuthClientID, overrides.OAuthClientID); loadErr != nil {
		return nil, loadErr
	}
	if runtime.oauthClientSecret, loadErr = load(KeyOAuthClientSecret, overrides.OAuthClientSecret); loadErr != nil {
		return nil, loadErr
	}
	if runtime.baseURL, loadErr = load(KeyBaseURL, overrides.BaseURL); loadErr != nil {
		return nil, loadErr
	}
	if runtime.oauthRedirectURI, loadErr = load(KeyOAuthRedirectURI, overrides.OAuthRedirectURI); loadErr != nil {
		return nil, loadErr
	}
	if runtime.oauthRedirectURI == "" && runtime.baseURL != "" {
		runtime.oauthRedirectURI = RedirectURIFor(runtime.baseURL)
	}

	return runtime, nil
}

// RedirectURIFor derives the OAuth callback URI from a base URL.
func RedirectURIFor(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/api/google-photos/callback"
}

// SigningSecret returns the process-wide session signing secret.
func (runtime *Runtime) SigningSecret() []byte {
	runtime.mutex.RLock()
	defer runtime.mutex.RUnlock()
	return runtime.signingSecret
}

// SetSigningSecret installs a secret generated during first-run setup. It must
// only ever be called once per database lifetime: every previously issued
// session token becomes unverifiable the instant the secret changes.
func (runtime *Runtime) SetSigningSecret(secret []byte) {
	runtime.mutex.Lock()
	defer runtime.mutex.Unlock()
	runtime.signingSecret = secret
}

// WeatherAPIKey returns the configured weather provider key, possibly empty.
func (runtime *Runtime) WeatherAPIKey() string {
	runtime.mutex.RLock()
	defer runtime.mutex.RUnlock()
	return runtime.weatherAPIKey
}

// SetWeatherAPIKey updates the mirrored weather provider key.
func (runtime *Runtime) SetWeatherAPIKey(key string) {
	runtime.mutex.Lock()
	defer runtime.mutex.Unlock()
	runtime.weatherAPIKey = key
}

// OAuthCredentials returns the mirrored client id, client secret, and redirect
// URI in one consistent read.
func (runtime *Runtime) OAuthCredentials() (clientID string, clientSecret string, redirectURI string) {
	runtime.mutex.RLock()
	defer runtime.mutex.RUnlock()
	return runtime.oauthClientID, runtime.oauthClientSecret, runtime.oauthRedirectURI
}

// SetOAuthClientID updates the mirrored OAuth client id.
func (runtime *Runtime) SetOAuthClientID(clientID string) {
	runtime.mutex.Lock()
	defer runtime.mutex.Unlock()
	runtime.oauthClientID = clientID
}

// SetOAuthClientSecret updates the mirrored OAuth client secret.
func (runtime *Runtime) SetOAuthClientSecret(clientSecret string) {
	runtime.mutex.Lock()
	defer runtime.mutex.Unlock()
	runtime.oauthClientSecret = clientSecret
}

// BaseURL returns the mirrored public base URL.
func (runtime *Runtime) BaseURL() string {
	runtime.mutex.RLock()
	defer runtime.mutex.RUnlock()
	return runtime.baseURL
}

// SetBaseURL updates the base URL and recomputes the OAuth redirect URI in the
// same exclusive section so the two mirrors never disagree.
func (runtime *Runtime) SetBaseURL(baseURL string) (redirectURI string) {
	runtime.mutex.Lock()
	defer runtime.mutex.Unlock()
	runtime.baseURL = baseURL
	runtime.oauthRedirectURI = RedirectURIFor(baseURL)
	return runtime.oauthRedirectURI
}

// RandomToken returns a URL-safe random string of at least length characters.
func RandomToken(length int) (string, error) {
	return randomToken((length*3 + 3) / 4)
}

func randomToken(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
