// Package providers talks to the external services the board renders:
// OpenWeather, Google Calendar, the Google Photos picker, and shared albums.
package providers

import (
	"errors"
	"fmt"
)

// ErrProviderUnavailable indicates a transport failure before any status code
// was received.
var ErrProviderUnavailable = errors.New("providers.unavailable")

// ProviderError carries a non-2xx upstream response.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

// Error implements the error interface.
func (providerErr *ProviderError) Error() string {
	return fmt.Sprintf("providers.%s.status_%d: %s", providerErr.Provider, providerErr.Status, providerErr.Body)
}

// IsAuthError reports whether the upstream rejected our credentials.
func (providerErr *ProviderError) IsAuthError() bool {
	return providerErr.Status == 401 || providerErr.Status == 403
}
