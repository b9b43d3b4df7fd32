package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// FeedClient downloads raw ICS calendar feeds.
type FeedClient struct {
	httpClient *http.Client
}

// NewFeedClient builds a feed client on the shared HTTP client.
func NewFeedClient(httpClient *http.Client) *FeedClient {
	return &FeedClient{httpClient: httpClient}
}

// Fetch returns the ICS body at the given URL. Payloads that do not look like
// a calendar are rejected so the cache never stores an HTML error page.
func (client *FeedClient) Fetch(ctx context.Context, feedURL string) (string, error) {
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if requestErr != nil {
		return "", fmt.Errorf("providers.feed.request: %w", requestErr)
	}
	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, doErr)
	}
	defer func() { _ = response.Body.Close() }()
	body, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return "", fmt.Errorf("providers.feed.read: %w", readErr)
	}
	if response.StatusCode != http.StatusOK {
		return "", &ProviderError{Provider: "feed", Status: response.StatusCode, Body: truncateBody(body)}
	}
	payload := string(body)
	if !strings.Contains(payload, "BEGIN:VCALENDAR") {
		return "", &ProviderError{Provider: "feed", Status: response.StatusCode, Body: "response is not an ICS calendar"}
	}
	return payload, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit])
	}
	return string(body)
}
