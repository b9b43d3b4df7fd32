package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
)

// Shared Google Photos albums embed direct image URLs in the page markup.
var albumImagePattern = regexp.MustCompile(`https://lh[0-9]+\.googleusercontent\.com/pw/[a-zA-Z0-9\-_]+`)

const albumImageSuffix = "=w1920-h1080-no"

// AlbumClient scrapes image URLs out of a public shared-album page.
type AlbumClient struct {
	httpClient *http.Client
}

// NewAlbumClient builds an album scraper on the shared HTTP client.
func NewAlbumClient(httpClient *http.Client) *AlbumClient {
	return &AlbumClient{httpClient: httpClient}
}

// Fetch returns the deduplicated, sorted display URLs found on the album page.
func (client *AlbumClient) Fetch(ctx context.Context, albumURL string) ([]string, error) {
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, albumURL, nil)
	if requestErr != nil {
		return nil, fmt.Errorf("providers.album.request: %w", requestErr)
	}
	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, doErr)
	}
	defer func() { _ = response.Body.Close() }()
	body, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return nil, fmt.Errorf("providers.album.read: %w", readErr)
	}
	if response.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: "album", Status: response.StatusCode, Body: truncateBody(body)}
	}
	return extractAlbumImages(string(body)), nil
}

func extractAlbumImages(page string) []string {
	matches := albumImagePattern.FindAllString(page, -1)
	seen := make(map[string]struct{}, len(matches))
	images := make([]string, 0, len(matches))
	for _, match := range matches {
		if _, duplicate := seen[match]; duplicate {
			continue
		}
		seen[match] = struct{}{}
		images = append(images, match+albumImageSuffix)
	}
	sort.Strings(images)
	return images
}
