package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const defaultWeatherBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Weather sentinel errors for missing configuration.
var (
	ErrWeatherKeyMissing = errors.New("providers.weather.api_key_missing")
	ErrWeatherZipMissing = errors.New("providers.weather.zip_missing")
)

// WeatherClient fetches current conditions from OpenWeather.
type WeatherClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewWeatherClient builds a weather client on the shared HTTP client.
func NewWeatherClient(httpClient *http.Client) *WeatherClient {
	return &WeatherClient{httpClient: httpClient, baseURL: defaultWeatherBaseURL}
}

// NewWeatherClientWithBaseURL supports pointing the client at a test server.
func NewWeatherClientWithBaseURL(httpClient *http.Client, baseURL string) *WeatherClient {
	return &WeatherClient{httpClient: httpClient, baseURL: baseURL}
}

// Fetch returns the raw OpenWeather JSON for a US zip code in imperial units.
func (client *WeatherClient) Fetch(ctx context.Context, zipCode string, apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrWeatherKeyMissing
	}
	if zipCode == "" {
		return "", ErrWeatherZipMissing
	}
	query := url.Values{}
	query.Set("zip", zipCode+",us")
	query.Set("units", "imperial")
	query.Set("appid", apiKey)
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+"?"+query.Encode(), nil)
	if requestErr != nil {
		return "", fmt.Errorf("providers.weather.request: %w", requestErr)
	}
	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, doErr)
	}
	defer func() { _ = response.Body.Close() }()
	body, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return "", fmt.Errorf("providers.weather.read: %w", readErr)
	}
	if response.StatusCode != http.StatusOK {
		return "", &ProviderError{Provider: "weather", Status: response.StatusCode, Body: string(body)}
	}
	return string(body), nil
}
