package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultPickerBaseURL = "https://photospicker.googleapis.com/v1"

// PickerSession is one Google Photos picking session. The user opens PickerURI
// on their phone, selects photos, and MediaItemsSet flips once they confirm.
type PickerSession struct {
	ID            string `json:"id"`
	PickerURI     string `json:"pickerUri"`
	MediaItemsSet bool   `json:"mediaItemsSet"`
}

// PickedMediaItem is one photo the user selected in a picker session.
type PickedMediaItem struct {
	ID       string `json:"id"`
	BaseURL  string `json:"base_url"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
}

// PickerClient wraps the Google Photos Picker API.
type PickerClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewPickerClient builds a picker client on the shared HTTP client.
func NewPickerClient(httpClient *http.Client) *PickerClient {
	return &PickerClient{httpClient: httpClient, baseURL: defaultPickerBaseURL}
}

// NewPickerClientWithBaseURL supports pointing the client at a test server.
func NewPickerClientWithBaseURL(httpClient *http.Client, baseURL string) *PickerClient {
	return &PickerClient{httpClient: httpClient, baseURL: baseURL}
}

// CreateSession opens a new picking session for the connected account.
func (client *PickerClient) CreateSession(ctx context.Context, accessToken string) (*PickerSession, error) {
	body, err := client.do(ctx, accessToken, http.MethodPost, client.baseURL+"/sessions", strings.NewReader("{}"))
	if err != nil {
		return nil, err
	}
	var session PickerSession
	if unmarshalErr := json.Unmarshal(body, &session); unmarshalErr != nil {
		return nil, fmt.Errorf("providers.picker.decode_session: %w", unmarshalErr)
	}
	return &session, nil
}

// GetSession polls one picking session, reporting whether the user confirmed.
func (client *PickerClient) GetSession(ctx context.Context, accessToken string, sessionID string) (*PickerSession, error) {
	body, err := client.do(ctx, accessToken, http.MethodGet, client.baseURL+"/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, err
	}
	var session PickerSession
	if unmarshalErr := json.Unmarshal(body, &session); unmarshalErr != nil {
		return nil, fmt.Errorf("providers.picker.decode_session: %w", unmarshalErr)
	}
	return &session, nil
}

// ListMediaItems returns every photo picked in the session, following
// pagination until the listing is exhausted.
func (client *PickerClient) ListMediaItems(ctx context.Context, accessToken string, sessionID string) ([]PickedMediaItem, error) {
	var items []PickedMediaItem
	pageToken := ""
	for {
		query := url.Values{}
		query.Set("sessionId", sessionID)
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		body, err := client.do(ctx, accessToken, http.MethodGet, client.baseURL+"/mediaItems?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var page struct {
			MediaItems []struct {
				ID        string `json:"id"`
				MediaFile struct {
					BaseURL  string `json:"baseUrl"`
					Filename string `json:"filename"`
					MimeType string `json:"mimeType"`
				} `json:"mediaFile"`
			} `json:"mediaItems"`
			NextPageToken string `json:"nextPageToken"`
		}
		if unmarshalErr := json.Unmarshal(body, &page); unmarshalErr != nil {
			return nil, fmt.Errorf("providers.picker.decode_media_items: %w", unmarshalErr)
		}
		for _, item := range page.MediaItems {
			items = append(items, PickedMediaItem{
				ID:       item.ID,
				BaseURL:  item.MediaFile.BaseURL,
				Filename: item.MediaFile.Filename,
				MimeType: item.MediaFile.MimeType,
			})
		}
		if page.NextPageToken == "" {
			return items, nil
		}
		pageToken = page.NextPageToken
	}
}

// DeleteSession discards a picking session after its items are downloaded.
func (client *PickerClient) DeleteSession(ctx context.Context, accessToken string, sessionID string) error {
	_, err := client.do(ctx, accessToken, http.MethodDelete, client.baseURL+"/sessions/"+url.PathEscape(sessionID), nil)
	return err
}

// Download streams one picked photo at display resolution. The caller owns the
// returned reader.
func (client *PickerClient) Download(ctx context.Context, accessToken string, baseURL string) (io.ReadCloser, error) {
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"=w1920-h1080", nil)
	if requestErr != nil {
		return nil, fmt.Errorf("providers.picker.request: %w", requestErr)
	}
	request.Header.Set("Authorization", "Bearer "+accessToken)
	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, doErr)
	}
	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		_ = response.Body.Close()
		return nil, &ProviderError{Provider: "picker", Status: response.StatusCode, Body: string(body)}
	}
	return response.Body, nil
}

func (client *PickerClient) do(ctx context.Context, accessToken string, method string, endpoint string, payload io.Reader) ([]byte, error) {
	request, requestErr := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if requestErr != nil {
		return nil, fmt.Errorf("providers.picker.request: %w", requestErr)
	}
	request.Header.Set("Authorization", "Bearer "+accessToken)
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, doErr)
	}
	defer func() { _ = response.Body.Close() }()
	body, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return nil, fmt.Errorf("providers.picker.read: %w", readErr)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &ProviderError{Provider: "picker", Status: response.StatusCode, Body: truncateBody(body)}
	}
	return body, nil
}
