package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/homeboard/internal/oauth"
	"github.com/tyemirov/homeboard/internal/providers"
	"github.com/tyemirov/homeboard/internal/settings"
)

func (server *Server) handlePhotosStatus(contextGin *gin.Context) {
	state, stateErr := server.broker.State(contextGin)
	if stateErr != nil {
		server.logger.Error("reading connection state failed",
			zap.String("code", "api.photos.status"),
			zap.Error(stateErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	pickedCount := 0
	pickedValue, pickedErr := server.settingsStore.GetDefault(contextGin, settings.KeyPickedPhotos, "")
	if pickedErr == nil && pickedValue != "" {
		var filenames []string
		if json.Unmarshal([]byte(pickedValue), &filenames) == nil {
			pickedCount = len(filenames)
		}
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"configured":   state.Configured,
		"connected":    state.Connected,
		"picked_count": pickedCount,
	})
}

func (server *Server) handlePhotosStart(contextGin *gin.Context) {
	consentURL, urlErr := server.broker.AuthorizationURL(contextGin)
	if urlErr != nil {
		if errors.Is(urlErr, oauth.ErrNotConfigured) {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "google client not configured"})
			return
		}
		server.logger.Error("building consent url failed",
			zap.String("code", "api.photos.start"),
			zap.Error(urlErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"url": consentURL})
}

// handleOAuthCallback finishes the handshake. Google redirects the admin's
// browser here, so the response is a redirect back into the app rather than
// JSON.
func (server *Server) handleOAuthCallback(contextGin *gin.Context) {
	code := contextGin.Query("code")
	state := contextGin.Query("state")
	if code == "" || state == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing code or state"})
		return
	}
	if exchangeErr := server.broker.ExchangeCode(contextGin, code, state); exchangeErr != nil {
		if errors.Is(exchangeErr, oauth.ErrStateMismatch) {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "state mismatch"})
			return
		}
		server.logger.Error("code exchange failed",
			zap.String("code", "api.photos.callback"),
			zap.Error(exchangeErr))
		contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "token exchange failed"})
		return
	}
	target := server.runtime.BaseURL()
	if target == "" {
		target = "/"
	}
	contextGin.Redirect(http.StatusFound, target+"?google_photos=connected")
}

func (server *Server) handlePhotosSession(contextGin *gin.Context) {
	accessToken, tokenErr := server.broker.AccessToken(contextGin)
	if tokenErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "google account not connected"})
		return
	}
	pickerSession, sessionErr := server.picker.CreateSession(contextGin, accessToken)
	if sessionErr != nil {
		server.logger.Warn("creating picker session failed",
			zap.String("code", "api.photos.session"),
			zap.Error(sessionErr))
		contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "picker unavailable"})
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"id":         pickerSession.ID,
		"picker_uri": pickerSession.PickerURI,
	})
}

// handlePhotosConfirm finalizes a picker session: once the user has confirmed
// their selection on their phone, the picked items are listed, the selection
// is persisted, and downloads fan out in the background.
func (server *Server) handlePhotosConfirm(contextGin *gin.Context) {
	sessionID := contextGin.Param("id")
	accessToken, tokenErr := server.broker.AccessToken(contextGin)
	if tokenErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "google account not connected"})
		return
	}

	pickerSession, sessionErr := server.picker.GetSession(contextGin, accessToken, sessionID)
	if sessionErr != nil {
		server.logger.Warn("polling picker session failed",
			zap.String("code", "api.photos.confirm.poll"),
			zap.Error(sessionErr))
		contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "picker unavailable"})
		return
	}
	if !pickerSession.MediaItemsSet {
		contextGin.JSON(http.StatusConflict, gin.H{"error": "selection not confirmed yet"})
		return
	}

	items, itemsErr := server.picker.ListMediaItems(contextGin, accessToken, sessionID)
	if itemsErr != nil {
		server.logger.Warn("listing picked items failed",
			zap.String("code", "api.photos.confirm.list"),
			zap.Error(itemsErr))
		contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "picker unavailable"})
		return
	}
	if len(items) == 0 {
		// An empty confirmation would wipe the previous selection.
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "no photos selected"})
		return
	}

	filenames := assignPhotoFilenames(items)
	encoded, encodeErr := json.Marshal(filenames)
	if encodeErr != nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if putErr := server.settingsStore.Put(contextGin, settings.KeyPickedPhotos, string(encoded)); putErr != nil {
		server.logger.Error("persisting selection failed",
			zap.String("code", "api.photos.confirm.persist"),
			zap.Error(putErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	server.startPhotoDownloads(contextGin, accessToken, items, filenames)
	server.tracker.Go(context.WithoutCancel(contextGin.Request.Context()), "photos.session.discard", func(taskCtx context.Context) error {
		return server.picker.DeleteSession(taskCtx, accessToken, sessionID)
	})

	contextGin.JSON(http.StatusOK, gin.H{"picked_count": len(items)})
}

// assignPhotoFilenames maps picked items to safe, unique local filenames.
func assignPhotoFilenames(items []providers.PickedMediaItem) []string {
	seen := make(map[string]struct{}, len(items))
	filenames := make([]string, 0, len(items))
	for index, item := range items {
		name := filepath.Base(strings.TrimSpace(item.Filename))
		if name == "" || name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
			name = fmt.Sprintf("photo_%d.jpg", index)
		}
		if _, duplicate := seen[name]; duplicate {
			name = fmt.Sprintf("%d_%s", index, name)
		}
		seen[name] = struct{}{}
		filenames = append(filenames, name)
	}
	return filenames
}

// startPhotoDownloads fans out one supervised task per picked photo and one
// cleanup task that drops files from a previous selection.
func (server *Server) startPhotoDownloads(contextGin *gin.Context, accessToken string, items []providers.PickedMediaItem, filenames []string) {
	background := context.WithoutCancel(contextGin.Request.Context())

	keep := make(map[string]struct{}, len(filenames))
	for _, name := range filenames {
		keep[name] = struct{}{}
	}
	server.tracker.Go(background, "photos.cleanup", func(taskCtx context.Context) error {
		return removeUnselectedPhotos(server.photosDir, keep)
	})

	for index, item := range items {
		filename := filenames[index]
		baseURL := item.BaseURL
		server.tracker.Go(background, "photos.download."+filename, func(taskCtx context.Context) error {
			return server.downloadPhoto(taskCtx, accessToken, baseURL, filename)
		})
	}
}

func (server *Server) downloadPhoto(ctx context.Context, accessToken string, baseURL string, filename string) error {
	if mkdirErr := os.MkdirAll(server.photosDir, 0o755); mkdirErr != nil {
		return fmt.Errorf("create photos dir: %w", mkdirErr)
	}
	body, downloadErr := server.picker.Download(ctx, accessToken, baseURL)
	if downloadErr != nil {
		return downloadErr
	}
	defer func() { _ = body.Close() }()

	path := filepath.Join(server.photosDir, filename)
	file, createErr := os.Create(path)
	if createErr != nil {
		return fmt.Errorf("create photo file: %w", createErr)
	}
	if _, copyErr := io.Copy(file, body); copyErr != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write photo file: %w", copyErr)
	}
	return file.Close()
}

func removeUnselectedPhotos(photosDir string, keep map[string]struct{}) error {
	entries, readErr := os.ReadDir(photosDir)
	if readErr != nil {
		if errors.Is(readErr, os.ErrNotExist) {
			return nil
		}
		return readErr
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, selected := keep[entry.Name()]; selected {
			continue
		}
		if removeErr := os.Remove(filepath.Join(photosDir, entry.Name())); removeErr != nil {
			return removeErr
		}
	}
	return nil
}

func (server *Server) handlePhotosDisconnect(contextGin *gin.Context) {
	if disconnectErr := server.broker.Disconnect(contextGin); disconnectErr != nil {
		server.logger.Error("disconnect failed",
			zap.String("code", "api.photos.disconnect"),
			zap.Error(disconnectErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if deleteErr := server.settingsStore.Delete(contextGin, settings.KeyPickedPhotos); deleteErr != nil {
		server.logger.Error("clearing selection failed",
			zap.String("code", "api.photos.disconnect.selection"),
			zap.Error(deleteErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	// A nil keep set removes every downloaded photo.
	server.tracker.Go(context.WithoutCancel(contextGin.Request.Context()), "photos.disconnect.cleanup", func(taskCtx context.Context) error {
		return removeUnselectedPhotos(server.photosDir, nil)
	})
	contextGin.Status(http.StatusNoContent)
}
