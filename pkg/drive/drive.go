// Package drive fetches stored document bytes from Google Drive.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrFileNotFound reports that the referenced file no longer exists in the
// backing store.
var ErrFileNotFound = errors.New("drive: file not found")

// FileStore retrieves stored file contents by their store-assigned ID.
type FileStore interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Client is a FileStore backed by the Google Drive v3 API.
type Client struct {
	service *gdrive.Service
	logger  zerolog.Logger
}

// NewClient builds a Drive client from a service account credentials file.
func NewClient(ctx context.Context, credentialsFile string, logger zerolog.Logger) (*Client, error) {
	service, err := gdrive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gdrive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}

	return &Client{
		service: service,
		logger:  logger.With().Str("component", "drive").Logger(),
	}, nil
}

// Download fetches the full contents of a stored file.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("drive download %q: %w", fileID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("drive read %q: %w", fileID, err)
	}

	c.logger.Debug().Str("file_id", fileID).Int("bytes", len(data)).Msg("file downloaded")
	return data, nil
}
