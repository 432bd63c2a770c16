// Package library consumes the video library catalog and metadata API.
package library

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Video is one catalog entry. YoutubeID is empty for videos not hosted on
// the video platform.
type Video struct {
	YoutubeID string `json:"youtube_id,omitempty"`
	Title     string `json:"title"`
}

// Playlist groups the catalog's videos.
type Playlist struct {
	Title  string  `json:"title"`
	Videos []Video `json:"videos"`
}

// Metadata is the descriptive record attached to archive uploads. It is
// decorative only and never used for correctness.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Catalog is the slice of the library API the archiver consumes.
type Catalog interface {
	GetLibrary(ctx context.Context) ([]Playlist, error)
	VideoMetadata(ctx context.Context, videoID string) (Metadata, error)
}

// Client talks to the library HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) GetLibrary(ctx context.Context) ([]Playlist, error) {
	var playlists []Playlist
	if err := c.getJSON(ctx, "/api/v1/playlists/library", &playlists); err != nil {
		return nil, err
	}
	return playlists, nil
}

func (c *Client) VideoMetadata(ctx context.Context, videoID string) (Metadata, error) {
	var meta Metadata
	if err := c.getJSON(ctx, "/api/v1/videos/"+url.PathEscape(videoID), &meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("library request %s: %w", path, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("library request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("library request %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("library response %s: %w", path, err)
	}
	return nil
}

var _ Catalog = (*Client)(nil)
