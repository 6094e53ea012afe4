package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
)

const _maxResponseSize = 1024 * 1024

// SpotifyConfig configures the Web API lookup
type SpotifyConfig struct {
	// BaseURL is the API root, e.g. https://api.spotify.com
	BaseURL string
	// ClientID and ClientSecret enable the client-credentials flow.
	// When empty, requests are sent unauthenticated.
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
}

type spotifyImage struct {
	URL    string `json:"url"`
	Height *int   `json:"height,omitempty"`
	Width  *int   `json:"width,omitempty"`
}

type spotifyTrack struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Album struct {
		Name   string         `json:"name"`
		Images []spotifyImage `json:"images"`
	} `json:"album"`
}

// SpotifyLookup resolves tracks through the Spotify Web API
type SpotifyLookup struct {
	logger  *zap.Logger
	client  *http.Client
	baseURL string
}

// NewSpotifyLookup creates a lookup. The HTTP client refreshes its token on its own
// when client credentials are configured.
func NewSpotifyLookup(logger *zap.Logger, cfg SpotifyConfig) *SpotifyLookup {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	if cfg.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		client = cc.Client(context.Background())
		client.Timeout = timeout
	}

	return &SpotifyLookup{
		logger:  logger,
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// LookupArtwork returns the album images of a track as art variants
func (s *SpotifyLookup) LookupArtwork(ctx context.Context, trackID string) ([]domain.ArtVariant, error) {
	id, err := domain.ParseTrackID(trackID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/tracks/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", domain.ErrTrackNotFound, trackID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, _maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	var track spotifyTrack
	if err := json.Unmarshal(body, &track); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	variants := make([]domain.ArtVariant, 0, len(track.Album.Images))
	for _, img := range track.Album.Images {
		if img.URL == "" || img.Height == nil || img.Width == nil || *img.Height <= 0 || *img.Width <= 0 {
			continue
		}
		variants = append(variants, domain.ArtVariant{URL: img.URL, Width: *img.Width, Height: *img.Height})
	}

	s.logger.Debug("Artwork variants resolved",
		zap.String("track", trackID),
		zap.String("album", track.Album.Name),
		zap.Int("variants", len(variants)))

	return variants, nil
}
