package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG format support
	_ "image/png"  // PNG format support
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/genricoloni/nowplaying/internal/selector"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp" // WebP format support
)

const _maxImageSize = 10 * 1024 * 1024 // 10 MB

// ArtworkFetcher resolves a track to its best-fit artwork and downloads it
type ArtworkFetcher struct {
	logger       *zap.Logger
	lookup       domain.MetadataLookup
	client       *http.Client
	minDimension int
}

// NewArtworkFetcher creates a fetcher selecting art at least minDimension pixels tall
func NewArtworkFetcher(logger *zap.Logger, lookup domain.MetadataLookup, minDimension int) *ArtworkFetcher {
	return &ArtworkFetcher{
		logger:       logger,
		lookup:       lookup,
		minDimension: minDimension,
		client: &http.Client{
			Timeout: 10 * time.Second, // Essential to prevent blocking a worker
		},
	}
}

// Resolve looks the track up and selects a variant. Nothing is cached.
func (f *ArtworkFetcher) Resolve(ctx context.Context, trackID string) (domain.ArtVariant, error) {
	variants, err := f.lookup.LookupArtwork(ctx, trackID)
	if err != nil {
		return domain.ArtVariant{}, fmt.Errorf("metadata lookup: %w", err)
	}

	variant, ok := selector.Select(variants, f.minDimension)
	if !ok {
		return domain.ArtVariant{}, fmt.Errorf("%w: %s", domain.ErrNoArtwork, trackID)
	}

	f.logger.Debug("Artwork variant selected",
		zap.String("track", trackID),
		zap.String("url", variant.URL),
		zap.Int("height", variant.Height),
		zap.Int("candidates", len(variants)))

	return variant, nil
}

// Fetch downloads and decodes the variant's image
func (f *ArtworkFetcher) Fetch(ctx context.Context, variant domain.ArtVariant) (image.Image, error) {
	data, err := f.download(ctx, variant.URL)
	if err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	f.logger.Debug("Image decoded",
		zap.String("format", format),
		zap.Int("w", img.Bounds().Dx()),
		zap.Int("h", img.Bounds().Dy()))
	return img, nil
}

func (f *ArtworkFetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "nowplayingDaemon/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		return nil, fmt.Errorf("url is not an image: %s", resp.Header.Get("Content-Type"))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, _maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	f.logger.Debug("Image fetched successfully", zap.Int("bytes", len(data)), zap.String("url", url))
	return data, nil
}
