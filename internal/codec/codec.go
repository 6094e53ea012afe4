// Package codec turns images into transportable album art assets.
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
)

// Options holds the encoding parameters
type Options struct {
	// Format is "png" or "jpeg"
	Format string
	// Quality is 1-100. For JPEG it is the encoder quality; for PNG it picks a compression level.
	Quality int
}

// AssetCodec encodes images and computes their content identity
type AssetCodec struct {
	logger *zap.Logger
	opts   Options
}

// NewAssetCodec creates a codec with the given options
func NewAssetCodec(logger *zap.Logger, opts Options) *AssetCodec {
	if opts.Format == "" {
		opts.Format = "png"
	}
	if opts.Quality <= 0 {
		opts.Quality = 80
	}
	return &AssetCodec{logger: logger, opts: opts}
}

// Encode serializes the image into an asset of the given kind
func (c *AssetCodec) Encode(img image.Image, trackID string, kind domain.AssetKind) (domain.AlbumArtAsset, error) {
	if img == nil {
		return domain.AlbumArtAsset{}, fmt.Errorf("failed to encode %s asset: nil image", kind)
	}

	format, encOpts, err := c.encodeOptions()
	if err != nil {
		return domain.AlbumArtAsset{}, err
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, format, encOpts...); err != nil {
		return domain.AlbumArtAsset{}, fmt.Errorf("failed to encode %s asset: %w", kind, err)
	}

	content := buf.Bytes()
	asset := domain.AlbumArtAsset{
		TrackID: trackID,
		Content: content,
		Digest:  Digest(content),
		Kind:    kind,
		Format:  c.opts.Format,
	}

	c.logger.Debug("Asset encoded",
		zap.String("track", trackID),
		zap.String("kind", string(kind)),
		zap.Int("bytes", len(content)),
		zap.String("digest", asset.Digest))
	return asset, nil
}

func (c *AssetCodec) encodeOptions() (imaging.Format, []imaging.EncodeOption, error) {
	switch c.opts.Format {
	case "png":
		return imaging.PNG, []imaging.EncodeOption{imaging.PNGCompressionLevel(pngLevel(c.opts.Quality))}, nil
	case "jpeg":
		return imaging.JPEG, []imaging.EncodeOption{imaging.JPEGQuality(c.opts.Quality)}, nil
	default:
		return 0, nil, fmt.Errorf("unsupported asset format %q", c.opts.Format)
	}
}

// pngLevel maps a 1-100 quality onto a PNG compression level.
// PNG is lossless, so higher quality trades CPU for smaller payloads.
func pngLevel(quality int) png.CompressionLevel {
	switch {
	case quality >= 90:
		return png.BestCompression
	case quality >= 50:
		return png.DefaultCompression
	default:
		return png.BestSpeed
	}
}

// Digest returns the hex SHA-256 of the encoded bytes
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
