package processor

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/disintegration/imaging"
	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
)

const (
	// ambientBit is the gray-level bit that decides a pixel's palette entry
	ambientBit = 0x40
)

// AmbientPalette is the two-color palette of ambient art.
// Index 0 is black (pixel off on OLED), index 1 a dark gray.
var AmbientPalette = color.Palette{
	color.RGBA{R: 0x00, G: 0x00, B: 0x00, A: 0xFF},
	color.RGBA{R: 0x44, G: 0x44, B: 0x44, A: 0xFF},
}

// AmbientProcessor derives the low-power rendering of album art
type AmbientProcessor struct {
	logger *zap.Logger
}

// NewAmbientProcessor creates a new ambient transformer
func NewAmbientProcessor(logger *zap.Logger) *AmbientProcessor {
	return &AmbientProcessor{logger: logger}
}

// ToAmbient desaturates the image and maps each pixel to one of two palette
// colors depending on a single mid-range bit of its gray level.
func (p *AmbientProcessor) ToAmbient(img image.Image) (*image.Paletted, error) {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("%w: %dx%d", domain.ErrEmptyImage, bounds.Dx(), bounds.Dy())
	}

	start := time.Now()

	// Grayscale returns an NRGBA anchored at (0,0) with R == G == B
	gray := imaging.Grayscale(img)
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()

	out := image.NewPaletted(image.Rect(0, 0, w, h), AmbientPalette)
	for y := 0; y < h; y++ {
		src := gray.Pix[y*gray.Stride : y*gray.Stride+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x := 0; x < w; x++ {
			dst[x] = (src[x*4] & ambientBit) >> 6
		}
	}

	p.logger.Debug("Ambient art derived",
		zap.Int("w", w),
		zap.Int("h", h),
		zap.Duration("took", time.Since(start)))
	return out, nil
}
