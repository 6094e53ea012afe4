package processor

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
)

// InteractiveRenderer prepares the full-color art shown while the companion is active
type InteractiveRenderer struct {
	logger  *zap.Logger
	display *domain.DisplaySize // Injected automatically by Fx
}

// NewInteractiveRenderer creates a renderer targeting the given display
func NewInteractiveRenderer(logger *zap.Logger, display *domain.DisplaySize) *InteractiveRenderer {
	return &InteractiveRenderer{
		logger:  logger,
		display: display,
	}
}

// Render scales art that is narrower than the display up to fill it.
// Art at least as wide as the display is returned untouched; the companion centers it.
func (r *InteractiveRenderer) Render(img image.Image) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return img
	}
	if bounds.Dx() >= r.display.Width {
		return img
	}

	r.logger.Debug("Scaling art up to display",
		zap.Int("srcW", bounds.Dx()),
		zap.Int("srcH", bounds.Dy()),
		zap.Int("w", r.display.Width),
		zap.Int("h", r.display.Height))
	return imaging.Fill(img, r.display.Width, r.display.Height, imaging.Center, imaging.Lanczos)
}
