package monitor

import (
	"image"

	"github.com/genricoloni/nowplaying/internal/config"
	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/kbinani/screenshot"
	"go.uber.org/zap"
)

const fallbackDisplaySize = 500

// NewDisplaySize returns the companion display size. A configured size of 0 means
// the companion is attached locally and the primary display is probed.
func NewDisplaySize(logger *zap.Logger, cfg *config.AppConfig) *domain.DisplaySize {
	if cfg.DisplaySize > 0 {
		return &domain.DisplaySize{Width: cfg.DisplaySize, Height: cfg.DisplaySize}
	}
	return probeDisplay(logger, screenshot.NumActiveDisplays, screenshot.GetDisplayBounds)
}

func probeDisplay(logger *zap.Logger, count func() int, bounds func(int) image.Rectangle) *domain.DisplaySize {
	if count() <= 0 {
		logger.Warn("No active display to probe, using default size", zap.Int("size", fallbackDisplaySize))
		return &domain.DisplaySize{Width: fallbackDisplaySize, Height: fallbackDisplaySize}
	}

	b := bounds(0)
	// Round faces use the shorter edge
	edge := min(b.Dx(), b.Dy())
	if edge <= 0 {
		return &domain.DisplaySize{Width: fallbackDisplaySize, Height: fallbackDisplaySize}
	}

	logger.Info("Display size probed", zap.Int("size", edge))
	return &domain.DisplaySize{Width: edge, Height: edge}
}
