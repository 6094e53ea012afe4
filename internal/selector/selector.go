// Package selector picks the artwork resolution that best fits a display.
package selector

import "github.com/genricoloni/nowplaying/internal/domain"

// Select returns the variant with the smallest height that is still at least
// minDimension. When no variant is large enough the first one is returned.
// The boolean is false only for an empty list.
func Select(variants []domain.ArtVariant, minDimension int) (domain.ArtVariant, bool) {
	if len(variants) == 0 {
		return domain.ArtVariant{}, false
	}

	best := -1
	for i, v := range variants {
		if v.Height < minDimension {
			continue
		}
		if best < 0 || v.Height < variants[best].Height {
			best = i
		}
	}

	if best < 0 {
		return variants[0], true
	}
	return variants[best], true
}
