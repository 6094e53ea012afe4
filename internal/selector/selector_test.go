package selector

import (
	"testing"

	"github.com/genricoloni/nowplaying/internal/domain"
)

func variant(h int) domain.ArtVariant {
	return domain.ArtVariant{URL: "https://i.scdn.co/image/" + string(rune('a'+h%26)), Width: h, Height: h}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name         string
		heights      []int
		minDimension int
		wantHeight   int
		wantOK       bool
	}{
		{name: "Smallest Above Threshold", heights: []int{200, 350, 600}, minDimension: 300, wantHeight: 350, wantOK: true},
		{name: "Unordered Input", heights: []int{640, 64, 300}, minDimension: 250, wantHeight: 300, wantOK: true},
		{name: "Exact Match", heights: []int{640, 300, 64}, minDimension: 300, wantHeight: 300, wantOK: true},
		{name: "None Large Enough Returns First", heights: []int{64, 200, 120}, minDimension: 500, wantHeight: 64, wantOK: true},
		{name: "Single Small Variant", heights: []int{100}, minDimension: 500, wantHeight: 100, wantOK: true},
		{name: "Empty", heights: nil, minDimension: 300, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			variants := make([]domain.ArtVariant, 0, len(tt.heights))
			for _, h := range tt.heights {
				variants = append(variants, variant(h))
			}

			got, ok := Select(variants, tt.minDimension)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if ok && got.Height != tt.wantHeight {
				t.Errorf("expected height %d, got %d", tt.wantHeight, got.Height)
			}
		})
	}
}

// TestSelect_Property checks the selection rule against a brute force scan
func TestSelect_Property(t *testing.T) {
	lists := [][]int{
		{1, 2, 3, 4, 5},
		{900, 10, 450, 451, 449},
		{300, 300, 301},
		{5, 4, 3, 2, 1},
		{1000},
	}

	for _, heights := range lists {
		for _, minDim := range []int{0, 3, 300, 450, 1001} {
			variants := make([]domain.ArtVariant, len(heights))
			for i, h := range heights {
				variants[i] = domain.ArtVariant{URL: "u", Width: h, Height: h}
			}

			got, ok := Select(variants, minDim)
			if !ok {
				t.Fatalf("non-empty list must yield a selection")
			}

			want := -1
			for _, h := range heights {
				if h >= minDim && (want < 0 || h < want) {
					want = h
				}
			}
			if want < 0 {
				want = heights[0]
			}
			if got.Height != want {
				t.Errorf("heights=%v min=%d: expected %d, got %d", heights, minDim, want, got.Height)
			}
		}
	}
}
