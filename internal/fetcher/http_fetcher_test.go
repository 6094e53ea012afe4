package fetcher

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
)

// stubLookup returns canned variants
type stubLookup struct {
	variants []domain.ArtVariant
	err      error
	calls    int
}

func (s *stubLookup) LookupArtwork(ctx context.Context, trackID string) ([]domain.ArtVariant, error) {
	s.calls++
	return s.variants, s.err
}

func TestArtworkFetcher_Resolve(t *testing.T) {
	variants := []domain.ArtVariant{
		{URL: "https://img/200", Width: 200, Height: 200},
		{URL: "https://img/350", Width: 350, Height: 350},
		{URL: "https://img/600", Width: 600, Height: 600},
	}

	tests := []struct {
		name        string
		lookup      *stubLookup
		expectedURL string
		expectedErr error
	}{
		{name: "Picks Smallest Fitting", lookup: &stubLookup{variants: variants}, expectedURL: "https://img/350"},
		{name: "No Variants", lookup: &stubLookup{}, expectedErr: domain.ErrNoArtwork},
		{name: "Lookup Fails", lookup: &stubLookup{err: domain.ErrTrackNotFound}, expectedErr: domain.ErrTrackNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewArtworkFetcher(zap.NewNop(), tt.lookup, 300)
			got, err := f.Resolve(context.Background(), "spotify:track:abc")

			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Fatalf("expected %v, got %v", tt.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.URL != tt.expectedURL {
				t.Errorf("expected %s, got %s", tt.expectedURL, got.URL)
			}
		})
	}
}

func TestArtworkFetcher_ResolveDoesNotCache(t *testing.T) {
	lookup := &stubLookup{variants: []domain.ArtVariant{{URL: "u", Width: 640, Height: 640}}}
	f := NewArtworkFetcher(zap.NewNop(), lookup, 300)

	for i := 0; i < 3; i++ {
		if _, err := f.Resolve(context.Background(), "spotify:track:abc"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if lookup.calls != 3 {
		t.Errorf("expected 3 lookups, got %d", lookup.calls)
	}
}

func TestArtworkFetcher_Fetch(t *testing.T) {
	tests := []struct {
		name          string
		contentType   string
		responseBody  []byte
		statusCode    int
		ctxFunc       func() (context.Context, context.CancelFunc)
		expectedError string
		expectedSize  int
	}{
		{
			name:         "Success - Valid PNG",
			contentType:  "image/png",
			responseBody: createTestPNG(40, 30),
			statusCode:   http.StatusOK,
			expectedSize: 40,
		},
		{
			name:          "Error - 404 Not Found",
			contentType:   "image/jpeg",
			statusCode:    http.StatusNotFound,
			expectedError: "unexpected status code: 404",
		},
		{
			name:          "Error - Invalid Content Type",
			contentType:   "text/plain",
			responseBody:  []byte("not-an-image"),
			statusCode:    http.StatusOK,
			expectedError: "url is not an image",
		},
		{
			name:          "Error - Corrupt Image",
			contentType:   "image/jpeg",
			responseBody:  []byte{0xFF, 0xD8, 0xFF, 0x00, 0x00},
			statusCode:    http.StatusOK,
			expectedError: "failed to decode image",
		},
		{
			name:         "Success - Oversized Body Is Truncated",
			contentType:  "image/png",
			responseBody: append(createTestPNG(2, 2), bytes.Repeat([]byte("a"), 11*1024*1024)...),
			statusCode:   http.StatusOK,
			expectedSize: 2,
		},
		{
			name: "Error - Context Cancelled",
			ctxFunc: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel() // Cancel immediately
				return ctx, cancel
			},
			expectedError: "context canceled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write(tt.responseBody)
			}))
			defer server.Close()

			var ctx context.Context
			var cancel context.CancelFunc
			if tt.ctxFunc != nil {
				ctx, cancel = tt.ctxFunc()
			} else {
				ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
			}
			defer cancel()

			f := NewArtworkFetcher(zap.NewNop(), &stubLookup{}, 300)
			img, err := f.Fetch(ctx, domain.ArtVariant{URL: server.URL, Width: 1, Height: 1})

			if tt.expectedError != "" {
				if err == nil {
					t.Fatalf("expected error containing '%s', got nil", tt.expectedError)
				}
				if !strings.Contains(err.Error(), tt.expectedError) {
					t.Errorf("expected error '%s' to contain '%s'", err.Error(), tt.expectedError)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if img.Bounds().Dx() != tt.expectedSize {
				t.Errorf("expected width %d, got %d", tt.expectedSize, img.Bounds().Dx())
			}
		})
	}
}

func createTestPNG(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		panic("failed to create test PNG: " + err.Error())
	}
	return buf.Bytes()
}
