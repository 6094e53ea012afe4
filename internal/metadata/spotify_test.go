package metadata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
)

const trackBody = `{
  "id": "4uLU6hMCjMI75M1A2tKUQC",
  "name": "Never Gonna Give You Up",
  "album": {
    "name": "Whenever You Need Somebody",
    "images": [
      {"url": "https://i.scdn.co/image/640", "height": 640, "width": 640},
      {"url": "https://i.scdn.co/image/300", "height": 300, "width": 300},
      {"url": "https://i.scdn.co/image/64", "height": 64, "width": 64},
      {"url": "https://i.scdn.co/image/unsized"}
    ]
  }
}`

func TestSpotifyLookup_LookupArtwork(t *testing.T) {
	tests := []struct {
		name             string
		trackID          string
		statusCode       int
		body             string
		expectedError    string
		expectedSentinel error
		expectedCount    int
	}{
		{
			name:          "Success - Sized Images Only",
			trackID:       "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			statusCode:    http.StatusOK,
			body:          trackBody,
			expectedCount: 3,
		},
		{
			name:          "Success - No Images",
			trackID:       "spotify:track:abc",
			statusCode:    http.StatusOK,
			body:          `{"id":"abc","album":{"images":[]}}`,
			expectedCount: 0,
		},
		{
			name:             "Error - Not Found",
			trackID:          "spotify:track:missing",
			statusCode:       http.StatusNotFound,
			expectedSentinel: domain.ErrTrackNotFound,
		},
		{
			name:          "Error - Server Error",
			trackID:       "spotify:track:abc",
			statusCode:    http.StatusInternalServerError,
			expectedError: "unexpected status code: 500",
		},
		{
			name:          "Error - Bad JSON",
			trackID:       "spotify:track:abc",
			statusCode:    http.StatusOK,
			body:          "{not json",
			expectedError: "parse json",
		},
		{
			name:             "Error - Invalid Track Id",
			trackID:          "abc",
			expectedSentinel: domain.ErrInvalidTrackID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			lookup := NewSpotifyLookup(zap.NewNop(), SpotifyConfig{BaseURL: server.URL + "/", Timeout: 2 * time.Second})
			variants, err := lookup.LookupArtwork(context.Background(), tt.trackID)

			if tt.expectedSentinel != nil {
				if !errors.Is(err, tt.expectedSentinel) {
					t.Fatalf("expected %v, got %v", tt.expectedSentinel, err)
				}
				return
			}
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

			if len(variants) != tt.expectedCount {
				t.Errorf("expected %d variants, got %d", tt.expectedCount, len(variants))
			}
			id, _ := domain.ParseTrackID(tt.trackID)
			if gotPath != "/v1/tracks/"+id {
				t.Errorf("unexpected request path %s", gotPath)
			}
		})
	}
}

func TestSpotifyLookup_ClientCredentials(t *testing.T) {
	var tokenRequests int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		tokenRequests++
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/tracks/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(trackBody))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	lookup := NewSpotifyLookup(zap.NewNop(), SpotifyConfig{
		BaseURL:      server.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     server.URL + "/api/token",
	})

	for i := 0; i < 2; i++ {
		variants, err := lookup.LookupArtwork(context.Background(), "spotify:track:4uLU6hMCjMI75M1A2tKUQC")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(variants) != 3 {
			t.Fatalf("expected 3 variants, got %d", len(variants))
		}
	}

	if tokenRequests != 1 {
		t.Errorf("token should be cached, got %d token requests", tokenRequests)
	}
}
