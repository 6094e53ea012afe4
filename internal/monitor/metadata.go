package monitor

import (
	"fmt"
	"image"
	"net/url"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/godbus/dbus/v5"
)

// normalizeTrackID finds a Spotify track id in MPRIS metadata.
// Accepted: mpris:trackid "spotify:track:X" or "/com/spotify/track/X",
// xesam:url "https://open.spotify.com/track/X".
func normalizeTrackID(metadata map[string]dbus.Variant) (string, bool) {
	var candidates []string
	if v, ok := metadata["mpris:trackid"]; ok {
		switch id := v.Value().(type) {
		case string:
			candidates = append(candidates, id)
		case dbus.ObjectPath:
			candidates = append(candidates, string(id))
		}
	}
	candidates = append(candidates, stringField(metadata, "xesam:url"))

	for _, raw := range candidates {
		if id, ok := canonicalize(raw); ok {
			return id, true
		}
	}
	return "", false
}

func canonicalize(raw string) (string, bool) {
	var candidate string
	switch {
	case strings.HasPrefix(raw, "spotify:track:"):
		candidate = raw
	case strings.HasPrefix(raw, "/com/spotify/track/"):
		candidate = domain.CanonicalTrackID(strings.TrimPrefix(raw, "/com/spotify/track/"))
	default:
		u, err := url.Parse(raw)
		if err != nil || u.Host != "open.spotify.com" {
			return "", false
		}
		rest, ok := strings.CutPrefix(u.Path, "/track/")
		if !ok {
			return "", false
		}
		candidate = domain.CanonicalTrackID(strings.TrimSuffix(rest, "/"))
	}

	if _, err := domain.ParseTrackID(candidate); err != nil {
		return "", false
	}
	return candidate, true
}

func stringField(metadata map[string]dbus.Variant, key string) string {
	if v, ok := metadata[key]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

// firstArtist accepts the xesam string list and the single string some players send
func firstArtist(metadata map[string]dbus.Variant) string {
	v, ok := metadata["xesam:artist"]
	if !ok {
		return ""
	}
	switch artists := v.Value().(type) {
	case []string:
		if len(artists) > 0 {
			return artists[0]
		}
	case string:
		return artists
	}
	return ""
}

// localArtPath returns the filesystem path of a file:// art URL
func localArtPath(artURL string) (string, bool) {
	if artURL == "" {
		return "", false
	}
	u, err := url.Parse(artURL)
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return "", false
	}
	return u.Path, true
}

func loadLocalArt(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open artwork: %w", err)
	}
	return img, nil
}
