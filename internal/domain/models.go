package domain

import (
	"image"
	"time"
)

// TrackChangedEvent is the canonical "track changed" notification.
// It is immutable once created.
type TrackChangedEvent struct {
	// TrackID is the canonical track identifier (spotify:track:<id>)
	TrackID string
	// Artist name
	Artist string
	// Album name
	Album string
	// Title of the track
	Title string
	// ReceivedAt is when the source observed the change
	ReceivedAt time.Time
	// Image is set when the source already carries decoded artwork.
	// Such events bypass metadata lookup and download.
	Image image.Image
}

// HasImage reports whether the event carries pre-decoded artwork
func (e TrackChangedEvent) HasImage() bool {
	return e.Image != nil
}

// ArtVariant is one candidate artwork representation returned by a metadata lookup
type ArtVariant struct {
	URL    string
	Width  int
	Height int
}

// AssetKind tells the companion which display mode an asset is meant for
type AssetKind string

const (
	// KindInteractive is the full-color art shown while the display is active
	KindInteractive AssetKind = "interactive"
	// KindAmbient is the reduced two-color art shown in always-on mode
	KindAmbient AssetKind = "ambient"
)

// AlbumArtAsset is the unit transmitted to the companion. Immutable once built.
type AlbumArtAsset struct {
	TrackID string
	Content []byte
	// Digest is the hex-encoded SHA-256 of Content
	Digest string
	Kind   AssetKind
	// Format is the image encoding of Content ("png" or "jpeg")
	Format string
}

// ChannelState is the connection state of the companion channel
type ChannelState int

const (
	// StateDisconnected is the initial state
	StateDisconnected ChannelState = iota
	// StateConnecting means a handshake is in flight
	StateConnecting
	// StateConnected means assets can be published
	StateConnected
)

func (s ChannelState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// DataItem is a single write into a named companion data slot
type DataItem struct {
	// Path is the logical slot (e.g. "/albumart")
	Path string
	// Field is the key the asset is stored under (e.g. "albumArt")
	Field string
	Asset AlbumArtAsset
}

// DisplaySize holds the companion display dimensions
type DisplaySize struct {
	Width  int
	Height int
}
