package domain

import (
	"context"
	"image"
)

// EventSource produces canonical track-changed events.
// Implementations handle the OS binding (D-Bus/MPRIS on Linux).
type EventSource interface {
	// Start begins monitoring for media events
	// It should block until context is cancelled or an error occurs
	Start(ctx context.Context) error

	// Stop gracefully stops the source and closes the events channel
	Stop(ctx context.Context) error

	// Events returns a read-only channel of canonical events
	Events() <-chan TrackChangedEvent
}

// MetadataLookup resolves a track to its candidate artwork
type MetadataLookup interface {
	// LookupArtwork returns the art variants for a canonical track id.
	// Returns ErrTrackNotFound for unknown tracks.
	LookupArtwork(ctx context.Context, trackID string) ([]ArtVariant, error)
}

// ArtworkFetcher resolves and downloads artwork
type ArtworkFetcher interface {
	// Resolve picks the best variant for the target display
	Resolve(ctx context.Context, trackID string) (ArtVariant, error)

	// Fetch downloads and decodes the variant
	Fetch(ctx context.Context, variant ArtVariant) (image.Image, error)
}

// Renderer prepares the interactive art for the companion display
type Renderer interface {
	Render(img image.Image) image.Image
}

// AmbientTransformer derives the always-on rendering of an image
type AmbientTransformer interface {
	// ToAmbient returns a two-color image. Returns ErrEmptyImage for zero-area input.
	ToAmbient(img image.Image) (*image.Paletted, error)
}

// AssetCodec serializes images into transportable assets
type AssetCodec interface {
	Encode(img image.Image, trackID string, kind AssetKind) (AlbumArtAsset, error)
}

// CompanionChannel owns connectivity to the paired device.
// No other component touches its connection internals.
type CompanionChannel interface {
	// State returns the current connection state
	State() ChannelState

	// Connect starts a handshake unless one is in flight or the channel is connected.
	// It never blocks on the handshake itself.
	Connect()

	// Publish writes the asset into its companion slot. Only valid while connected.
	Publish(ctx context.Context, asset AlbumArtAsset) error

	// Disconnect releases the connection. Safe to call from any state.
	Disconnect() error

	// Subscribe registers a callback for state transitions
	Subscribe(fn func(ChannelState))
}

// Transport dials the companion device
//
//go:generate mockgen -destination=../channel/mocks/transport_mock.go -package=mocks github.com/genricoloni/nowplaying/internal/domain Transport,Link
type Transport interface {
	Dial(ctx context.Context) (Link, error)
}

// Link is an established connection to the companion's data slots
type Link interface {
	// Delete removes the item stored at path
	Delete(ctx context.Context, path string) error

	// Put writes the item, replacing any previous value at the same path
	Put(ctx context.Context, item DataItem) error

	// Closed is closed when the link is lost
	Closed() <-chan struct{}

	// Close releases the link
	Close() error
}
