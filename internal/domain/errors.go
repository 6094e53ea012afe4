package domain

import "errors"

var (
	// ErrInvalidTrackID is returned for identifiers that are not spotify:track:<id>
	ErrInvalidTrackID = errors.New("invalid track id")
	// ErrTrackNotFound is returned by a metadata lookup for unknown tracks
	ErrTrackNotFound = errors.New("track not found")
	// ErrNoArtwork means the lookup succeeded but returned no usable variants
	ErrNoArtwork = errors.New("no artwork available")
	// ErrEmptyImage is returned for zero-area images
	ErrEmptyImage = errors.New("image has zero area")
	// ErrNotConnected is returned when publishing on a channel that is not connected
	ErrNotConnected = errors.New("companion channel not connected")
	// ErrHandshakeTimeout is reported when a connect attempt exceeds its bound
	ErrHandshakeTimeout = errors.New("companion handshake timed out")
	// ErrLinkClosed is returned by transport links after they were closed
	ErrLinkClosed = errors.New("companion link closed")
)
