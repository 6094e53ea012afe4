package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
)

// Options configures where assets land on the companion
type Options struct {
	SlotPath          string
	AmbientSlotPath   string
	FieldName         string
	DeleteBeforeWrite bool
	ConnectTimeout    time.Duration
}

// Channel is the single owner of the companion connection.
// State moves Disconnected -> Connecting -> Connected and back to Disconnected
// on failure, link loss or Disconnect.
type Channel struct {
	logger    *zap.Logger
	transport domain.Transport
	opts      Options

	mu        sync.Mutex
	state     domain.ChannelState
	link      domain.Link
	attempt   uint64
	listeners []func(domain.ChannelState)

	// sendMu serializes publishes so delete/put pairs never interleave
	sendMu sync.Mutex
}

// NewChannel creates a disconnected channel over transport
func NewChannel(logger *zap.Logger, transport domain.Transport, opts Options) *Channel {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.FieldName == "" {
		opts.FieldName = "albumArt"
	}
	if opts.SlotPath == "" {
		opts.SlotPath = "/albumart"
	}
	if opts.AmbientSlotPath == "" {
		opts.AmbientSlotPath = opts.SlotPath + "/ambient"
	}
	return &Channel{
		logger:    logger,
		transport: transport,
		opts:      opts,
		state:     domain.StateDisconnected,
	}
}

func (c *Channel) State() domain.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every state transition. Callbacks run outside the channel lock.
func (c *Channel) Subscribe(fn func(domain.ChannelState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Connect starts a handshake in the background. It is a no-op while connecting or connected.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.state != domain.StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.attempt++
	id := c.attempt
	listeners := c.transitionLocked(domain.StateConnecting)
	c.mu.Unlock()

	c.logger.Debug("Companion handshake started", zap.Uint64("attempt", id))
	notify(listeners, domain.StateConnecting)

	go c.handshake(id)
}

func (c *Channel) handshake(id uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	defer cancel()

	link, err := c.transport.Dial(ctx)
	if err == nil && ctx.Err() != nil {
		// Dial ignored the deadline
		_ = link.Close()
		link, err = nil, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = domain.ErrHandshakeTimeout
	}

	c.mu.Lock()
	if id != c.attempt || c.state != domain.StateConnecting {
		// Superseded by Disconnect
		c.mu.Unlock()
		if link != nil {
			_ = link.Close()
		}
		c.logger.Debug("Discarding stale handshake", zap.Uint64("attempt", id))
		return
	}

	if err != nil {
		listeners := c.transitionLocked(domain.StateDisconnected)
		c.mu.Unlock()
		c.logger.Warn("Companion handshake failed", zap.Uint64("attempt", id), zap.Error(err))
		notify(listeners, domain.StateDisconnected)
		return
	}

	c.link = link
	listeners := c.transitionLocked(domain.StateConnected)
	c.mu.Unlock()

	c.logger.Info("Companion connected", zap.Uint64("attempt", id))
	go c.watch(link)
	notify(listeners, domain.StateConnected)
}

// watch marks the channel disconnected when the link drops
func (c *Channel) watch(link domain.Link) {
	<-link.Closed()
	if c.release(link) {
		c.logger.Warn("Companion link lost")
	}
}

// release detaches link if it is still the active one and reports whether it was
func (c *Channel) release(link domain.Link) bool {
	c.mu.Lock()
	if c.link != link {
		c.mu.Unlock()
		return false
	}
	c.link = nil
	listeners := c.transitionLocked(domain.StateDisconnected)
	c.mu.Unlock()

	_ = link.Close()
	notify(listeners, domain.StateDisconnected)
	return true
}

// Publish writes asset into the slot for its kind, deleting the previous value first
// when configured to do so
func (c *Channel) Publish(ctx context.Context, asset domain.AlbumArtAsset) error {
	c.mu.Lock()
	link, state := c.link, c.state
	c.mu.Unlock()
	if state != domain.StateConnected || link == nil {
		return domain.ErrNotConnected
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	path := c.SlotPath(asset.Kind)
	if c.opts.DeleteBeforeWrite {
		if err := link.Delete(ctx, path); err != nil {
			c.sendFailed(ctx, link, err)
			return fmt.Errorf("failed to delete %s: %w", path, err)
		}
	}

	item := domain.DataItem{Path: path, Field: c.opts.FieldName, Asset: asset}
	if err := link.Put(ctx, item); err != nil {
		c.sendFailed(ctx, link, err)
		return fmt.Errorf("failed to put %s: %w", path, err)
	}

	c.logger.Info("Asset published",
		zap.String("track", asset.TrackID),
		zap.String("kind", string(asset.Kind)),
		zap.String("path", path),
		zap.String("digest", asset.Digest))
	return nil
}

// sendFailed drops the link unless the caller gave up on its own
func (c *Channel) sendFailed(ctx context.Context, link domain.Link, err error) {
	if ctx.Err() != nil {
		return
	}
	c.logger.Warn("Companion write failed, dropping link", zap.Error(err))
	c.release(link)
}

// Disconnect releases the link and invalidates any handshake in flight
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	c.attempt++
	link := c.link
	c.link = nil
	var listeners []func(domain.ChannelState)
	if c.state != domain.StateDisconnected {
		listeners = c.transitionLocked(domain.StateDisconnected)
	}
	c.mu.Unlock()

	notify(listeners, domain.StateDisconnected)
	if link != nil {
		c.logger.Info("Companion disconnected")
		return link.Close()
	}
	return nil
}

// SlotPath returns the companion path assets of kind are written to
func (c *Channel) SlotPath(kind domain.AssetKind) string {
	if kind == domain.KindAmbient {
		return c.opts.AmbientSlotPath
	}
	return c.opts.SlotPath
}

// transitionLocked sets the state and returns the listeners to notify. c.mu must be held.
func (c *Channel) transitionLocked(s domain.ChannelState) []func(domain.ChannelState) {
	c.state = s
	out := make([]func(domain.ChannelState), len(c.listeners))
	copy(out, c.listeners)
	return out
}

func notify(listeners []func(domain.ChannelState), s domain.ChannelState) {
	for _, fn := range listeners {
		fn(s)
	}
}
