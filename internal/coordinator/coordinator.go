package coordinator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrStopped is returned for events submitted after Stop
var ErrStopped = errors.New("coordinator stopped")

var errSuperseded = errors.New("run superseded")

// Options tunes the pipeline
type Options struct {
	// Workers bounds how many runs execute pipeline stages at once
	Workers int
	// AmbientEnabled adds the always-on asset to every delivery
	AmbientEnabled bool
	// RetryInterval is how often a pending delivery triggers a reconnect attempt
	RetryInterval time.Duration
}

// Stats is a snapshot of the coordinator counters
type Stats struct {
	Received   uint64
	Rejected   uint64
	Superseded uint64
	Failed     uint64
	Published  uint64
	Buffered   uint64
}

// delivery is the asset set produced by one run
type delivery struct {
	gen     uint64
	trackID string
	assets  []domain.AlbumArtAsset
}

// Coordinator drives events through fetch, render, transform and encode, and
// delivers the newest result to the companion channel.
type Coordinator struct {
	logger   *zap.Logger
	source   domain.EventSource
	fetcher  domain.ArtworkFetcher
	renderer domain.Renderer
	ambient  domain.AmbientTransformer
	codec    domain.AssetCodec
	channel  domain.CompanionChannel
	opts     Options

	gen atomic.Uint64
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	// mu serializes PendingSlot writes and publishes
	mu      sync.Mutex
	pending *delivery
	// delivered is the generation of the last published delivery
	delivered uint64

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	received   atomic.Uint64
	rejected   atomic.Uint64
	superseded atomic.Uint64
	failed     atomic.Uint64
	published  atomic.Uint64
	buffered   atomic.Uint64
}

// NewCoordinator creates a coordinator. source may be nil when events are
// submitted directly through OnTrackChanged.
func NewCoordinator(
	logger *zap.Logger,
	source domain.EventSource,
	fetcher domain.ArtworkFetcher,
	renderer domain.Renderer,
	ambient domain.AmbientTransformer,
	codec domain.AssetCodec,
	channel domain.CompanionChannel,
	opts Options,
) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		logger:   logger,
		source:   source,
		fetcher:  fetcher,
		renderer: renderer,
		ambient:  ambient,
		codec:    codec,
		channel:  channel,
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.Workers)),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	channel.Subscribe(c.onChannelState)
	return c
}

// runToken carries a run's generation stamp and is its cancellation predicate
type runToken struct {
	c   *Coordinator
	gen uint64
}

func (t runToken) superseded() bool {
	return t.c.gen.Load() != t.gen
}

// OnTrackChanged admits an event into the pipeline. It never blocks on I/O.
// Malformed track ids are rejected without touching the generation.
func (c *Coordinator) OnTrackChanged(ev domain.TrackChangedEvent) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}

	c.received.Add(1)
	if !ev.HasImage() {
		if _, err := domain.ParseTrackID(ev.TrackID); err != nil {
			c.rejected.Add(1)
			c.logger.Warn("Rejecting track event", zap.String("track", ev.TrackID), zap.Error(err))
			return err
		}
	}

	tok := runToken{c: c, gen: c.gen.Add(1)}
	c.logger.Debug("Track changed",
		zap.String("track", ev.TrackID),
		zap.String("title", ev.Title),
		zap.String("artist", ev.Artist),
		zap.Uint64("generation", tok.gen))

	c.wg.Add(1)
	go c.run(tok, ev)
	return nil
}

func (c *Coordinator) run(tok runToken, ev domain.TrackChangedEvent) {
	defer c.wg.Done()

	if err := c.sem.Acquire(c.ctx, 1); err != nil {
		return
	}
	defer c.sem.Release(1)

	d, err := c.build(tok, ev)
	if errors.Is(err, errSuperseded) {
		c.superseded.Add(1)
		c.logger.Debug("Run superseded", zap.String("track", ev.TrackID), zap.Uint64("generation", tok.gen))
		return
	}
	if err != nil {
		c.failed.Add(1)
		c.logger.Warn("Pipeline run failed", zap.String("track", ev.TrackID), zap.Error(err))
		return
	}

	c.deliver(tok, d)
}

// build produces the assets for one event, checking supersession before every stage
func (c *Coordinator) build(tok runToken, ev domain.TrackChangedEvent) (*delivery, error) {
	if tok.superseded() {
		return nil, errSuperseded
	}

	img := ev.Image
	if img == nil {
		variant, err := c.fetcher.Resolve(c.ctx, ev.TrackID)
		if err != nil {
			return nil, fmt.Errorf("resolve artwork: %w", err)
		}
		if tok.superseded() {
			return nil, errSuperseded
		}

		img, err = c.fetcher.Fetch(c.ctx, variant)
		if err != nil {
			return nil, fmt.Errorf("fetch artwork: %w", err)
		}
	}
	if tok.superseded() {
		return nil, errSuperseded
	}

	rendered := c.renderer.Render(img)
	interactive, err := c.codec.Encode(rendered, ev.TrackID, domain.KindInteractive)
	if err != nil {
		return nil, err
	}
	d := &delivery{gen: tok.gen, trackID: ev.TrackID, assets: []domain.AlbumArtAsset{interactive}}

	if c.opts.AmbientEnabled {
		if tok.superseded() {
			return nil, errSuperseded
		}
		if asset, err := c.buildAmbient(rendered, ev.TrackID); err != nil {
			c.logger.Warn("Skipping ambient asset", zap.String("track", ev.TrackID), zap.Error(err))
		} else {
			d.assets = append(d.assets, asset)
		}
	}
	return d, nil
}

func (c *Coordinator) buildAmbient(img image.Image, trackID string) (domain.AlbumArtAsset, error) {
	ambient, err := c.ambient.ToAmbient(img)
	if err != nil {
		return domain.AlbumArtAsset{}, err
	}
	return c.codec.Encode(ambient, trackID, domain.KindAmbient)
}

// deliver publishes while connected, otherwise parks the delivery and asks for a connection
func (c *Coordinator) deliver(tok runToken, d *delivery) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		c.logger.Debug("Coordinator stopped, dropping delivery", zap.String("track", d.trackID))
		return
	default:
	}

	if tok.superseded() {
		c.superseded.Add(1)
		c.logger.Debug("Run superseded before delivery", zap.String("track", d.trackID))
		return
	}

	if c.channel.State() == domain.StateConnected {
		if err := c.publishLocked(d); err == nil {
			// Anything still parked is older than d
			c.pending = nil
			return
		}
	}

	c.pending = d
	c.buffered.Add(1)
	c.logger.Info("Companion unavailable, delivery pending", zap.String("track", d.trackID))
	c.channel.Connect()
}

// publishLocked sends every asset of d. c.mu must be held.
func (c *Coordinator) publishLocked(d *delivery) error {
	for _, asset := range d.assets {
		if err := c.channel.Publish(c.ctx, asset); err != nil {
			c.logger.Warn("Publish failed",
				zap.String("track", d.trackID),
				zap.String("kind", string(asset.Kind)),
				zap.Error(err))
			return err
		}
	}
	c.delivered = d.gen
	c.published.Add(1)
	c.logger.Info("Album art delivered",
		zap.String("track", d.trackID),
		zap.Uint64("generation", d.gen),
		zap.Int("assets", len(d.assets)))
	return nil
}

// onChannelState flushes the PendingSlot once per Connected transition
func (c *Coordinator) onChannelState(s domain.ChannelState) {
	if s != domain.StateConnected {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.pending
	if d == nil {
		return
	}
	c.pending = nil
	if d.gen <= c.delivered {
		c.logger.Debug("Discarding stale pending delivery", zap.String("track", d.trackID), zap.Uint64("generation", d.gen))
		return
	}
	if err := c.publishLocked(d); err != nil {
		c.pending = d
	}
}

// Start consumes the event source and runs the reconnect ticker
func (c *Coordinator) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var events <-chan domain.TrackChangedEvent
	if c.source != nil {
		events = c.source.Events()
	}

	c.wg.Add(1)
	go c.loop(events)

	c.logger.Info("Coordinator started",
		zap.Int("workers", c.opts.Workers),
		zap.Bool("ambient", c.opts.AmbientEnabled),
		zap.Duration("retryInterval", c.opts.RetryInterval))
	return nil
}

func (c *Coordinator) loop(events <-chan domain.TrackChangedEvent) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case ev, ok := <-events:
			if !ok {
				c.logger.Info("Event source closed")
				events = nil
				continue
			}
			_ = c.OnTrackChanged(ev)

		case <-ticker.C:
			c.retry()
		}
	}
}

// retry reconnects while a delivery waits and nothing else is trying
func (c *Coordinator) retry() {
	c.mu.Lock()
	waiting := c.pending != nil
	c.mu.Unlock()

	if waiting && c.channel.State() == domain.StateDisconnected {
		c.logger.Debug("Retrying companion connection")
		c.channel.Connect()
	}
}

// Stop waits for in-flight runs, bounded by ctx, then disconnects the channel
func (c *Coordinator) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.done) })

	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for pipeline runs: %w", ctx.Err())
	}
	c.cancel()

	c.mu.Lock()
	if c.pending != nil {
		c.logger.Warn("Dropping pending delivery on shutdown", zap.String("track", c.pending.trackID))
		c.pending = nil
	}
	c.mu.Unlock()

	c.logger.Info("Coordinator stopped")
	return multierr.Append(err, c.channel.Disconnect())
}

// HasPending reports whether a delivery waits for a connection
func (c *Coordinator) HasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Stats returns a snapshot of the counters
func (c *Coordinator) Stats() Stats {
	return Stats{
		Received:   c.received.Load(),
		Rejected:   c.rejected.Load(),
		Superseded: c.superseded.Load(),
		Failed:     c.failed.Load(),
		Published:  c.published.Load(),
		Buffered:   c.buffered.Load(),
	}
}
