package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

// MprisMonitor turns MPRIS playback changes into canonical track events
type MprisMonitor struct {
	logger  *zap.Logger
	events  chan domain.TrackChangedEvent
	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	conn    DBusClient
	wg      sync.WaitGroup

	// players maps unique bus names (:1.45) to well-known names
	players map[string]string
	// current is the last track emitted per player; cleared when playback stops
	current map[string]string

	lastDropWarning time.Time
	now             func() time.Time
}

// NewMprisMonitor creates a monitor; the session bus is connected on Start
func NewMprisMonitor(logger *zap.Logger) *MprisMonitor {
	return &MprisMonitor{
		logger:  logger,
		events:  make(chan domain.TrackChangedEvent, 16),
		players: make(map[string]string),
		current: make(map[string]string),
		now:     time.Now,
	}
}

// Start connects to the session bus and blocks until ctx is cancelled or Stop is called
func (m *MprisMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	conn, err := NewStdDBusClient()
	if err != nil {
		m.mu.Lock()
		m.running = false
		m.cancel = nil
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("session bus connection failed: %w", err)
	}

	// Registering with wg under the lock orders this against Stop
	m.mu.Lock()
	if runCtx.Err() != nil {
		m.mu.Unlock()
		_ = conn.Close()
		return runCtx.Err()
	}
	m.conn = conn
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	if err := m.subscribe(); err != nil {
		return err
	}

	if err := m.scanPlayers(); err != nil {
		m.logger.Warn("Initial player scan failed", zap.Error(err))
	}

	m.wg.Add(1)
	go m.listen(runCtx)

	m.logger.Info("MPRIS monitor started")
	<-runCtx.Done()
	return runCtx.Err()
}

// subscribe installs the match rules for player property changes and player lifecycle
func (m *MprisMonitor) subscribe() error {
	if err := m.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(mprisPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return fmt.Errorf("failed to add match signal: %w", err)
	}

	if err := m.conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		// Players started later will not be tracked by name, but their signals still arrive
		m.logger.Warn("Failed to watch player lifecycle", zap.Error(err))
	}
	return nil
}

// Stop cancels Start, waits for the producers and closes the events channel
func (m *MprisMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	close(m.events)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			return fmt.Errorf("failed to close session bus: %w", err)
		}
	}
	m.logger.Info("MPRIS monitor stopped")
	return nil
}

func (m *MprisMonitor) Events() <-chan domain.TrackChangedEvent {
	return m.events
}

// scanPlayers maps the players already on the bus and emits their current track
func (m *MprisMonitor) scanPlayers() error {
	names, err := m.conn.ListNames()
	if err != nil {
		return fmt.Errorf("failed to list bus names: %w", err)
	}

	count := 0
	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		count++
		if unique, err := m.conn.GetNameOwner(name); err == nil {
			m.mu.Lock()
			m.players[unique] = name
			m.mu.Unlock()
		}
		if err := m.pollPlayer(name); err != nil {
			m.logger.Warn("Failed to read player state", zap.String("player", name), zap.Error(err))
		}
	}

	m.logger.Info("Player scan complete", zap.Int("count", count))
	return nil
}

// pollPlayer reads Metadata and PlaybackStatus from a player and emits the result
func (m *MprisMonitor) pollPlayer(player string) error {
	metadata, ok, err := playerMetadata(m.conn, player)
	if err != nil {
		return err
	}
	if !ok {
		m.logger.Debug("Player has no metadata", zap.String("player", player))
		return nil
	}

	status, err := playbackStatus(m.conn, player)
	if err != nil {
		return err
	}

	m.update(player, metadata, status)
	return nil
}

func (m *MprisMonitor) listen(ctx context.Context) {
	defer m.wg.Done()

	signals := make(chan *dbus.Signal, 16)
	m.conn.Signal(signals)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			if sig == nil {
				continue
			}
			if sig.Name == signalNameOwnerChanged {
				m.handleNameOwnerChanged(sig)
			} else {
				m.handleSignal(sig)
			}
		}
	}
}

// handleNameOwnerChanged keeps the unique-to-well-known player map current
func (m *MprisMonitor) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}
	name, ok := sig.Body[0].(string)
	if !ok || !strings.HasPrefix(name, mprisPrefix) {
		return
	}
	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)

	m.mu.Lock()
	if oldOwner != "" {
		delete(m.players, oldOwner)
		delete(m.current, name)
	}
	if newOwner != "" {
		m.players[newOwner] = name
	}
	m.mu.Unlock()

	switch {
	case oldOwner == "" && newOwner != "":
		m.logger.Info("Player appeared", zap.String("player", name))
		if err := m.pollPlayer(name); err != nil {
			m.logger.Warn("Failed to read new player state", zap.String("player", name), zap.Error(err))
		}
	case newOwner == "":
		m.logger.Info("Player vanished", zap.String("player", name))
	}
}

// handleSignal reacts to PropertiesChanged on the player interface
func (m *MprisMonitor) handleSignal(sig *dbus.Signal) {
	if sig.Name != signalPropertiesChanged || len(sig.Body) < 2 {
		return
	}
	if iface, ok := sig.Body[0].(string); !ok || iface != playerInterface {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	metaVariant, hasMeta := changed["Metadata"]
	statusVariant, hasStatus := changed["PlaybackStatus"]
	if !hasMeta && !hasStatus {
		return
	}

	var metadata map[string]dbus.Variant
	if hasMeta {
		if metadata, ok = metaVariant.Value().(map[string]dbus.Variant); !ok {
			m.logger.Warn("Invalid metadata format in signal")
			return
		}
	} else if md, _, err := playerMetadata(m.conn, sig.Sender); err == nil {
		metadata = md
	}

	var status string
	if hasStatus {
		if status, ok = statusVariant.Value().(string); !ok {
			m.logger.Warn("Invalid playback status format in signal")
			return
		}
	} else if s, err := playbackStatus(m.conn, sig.Sender); err == nil || errors.Is(err, errInvalidStatus) {
		status = s
	} else {
		// A metadata change without a readable status means a new track started
		status = statusPlaying
	}

	m.update(m.playerName(sig.Sender), metadata, status)
}

// update emits an event when player starts playing a track it was not already playing
func (m *MprisMonitor) update(player string, metadata map[string]dbus.Variant, status string) {
	if status != statusPlaying {
		m.mu.Lock()
		delete(m.current, player)
		m.mu.Unlock()
		m.logger.Debug("Playback not active", zap.String("player", player), zap.String("status", status))
		return
	}

	ev, key, ok := m.buildEvent(metadata)
	if !ok {
		return
	}

	m.mu.Lock()
	if m.current[player] == key {
		m.mu.Unlock()
		return
	}
	m.current[player] = key
	m.mu.Unlock()

	select {
	case m.events <- ev:
		m.logger.Info("Track change detected",
			zap.String("player", player),
			zap.String("track", ev.TrackID),
			zap.String("title", ev.Title),
			zap.String("artist", ev.Artist),
			zap.Bool("localArt", ev.HasImage()))
	default:
		m.warnDropped()
	}
}

// buildEvent converts MPRIS metadata into a canonical event. The returned key
// identifies the track for de-duplication.
func (m *MprisMonitor) buildEvent(metadata map[string]dbus.Variant) (domain.TrackChangedEvent, string, bool) {
	ev := domain.TrackChangedEvent{
		Title:      stringField(metadata, "xesam:title"),
		Album:      stringField(metadata, "xesam:album"),
		Artist:     firstArtist(metadata),
		ReceivedAt: m.now(),
	}

	if id, ok := normalizeTrackID(metadata); ok {
		ev.TrackID = id
		return ev, id, true
	}

	artURL := stringField(metadata, "mpris:artUrl")
	if path, ok := localArtPath(artURL); ok {
		img, err := loadLocalArt(path)
		if err != nil {
			m.logger.Warn("Failed to load local artwork", zap.String("path", path), zap.Error(err))
			return ev, "", false
		}
		ev.Image = img
		return ev, artURL, true
	}

	m.logger.Debug("Track has no usable identity or artwork",
		zap.String("title", ev.Title),
		zap.String("artist", ev.Artist))
	return ev, "", false
}

func (m *MprisMonitor) playerName(unique string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name, ok := m.players[unique]; ok {
		return name
	}
	return unique
}

// warnDropped logs at most once every 5 seconds
func (m *MprisMonitor) warnDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if now.Sub(m.lastDropWarning) >= 5*time.Second {
		m.logger.Warn("Events channel full, dropping track change")
		m.lastDropWarning = now
	}
}
