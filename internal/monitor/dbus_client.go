package monitor

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	mprisPrefix     = "org.mpris.MediaPlayer2."
	mprisPath       = "/org/mpris/MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"
	propMetadata    = playerInterface + ".Metadata"
	propStatus      = playerInterface + ".PlaybackStatus"
	statusPlaying   = "Playing"

	signalPropertiesChanged = "org.freedesktop.DBus.Properties.PropertiesChanged"
	signalNameOwnerChanged  = "org.freedesktop.DBus.NameOwnerChanged"
)

var errInvalidStatus = errors.New("invalid playback status format")

// DBusClient is the slice of the session bus the MPRIS monitor needs.
//
//go:generate mockgen -destination=mocks/dbus_client_mock.go -package=mocks github.com/genricoloni/nowplaying/internal/monitor DBusClient
type DBusClient interface {
	Close() error

	// AddMatchSignal installs a match rule on the bus daemon
	AddMatchSignal(options ...dbus.MatchOption) error

	// Signal routes matched signals to ch
	Signal(ch chan<- *dbus.Signal)

	// ListNames returns every name currently on the bus
	ListNames() ([]string, error)

	// GetNameOwner maps a well-known player name to its unique connection name
	GetNameOwner(name string) (string, error)

	// GetProperty reads prop from the object at path owned by player
	// (e.g. "org.mpris.MediaPlayer2.spotify", mprisPath, propMetadata)
	GetProperty(player, path, prop string) (dbus.Variant, error)
}

// playerMetadata reads a player's Metadata map. ok is false when the player
// reports no track (idle players answer with an empty or untyped value).
func playerMetadata(c DBusClient, player string) (metadata map[string]dbus.Variant, ok bool, err error) {
	v, err := c.GetProperty(player, mprisPath, propMetadata)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get metadata: %w", err)
	}
	metadata, ok = v.Value().(map[string]dbus.Variant)
	return metadata, ok, nil
}

// playbackStatus reads a player's PlaybackStatus ("Playing", "Paused", "Stopped")
func playbackStatus(c DBusClient, player string) (string, error) {
	v, err := c.GetProperty(player, mprisPath, propStatus)
	if err != nil {
		return "", fmt.Errorf("failed to get playback status: %w", err)
	}
	status, ok := v.Value().(string)
	if !ok {
		return "", errInvalidStatus
	}
	return status, nil
}

// StdDBusClient talks to the user's session bus through godbus
type StdDBusClient struct {
	conn *dbus.Conn
}

// NewStdDBusClient connects to the session bus
func NewStdDBusClient() (*StdDBusClient, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}
	return &StdDBusClient{conn: conn}, nil
}

func (c *StdDBusClient) Close() error {
	return c.conn.Close()
}

func (c *StdDBusClient) AddMatchSignal(options ...dbus.MatchOption) error {
	return c.conn.AddMatchSignal(options...)
}

func (c *StdDBusClient) Signal(ch chan<- *dbus.Signal) {
	c.conn.Signal(ch)
}

func (c *StdDBusClient) ListNames() ([]string, error) {
	var names []string
	err := c.conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names)
	return names, err
}

func (c *StdDBusClient) GetNameOwner(name string) (string, error) {
	var owner string
	err := c.conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, name).Store(&owner)
	return owner, err
}

func (c *StdDBusClient) GetProperty(player, path, prop string) (dbus.Variant, error) {
	return c.conn.Object(player, dbus.ObjectPath(path)).GetProperty(prop)
}
