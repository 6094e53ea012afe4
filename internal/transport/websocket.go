package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Frame is the JSON message written to the companion
type Frame struct {
	Op      string `json:"op"`
	Path    string `json:"path"`
	Field   string `json:"field,omitempty"`
	TrackID string `json:"trackId,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Digest  string `json:"digest,omitempty"`
	Format  string `json:"format,omitempty"`
	// Data is the base64 encoded asset
	Data string `json:"data,omitempty"`
}

// WebSocketTransport reaches a companion that serves its data slots over a websocket
type WebSocketTransport struct {
	logger *zap.Logger
	url    string
	dialer *websocket.Dialer
}

// NewWebSocketTransport creates a transport dialing url
func NewWebSocketTransport(logger *zap.Logger, url string) *WebSocketTransport {
	return &WebSocketTransport{
		logger: logger,
		url:    url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Dial performs the websocket handshake; ctx bounds it
func (t *WebSocketTransport) Dial(ctx context.Context) (domain.Link, error) {
	conn, resp, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	l := &wsLink{
		logger: t.logger,
		conn:   conn,
		closed: make(chan struct{}),
	}
	go l.readLoop()

	t.logger.Info("Companion websocket connected", zap.String("url", t.url))
	return l, nil
}

type wsLink struct {
	logger *zap.Logger
	conn   *websocket.Conn
	mu     sync.Mutex // gorilla allows one concurrent writer
	once   sync.Once
	closed chan struct{}
}

// readLoop drains control frames and detects the peer going away
func (l *wsLink) readLoop() {
	defer l.Close()
	for {
		if _, _, err := l.conn.ReadMessage(); err != nil {
			l.logger.Debug("Companion websocket read ended", zap.Error(err))
			return
		}
	}
}

func (l *wsLink) write(ctx context.Context, f Frame) error {
	select {
	case <-l.closed:
		return domain.ErrLinkClosed
	default:
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := l.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (l *wsLink) Delete(ctx context.Context, path string) error {
	return l.write(ctx, Frame{Op: "delete", Path: path})
}

func (l *wsLink) Put(ctx context.Context, item domain.DataItem) error {
	return l.write(ctx, Frame{
		Op:      "put",
		Path:    item.Path,
		Field:   item.Field,
		TrackID: item.Asset.TrackID,
		Kind:    string(item.Asset.Kind),
		Digest:  item.Asset.Digest,
		Format:  item.Asset.Format,
		Data:    base64.StdEncoding.EncodeToString(item.Asset.Content),
	})
}

func (l *wsLink) Closed() <-chan struct{} {
	return l.closed
}

func (l *wsLink) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closed)
		l.mu.Lock()
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		l.mu.Unlock()
		err = l.conn.Close()
	})
	return err
}
