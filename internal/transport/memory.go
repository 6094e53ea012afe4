package transport

import (
	"context"
	"sync"

	"github.com/genricoloni/nowplaying/internal/domain"
)

// Op is one operation recorded by the memory transport
type Op struct {
	Kind string // "delete" or "put"
	Path string
	Item domain.DataItem
}

// Memory is an in-process transport. The slots it holds are what a companion would see.
type Memory struct {
	mu    sync.Mutex
	slots map[string]domain.DataItem
	ops   []Op
	dials int
	link  *memoryLink

	// DialErr, when set, makes Dial fail
	DialErr error
	// PutErr, when set, makes Put fail
	PutErr error
	// DialHook runs before each dial completes. Tests use it to delay handshakes.
	DialHook func(ctx context.Context) error
}

// NewMemory creates an empty memory transport
func NewMemory() *Memory {
	return &Memory{slots: make(map[string]domain.DataItem)}
}

// Dial opens a link to the in-process slots
func (m *Memory) Dial(ctx context.Context) (domain.Link, error) {
	m.mu.Lock()
	hook, dialErr := m.DialHook, m.DialErr
	m.dials++
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}
	if dialErr != nil {
		return nil, dialErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := &memoryLink{m: m, closed: make(chan struct{})}
	m.mu.Lock()
	m.link = l
	m.mu.Unlock()
	return l, nil
}

// Slot returns the item stored at path
func (m *Memory) Slot(path string) (domain.DataItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.slots[path]
	return item, ok
}

// Ops returns a copy of the recorded operations
func (m *Memory) Ops() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Op, len(m.ops))
	copy(out, m.ops)
	return out
}

// Dials returns how many dial attempts were made
func (m *Memory) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}

// Drop simulates the companion going away
func (m *Memory) Drop() {
	m.mu.Lock()
	l := m.link
	m.mu.Unlock()
	if l != nil {
		_ = l.Close()
	}
}

// SetDialErr changes the dial failure under lock
func (m *Memory) SetDialErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DialErr = err
}

// SetDialHook changes the dial hook under lock
func (m *Memory) SetDialHook(hook func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DialHook = hook
}

// SetPutErr changes the put failure under lock
func (m *Memory) SetPutErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutErr = err
}

type memoryLink struct {
	m      *Memory
	once   sync.Once
	closed chan struct{}
}

func (l *memoryLink) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

func (l *memoryLink) Delete(ctx context.Context, path string) error {
	if l.isClosed() {
		return domain.ErrLinkClosed
	}
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	delete(l.m.slots, path)
	l.m.ops = append(l.m.ops, Op{Kind: "delete", Path: path})
	return nil
}

func (l *memoryLink) Put(ctx context.Context, item domain.DataItem) error {
	if l.isClosed() {
		return domain.ErrLinkClosed
	}
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if l.m.PutErr != nil {
		return l.m.PutErr
	}
	l.m.slots[item.Path] = item
	l.m.ops = append(l.m.ops, Op{Kind: "put", Path: item.Path, Item: item})
	return nil
}

func (l *memoryLink) Closed() <-chan struct{} {
	return l.closed
}

func (l *memoryLink) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}
