package transport

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
)

// FileTransport exposes companion data slots as directories under a root.
// A put of field F at path /p writes <root>/p/F.<format> and <root>/p/F.sha256.
// A companion sharing the directory (or a sync tool) picks the files up.
type FileTransport struct {
	logger *zap.Logger
	root   string
	// hook is an optional command run after each put; %s is replaced by the written file
	hook string
}

// NewFileTransport creates a file transport rooted at dir
func NewFileTransport(logger *zap.Logger, dir, hookCommand string) *FileTransport {
	return &FileTransport{
		logger: logger,
		root:   dir,
		hook:   strings.TrimSpace(hookCommand),
	}
}

// Dial makes sure the root exists and is writable
func (t *FileTransport) Dial(ctx context.Context) (domain.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(t.root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create companion directory: %w", err)
	}

	probe, err := os.CreateTemp(t.root, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("companion directory not writable: %w", err)
	}
	probe.Close()
	_ = os.Remove(probe.Name())

	t.logger.Debug("File transport ready", zap.String("root", t.root))
	return &fileLink{t: t, closed: make(chan struct{})}, nil
}

type fileLink struct {
	t      *FileTransport
	once   sync.Once
	closed chan struct{}
}

// slotDir maps a logical slot path into the root, refusing escapes
func (l *fileLink) slotDir(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if clean == "/" {
		return "", fmt.Errorf("invalid slot path %q", path)
	}
	return filepath.Join(l.t.root, clean), nil
}

func (l *fileLink) Delete(ctx context.Context, path string) error {
	select {
	case <-l.closed:
		return domain.ErrLinkClosed
	default:
	}

	dir, err := l.slotDir(path)
	if err != nil {
		return err
	}

	// Only the slot's own files go; nested slots (e.g. /albumart/ambient) survive
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read slot %s: %w", path, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete slot %s: %w", path, err)
		}
	}

	l.t.logger.Debug("Slot deleted", zap.String("path", path))
	return nil
}

func (l *fileLink) Put(ctx context.Context, item domain.DataItem) error {
	select {
	case <-l.closed:
		return domain.ErrLinkClosed
	default:
	}

	dir, err := l.slotDir(item.Path)
	if err != nil {
		return err
	}
	if strings.ContainsAny(item.Field, `/\`) || item.Field == "" {
		return fmt.Errorf("invalid field name %q", item.Field)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create slot directory: %w", err)
	}

	target := filepath.Join(dir, item.Field+"."+item.Asset.Format)
	if err := writeAtomic(target, item.Asset.Content); err != nil {
		return fmt.Errorf("failed to write asset: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, item.Field+".sha256"), []byte(item.Asset.Digest+"\n")); err != nil {
		return fmt.Errorf("failed to write digest: %w", err)
	}

	l.t.logger.Info("Asset written to slot",
		zap.String("path", target),
		zap.Int("size", len(item.Asset.Content)),
		zap.String("kind", string(item.Asset.Kind)))

	if l.t.hook != "" {
		if err := l.runHook(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

// runHook executes the refresh command for the written file
func (l *fileLink) runHook(ctx context.Context, path string) error {
	fields := strings.Fields(l.t.hook)
	if len(fields) == 0 {
		return nil
	}
	args := make([]string, len(fields)-1)
	for i, arg := range fields[1:] {
		args[i] = strings.ReplaceAll(arg, "%s", path)
	}

	cmd := exec.CommandContext(ctx, fields[0], args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("hook %s failed: %w (output: %s)", fields[0], err, string(output))
	}
	return nil
}

func (l *fileLink) Closed() <-chan struct{} {
	return l.closed
}

func (l *fileLink) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

// writeAtomic writes via a temp file and rename so readers never see partial data
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
