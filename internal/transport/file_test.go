package transport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
)

func testItem(path, digest string, content string) domain.DataItem {
	return domain.DataItem{
		Path:  path,
		Field: "albumArt",
		Asset: domain.AlbumArtAsset{
			TrackID: "spotify:track:abc",
			Content: []byte(content),
			Digest:  digest,
			Kind:    domain.KindInteractive,
			Format:  "png",
		},
	}
}

func TestFileTransport_PutAndReplace(t *testing.T) {
	root := filepath.Join(t.TempDir(), "companion")
	tr := NewFileTransport(zap.NewNop(), root, "")

	link, err := tr.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer link.Close()

	ctx := context.Background()
	if err := link.Put(ctx, testItem("/albumart", "d1", "first")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := link.Delete(ctx, "/albumart"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "albumart", "albumArt.png")); !os.IsNotExist(err) {
		t.Fatalf("asset should be gone after delete, stat err: %v", err)
	}
	if err := link.Put(ctx, testItem("/albumart", "d2", "second")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "albumart", "albumArt.png"))
	if err != nil {
		t.Fatalf("read asset: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("expected second asset, got %q", data)
	}
	digest, err := os.ReadFile(filepath.Join(root, "albumart", "albumArt.sha256"))
	if err != nil {
		t.Fatalf("read digest: %v", err)
	}
	if strings.TrimSpace(string(digest)) != "d2" {
		t.Errorf("expected digest d2, got %q", digest)
	}
}

func TestFileTransport_DeleteKeepsNestedSlots(t *testing.T) {
	root := t.TempDir()
	link, err := NewFileTransport(zap.NewNop(), root, "").Dial(context.Background())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	ctx := context.Background()

	if err := link.Put(ctx, testItem("/albumart", "a", "interactive")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := link.Put(ctx, testItem("/albumart/ambient", "b", "ambient")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := link.Delete(ctx, "/albumart"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "albumart", "ambient", "albumArt.png")); err != nil {
		t.Errorf("ambient slot should survive deleting its parent slot: %v", err)
	}
}

func TestFileTransport_DeleteMissingSlot(t *testing.T) {
	link, err := NewFileTransport(zap.NewNop(), t.TempDir(), "").Dial(context.Background())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if err := link.Delete(context.Background(), "/never-written"); err != nil {
		t.Errorf("deleting a missing slot should succeed, got %v", err)
	}
}

func TestFileTransport_Errors(t *testing.T) {
	tests := []struct {
		name          string
		item          domain.DataItem
		expectedError string
	}{
		{name: "Root Path", item: testItem("/", "d", "x"), expectedError: "invalid slot path"},
		{name: "Field With Separator", item: domain.DataItem{Path: "/albumart", Field: "../x"}, expectedError: "invalid field name"},
		{name: "Empty Field", item: domain.DataItem{Path: "/albumart"}, expectedError: "invalid field name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, err := NewFileTransport(zap.NewNop(), t.TempDir(), "").Dial(context.Background())
			if err != nil {
				t.Fatalf("dial failed: %v", err)
			}
			err = link.Put(context.Background(), tt.item)
			if err == nil || !strings.Contains(err.Error(), tt.expectedError) {
				t.Errorf("expected error containing '%s', got %v", tt.expectedError, err)
			}
		})
	}
}

func TestFileTransport_PathEscapeStaysInRoot(t *testing.T) {
	root := t.TempDir()
	link, err := NewFileTransport(zap.NewNop(), root, "").Dial(context.Background())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if err := link.Put(context.Background(), testItem("/../../escape", "d", "x")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape", "albumArt.png")); err != nil {
		t.Errorf("escaping path should be confined to the root: %v", err)
	}
}

func TestFileTransport_ClosedLink(t *testing.T) {
	link, err := NewFileTransport(zap.NewNop(), t.TempDir(), "").Dial(context.Background())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	_ = link.Close()
	_ = link.Close() // idempotent

	select {
	case <-link.Closed():
	default:
		t.Fatal("Closed channel should be closed")
	}
	if err := link.Put(context.Background(), testItem("/albumart", "d", "x")); !errors.Is(err, domain.ErrLinkClosed) {
		t.Errorf("expected ErrLinkClosed, got %v", err)
	}
}

func TestFileTransport_Hook(t *testing.T) {
	root := t.TempDir()
	marker := filepath.Join(root, "hook-ran")
	link, err := NewFileTransport(zap.NewNop(), root, "cp %s "+marker).Dial(context.Background())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	if err := link.Put(context.Background(), testItem("/albumart", "d", "payload")); err != nil {
		t.Skipf("hook command unavailable: %v", err)
	}
	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("hook did not run: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("hook received wrong file, got %q", data)
	}
}

func TestFileTransport_BlankHook(t *testing.T) {
	tests := []struct {
		name string
		hook string
	}{
		{name: "Spaces", hook: "   "},
		{name: "Tabs And Newline", hook: "\t\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			tr := NewFileTransport(zap.NewNop(), root, tt.hook)
			link, err := tr.Dial(context.Background())
			if err != nil {
				t.Fatalf("dial failed: %v", err)
			}
			if err := link.Put(context.Background(), testItem("/albumart", "d", "payload")); err != nil {
				t.Fatalf("put failed: %v", err)
			}

			// Reaching the hook runner directly must not fail either
			fl := link.(*fileLink)
			if err := fl.runHook(context.Background(), filepath.Join(root, "x")); err != nil {
				t.Errorf("blank hook should be a no-op, got %v", err)
			}
		})
	}
}

func TestFileTransport_DialUnwritable(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileTransport(zap.NewNop(), filepath.Join(blocker, "sub"), "").Dial(context.Background())
	if err == nil {
		t.Fatal("expected dial to fail when root cannot be created")
	}
}
