package browser

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/krevetka/krevetka/pkg/storage"
)

func TestStorageUsesPrefixedSqliteKeys(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "b.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	h := New(Config{Store: db})
	if err := h.StorageSet(ctx, "tapsToday", "2"); err != nil {
		t.Fatalf("StorageSet: %v", err)
	}
	raw, _ := db.Get(ctx, []string{"krevetka_tapsToday"})
	if raw["krevetka_tapsToday"] != "2" {
		t.Fatalf("raw store = %v", raw)
	}
	got, err := h.StorageGet(ctx, []string{"tapsToday", "lastTapDate"})
	if err != nil {
		t.Fatalf("StorageGet: %v", err)
	}
	if got["tapsToday"] != "2" || got["lastTapDate"] != "" {
		t.Fatalf("StorageGet = %v", got)
	}
}

func TestAdminFromQuery(t *testing.T) {
	c, _ := New(Config{LaunchQuery: "admin=true"}).Claims(context.Background())
	if c.Role != "admin" {
		t.Fatalf("Claims = %+v", c)
	}
	c, _ = New(Config{LaunchQuery: "admin=1"}).Claims(context.Background())
	if c.Role != "" {
		t.Fatalf("Claims = %+v", c)
	}
}

func TestShareLinkCopies(t *testing.T) {
	var buf bytes.Buffer
	h := New(Config{Clipboard: WriterClipboard{W: &buf}})
	ok, err := h.ShareLink(context.Background(), "My diagnosis!", platform.ShareContext{CardID: 4, Mode: "angry"})
	if !ok || err != nil {
		t.Fatalf("ShareLink = %v, %v", ok, err)
	}
	want := "copied to clipboard: My diagnosis! https://vk.com/app54437141#card=4&mode=angry\n"
	if buf.String() != want {
		t.Fatalf("clipboard = %q", buf.String())
	}

	if ok, err := New(Config{}).ShareLink(context.Background(), "x", platform.ShareContext{}); ok || !errors.Is(err, platform.ErrUnavailable) {
		t.Fatalf("ShareLink without clipboard = %v, %v", ok, err)
	}
}

func TestCapabilityGaps(t *testing.T) {
	h := New(Config{})
	ctx := context.Background()
	if _, err := h.ShareStory(ctx, platform.StoryPayload{}, platform.ShareContext{}); !errors.Is(err, platform.ErrNotSupported) {
		t.Fatalf("ShareStory err = %v", err)
	}
	if _, err := h.Purchase(ctx, "taps_5", ""); !errors.Is(err, platform.ErrNotSupported) {
		t.Fatalf("Purchase err = %v", err)
	}
	if _, err := h.StorageGet(ctx, []string{"a"}); !errors.Is(err, platform.ErrUnavailable) {
		t.Fatalf("StorageGet err = %v", err)
	}
}
