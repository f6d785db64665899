package utils

import (
	"path/filepath"
	"testing"
)

func TestStoreLockRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "k.sqlite")
	l, err := NewStoreLock(p)
	if err != nil {
		t.Fatalf("NewStoreLock: %v", err)
	}
	if err := l.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if l.path != p+lockFileSuffix {
		t.Fatalf("lock path = %q", l.path)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" 1, ,2 ,3")
	if len(got) != 3 || got[0] != "1" || got[2] != "3" {
		t.Fatalf("SplitList = %v", got)
	}
	if SplitList("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}
