package platform

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestGuardKinds(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context) (int, error)
		want ErrorKind
	}{
		{"not supported", func(context.Context) (int, error) { return 0, fmt.Errorf("story: %w", ErrNotSupported) }, KindNotSupported},
		{"unavailable", func(context.Context) (int, error) { return 0, ErrUnavailable }, KindUnavailable},
		{"failed", func(context.Context) (int, error) { return 0, errors.New("boom") }, KindFailed},
		{"panic", func(context.Context) (int, error) { panic("bridge exploded") }, KindPanic},
		{"timeout", func(ctx context.Context) (int, error) { <-ctx.Done(); return 0, ctx.Err() }, KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Guard(context.Background(), 50*time.Millisecond, VK, "op", tt.fn)
			if res.OK() {
				t.Fatalf("expected failure")
			}
			if res.Err.Kind != tt.want {
				t.Fatalf("kind = %s, want %s", res.Err.Kind, tt.want)
			}
			if res.Or(7) != 7 {
				t.Fatalf("Or should return the default")
			}
		})
	}
}

func TestGuardIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	res := Guard(context.Background(), 20*time.Millisecond, Telegram, "slow", func(context.Context) (bool, error) {
		<-release
		return true, nil
	})
	if res.OK() || res.Err.Kind != KindTimeout {
		t.Fatalf("expected timeout, got %+v", res.Err)
	}
}

func TestGuardSuccess(t *testing.T) {
	res := Guard(context.Background(), 0, Browser, "ok", func(context.Context) (string, error) { return "v", nil })
	if !res.OK() || res.Value != "v" {
		t.Fatalf("res = %+v", res)
	}
}

func TestCapabilityErrorUnwrap(t *testing.T) {
	res := Guard(context.Background(), 0, VK, "purchase", func(context.Context) (int, error) { return 0, ErrNotSupported })
	if !errors.Is(res.Err, ErrNotSupported) {
		t.Fatalf("errors.Is failed on %v", res.Err)
	}
	if got := res.Err.Error(); got != "[vk] purchase: not_supported: not supported by host" {
		t.Fatalf("Error() = %q", got)
	}
}
