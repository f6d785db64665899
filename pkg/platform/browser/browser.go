// Package browser is the fallback host: local storage, clipboard
// sharing, and nothing else.
package browser

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/krevetka/krevetka/pkg/platform"
)

const (
	DefaultPrefix = "krevetka_"
	DefaultAppURL = "https://vk.com/app54437141"
)

// Clipboard receives copied share text.
type Clipboard interface {
	WriteText(text string) error
}

// WriterClipboard "copies" by printing to a writer, for terminals.
type WriterClipboard struct {
	W io.Writer
}

func (c WriterClipboard) WriteText(text string) error {
	_, err := fmt.Fprintf(c.W, "copied to clipboard: %s\n", text)
	return err
}

type Config struct {
	Store       platform.KV
	Clipboard   Clipboard
	LaunchQuery string // "admin=true" grants admin
	AppURL      string
	Prefix      string
}

type Host struct {
	cfg Config
}

func New(cfg Config) *Host {
	if cfg.AppURL == "" {
		cfg.AppURL = DefaultAppURL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Host{cfg: cfg}
}

func (h *Host) Profile() platform.Profile { return platform.Browser }

func (h *Host) Init(context.Context) error { return nil }

// Claims grants the admin role when the launch query carries admin=true.
func (h *Host) Claims(context.Context) (platform.Claims, error) {
	q, err := url.ParseQuery(h.cfg.LaunchQuery)
	if err != nil {
		return platform.Claims{}, nil
	}
	if q.Get("admin") == "true" {
		return platform.Claims{Role: "admin"}, nil
	}
	return platform.Claims{}, nil
}

func (h *Host) StorageGet(ctx context.Context, keys []string) (map[string]string, error) {
	if h.cfg.Store == nil {
		return nil, platform.ErrUnavailable
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = h.cfg.Prefix + k
	}
	vals, err := h.cfg.Store.Get(ctx, prefixed)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = vals[h.cfg.Prefix+k]
	}
	return out, nil
}

func (h *Host) StorageSet(ctx context.Context, key, value string) error {
	if h.cfg.Store == nil {
		return platform.ErrUnavailable
	}
	return h.cfg.Store.Set(ctx, h.cfg.Prefix+key, value)
}

func (h *Host) Haptic(context.Context, platform.Haptic) error {
	return platform.ErrNotSupported
}

// ShareLink copies the message and deep link to the clipboard.
func (h *Host) ShareLink(_ context.Context, message string, sc platform.ShareContext) (bool, error) {
	if h.cfg.Clipboard == nil {
		return false, platform.ErrUnavailable
	}
	text := strings.TrimSpace(message + " " + platform.BuildShareURL(h.cfg.AppURL, sc))
	if err := h.cfg.Clipboard.WriteText(text); err != nil {
		return false, err
	}
	return true, nil
}

func (h *Host) ShareStory(context.Context, platform.StoryPayload, platform.ShareContext) (bool, error) {
	return false, platform.ErrNotSupported
}

func (h *Host) RequestNotifications(context.Context) (bool, error) {
	return false, platform.ErrNotSupported
}

func (h *Host) Purchase(context.Context, string, string) (platform.PurchaseResult, error) {
	return platform.PurchaseResult{}, platform.ErrNotSupported
}

func (h *Host) AppURL() string { return h.cfg.AppURL }

func (h *Host) Close(context.Context) error { return nil }
