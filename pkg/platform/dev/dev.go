// Package dev is an in-memory host. Every capability can be made to
// fail, hang or panic, which makes it the double for tests and the
// backing host for `krevetka play --platform dev`.
package dev

import (
	"context"
	"fmt"
	"sync"

	"github.com/krevetka/krevetka/pkg/platform"
)

// Operation names accepted by Fail, Panic and Block.
const (
	OpInit          = "init"
	OpClaims        = "claims"
	OpStorageGet    = "storage_get"
	OpStorageSet    = "storage_set"
	OpHaptic        = "haptic"
	OpShareLink     = "share_link"
	OpShareStory    = "share_story"
	OpNotifications = "request_notifications"
	OpPurchase      = "purchase"
	OpClose         = "close"
)

type Host struct {
	mu sync.Mutex

	profile   platform.Profile
	appURL    string
	data      map[string]string
	claims    platform.Claims
	fail      map[string]error
	panics    map[string]bool
	block     map[string]bool
	haptics   []platform.Haptic
	shares    []string
	stories   int
	notify    bool
	storyOK   bool
	purchases map[string]platform.PurchaseResult
	writes    int
	closed    bool
}

func New() *Host {
	return &Host{
		profile:   platform.Dev,
		appURL:    "https://krevetka.local/",
		data:      map[string]string{},
		fail:      map[string]error{},
		panics:    map[string]bool{},
		block:     map[string]bool{},
		purchases: map[string]platform.PurchaseResult{},
	}
}

// Seed preloads storage.
func (h *Host) Seed(kv map[string]string) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	for k, v := range kv {
		h.data[k] = v
	}
	return h
}

func (h *Host) SetClaims(c platform.Claims) *Host {
	h.mu.Lock()
	h.claims = c
	h.mu.Unlock()
	return h
}

// Fail makes op return err. A nil err clears the failure.
func (h *Host) Fail(op string, err error) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.fail, op)
	} else {
		h.fail[op] = err
	}
	return h
}

func (h *Host) Panic(op string) *Host {
	h.mu.Lock()
	h.panics[op] = true
	h.mu.Unlock()
	return h
}

// Block makes op hang until its context is done.
func (h *Host) Block(op string) *Host {
	h.mu.Lock()
	h.block[op] = true
	h.mu.Unlock()
	return h
}

func (h *Host) AllowNotifications(v bool) *Host {
	h.mu.Lock()
	h.notify = v
	h.mu.Unlock()
	return h
}

func (h *Host) SupportStories(v bool) *Host {
	h.mu.Lock()
	h.storyOK = v
	h.mu.Unlock()
	return h
}

// SetPurchase enables payments and fixes the verdict for productID.
func (h *Host) SetPurchase(productID string, r platform.PurchaseResult) *Host {
	h.mu.Lock()
	h.purchases[productID] = r
	h.mu.Unlock()
	return h
}

// Data returns a copy of storage.
func (h *Host) Data() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string, len(h.data))
	for k, v := range h.data {
		out[k] = v
	}
	return out
}

func (h *Host) Haptics() []platform.Haptic {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]platform.Haptic(nil), h.haptics...)
}

// Shares returns every link shared so far.
func (h *Host) Shares() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.shares...)
}

func (h *Host) Stories() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stories
}

// Writes counts successful StorageSet calls.
func (h *Host) Writes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writes
}

func (h *Host) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Host) check(ctx context.Context, op string) error {
	h.mu.Lock()
	pan, blk, err := h.panics[op], h.block[op], h.fail[op]
	h.mu.Unlock()
	if pan {
		panic(fmt.Sprintf("dev host: %s", op))
	}
	if blk {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (h *Host) Profile() platform.Profile { return h.profile }

func (h *Host) Init(ctx context.Context) error {
	return h.check(ctx, OpInit)
}

func (h *Host) Claims(ctx context.Context) (platform.Claims, error) {
	if err := h.check(ctx, OpClaims); err != nil {
		return platform.Claims{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.claims, nil
}

func (h *Host) StorageGet(ctx context.Context, keys []string) (map[string]string, error) {
	if err := h.check(ctx, OpStorageGet); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := h.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (h *Host) StorageSet(ctx context.Context, key, value string) error {
	if err := h.check(ctx, OpStorageSet); err != nil {
		return err
	}
	h.mu.Lock()
	h.data[key] = value
	h.writes++
	h.mu.Unlock()
	return nil
}

func (h *Host) Haptic(ctx context.Context, hp platform.Haptic) error {
	if err := h.check(ctx, OpHaptic); err != nil {
		return err
	}
	h.mu.Lock()
	h.haptics = append(h.haptics, hp)
	h.mu.Unlock()
	return nil
}

func (h *Host) ShareLink(ctx context.Context, message string, sc platform.ShareContext) (bool, error) {
	if err := h.check(ctx, OpShareLink); err != nil {
		return false, err
	}
	h.mu.Lock()
	h.shares = append(h.shares, platform.BuildShareURL(h.appURL, sc))
	h.mu.Unlock()
	return true, nil
}

func (h *Host) ShareStory(ctx context.Context, p platform.StoryPayload, sc platform.ShareContext) (bool, error) {
	if err := h.check(ctx, OpShareStory); err != nil {
		return false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.storyOK {
		return false, platform.ErrNotSupported
	}
	h.stories++
	return true, nil
}

func (h *Host) RequestNotifications(ctx context.Context) (bool, error) {
	if err := h.check(ctx, OpNotifications); err != nil {
		return false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.notify, nil
}

func (h *Host) Purchase(ctx context.Context, productID, userID string) (platform.PurchaseResult, error) {
	if err := h.check(ctx, OpPurchase); err != nil {
		return platform.PurchaseResult{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.purchases) == 0 {
		return platform.PurchaseResult{}, platform.ErrNotSupported
	}
	r, ok := h.purchases[productID]
	if !ok {
		return platform.PurchaseResult{Reason: platform.ReasonInvoiceFailed}, nil
	}
	return r, nil
}

func (h *Host) AppURL() string { return h.appURL }

func (h *Host) Close(ctx context.Context) error {
	if err := h.check(ctx, OpClose); err != nil {
		return err
	}
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}
