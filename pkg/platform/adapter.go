package platform

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultCallTimeout      = 3 * time.Second
	DefaultHandshakeTimeout = 2 * time.Second
)

// AdapterConfig tunes the boundary around a Host.
type AdapterConfig struct {
	CallTimeout      time.Duration // per host call, defaults to 3s
	HandshakeTimeout time.Duration // Init, defaults to 2s
	AdminIDs         []string
	AdminRoles       []string // defaults to admin, editor
	Log              Logger   // optional
}

// InitResult reports whether the host handshake completed.
type InitResult struct {
	OK bool
}

// Adapter wraps one Host and guarantees that nothing it does panics or
// returns an error to the caller.
type Adapter struct {
	host    Host
	profile Profile
	cfg     AdapterConfig
	log     Logger

	mu     sync.RWMutex
	claims Claims

	haptics sync.WaitGroup
}

func NewAdapter(h Host, cfg AdapterConfig) *Adapter {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.AdminRoles == nil {
		cfg.AdminRoles = []string{"admin", "editor"}
	}
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	a := &Adapter{host: h, cfg: cfg, log: log}
	res := Guard(context.Background(), cfg.CallTimeout, Browser, "profile", func(context.Context) (Profile, error) {
		return h.Profile(), nil
	})
	a.report(res.Err)
	a.profile = res.Or(Browser)
	return a
}

// Profile is the host profile, read once when the adapter is built.
// A host that cannot report one is treated as Browser.
func (a *Adapter) Profile() Profile {
	return a.profile
}

// Init performs the host handshake and reads launch claims. Together they
// share one handshake timeout; on failure the app runs degraded.
func (a *Adapter) Init(ctx context.Context) InitResult {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.HandshakeTimeout)
	defer cancel()

	res := Guard(ctx, 0, a.Profile(), "init", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.host.Init(ctx)
	})
	a.report(res.Err)

	claims := Guard(ctx, 0, a.Profile(), "claims", a.host.Claims)
	a.report(claims.Err)
	if claims.OK() {
		a.mu.Lock()
		a.claims = claims.Value
		a.mu.Unlock()
	}
	return InitResult{OK: res.OK()}
}

// IsAdmin checks the launch claims against the allow-list.
func (a *Adapter) IsAdmin() bool {
	a.mu.RLock()
	c := a.claims
	a.mu.RUnlock()
	for _, r := range a.cfg.AdminRoles {
		if c.Role != "" && c.Role == r {
			return true
		}
	}
	for _, id := range a.cfg.AdminIDs {
		if c.UserID != "" && c.UserID == id {
			return true
		}
	}
	return false
}

// UserID returns the host user id, or "" when unknown.
func (a *Adapter) UserID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.claims.UserID
}

// StorageGet never fails: every requested key is present in the result,
// missing or unreadable ones as "".
func (a *Adapter) StorageGet(ctx context.Context, keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = ""
	}
	res := Guard(ctx, a.cfg.CallTimeout, a.Profile(), "storage_get", func(ctx context.Context) (map[string]string, error) {
		return a.host.StorageGet(ctx, keys)
	})
	a.report(res.Err)
	if !res.OK() {
		return out
	}
	for _, k := range keys {
		if v, ok := res.Value[k]; ok {
			out[k] = v
		}
	}
	return out
}

// StorageSet is best effort. It reports whether the write landed so that
// callers can log, but nothing is retried.
func (a *Adapter) StorageSet(ctx context.Context, key, value string) bool {
	res := Guard(ctx, a.cfg.CallTimeout, a.Profile(), "storage_set", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.host.StorageSet(ctx, key, value)
	})
	a.report(res.Err)
	return res.OK()
}

func (a *Adapter) HapticImpact(style string) {
	a.haptic(Haptic{Kind: HapticImpact, Value: style})
}

func (a *Adapter) HapticNotification(kind string) {
	a.haptic(Haptic{Kind: HapticNotification, Value: kind})
}

func (a *Adapter) HapticSelection() {
	a.haptic(Haptic{Kind: HapticSelection})
}

// haptic is fire-and-forget. Wait blocks until pending pulses finish.
func (a *Adapter) haptic(h Haptic) {
	a.haptics.Add(1)
	go func() {
		defer a.haptics.Done()
		res := Guard(context.Background(), a.cfg.CallTimeout, a.Profile(), "haptic_"+string(h.Kind), func(ctx context.Context) (struct{}, error) {
			return struct{}{}, a.host.Haptic(ctx, h)
		})
		a.report(res.Err)
	}()
}

// Wait blocks until all fire-and-forget calls have returned.
func (a *Adapter) Wait() {
	a.haptics.Wait()
}

func (a *Adapter) ShareLink(ctx context.Context, message string, sc ShareContext) bool {
	res := Guard(ctx, a.cfg.CallTimeout, a.Profile(), "share_link", func(ctx context.Context) (bool, error) {
		return a.host.ShareLink(ctx, message, sc)
	})
	a.report(res.Err)
	return res.Or(false)
}

// ShareStory reports false on hosts without stories so the caller can
// fall back to ShareLink.
func (a *Adapter) ShareStory(ctx context.Context, p StoryPayload, sc ShareContext) bool {
	res := Guard(ctx, a.cfg.CallTimeout, a.Profile(), "share_story", func(ctx context.Context) (bool, error) {
		return a.host.ShareStory(ctx, p, sc)
	})
	a.report(res.Err)
	return res.Or(false)
}

func (a *Adapter) RequestNotifications(ctx context.Context) bool {
	res := Guard(ctx, a.cfg.CallTimeout, a.Profile(), "request_notifications", a.host.RequestNotifications)
	a.report(res.Err)
	return res.Or(false)
}

// Purchase runs the host purchase handshake. Payment UIs can take a
// while, so the call is bounded by ctx only.
func (a *Adapter) Purchase(ctx context.Context, productID string) PurchaseResult {
	userID := a.UserID()
	res := Guard(ctx, 0, a.Profile(), "purchase", func(ctx context.Context) (PurchaseResult, error) {
		return a.host.Purchase(ctx, productID, userID)
	})
	if res.OK() {
		return res.Value
	}
	switch res.Err.Kind {
	case KindNotSupported:
		return PurchaseResult{Reason: ReasonNotSupported}
	case KindUnavailable:
		a.report(res.Err)
		return PurchaseResult{Reason: ReasonNoInvoiceAPI}
	}
	a.report(res.Err)
	if res.Value.Reason != "" {
		return PurchaseResult{Reason: res.Value.Reason}
	}
	return PurchaseResult{Reason: ReasonError}
}

// AppURL is the base share URL, or "" when the host cannot provide one.
func (a *Adapter) AppURL() string {
	res := Guard(context.Background(), a.cfg.CallTimeout, a.Profile(), "app_url", func(context.Context) (string, error) {
		return a.host.AppURL(), nil
	})
	a.report(res.Err)
	return res.Or("")
}

// Close waits for pending haptics, bounded by ctx, then closes the host.
func (a *Adapter) Close(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		a.haptics.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	res := Guard(ctx, a.cfg.CallTimeout, a.Profile(), "close", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.host.Close(ctx)
	})
	a.report(res.Err)
}

func (a *Adapter) report(err *CapabilityError) {
	if err == nil {
		return
	}
	switch err.Kind {
	case KindNotSupported:
		a.log.Debugf("%v", err)
	case KindPanic:
		a.log.Errorf("%v", err)
	default:
		a.log.Warnf("%v", err)
	}
}
