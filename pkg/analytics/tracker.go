// Package analytics emits best-effort usage events: one POST per event to
// a remote collector, plus a rollup of counters kept in player storage.
// Nothing here blocks or fails the caller.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/krevetka/krevetka/pkg/whttp"
)

// Event names.
const (
	EventVisit          = "visit"
	EventReturnVisit    = "return_visit"
	EventTap            = "tap"
	EventShareFriend    = "share_friend"
	EventShareStory     = "share_story"
	EventPurchase       = "purchase"
	EventPurchaseFailed = "purchase_failed"
	EventLimitReached   = "limit_reached"
	EventAchievement    = "achievement"
	EventLevelUp        = "level_up"
	EventNotifications  = "notifications"
)

var knownEvents = map[string]bool{
	EventVisit: true, EventReturnVisit: true, EventTap: true,
	EventShareFriend: true, EventShareStory: true, EventPurchase: true,
	EventPurchaseFailed: true, EventLimitReached: true, EventAchievement: true,
	EventLevelUp: true, EventNotifications: true,
}

// KnownEvent reports whether name is one of the events the app sends.
func KnownEvent(name string) bool {
	return knownEvents[name]
}

const (
	DefaultEndpoint    = "/krevetka-api/track"
	DefaultSendTimeout = 5 * time.Second
	SessionHeader      = "X-Krevetka-Session"
)

// Payload is the body of one tracking POST.
type Payload struct {
	Event    string                 `json:"event"`
	Platform string                 `json:"platform"`
	UserID   *string                `json:"user_id"`
	Data     map[string]interface{} `json:"data"`
}

type TrackerConfig struct {
	Endpoint string // absolute URL; empty disables remote tracking
	Platform string
	Client   *retryablehttp.Client
	Timeout  time.Duration
	Log      platform.Logger
}

// Tracker sends each event on its own goroutine, once, without retries.
type Tracker struct {
	cfg       TrackerConfig
	sessionID string

	mu     sync.RWMutex
	userID string
	closed bool

	inflight sync.WaitGroup
}

func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.Client == nil {
		cfg.Client = whttp.NewClient(0)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSendTimeout
	}
	if cfg.Log == nil {
		cfg.Log = platform.NopLogger()
	}
	if cfg.Platform == "" {
		cfg.Platform = string(platform.Browser)
	}
	return &Tracker{cfg: cfg, sessionID: uuid.NewString()}
}

// SessionID identifies this process in every request.
func (t *Tracker) SessionID() string { return t.sessionID }

// SetUser attaches a host user id to later events.
func (t *Tracker) SetUser(id string) {
	t.mu.Lock()
	t.userID = id
	t.mu.Unlock()
}

// Track queues one POST and returns immediately.
func (t *Tracker) Track(event string, data map[string]interface{}) {
	if t.cfg.Endpoint == "" {
		return
	}
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return
	}
	p := Payload{Event: event, Platform: t.cfg.Platform, Data: copyData(data)}
	if t.userID != "" {
		id := t.userID
		p.UserID = &id
	}
	t.inflight.Add(1)
	t.mu.RUnlock()

	go func() {
		defer t.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.Timeout)
		defer cancel()
		if err := t.send(ctx, p); err != nil {
			t.cfg.Log.Debugf("analytics: %s: %v", event, err)
		}
	}()
}

func (t *Tracker) send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	res, err := whttp.Send(ctx, &whttp.Request{
		URL:    t.cfg.Endpoint,
		Method: http.MethodPost,
		Headers: []whttp.Header{
			{Name: "Content-Type", Value: "application/json"},
			{Name: SessionHeader, Value: t.sessionID},
		},
		Body: body,
	}, t.cfg.Client)
	if err != nil {
		return err
	}
	if res.StatusCode >= 400 {
		return fmt.Errorf("collector answered %d", res.StatusCode)
	}
	return nil
}

// Close stops accepting events and waits for in-flight sends until ctx
// is done.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func copyData(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
