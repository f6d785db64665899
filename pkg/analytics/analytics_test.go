package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/krevetka/krevetka/pkg/clock"
	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/krevetka/krevetka/pkg/platform/dev"
	"github.com/krevetka/krevetka/pkg/progress"
)

type collector struct {
	mu       sync.Mutex
	payloads []Payload
	sessions []string
}

func (c *collector) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
			c.mu.Lock()
			c.payloads = append(c.payloads, p)
			c.sessions = append(c.sessions, r.Header.Get(SessionHeader))
			c.mu.Unlock()
		}
		w.WriteHeader(status)
	}
}

func (c *collector) snapshot() ([]Payload, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Payload(nil), c.payloads...), append([]string(nil), c.sessions...)
}

func TestTrackerPostsPayload(t *testing.T) {
	col := &collector{}
	srv := httptest.NewServer(col.handler(http.StatusNoContent))
	defer srv.Close()

	tr := NewTracker(TrackerConfig{Endpoint: srv.URL, Platform: "vk"})
	tr.Track(EventVisit, nil)
	tr.SetUser("42")
	tr.Track(EventTap, map[string]interface{}{"rarity": "rare"})
	if err := tr.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	payloads, sessions := col.snapshot()
	if len(payloads) != 2 {
		t.Fatalf("payloads = %+v", payloads)
	}
	byEvent := map[string]Payload{}
	for _, p := range payloads {
		byEvent[p.Event] = p
	}
	if v := byEvent[EventVisit]; v.UserID != nil || v.Platform != "vk" {
		t.Fatalf("visit = %+v", v)
	}
	if tap := byEvent[EventTap]; tap.UserID == nil || *tap.UserID != "42" || tap.Data["rarity"] != "rare" {
		t.Fatalf("tap = %+v", tap)
	}
	if sessions[0] != tr.SessionID() || sessions[0] == "" {
		t.Fatalf("session header = %q", sessions[0])
	}

	tr.Track(EventTap, nil)
	if payloads, _ := col.snapshot(); len(payloads) != 2 {
		t.Fatalf("tracked after close")
	}
}

func TestTrackerSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	tr := NewTracker(TrackerConfig{Endpoint: srv.URL})
	tr.Track(EventTap, nil)
	if err := tr.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	srv.Close()

	tr = NewTracker(TrackerConfig{Endpoint: srv.URL})
	tr.Track(EventTap, nil)
	tr.Close(context.Background())
}

func TestTrackerDisabledWithoutEndpoint(t *testing.T) {
	tr := NewTracker(TrackerConfig{})
	tr.Track(EventTap, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tr.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func newRollup(t *testing.T, c clock.Clock, seed map[string]string) (*dev.Host, *platform.Adapter, *progress.Persister, *Rollup) {
	t.Helper()
	h := dev.New().Seed(seed)
	a := platform.NewAdapter(h, platform.AdapterConfig{})
	p := progress.NewPersister(a, nil)
	t.Cleanup(func() { p.Close(context.Background()) })
	r := NewRollup(c, p, nil)
	r.Load(context.Background(), a)
	return h, a, p, r
}

func TestRollupCounts(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC))
	h, _, p, r := newRollup(t, c, map[string]string{
		KeyRollup: `{"events":{"tap":4},"sessions":2,"firstVisit":"2026-01-01T00:00:00.000Z"}`,
	})

	r.StartSession("telegram")
	r.Track(EventTap, map[string]interface{}{"rarity": "legendary", "mode": "angry", "deck": "work"})
	r.Track(EventTap, map[string]interface{}{"rarity": "mythic", "mode": "soft"})
	r.Track("bad.name", nil)

	s := r.Summary()
	if s.Events["tap"] != 6 || s.Sessions != 3 || s.Platform != "telegram" {
		t.Fatalf("Summary = %+v", s)
	}
	want := map[string]int64{"common": 0, "rare": 0, "legendary": 1}
	if !reflect.DeepEqual(s.Rarities, want) {
		t.Fatalf("Rarities = %v", s.Rarities)
	}
	if s.Modes["angry"] != 1 || s.Modes["soft"] != 1 || s.Decks["work"] != 1 {
		t.Fatalf("Modes = %v Decks = %v", s.Modes, s.Decks)
	}
	if _, ok := s.Events["bad.name"]; ok {
		t.Fatalf("unsafe event key counted")
	}
	if s.FirstVisit != "2026-01-01T00:00:00.000Z" || s.LastVisit != "2026-03-10T15:00:00.000Z" {
		t.Fatalf("visits = %q %q", s.FirstVisit, s.LastVisit)
	}

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if gjson.Get(h.Data()[KeyRollup], "events.tap").Int() != 6 {
		t.Fatalf("stored = %s", h.Data()[KeyRollup])
	}
}

func TestRollupRecoversFromGarbage(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC))
	_, _, _, r := newRollup(t, c, map[string]string{KeyRollup: `{"events":"nope","sessions":-5}`})
	s := r.Summary()
	if len(s.Events) != 0 || s.Sessions != 0 {
		t.Fatalf("Summary = %+v", s)
	}
}

func TestSinkFansOut(t *testing.T) {
	col := &collector{}
	srv := httptest.NewServer(col.handler(http.StatusOK))
	defer srv.Close()

	c := clock.NewFake(time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC))
	_, _, _, r := newRollup(t, c, nil)
	s := NewSink(NewTracker(TrackerConfig{Endpoint: srv.URL}), r)
	s.StartSession("browser")
	s.Track(EventShareFriend, nil)
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if payloads, _ := col.snapshot(); len(payloads) != 2 {
		t.Fatalf("remote payloads = %d", len(payloads))
	}
	if sum := r.Summary(); sum.Sessions != 1 || sum.Events[EventShareFriend] != 1 {
		t.Fatalf("Summary = %+v", sum)
	}

	var nilSink *Sink
	nilSink.Track(EventTap, nil)
	nilSink.StartSession("x")
}
