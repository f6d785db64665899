package analytics

import (
	"context"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/krevetka/krevetka/pkg/clock"
	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/krevetka/krevetka/pkg/progress"
	"github.com/krevetka/krevetka/pkg/validate"
)

const KeyRollup = "krevetka_analytics"

const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Summary is the decoded rollup.
type Summary struct {
	Events           map[string]int64
	Sessions         int64
	FirstVisit       string
	LastVisit        string
	LastSessionStart string
	Platform         string
	Rarities         map[string]int64
	Modes            map[string]int64
	Decks            map[string]int64
}

// Rollup keeps local counters in one JSON document.
type Rollup struct {
	clock   clock.Clock
	persist *progress.Persister
	log     platform.Logger

	mu  sync.Mutex
	doc string
}

func NewRollup(c clock.Clock, p *progress.Persister, log platform.Logger) *Rollup {
	if log == nil {
		log = platform.NopLogger()
	}
	return &Rollup{clock: c, persist: p, log: log, doc: validate.Analytics("")}
}

func (r *Rollup) Load(ctx context.Context, s progress.Store) {
	vals := s.StorageGet(ctx, []string{KeyRollup})
	doc := validate.Analytics(vals[KeyRollup])
	r.mu.Lock()
	r.doc = doc
	r.mu.Unlock()
}

func (r *Rollup) now() string {
	return r.clock.Now().UTC().Format(isoLayout)
}

// StartSession counts a new session on profile.
func (r *Rollup) StartSession(profile string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := gjson.Get(r.doc, "sessions").Int() + 1
	if n > validate.MaxSessions {
		n = validate.MaxSessions
	}
	r.set("sessions", n)
	r.set("lastSessionStart", r.now())
	r.set("platform", profile)
	r.save()
}

// Track counts event and the rarity, mode and deck found in data.
func (r *Rollup) Track(event string, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if validate.CounterKey(event) {
		r.incr("events." + event)
	}
	if v, ok := data["rarity"].(string); ok && validate.CounterKey(v) && gjson.Get(r.doc, "rarities."+v).Exists() {
		r.incr("rarities." + v)
	}
	if v, ok := data["mode"].(string); ok && validate.CounterKey(v) && gjson.Get(r.doc, "modes."+v).Exists() {
		r.incr("modes." + v)
	}
	if v, ok := data["deck"].(string); ok && validate.CounterKey(v) {
		r.incr("decks." + v)
	}
	now := r.now()
	if gjson.Get(r.doc, "firstVisit").String() == "" {
		r.set("firstVisit", now)
	}
	r.set("lastVisit", now)
	r.save()
}

func (r *Rollup) incr(path string) {
	r.set(path, gjson.Get(r.doc, path).Int()+1)
}

func (r *Rollup) set(path string, v interface{}) {
	doc, err := sjson.Set(r.doc, path, v)
	if err != nil {
		r.log.Warnf("analytics: set %s: %v", path, err)
		return
	}
	r.doc = doc
}

func (r *Rollup) save() {
	r.persist.Save(KeyRollup, r.doc)
}

// JSON returns the raw document.
func (r *Rollup) JSON() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc
}

func (r *Rollup) Summary() Summary {
	return ParseSummary(r.JSON())
}

// ParseSummary decodes a stored rollup, validating it first.
func ParseSummary(raw string) Summary {
	doc := gjson.Parse(validate.Analytics(raw))
	counters := func(path string) map[string]int64 {
		out := map[string]int64{}
		doc.Get(path).ForEach(func(k, v gjson.Result) bool {
			out[k.Str] = v.Int()
			return true
		})
		return out
	}
	return Summary{
		Events:           counters("events"),
		Sessions:         doc.Get("sessions").Int(),
		FirstVisit:       doc.Get("firstVisit").String(),
		LastVisit:        doc.Get("lastVisit").String(),
		LastSessionStart: doc.Get("lastSessionStart").String(),
		Platform:         doc.Get("platform").String(),
		Rarities:         counters("rarities"),
		Modes:            counters("modes"),
		Decks:            counters("decks"),
	}
}

// Sink fans events out to a tracker and a rollup. Either may be nil.
type Sink struct {
	tracker *Tracker
	rollup  *Rollup
}

func NewSink(t *Tracker, r *Rollup) *Sink {
	return &Sink{tracker: t, rollup: r}
}

func (s *Sink) Track(event string, data map[string]interface{}) {
	if s == nil {
		return
	}
	if s.tracker != nil {
		s.tracker.Track(event, data)
	}
	if s.rollup != nil {
		s.rollup.Track(event, data)
	}
}

// StartSession reports a visit remotely and counts a session locally.
func (s *Sink) StartSession(profile string) {
	if s == nil {
		return
	}
	if s.tracker != nil {
		s.tracker.Track(EventVisit, nil)
	}
	if s.rollup != nil {
		s.rollup.StartSession(profile)
	}
}

func (s *Sink) SetUser(id string) {
	if s != nil && s.tracker != nil {
		s.tracker.SetUser(id)
	}
}

func (s *Sink) Rollup() *Rollup {
	if s == nil {
		return nil
	}
	return s.rollup
}

// Close waits for in-flight remote sends.
func (s *Sink) Close(ctx context.Context) error {
	if s == nil || s.tracker == nil {
		return nil
	}
	if err := s.tracker.Close(ctx); err != nil {
		return fmt.Errorf("analytics: %w", err)
	}
	return nil
}
