// Package session drives one play session: mode choice, taps, the
// two-phase reward reveal, progression updates, sharing and purchases.
// Every entry point is safe to call from any goroutine and never panics
// into the caller; an unexpected fault moves the session to ScreenFault.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/krevetka/krevetka/pkg/analytics"
	"github.com/krevetka/krevetka/pkg/clock"
	"github.com/krevetka/krevetka/pkg/content"
	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/krevetka/krevetka/pkg/progress"
	"github.com/krevetka/krevetka/pkg/selection"
)

type Screen string

const (
	ScreenChoice     Screen = "CHOICE"
	ScreenTap        Screen = "TAP"
	ScreenCard       Screen = "CARD"
	ScreenLimit      Screen = "LIMIT"
	ScreenCollection Screen = "COLLECTION"
	ScreenFault      Screen = "FAULT"
)

// Phase tracks the reveal of the current card.
type Phase int

const (
	PhaseIdle      Phase = iota
	PhaseAnimating       // tap accepted, card hidden
	PhaseCard            // card shown, diagnosis hidden
	PhaseDiagnosis       // diagnosis shown, rewards applied
)

var (
	ErrTapInFlight    = errors.New("a tap is already in progress")
	ErrLimitReached   = errors.New("daily limit reached")
	ErrInvalidState   = errors.New("action not available on this screen")
	ErrUnknownProduct = content.ErrUnknownProduct
	ErrNotAdmin       = errors.New("admin only")
	ErrNoCard         = errors.New("no card to share")
	ErrFault          = errors.New("session is in fault state")
	ErrClosed         = errors.New("session closed")
)

// StoryRenderer builds the share asset for a card. Rendering lives
// outside this package.
type StoryRenderer interface {
	Story(card content.Card, mode content.Mode, video string) platform.StoryPayload
}

type videoOnly struct{}

func (videoOnly) Story(_ content.Card, _ content.Mode, video string) platform.StoryPayload {
	return platform.StoryPayload{VideoURL: video}
}

// Deps are the collaborators of a Session. Only Adapter is required.
type Deps struct {
	Adapter  *platform.Adapter
	Catalog  *content.Catalog
	Engine   *selection.Engine
	Clock    clock.Clock
	Tracker  *analytics.Tracker
	Renderer StoryRenderer
	Log      platform.Logger
}

type Session struct {
	cfg      Config
	clock    clock.Clock
	adapter  *platform.Adapter
	catalog  *content.Catalog
	engine   *selection.Engine
	renderer StoryRenderer
	log      platform.Logger

	persist       *progress.Persister
	quota         *progress.Quota
	streak        *progress.Streak
	collection    *progress.Collection
	level         *progress.Level
	achievements  *progress.Achievements
	notifications *progress.Notifications
	rollup        *analytics.Rollup
	sink          *analytics.Sink

	// inflight holds the sequence number of the tap whose animation
	// phase is running, or 0.
	inflight atomic.Uint64
	tapSeq   atomic.Uint64

	mu               sync.Mutex
	screen           Screen
	mode             content.Mode
	deck             string
	card             *content.Card
	video            string
	phase            Phase
	isNew            bool
	shownSeq         uint64
	gen              uint64
	pending          map[uint64]clock.Timer
	consecutiveAngry int
	askNotify        bool
	notifyDismissed  bool
	fault            string
	observers        []func(View)
	closed           bool
}

func New(cfg Config, d Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	if d.Adapter == nil {
		return nil, errors.New("session: adapter is required")
	}
	if d.Catalog == nil {
		d.Catalog = content.Default()
	}
	if d.Engine == nil {
		d.Engine = selection.New()
	}
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Renderer == nil {
		d.Renderer = videoOnly{}
	}
	if d.Log == nil {
		d.Log = platform.NopLogger()
	}

	s := &Session{
		cfg:      cfg,
		clock:    d.Clock,
		adapter:  d.Adapter,
		catalog:  d.Catalog,
		engine:   d.Engine,
		renderer: d.Renderer,
		log:      d.Log,
		screen:   ScreenChoice,
		pending:  map[uint64]clock.Timer{},
	}
	s.persist = progress.NewPersister(d.Adapter, d.Log)
	s.quota = progress.NewQuota(d.Clock, s.persist, cfg.DailyLimit)
	s.streak = progress.NewStreak(d.Clock, s.persist)
	s.collection = progress.NewCollection(d.Clock, s.persist, d.Catalog, d.Log)
	s.level = progress.NewLevel(d.Clock, s.persist, cfg.LevelUpToast, s.emit, d.Log)
	s.achievements = progress.NewAchievements(d.Clock, s.persist, cfg.AchievementToast, s.emit, d.Log)
	s.notifications = progress.NewNotifications(d.Clock, s.persist, cfg.NotifyAfterTaps, cfg.WinBackAfter)
	s.rollup = analytics.NewRollup(d.Clock, s.persist, d.Log)
	s.sink = analytics.NewSink(d.Tracker, s.rollup)
	return s, nil
}

// Start performs the host handshake and loads every subsystem, all within
// the handshake timeout. A slow or broken host never stops the session
// from starting; whatever did not load in time starts from defaults.
func (s *Session) Start(ctx context.Context) (err error) {
	defer s.protect("start", &err)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	hs := s.adapter.Init(ctx)
	if !hs.OK {
		s.log.Warnf("session: host handshake failed, running degraded on %s", s.adapter.Profile())
	}

	var wg sync.WaitGroup
	loaders := []func(context.Context, progress.Store){
		s.quota.Load,
		func(ctx context.Context, st progress.Store) { s.streak.Load(ctx, st) },
		s.collection.Load,
		s.level.Load,
		s.achievements.Load,
		s.notifications.Load,
		s.rollup.Load,
	}
	for _, load := range loaders {
		wg.Add(1)
		go func(load func(context.Context, progress.Store)) {
			defer wg.Done()
			load(ctx, s.adapter)
		}(load)
	}
	wg.Wait()

	s.sink.SetUser(s.adapter.UserID())
	s.sink.StartSession(string(s.adapter.Profile()))
	if back, hours := s.notifications.WinBack(); back {
		s.sink.Track(analytics.EventReturnVisit, map[string]interface{}{"hours_away": hours})
	}
	if granted, up, leveled := s.level.DailyBonus(); granted {
		s.log.Debugf("session: daily bonus granted")
		if leveled {
			s.sink.Track(analytics.EventLevelUp, map[string]interface{}{"level": up.Level})
		}
	}
	s.emit()
	return nil
}

// Close cancels pending reveals, flushes storage and closes the host.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.gen++
	for seq, t := range s.pending {
		if t.Stop() {
			s.quota.Release()
		}
		delete(s.pending, seq)
	}
	s.observers = nil
	s.mu.Unlock()

	s.inflight.Store(0)
	s.level.Stop()
	s.achievements.Stop()

	var errs []error
	if err := s.persist.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush storage: %w", err))
	}
	if err := s.sink.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	s.adapter.Close(ctx)
	return errors.Join(errs...)
}

// OnChange registers fn to receive a fresh View after every change.
func (s *Session) OnChange(fn func(View)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Session) emit() {
	v := s.View()
	s.mu.Lock()
	obs := append([]func(View){}, s.observers...)
	s.mu.Unlock()
	for _, fn := range obs {
		s.notifyObserver(fn, v)
	}
}

func (s *Session) notifyObserver(fn func(View), v View) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("session: observer panic: %v", r)
			s.enterFault(fmt.Sprint(r))
		}
	}()
	fn(v)
}

// protect is deferred by every entry point. It turns a panic into the
// fault screen and, when errp is set, into ErrFault.
func (s *Session) protect(op string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	s.log.Errorf("session: %s: panic: %v", op, r)
	s.enterFault(fmt.Sprint(r))
	if errp != nil {
		*errp = fmt.Errorf("%s: %w", op, ErrFault)
	}
	s.emit()
}

func (s *Session) enterFault(msg string) {
	s.mu.Lock()
	s.screen = ScreenFault
	s.fault = msg
	s.mu.Unlock()
}

// Reload leaves the fault screen and starts over at CHOICE.
func (s *Session) Reload() {
	defer s.protect("reload", nil)
	s.mu.Lock()
	s.resetToChoice()
	s.fault = ""
	s.mu.Unlock()
	s.inflight.Store(0)
	s.emit()
}

// resetToChoice must run with s.mu held.
func (s *Session) resetToChoice() {
	s.gen++
	s.screen = ScreenChoice
	s.mode = ""
	s.card = nil
	s.video = ""
	s.phase = PhaseIdle
	s.isNew = false
	s.engine.Reset()
}

// usable must run with s.mu held.
func (s *Session) usable() error {
	if s.closed {
		return ErrClosed
	}
	if s.screen == ScreenFault {
		return ErrFault
	}
	return nil
}

// IsLimitReached reports whether the next tap would be refused.
func (s *Session) IsLimitReached() bool {
	return s.quota.IsLimitReached(s.adapter.IsAdmin())
}

// Collection returns the current collection stats.
func (s *Session) Collection() progress.CollectionStats {
	return s.collection.Stats()
}

// Achievements lists unlocked achievement ids.
func (s *Session) Achievements() []string {
	return s.achievements.Unlocked()
}

func (s *Session) Analytics() analytics.Summary {
	return s.rollup.Summary()
}

// Flush waits for queued storage writes.
func (s *Session) Flush(ctx context.Context) error {
	return s.persist.Flush(ctx)
}

func (s *Session) Catalog() *content.Catalog { return s.catalog }
