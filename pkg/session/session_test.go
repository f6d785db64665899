package session_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/krevetka/krevetka/pkg/clock"
	"github.com/krevetka/krevetka/pkg/content"
	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/krevetka/krevetka/pkg/platform/dev"
	"github.com/krevetka/krevetka/pkg/progress"
	"github.com/krevetka/krevetka/pkg/selection"
	"github.com/krevetka/krevetka/pkg/session"
)

var day0 = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

const fullReveal = 1500 * time.Millisecond

type fixture struct {
	s     *session.Session
	host  *dev.Host
	clock *clock.Fake
}

func start(t *testing.T, h *dev.Host, engine *selection.Engine) *fixture {
	t.Helper()
	c := clock.NewFake(day0)
	a := platform.NewAdapter(h, platform.AdapterConfig{})
	s, err := session.New(session.DefaultConfig(), session.Deps{Adapter: a, Clock: c, Engine: engine})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return &fixture{s: s, host: h, clock: c}
}

func (f *fixture) tap(t *testing.T) {
	t.Helper()
	if err := f.s.Tap(); err != nil {
		t.Fatalf("Tap: %v", err)
	}
	f.clock.Advance(fullReveal)
	if v := f.s.View(); v.Phase != session.PhaseDiagnosis {
		t.Fatalf("phase after reveal = %v", v.Phase)
	}
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	if err := f.s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestFreshInstallHitsLimitAfterThreeTaps(t *testing.T) {
	f := start(t, dev.New(), nil)
	if err := f.s.SelectMode(content.ModeAngry); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	for i := 0; i < 3; i++ {
		if i > 0 {
			if err := f.s.Again(); err != nil {
				t.Fatalf("Again %d: %v", i, err)
			}
		}
		f.tap(t)
	}
	if !f.s.IsLimitReached() || !f.s.View().LimitReached {
		t.Fatalf("limit not reached after 3 taps")
	}
	if err := f.s.Again(); !errors.Is(err, session.ErrLimitReached) {
		t.Fatalf("4th attempt err = %v", err)
	}
	if v := f.s.View(); v.Screen != session.ScreenLimit {
		t.Fatalf("screen = %s", v.Screen)
	}
	if got := f.s.Analytics().Events["limit_reached"]; got != 1 {
		t.Fatalf("limit_reached events = %d", got)
	}

	f.flush(t)
	if f.host.Data()[progress.KeyTapsToday] != "3" {
		t.Fatalf("tapsToday = %q", f.host.Data()[progress.KeyTapsToday])
	}
}

func TestAdminIsNeverLimited(t *testing.T) {
	f := start(t, dev.New().SetClaims(platform.Claims{Role: "admin"}), nil)
	if err := f.s.SelectMode(content.ModeSoft); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	for i := 0; i < 5; i++ {
		if i > 0 {
			if err := f.s.Again(); err != nil {
				t.Fatalf("Again %d: %v", i, err)
			}
		}
		f.tap(t)
		if f.s.View().Screen == session.ScreenLimit {
			t.Fatalf("admin routed to LIMIT after %d taps", i+1)
		}
	}
	if q := f.s.View().Quota; q.Count != 5 {
		t.Fatalf("count = %d", q.Count)
	}
	if err := f.s.AdminReset(); err != nil {
		t.Fatalf("AdminReset: %v", err)
	}
	if q := f.s.View().Quota; q.Count != 0 {
		t.Fatalf("count after reset = %d", q.Count)
	}
}

func TestAdminResetRequiresAdmin(t *testing.T) {
	f := start(t, dev.New(), nil)
	if err := f.s.AdminReset(); !errors.Is(err, session.ErrNotAdmin) {
		t.Fatalf("err = %v", err)
	}
}

func TestPurchaseBonusTapsForToday(t *testing.T) {
	h := dev.New().
		Seed(map[string]string{progress.KeyTapsToday: "3", progress.KeyLastTapDate: "2026-03-10"}).
		SetPurchase("taps_5", platform.PurchaseResult{Success: true})
	f := start(t, h, nil)

	if err := f.s.SelectMode(content.ModeAngry); !errors.Is(err, session.ErrLimitReached) {
		t.Fatalf("SelectMode err = %v", err)
	}
	res, err := f.s.Purchase(context.Background(), "taps_5")
	if err != nil || !res.Success {
		t.Fatalf("Purchase = %+v, %v", res, err)
	}
	v := f.s.View()
	if v.Screen != session.ScreenTap || v.Quota.Limit != 8 || v.Quota.Remaining != 5 {
		t.Fatalf("after purchase: screen=%s quota=%+v", v.Screen, v.Quota)
	}
	f.tap(t)
	if f.s.View().Quota.Remaining != 4 {
		t.Fatalf("remaining = %d", f.s.View().Quota.Remaining)
	}

	f.clock.Advance(24 * time.Hour)
	if q := f.s.View().Quota; q.Limit != 3 || q.Count != 0 {
		t.Fatalf("next day quota = %+v", q)
	}
	if f.s.Analytics().Events["purchase"] != 1 {
		t.Fatalf("purchase not tracked")
	}
}

func TestPurchaseUnlimitedDay(t *testing.T) {
	h := dev.New().
		Seed(map[string]string{progress.KeyTapsToday: "3", progress.KeyLastTapDate: "2026-03-10"}).
		SetPurchase("unlimited_day", platform.PurchaseResult{Success: true})
	f := start(t, h, nil)
	f.s.SelectMode(content.ModeAngry)
	if res, _ := f.s.Purchase(context.Background(), "unlimited_day"); !res.Success {
		t.Fatalf("Purchase = %+v", res)
	}
	for i := 0; i < 4; i++ {
		if i > 0 {
			f.s.Again()
		}
		f.tap(t)
	}
	if f.s.IsLimitReached() {
		t.Fatalf("unlimited day still limited")
	}
}

func TestPurchaseFailureStaysOnLimit(t *testing.T) {
	h := dev.New().Seed(map[string]string{progress.KeyTapsToday: "3", progress.KeyLastTapDate: "2026-03-10"})
	f := start(t, h, nil)
	f.s.SelectMode(content.ModeAngry)

	res, err := f.s.Purchase(context.Background(), "taps_5")
	if err != nil || res.Success || res.Reason != platform.ReasonNotSupported {
		t.Fatalf("Purchase = %+v, %v", res, err)
	}
	if v := f.s.View(); v.Screen != session.ScreenLimit || v.Quota.Limit != 3 {
		t.Fatalf("screen=%s quota=%+v", v.Screen, v.Quota)
	}
	if f.s.Analytics().Events["purchase_failed"] != 1 {
		t.Fatalf("purchase_failed not tracked")
	}
	if _, err := f.s.Purchase(context.Background(), "gold"); !errors.Is(err, session.ErrUnknownProduct) {
		t.Fatalf("unknown product err = %v", err)
	}
}

func TestRevealPhases(t *testing.T) {
	f := start(t, dev.New(), nil)
	f.s.SelectMode(content.ModeAngry)
	xp0 := f.s.View().Level.XP

	if err := f.s.Tap(); err != nil {
		t.Fatalf("Tap: %v", err)
	}
	v := f.s.View()
	if !v.Animating || v.Card != nil || v.Screen != session.ScreenTap {
		t.Fatalf("animating view = %+v", v)
	}

	f.clock.Advance(700 * time.Millisecond)
	v = f.s.View()
	if v.Screen != session.ScreenCard || v.Card == nil || v.Face.Diagnosis != "" || v.Face.Hit == "" {
		t.Fatalf("card view = %+v", v)
	}
	if v.Quota.Count != 0 {
		t.Fatalf("tap counted before diagnosis")
	}

	f.clock.Advance(800 * time.Millisecond)
	v = f.s.View()
	if v.Phase != session.PhaseDiagnosis || v.Face.Diagnosis == "" || !v.IsNew {
		t.Fatalf("diagnosis view = %+v", v)
	}
	if v.Quota.Count != 1 || f.s.Collection().Unique != 1 {
		t.Fatalf("rewards not applied: quota=%+v", v.Quota)
	}
	want := progress.XPTap + progress.XPFirstTap
	switch v.Card.Rarity {
	case content.Rare:
		want += progress.XPRareCard
	case content.Legendary:
		want += progress.XPLegendaryCard
	}
	if got := v.Level.XP - xp0; got != want {
		t.Fatalf("xp gained = %d, want %d", got, want)
	}
	found := false
	for _, id := range f.s.Achievements() {
		if id == "first_tap" {
			found = true
		}
	}
	if !found {
		t.Fatalf("first_tap not unlocked: %v", f.s.Achievements())
	}
}

func TestTapGuardRejectsOverlap(t *testing.T) {
	f := start(t, dev.New().SetClaims(platform.Claims{Role: "admin"}), nil)
	f.s.SelectMode(content.ModeAngry)

	if err := f.s.Tap(); err != nil {
		t.Fatalf("Tap: %v", err)
	}
	if err := f.s.Tap(); !errors.Is(err, session.ErrTapInFlight) {
		t.Fatalf("second Tap err = %v", err)
	}
	f.clock.Advance(700 * time.Millisecond)
	if err := f.s.Again(); err != nil {
		t.Fatalf("Again: %v", err)
	}
	if err := f.s.Tap(); err != nil {
		t.Fatalf("Tap after animation: %v", err)
	}
	f.clock.Advance(fullReveal)
	if q := f.s.View().Quota; q.Count != 2 || q.Reserved != 0 {
		t.Fatalf("quota = %+v", q)
	}
}

func TestChangeModeDuringRevealKeepsReward(t *testing.T) {
	f := start(t, dev.New(), nil)
	f.s.SelectMode(content.ModeSoft)
	f.s.Tap()
	if err := f.s.ChangeMode(); err != nil {
		t.Fatalf("ChangeMode: %v", err)
	}
	f.clock.Advance(fullReveal)
	v := f.s.View()
	if v.Screen != session.ScreenChoice || v.Mode != "" || v.Card != nil {
		t.Fatalf("view = %+v", v)
	}
	if v.Quota.Count != 1 || f.s.Collection().Soft != 1 {
		t.Fatalf("reward lost: quota=%+v", v.Quota)
	}
}

func TestCollectionOverlay(t *testing.T) {
	f := start(t, dev.New(), nil)
	f.s.SelectMode(content.ModeAngry)
	f.tap(t)
	if err := f.s.OpenCollection(); err != nil {
		t.Fatalf("OpenCollection: %v", err)
	}
	if f.s.View().Screen != session.ScreenCollection {
		t.Fatalf("screen = %s", f.s.View().Screen)
	}
	if st := f.s.Collection(); st.Total != 1 || len(st.Recent) != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if err := f.s.CloseCollection(); err != nil {
		t.Fatalf("CloseCollection: %v", err)
	}
	if v := f.s.View(); v.Screen != session.ScreenChoice || v.Mode != "" {
		t.Fatalf("after close = %s %q", v.Screen, v.Mode)
	}
	if err := f.s.CloseCollection(); !errors.Is(err, session.ErrInvalidState) {
		t.Fatalf("double close err = %v", err)
	}
}

func TestSelectDeck(t *testing.T) {
	f := start(t, dev.New().SetClaims(platform.Claims{Role: "admin"}), nil)
	if err := f.s.SelectDeck("nope"); !errors.Is(err, content.ErrUnknownDeck) {
		t.Fatalf("SelectDeck err = %v", err)
	}
	if err := f.s.SelectDeck("work"); err != nil {
		t.Fatalf("SelectDeck: %v", err)
	}
	pool, _ := f.s.Catalog().CardsForDeck("work")
	ids := map[int]bool{}
	for _, c := range pool {
		ids[c.ID] = true
	}
	f.s.SelectMode(content.ModeAngry)
	for i := 0; i < 6; i++ {
		if i > 0 {
			f.s.Again()
		}
		f.tap(t)
		if id := f.s.View().Card.ID; !ids[id] {
			t.Fatalf("card %d outside the work deck", id)
		}
	}
	if f.s.Analytics().Decks["work"] != 6 {
		t.Fatalf("decks = %v", f.s.Analytics().Decks)
	}
}

type panicSource struct{}

func (panicSource) Intn(int) int { panic("entropy exhausted") }

func TestFaultBoundaryAndReload(t *testing.T) {
	f := start(t, dev.New(), selection.New(selection.WithSource(panicSource{})))
	f.s.SelectMode(content.ModeAngry)

	if err := f.s.Tap(); !errors.Is(err, session.ErrFault) {
		t.Fatalf("Tap err = %v", err)
	}
	v := f.s.View()
	if v.Screen != session.ScreenFault || v.Fault == "" {
		t.Fatalf("view = %+v", v)
	}
	if v.Quota.Reserved != 0 {
		t.Fatalf("reservation leaked")
	}
	if err := f.s.SelectMode(content.ModeSoft); !errors.Is(err, session.ErrFault) {
		t.Fatalf("SelectMode in fault err = %v", err)
	}
	f.s.Reload()
	if v := f.s.View(); v.Screen != session.ScreenChoice || v.Fault != "" {
		t.Fatalf("after reload = %+v", v)
	}
}

func TestObserverPanicIsContained(t *testing.T) {
	f := start(t, dev.New(), nil)
	f.s.OnChange(func(session.View) { panic("render failed") })
	if err := f.s.SelectMode(content.ModeAngry); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	if f.s.View().Screen != session.ScreenFault {
		t.Fatalf("screen = %s", f.s.View().Screen)
	}
}

func TestDeepLink(t *testing.T) {
	f := start(t, dev.New(), nil)
	for _, frag := range []string{"card=999&mode=soft", "card=3&mode=meh", "garbage", ""} {
		if f.s.OpenDeepLink(frag) {
			t.Fatalf("OpenDeepLink(%q) = true", frag)
		}
	}
	if f.s.View().Screen != session.ScreenChoice {
		t.Fatalf("bad link moved the session")
	}
	if !f.s.OpenDeepLink("#card=11&mode=soft") {
		t.Fatalf("valid link ignored")
	}
	v := f.s.View()
	if v.Screen != session.ScreenCard || v.Card.ID != 11 || v.Mode != content.ModeSoft || v.Face.Diagnosis == "" {
		t.Fatalf("view = %+v", v)
	}
	if v.Quota.Count != 0 {
		t.Fatalf("deep link spent a tap")
	}
}

func TestShareStoryFallsBackToLink(t *testing.T) {
	f := start(t, dev.New(), nil)
	if _, err := f.s.ShareStory(context.Background()); !errors.Is(err, session.ErrNoCard) {
		t.Fatalf("ShareStory without card err = %v", err)
	}
	f.s.SelectMode(content.ModeAngry)
	f.tap(t)
	xp := f.s.View().Level.XP

	ok, err := f.s.ShareStory(context.Background())
	if !ok || err != nil {
		t.Fatalf("ShareStory = %v, %v", ok, err)
	}
	if f.host.Stories() != 0 || len(f.host.Shares()) != 1 {
		t.Fatalf("stories=%d shares=%v", f.host.Stories(), f.host.Shares())
	}
	want := "https://krevetka.local/#card=" + strconv.Itoa(f.s.View().Card.ID) + "&mode=angry"
	if f.host.Shares()[0] != want {
		t.Fatalf("share = %q, want %q", f.host.Shares()[0], want)
	}
	if got := f.s.View().Level.XP - xp; got != progress.XPShareFriend {
		t.Fatalf("xp gained = %d", got)
	}
}

func TestShareStoryNative(t *testing.T) {
	f := start(t, dev.New().SupportStories(true), nil)
	f.s.SelectMode(content.ModeAngry)
	f.tap(t)
	if ok, _ := f.s.ShareStory(context.Background()); !ok || f.host.Stories() != 1 {
		t.Fatalf("story not shared")
	}
	if f.s.Analytics().Events["share_story"] != 1 {
		t.Fatalf("share_story not tracked")
	}
}

func TestNotificationPromptAfterThirdTap(t *testing.T) {
	f := start(t, dev.New().AllowNotifications(true), nil)
	f.s.SelectMode(content.ModeAngry)
	for i := 0; i < 3; i++ {
		if i > 0 {
			f.s.Again()
		}
		f.tap(t)
		if ask := f.s.View().AskNotifications; ask != (i == 2) {
			t.Fatalf("after tap %d ask = %v", i+1, ask)
		}
	}
	allowed, err := f.s.RequestNotifications(context.Background())
	if !allowed || err != nil {
		t.Fatalf("RequestNotifications = %v, %v", allowed, err)
	}
	if f.s.View().AskNotifications {
		t.Fatalf("prompt still shown")
	}
	f.flush(t)
	if f.host.Data()[progress.KeyNotificationAsked] != "true" {
		t.Fatalf("asked flag not stored")
	}
}

func TestWinBackOnStart(t *testing.T) {
	last := day0.Add(-30 * time.Hour).UnixMilli()
	f := start(t, dev.New().Seed(map[string]string{progress.KeyLastVisitTimestamp: strconv.FormatInt(last, 10)}), nil)
	v := f.s.View()
	if !v.WinBack || v.HoursAway != 30 {
		t.Fatalf("win-back = %v %d", v.WinBack, v.HoursAway)
	}
	if f.s.Analytics().Events["return_visit"] != 1 || f.s.Analytics().Sessions != 1 {
		t.Fatalf("analytics = %+v", f.s.Analytics())
	}
	f.s.DismissWinBack()
	if f.s.View().WinBack {
		t.Fatalf("win-back not dismissed")
	}
}

func TestStartSurvivesBrokenHost(t *testing.T) {
	h := dev.New().
		Block(dev.OpInit).
		Fail(dev.OpStorageGet, errors.New("bridge gone")).
		Fail(dev.OpStorageSet, errors.New("bridge gone"))
	c := clock.NewFake(day0)
	a := platform.NewAdapter(h, platform.AdapterConfig{HandshakeTimeout: 20 * time.Millisecond})
	s, err := session.New(session.DefaultConfig(), session.Deps{Adapter: a, Clock: c})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close(context.Background())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.SelectMode(content.ModeAngry)
	if err := s.Tap(); err != nil {
		t.Fatalf("Tap on broken host: %v", err)
	}
	c.Advance(fullReveal)
	if s.View().Quota.Count != 1 {
		t.Fatalf("in-memory state lost")
	}
}

func TestStartIsBoundedByHandshakeTimeout(t *testing.T) {
	h := dev.New().
		Block(dev.OpInit).
		Block(dev.OpClaims).
		Block(dev.OpStorageGet).
		Block(dev.OpStorageSet)
	cfg := session.DefaultConfig()
	a := platform.NewAdapter(h, platform.AdapterConfig{})
	s, err := session.New(cfg, session.Deps{Adapter: a, Clock: clock.NewFake(day0)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		s.Close(ctx)
	}()

	began := time.Now()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if took := time.Since(began); took > cfg.HandshakeTimeout+500*time.Millisecond {
		t.Fatalf("Start took %s with handshake_timeout=%s", took, cfg.HandshakeTimeout)
	}
	if v := s.View(); v.Screen != session.ScreenChoice || v.Quota.Count != 0 {
		t.Fatalf("degraded start view = %+v", v)
	}
}

func TestCloseCancelsPendingReveal(t *testing.T) {
	f := start(t, dev.New(), nil)
	f.s.SelectMode(content.ModeAngry)
	f.s.Tap()
	if err := f.s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if f.clock.Pending() != 0 {
		t.Fatalf("%d timers left after Close", f.clock.Pending())
	}
	if _, ok := f.host.Data()[progress.KeyTapsToday]; ok {
		t.Fatalf("cancelled tap was counted")
	}
	if !f.host.Closed() {
		t.Fatalf("host not closed")
	}
	if err := f.s.SelectMode(content.ModeSoft); !errors.Is(err, session.ErrClosed) {
		t.Fatalf("SelectMode after Close err = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := session.DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := []func(*session.Config){
		func(c *session.Config) { c.DailyLimit = -1 },
		func(c *session.Config) { c.HandshakeTimeout = 0 },
		func(c *session.Config) { c.HandshakeTimeout = time.Minute },
		func(c *session.Config) { c.RevealDelay = -time.Second },
		func(c *session.Config) { c.LevelUpToast = 0 },
		func(c *session.Config) { c.WinBackAfter = 0 },
	}
	for i, mutate := range bad {
		c := session.DefaultConfig()
		mutate(&c)
		if c.Validate() == nil {
			t.Errorf("case %d: invalid config accepted", i)
		}
	}
	if _, err := session.New(session.DefaultConfig(), session.Deps{}); err == nil {
		t.Fatalf("New without adapter succeeded")
	}
}
