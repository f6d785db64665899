package session

import (
	"errors"
	"fmt"

	"github.com/krevetka/krevetka/pkg/analytics"
	"github.com/krevetka/krevetka/pkg/content"
	"github.com/krevetka/krevetka/pkg/progress"
	"github.com/krevetka/krevetka/pkg/selection"
)

// reveal is one accepted tap travelling through the two reveal phases.
type reveal struct {
	seq   uint64
	gen   uint64
	mode  content.Mode
	deck  string
	card  content.Card
	video string
}

// Tap draws the next card and starts the reveal. At most one tap may be
// in its animation phase at a time; a second call returns ErrTapInFlight.
func (s *Session) Tap() (err error) {
	defer s.protect("tap", &err)

	seq := s.tapSeq.Add(1)
	if !s.inflight.CompareAndSwap(0, seq) {
		return ErrTapInFlight
	}
	r, err := s.beginTap(seq)
	if err != nil {
		s.inflight.CompareAndSwap(seq, 0)
		if errors.Is(err, ErrLimitReached) {
			s.limitReached("tap")
		}
		return err
	}
	s.adapter.HapticImpact("medium")
	s.emit()
	s.log.Debugf("session: tap %d drew card %d (%s)", r.seq, r.card.ID, r.card.Rarity)
	return nil
}

func (s *Session) beginTap(seq uint64) (*reveal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	if s.screen != ScreenTap || s.mode == "" {
		return nil, ErrInvalidState
	}
	if !s.quota.Reserve(s.adapter.IsAdmin()) {
		s.screen = ScreenLimit
		return nil, ErrLimitReached
	}
	held := true
	defer func() {
		if held {
			s.quota.Release()
		}
	}()

	pool, err := s.catalog.CardsForDeck(s.deck)
	if err != nil {
		return nil, err
	}
	card, err := s.engine.SelectCard(pool)
	if err != nil {
		return nil, fmt.Errorf("select card: %w", err)
	}
	video, err := s.engine.SelectVideo(s.catalog.Videos(s.mode))
	if err != nil && !errors.Is(err, selection.ErrEmptyPool) {
		return nil, fmt.Errorf("select video: %w", err)
	}
	held = false

	r := &reveal{seq: seq, gen: s.gen, mode: s.mode, deck: s.deck, card: card, video: video}
	s.card = &r.card
	s.video = video
	s.phase = PhaseAnimating
	s.isNew = false
	s.shownSeq = seq
	s.pending[seq] = s.clock.AfterFunc(s.cfg.RevealDelay, func() { s.showCard(r) })
	return r, nil
}

// showCard ends the animation: the card becomes visible and the tap guard
// is released.
func (s *Session) showCard(r *reveal) {
	defer s.protect("reveal", nil)
	defer s.inflight.CompareAndSwap(r.seq, 0)

	s.mu.Lock()
	delete(s.pending, r.seq)
	if s.closed {
		s.mu.Unlock()
		s.quota.Release()
		return
	}
	if r.gen == s.gen && r.seq == s.shownSeq {
		s.screen = ScreenCard
		s.phase = PhaseCard
	}
	s.pending[r.seq] = s.clock.AfterFunc(s.cfg.DiagnosisDelay, func() { s.showDiagnosis(r) })
	s.mu.Unlock()
	s.emit()
}

// showDiagnosis applies the rewards of r. They are applied even when the
// player has moved on, since the tap was already accepted.
func (s *Session) showDiagnosis(r *reveal) {
	defer s.protect("diagnosis", nil)

	s.mu.Lock()
	delete(s.pending, r.seq)
	if r.mode == content.ModeAngry {
		s.consecutiveAngry++
	} else {
		s.consecutiveAngry = 0
	}
	angryRun := s.consecutiveAngry
	s.mu.Unlock()

	isNew := s.collection.Add(r.card, r.mode)
	stats := s.collection.Stats()
	totalTaps := s.quota.Snapshot().TotalTaps + 1
	streak := s.streak.Touch()

	fresh := s.achievements.CheckAndUnlock(progress.AchievementContext{
		TotalTaps:        totalTaps,
		ConsecutiveAngry: angryRun,
		Streak:           streak,
		CollectedAngry:   stats.Angry,
		CollectedSoft:    stats.Soft,
		TotalCards:       s.catalog.Total(),
		CardRarity:       r.card.Rarity,
		RareCount:        stats.RareFinds,
		Now:              s.clock.Now(),
	})

	xp := progress.XPTap
	switch r.card.Rarity {
	case content.Rare:
		xp += progress.XPRareCard
	case content.Legendary:
		xp += progress.XPLegendaryCard
	}
	if totalTaps == 1 {
		xp += progress.XPFirstTap
	}
	up, leveled := s.level.AddXP(xp)

	total := s.quota.Commit()

	s.sink.Track(analytics.EventTap, map[string]interface{}{
		"card_id": r.card.ID,
		"rarity":  string(r.card.Rarity),
		"mode":    string(r.mode),
		"deck":    deckName(r.deck),
		"is_new":  isNew,
	})
	for _, a := range fresh {
		s.sink.Track(analytics.EventAchievement, map[string]interface{}{"id": a.ID})
	}
	if leveled {
		s.sink.Track(analytics.EventLevelUp, map[string]interface{}{"level": up.Level})
	}
	s.adapter.HapticNotification("success")

	s.mu.Lock()
	if r.gen == s.gen && r.seq == s.shownSeq {
		s.phase = PhaseDiagnosis
		s.isNew = isNew
	}
	if !s.notifyDismissed && s.notifications.ShouldAsk(total) {
		s.askNotify = true
	}
	s.mu.Unlock()
	s.emit()
}

func deckName(id string) string {
	if id == "" {
		return "all"
	}
	return id
}

// limitReached reports a refused tap.
func (s *Session) limitReached(source string) {
	s.adapter.HapticNotification("error")
	q := s.quota.Snapshot()
	s.sink.Track(analytics.EventLimitReached, map[string]interface{}{
		"source": source,
		"count":  q.Count,
		"limit":  q.Limit,
	})
	s.emit()
}
