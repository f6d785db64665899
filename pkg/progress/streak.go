package progress

import (
	"context"
	"strconv"
	"sync"

	"github.com/krevetka/krevetka/pkg/clock"
	"github.com/krevetka/krevetka/pkg/validate"
)

type StreakTier string

const (
	TierStart     StreakTier = "start"
	TierWarmingUp StreakTier = "warming-up"
	TierOnFire    StreakTier = "on-fire"
	TierMaster    StreakTier = "master"
	TierLegend    StreakTier = "legend"
)

// TierFor maps a streak length to its display tier.
func TierFor(n int) StreakTier {
	switch {
	case n >= 30:
		return TierLegend
	case n >= 14:
		return TierMaster
	case n >= 7:
		return TierOnFire
	case n >= 3:
		return TierWarmingUp
	}
	return TierStart
}

// NextStreak applies one visit on today to a streak last seen on last.
func NextStreak(count int, last, today, yesterday string) int {
	switch last {
	case today:
		if count < 1 {
			return 1
		}
		return count
	case yesterday:
		count++
	default:
		count = 1
	}
	if count > validate.MaxStreak {
		count = validate.MaxStreak
	}
	return count
}

// Streak counts consecutive visit days.
type Streak struct {
	clock   clock.Clock
	persist *Persister

	mu    sync.Mutex
	count int
	last  string
}

func NewStreak(c clock.Clock, p *Persister) *Streak {
	return &Streak{clock: c, persist: p}
}

// Load reads the stored streak and records today's visit.
func (s *Streak) Load(ctx context.Context, st Store) int {
	vals := st.StorageGet(ctx, []string{KeyStreakCount, KeyLastVisitDate})
	s.mu.Lock()
	s.count = validate.Streak(vals[KeyStreakCount])
	s.last = validate.Date(vals[KeyLastVisitDate])
	s.mu.Unlock()
	return s.Touch()
}

// Touch records a visit now. Repeated calls on one day are no-ops, so a
// long-running session can call it on every action to catch midnight.
func (s *Streak) Touch() int {
	now := s.clock.Now()
	today, yesterday := clock.Day(now), clock.Yesterday(now)

	s.mu.Lock()
	defer s.mu.Unlock()
	next := NextStreak(s.count, s.last, today, yesterday)
	if next == s.count && s.last == today {
		return s.count
	}
	s.count, s.last = next, today
	s.persist.SaveMany(
		[2]string{KeyStreakCount, strconv.Itoa(s.count)},
		[2]string{KeyLastVisitDate, s.last},
	)
	return s.count
}

func (s *Streak) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Streak) Tier() StreakTier {
	return TierFor(s.Count())
}
