package progress

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/krevetka/krevetka/pkg/clock"
	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/krevetka/krevetka/pkg/validate"
)

// XP rewards.
const (
	XPTap           = 10
	XPRareCard      = 25
	XPLegendaryCard = 50
	XPFirstTap      = 20
	XPShareStory    = 15
	XPShareFriend   = 10
	XPDailyBonus    = 30
)

const DefaultLevelUpWindow = 4 * time.Second

type LevelTier struct {
	Level      int
	XPRequired int
	Title      string
	Emoji      string
}

// Levels is ordered by XPRequired.
var Levels = []LevelTier{
	{1, 0, "Rookie", "🦐"},
	{2, 50, "Curious", "👀"},
	{3, 150, "Truth seeker", "🔍"},
	{4, 300, "Shrimper", "🎯"},
	{5, 500, "Tap master", "👆"},
	{6, 800, "Fate expert", "🔮"},
	{7, 1200, "Shrimp guru", "🧘"},
	{8, 1800, "Ocean legend", "🌊"},
	{9, 2500, "Shrimp lord", "👑"},
	{10, 3500, "Shrimp god", "⚡"},
}

// TierForXP returns the highest tier whose threshold is at most xp.
func TierForXP(xp int) LevelTier {
	cur := Levels[0]
	for _, l := range Levels {
		if xp >= l.XPRequired {
			cur = l
		}
	}
	return cur
}

type LevelProgress struct {
	XP       int
	Current  LevelTier
	Next     *LevelTier // nil at the top tier
	Percent  int
	XPToNext int
}

// ProgressFor derives the progress bar for xp.
func ProgressFor(xp int) LevelProgress {
	cur := TierForXP(xp)
	p := LevelProgress{XP: xp, Current: cur, Percent: 100}
	for i := range Levels {
		if Levels[i].Level == cur.Level+1 {
			next := Levels[i]
			p.Next = &next
			span := next.XPRequired - cur.XPRequired
			p.Percent = (xp - cur.XPRequired) * 100 / span
			p.XPToNext = next.XPRequired - xp
			break
		}
	}
	return p
}

// Level tracks cumulative XP. A tier change shows a level-up toast; an
// award that crosses several tiers shows only the final one.
type Level struct {
	clock   clock.Clock
	persist *Persister
	log     platform.Logger
	toast   *Toast[LevelTier]

	mu        sync.Mutex
	xp        int
	lastBonus string
}

func NewLevel(c clock.Clock, p *Persister, window time.Duration, onChange func(), log platform.Logger) *Level {
	if log == nil {
		log = platform.NopLogger()
	}
	if window <= 0 {
		window = DefaultLevelUpWindow
	}
	return &Level{clock: c, persist: p, log: log, toast: NewToast[LevelTier](c, window, onChange)}
}

func (l *Level) Load(ctx context.Context, s Store) {
	vals := s.StorageGet(ctx, []string{KeyLevel})
	d := validate.Level(vals[KeyLevel])
	l.mu.Lock()
	l.xp, l.lastBonus = d.XP, validate.Date(d.LastDailyBonus)
	l.mu.Unlock()
}

// AddXP adds amount and reports the new tier when it changed.
func (l *Level) AddXP(amount int) (LevelTier, bool) {
	if amount <= 0 {
		return LevelTier{}, false
	}
	l.mu.Lock()
	before := TierForXP(l.xp)
	l.xp += amount
	if l.xp > validate.MaxXP {
		l.xp = validate.MaxXP
	}
	after := TierForXP(l.xp)
	l.save()
	l.mu.Unlock()

	if after.Level > before.Level {
		l.toast.Show(after)
		return after, true
	}
	return LevelTier{}, false
}

// DailyBonus grants XPDailyBonus once per calendar day.
func (l *Level) DailyBonus() (granted bool, up LevelTier, leveled bool) {
	today := clock.Day(l.clock.Now())
	l.mu.Lock()
	if l.lastBonus == today {
		l.mu.Unlock()
		return false, LevelTier{}, false
	}
	l.lastBonus = today
	l.mu.Unlock()
	up, leveled = l.AddXP(XPDailyBonus)
	return true, up, leveled
}

// save must run with l.mu held.
func (l *Level) save() {
	raw, err := json.Marshal(validate.LevelData{XP: l.xp, LastDailyBonus: l.lastBonus})
	if err != nil {
		l.log.Errorf("level: encode: %v", err)
		return
	}
	l.persist.Save(KeyLevel, string(raw))
}

func (l *Level) XP() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.xp
}

func (l *Level) Progress() LevelProgress {
	return ProgressFor(l.XP())
}

// LevelUp returns the level-up toast currently on screen.
func (l *Level) LevelUp() (LevelTier, bool) { return l.toast.Current() }

func (l *Level) DismissLevelUp() { l.toast.Dismiss() }

func (l *Level) Stop() { l.toast.Stop() }
