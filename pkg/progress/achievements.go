package progress

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/krevetka/krevetka/pkg/clock"
	"github.com/krevetka/krevetka/pkg/content"
	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/krevetka/krevetka/pkg/validate"
)

const DefaultAchievementWindow = 3 * time.Second

type Achievement struct {
	ID          string
	Emoji       string
	Title       string
	Description string
	Secret      bool
	check       func(AchievementContext) bool
}

// AchievementContext is what the predicates look at after a reveal.
type AchievementContext struct {
	TotalTaps        int
	ConsecutiveAngry int
	Streak           int
	CollectedAngry   int
	CollectedSoft    int
	TotalCards       int
	CardRarity       content.Rarity
	RareCount        int
	Now              time.Time
}

// Definitions lists every achievement in display order.
var Definitions = []Achievement{
	{ID: "first_tap", Emoji: "🦐", Title: "First tap", Description: "Tapped the shrimp for the first time",
		check: func(c AchievementContext) bool { return c.TotalTaps >= 1 }},
	{ID: "angry_streak_5", Emoji: "🔥", Title: "Five angry", Description: "5 angry diagnoses in a row",
		check: func(c AchievementContext) bool { return c.ConsecutiveAngry >= 5 }},
	{ID: "week_streak", Emoji: "📅", Title: "Week without a miss", Description: "7 days in a row with the shrimp",
		check: func(c AchievementContext) bool { return c.Streak >= 7 }},
	{ID: "night_owl", Emoji: "🦉", Title: "Night tapper", Description: "Tapped after midnight",
		check: func(c AchievementContext) bool { return !c.Now.IsZero() && c.Now.Hour() < 5 }},
	{ID: "collector_angry", Emoji: "😈", Title: "Anger collector", Description: "Every card in angry mode",
		check: func(c AchievementContext) bool { return c.TotalCards > 0 && c.CollectedAngry >= c.TotalCards }},
	{ID: "collector_soft", Emoji: "💖", Title: "Tenderness collector", Description: "Every card in soft mode",
		check: func(c AchievementContext) bool { return c.TotalCards > 0 && c.CollectedSoft >= c.TotalCards }},
	{ID: "legendary_find", Emoji: "🌟", Title: "Lucky one", Description: "Found a legendary card", Secret: true,
		check: func(c AchievementContext) bool { return c.CardRarity == content.Legendary }},
	{ID: "rare_hunter", Emoji: "💎", Title: "Rarity hunter", Description: "Found 5 rare cards", Secret: true,
		check: func(c AchievementContext) bool { return c.RareCount >= 5 }},
}

// Definition looks up an achievement by id.
func Definition(id string) (Achievement, bool) {
	for _, a := range Definitions {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

// Achievements is the monotonic set of unlocked ids.
type Achievements struct {
	persist *Persister
	log     platform.Logger
	toast   *Toast[Achievement]

	mu       sync.Mutex
	unlocked []string
	set      map[string]bool
}

func NewAchievements(c clock.Clock, p *Persister, window time.Duration, onChange func(), log platform.Logger) *Achievements {
	if log == nil {
		log = platform.NopLogger()
	}
	if window <= 0 {
		window = DefaultAchievementWindow
	}
	return &Achievements{
		persist:  p,
		log:      log,
		toast:    NewToast[Achievement](c, window, onChange),
		unlocked: []string{},
		set:      map[string]bool{},
	}
}

// Load keeps any stored ids, including ones no longer defined.
func (a *Achievements) Load(ctx context.Context, s Store) {
	vals := s.StorageGet(ctx, []string{KeyAchievements})
	ids := validate.Achievements(vals[KeyAchievements])
	a.mu.Lock()
	a.unlocked = ids
	a.set = make(map[string]bool, len(ids))
	for _, id := range ids {
		a.set[id] = true
	}
	a.mu.Unlock()
}

// CheckAndUnlock evaluates every locked achievement against ctx and
// returns the ones unlocked by this call. The toast shows the last of
// them.
func (a *Achievements) CheckAndUnlock(ctx AchievementContext) []Achievement {
	a.mu.Lock()
	var fresh []Achievement
	for _, def := range Definitions {
		if a.set[def.ID] || !def.check(ctx) {
			continue
		}
		a.set[def.ID] = true
		a.unlocked = append(a.unlocked, def.ID)
		fresh = append(fresh, def)
	}
	if len(fresh) > 0 {
		if raw, err := json.Marshal(a.unlocked); err != nil {
			a.log.Errorf("achievements: encode: %v", err)
		} else {
			a.persist.Save(KeyAchievements, string(raw))
		}
	}
	a.mu.Unlock()

	if len(fresh) > 0 {
		a.toast.Show(fresh[len(fresh)-1])
	}
	return fresh
}

func (a *Achievements) Has(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.set[id]
}

// Unlocked returns ids in unlock order.
func (a *Achievements) Unlocked() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.unlocked...)
}

// Toast returns the achievement currently on screen.
func (a *Achievements) Toast() (Achievement, bool) { return a.toast.Current() }

func (a *Achievements) Dismiss() { a.toast.Dismiss() }

func (a *Achievements) Stop() { a.toast.Stop() }
