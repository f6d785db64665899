package session

import (
	"github.com/krevetka/krevetka/pkg/content"
	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/krevetka/krevetka/pkg/progress"
)

// View is everything a front end needs to draw the session.
type View struct {
	Profile platform.Profile
	Screen  Screen
	Mode    content.Mode
	Deck    string
	Phase   Phase

	Card      *content.Card
	Face      content.Face // Diagnosis is empty until PhaseDiagnosis
	Video     string
	IsNew     bool
	Animating bool

	Admin        bool
	Quota        progress.QuotaView
	LimitReached bool

	Streak     int
	StreakTier progress.StreakTier
	Level      progress.LevelProgress
	LevelUp    *progress.LevelTier
	Toast      *progress.Achievement

	WinBack          bool
	HoursAway        int
	AskNotifications bool

	Fault string
}

// View returns a consistent snapshot of the session.
func (s *Session) View() View {
	admin := s.adapter.IsAdmin()
	v := View{
		Profile:      s.adapter.Profile(),
		Admin:        admin,
		Quota:        s.quota.Snapshot(),
		LimitReached: s.quota.IsLimitReached(admin),
		Streak:       s.streak.Count(),
		StreakTier:   s.streak.Tier(),
		Level:        s.level.Progress(),
	}
	if up, ok := s.level.LevelUp(); ok {
		v.LevelUp = &up
	}
	if a, ok := s.achievements.Toast(); ok {
		v.Toast = &a
	}
	v.WinBack, v.HoursAway = s.notifications.WinBack()

	s.mu.Lock()
	defer s.mu.Unlock()
	v.Screen = s.screen
	v.Mode = s.mode
	v.Deck = s.deck
	v.Phase = s.phase
	v.Animating = s.phase == PhaseAnimating
	v.Video = s.video
	v.IsNew = s.isNew
	v.AskNotifications = s.askNotify
	v.Fault = s.fault
	if s.card != nil && s.phase >= PhaseCard {
		card := *s.card
		v.Card = &card
		v.Face = card.Face(s.mode)
		if s.phase < PhaseDiagnosis {
			v.Face.Diagnosis = ""
		}
	}
	return v
}
