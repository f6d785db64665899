package session

import (
	"fmt"
	"time"

	"github.com/krevetka/krevetka/pkg/progress"
)

// Config holds the tunables of one play session.
type Config struct {
	DailyLimit       int
	BonusTaps        int // granted by a bonus product that names no amount
	HandshakeTimeout time.Duration
	RevealDelay      time.Duration // tap until the card is shown
	DiagnosisDelay   time.Duration // card until the diagnosis and rewards
	AchievementToast time.Duration
	LevelUpToast     time.Duration
	NotifyAfterTaps  int
	WinBackAfter     time.Duration
}

func DefaultConfig() Config {
	return Config{
		DailyLimit:       progress.DefaultDailyLimit,
		BonusTaps:        5,
		HandshakeTimeout: 2 * time.Second,
		RevealDelay:      700 * time.Millisecond,
		DiagnosisDelay:   800 * time.Millisecond,
		AchievementToast: progress.DefaultAchievementWindow,
		LevelUpToast:     progress.DefaultLevelUpWindow,
		NotifyAfterTaps:  progress.DefaultAskAfterTaps,
		WinBackAfter:     progress.DefaultWinBackAfter,
	}
}

func (c Config) Validate() error {
	switch {
	case c.DailyLimit < 0:
		return fmt.Errorf("daily_limit must be >= 0, got %d", c.DailyLimit)
	case c.BonusTaps < 0:
		return fmt.Errorf("bonus_taps must be >= 0, got %d", c.BonusTaps)
	case c.HandshakeTimeout <= 0 || c.HandshakeTimeout > 10*time.Second:
		return fmt.Errorf("handshake_timeout must be in (0, 10s], got %s", c.HandshakeTimeout)
	case c.RevealDelay < 0 || c.DiagnosisDelay < 0:
		return fmt.Errorf("reveal delays must not be negative")
	case c.AchievementToast <= 0 || c.LevelUpToast <= 0:
		return fmt.Errorf("toast windows must be positive")
	case c.NotifyAfterTaps < 0:
		return fmt.Errorf("notify_after_taps must be >= 0, got %d", c.NotifyAfterTaps)
	case c.WinBackAfter <= 0:
		return fmt.Errorf("winback_after must be positive, got %s", c.WinBackAfter)
	}
	return nil
}
