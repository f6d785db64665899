package progress

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/krevetka/krevetka/pkg/clock"
	"github.com/krevetka/krevetka/pkg/validate"
)

const (
	DefaultAskAfterTaps = 3
	DefaultWinBackAfter = 24 * time.Hour
)

// Requester asks the host for push permission.
type Requester interface {
	RequestNotifications(ctx context.Context) bool
}

// Notifications tracks the push permission prompt and the win-back
// greeting shown after a long absence.
type Notifications struct {
	clock        clock.Clock
	persist      *Persister
	askAfter     int
	winBackAfter time.Duration

	mu        sync.Mutex
	asked     bool
	allowed   bool
	winBack   bool
	hoursAway int
}

func NewNotifications(c clock.Clock, p *Persister, askAfter int, winBackAfter time.Duration) *Notifications {
	if askAfter < 0 {
		askAfter = DefaultAskAfterTaps
	}
	if winBackAfter <= 0 {
		winBackAfter = DefaultWinBackAfter
	}
	return &Notifications{clock: c, persist: p, askAfter: askAfter, winBackAfter: winBackAfter}
}

// Load reads the permission flags, decides on win-back from the previous
// visit time, and stamps this visit.
func (n *Notifications) Load(ctx context.Context, s Store) {
	vals := s.StorageGet(ctx, []string{KeyNotificationsAllowed, KeyNotificationAsked, KeyLastVisitTimestamp})
	now := n.clock.Now()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.allowed = validate.Bool(vals[KeyNotificationsAllowed])
	n.asked = validate.Bool(vals[KeyNotificationAsked])
	n.winBack, n.hoursAway = false, 0
	if last := validate.Timestamp(vals[KeyLastVisitTimestamp]); last > 0 {
		away := now.Sub(time.UnixMilli(last))
		if away >= n.winBackAfter {
			n.winBack = true
			n.hoursAway = int(away / time.Hour)
		}
	}
	n.persist.Save(KeyLastVisitTimestamp, strconv.FormatInt(now.UnixMilli(), 10))
}

// ShouldAsk reports whether the permission prompt is due after taps
// successful actions.
func (n *Notifications) ShouldAsk(taps int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.asked && !n.allowed && taps >= n.askAfter
}

// Request asks the host once per installation. Later calls return the
// stored answer without asking again.
func (n *Notifications) Request(ctx context.Context, r Requester) bool {
	n.mu.Lock()
	if n.asked {
		allowed := n.allowed
		n.mu.Unlock()
		return allowed
	}
	// Mark first so a concurrent caller does not prompt twice.
	n.asked = true
	n.mu.Unlock()

	allowed := r.RequestNotifications(ctx)

	n.mu.Lock()
	n.allowed = allowed
	n.persist.SaveMany(
		[2]string{KeyNotificationsAllowed, strconv.FormatBool(allowed)},
		[2]string{KeyNotificationAsked, "true"},
	)
	n.mu.Unlock()
	return allowed
}

func (n *Notifications) Asked() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.asked
}

func (n *Notifications) Allowed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.allowed
}

// WinBack reports whether to greet a returning player and how many whole
// hours they were away.
func (n *Notifications) WinBack() (bool, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.winBack, n.hoursAway
}

func (n *Notifications) DismissWinBack() {
	n.mu.Lock()
	n.winBack = false
	n.mu.Unlock()
}
