package progress

import (
	"context"
	"math"
	"strconv"
	"sync"

	"github.com/krevetka/krevetka/pkg/clock"
	"github.com/krevetka/krevetka/pkg/validate"
)

// DefaultDailyLimit is the base number of taps per calendar day.
const DefaultDailyLimit = 3

// QuotaView is a read-only snapshot of the tap budget.
type QuotaView struct {
	Day       string
	Count     int
	Bonus     int
	Limit     int
	Reserved  int
	Remaining int
	Unlimited bool
	TotalTaps int
}

// Quota is the daily tap budget. Counters roll over lazily: any access on
// a new calendar day zeroes today's count and expires bonus taps.
//
// A tap is taken in two steps. Reserve claims a slot when the tap starts;
// Commit converts it into a counted tap once the reward is revealed.
// Reserved slots count against the limit so overlapping lifecycles cannot
// overspend it.
type Quota struct {
	clock   clock.Clock
	persist *Persister
	base    int

	mu             sync.Mutex
	day            string
	count          int
	bonus          int
	bonusDate      string
	unlimitedUntil string
	total          int
	reserved       int
}

func NewQuota(c clock.Clock, p *Persister, base int) *Quota {
	if base < 0 {
		base = 0
	}
	return &Quota{clock: c, persist: p, base: base, day: clock.Day(c.Now())}
}

// Load reads the persisted budget. Missing or malformed values leave a
// fresh budget for today.
func (q *Quota) Load(ctx context.Context, s Store) {
	vals := s.StorageGet(ctx, []string{
		KeyTapsToday, KeyLastTapDate, KeyBonusTaps, KeyBonusDate, KeyUnlimitedUntil, KeyTotalTaps,
	})
	today := clock.Day(q.clock.Now())

	q.mu.Lock()
	defer q.mu.Unlock()
	q.day = today
	q.count, q.bonus = 0, 0
	if validate.Date(vals[KeyLastTapDate]) == today {
		q.count = validate.Int(vals[KeyTapsToday], 0, math.MaxInt32)
	}
	q.bonusDate = validate.Date(vals[KeyBonusDate])
	if q.bonusDate == today {
		q.bonus = validate.Int(vals[KeyBonusTaps], 0, math.MaxInt32)
	}
	q.unlimitedUntil = validate.Date(vals[KeyUnlimitedUntil])
	q.total = validate.Int(vals[KeyTotalTaps], 0, math.MaxInt32)
}

func (q *Quota) rollover() {
	today := clock.Day(q.clock.Now())
	if today == q.day {
		return
	}
	q.day = today
	q.count = 0
	if q.bonusDate != today {
		q.bonus = 0
	}
}

func (q *Quota) unlimited() bool {
	return q.unlimitedUntil != "" && q.unlimitedUntil >= q.day
}

func (q *Quota) limit() int {
	return q.base + q.bonus
}

func (q *Quota) remaining() int {
	r := q.limit() - q.count - q.reserved
	if r < 0 {
		return 0
	}
	return r
}

// Remaining is max(0, limit+bonus-count), ignoring admin and unlimited
// bypasses.
func (q *Quota) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	return q.remaining()
}

// IsLimitReached reports whether a new tap must be refused.
func (q *Quota) IsLimitReached(admin bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	if admin || q.unlimited() {
		return false
	}
	return q.remaining() == 0
}

// Reserve claims one tap. It fails when the budget is spent.
func (q *Quota) Reserve(admin bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	if !admin && !q.unlimited() && q.remaining() == 0 {
		return false
	}
	q.reserved++
	return true
}

// Release returns an uncommitted reservation.
func (q *Quota) Release() {
	q.mu.Lock()
	if q.reserved > 0 {
		q.reserved--
	}
	q.mu.Unlock()
}

// Commit counts one tap, consuming a reservation if one is held, and
// persists the new count. It returns the lifetime tap total.
func (q *Quota) Commit() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	if q.reserved > 0 {
		q.reserved--
	}
	q.count++
	if q.total < math.MaxInt32 {
		q.total++
	}
	q.persist.SaveMany(
		[2]string{KeyTapsToday, strconv.Itoa(q.count)},
		[2]string{KeyLastTapDate, q.day},
		[2]string{KeyTotalTaps, strconv.Itoa(q.total)},
	)
	return q.total
}

// AddBonus grants n extra taps valid until the end of today.
func (q *Quota) AddBonus(n int) {
	if n <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	if q.bonusDate != q.day {
		q.bonus = 0
	}
	q.bonus += n
	q.bonusDate = q.day
	q.persist.SaveMany(
		[2]string{KeyBonusTaps, strconv.Itoa(q.bonus)},
		[2]string{KeyBonusDate, q.bonusDate},
	)
}

// GrantUnlimited lifts the limit for the rest of today.
func (q *Quota) GrantUnlimited() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	q.unlimitedUntil = q.day
	q.persist.Save(KeyUnlimitedUntil, q.unlimitedUntil)
}

// AdminReset zeroes today's count.
func (q *Quota) AdminReset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	q.count = 0
	q.persist.SaveMany(
		[2]string{KeyTapsToday, "0"},
		[2]string{KeyLastTapDate, q.day},
	)
}

func (q *Quota) Snapshot() QuotaView {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	return QuotaView{
		Day:       q.day,
		Count:     q.count,
		Bonus:     q.bonus,
		Limit:     q.limit(),
		Reserved:  q.reserved,
		Remaining: q.remaining(),
		Unlimited: q.unlimited(),
		TotalTaps: q.total,
	}
}
