package progress

// Storage keys. Each subsystem owns a disjoint set.
const (
	KeyTapsToday      = "tapsToday"
	KeyLastTapDate    = "lastTapDate"
	KeyBonusTaps      = "bonusTaps"
	KeyBonusDate      = "bonusDate"
	KeyUnlimitedUntil = "unlimitedUntil"
	KeyTotalTaps      = "totalTaps"

	KeyStreakCount   = "streakCount"
	KeyLastVisitDate = "lastVisitDate"

	KeyCollection = "diagnosisCollection"

	KeyLevel = "krevetka_level"

	KeyAchievements = "achievements"

	KeyNotificationsAllowed = "notifications_allowed"
	KeyNotificationAsked    = "notification_asked"
	KeyLastVisitTimestamp   = "last_visit_timestamp"
)

// AllKeys lists every key this package writes.
var AllKeys = []string{
	KeyTapsToday, KeyLastTapDate, KeyBonusTaps, KeyBonusDate, KeyUnlimitedUntil, KeyTotalTaps,
	KeyStreakCount, KeyLastVisitDate,
	KeyCollection,
	KeyLevel,
	KeyAchievements,
	KeyNotificationsAllowed, KeyNotificationAsked, KeyLastVisitTimestamp,
}
