// Package validate coerces raw values read from the key/value store into
// safe, bounded shapes. Nothing here returns an error: malformed input
// becomes the documented default.
package validate

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	MaxCollection      = 100
	MaxDiagnosisLen    = 500
	MaxXP              = 100000
	MaxStreak          = 365
	MaxAchievementID   = 50
	MaxSessions        = 10000
	dayLayout          = "2006-01-02"
	maxCounterKeyBytes = 50
)

// CollectionEntry is one discovered (card, mode) pair.
type CollectionEntry struct {
	ID        int    `json:"id"`
	Mode      string `json:"mode"`
	Diagnosis string `json:"diagnosis"`
	Date      string `json:"date,omitempty"`
}

type LevelData struct {
	XP             int    `json:"xp"`
	LastDailyBonus string `json:"lastDailyBonus,omitempty"`
}

// ParseInt mimics a lenient prefix integer parse: leading spaces and an
// optional sign are accepted, parsing stops at the first non-digit, and
// input without digits yields 0.
func ParseInt(s string) int {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		// overflow
		n = 1<<62 - 1
	}
	if neg {
		n = -n
	}
	return int(n)
}

// Int parses s and clamps it into [min, max].
func Int(s string, min, max int) int {
	return clamp(ParseInt(s), min, max)
}

// Bool is true only for the literal "true".
func Bool(s string) bool {
	return s == "true"
}

// Date returns s when it is a well-formed calendar day, otherwise "".
func Date(s string) string {
	if _, err := time.Parse(dayLayout, s); err != nil {
		return ""
	}
	return s
}

// Timestamp parses an epoch-milliseconds value. Negative or missing
// values become 0.
func Timestamp(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Streak validates a stored streak count.
func Streak(s string) int {
	return Int(s, 0, MaxStreak)
}

// Collection parses a stored JSON array of entries, dropping malformed
// ones and keeping the most recent MaxCollection.
func Collection(raw string) []CollectionEntry {
	if !gjson.Valid(raw) {
		return []CollectionEntry{}
	}
	doc := gjson.Parse(raw)
	if !doc.IsArray() {
		return []CollectionEntry{}
	}
	out := []CollectionEntry{}
	doc.ForEach(func(_, item gjson.Result) bool {
		id := item.Get("id")
		mode := item.Get("mode")
		diag := item.Get("diagnosis")
		if !item.IsObject() || id.Type != gjson.Number || mode.Type != gjson.String || diag.Type != gjson.String {
			return true
		}
		if mode.Str != "angry" && mode.Str != "soft" {
			return true
		}
		if utf8.RuneCountInString(diag.Str) >= MaxDiagnosisLen {
			return true
		}
		e := CollectionEntry{ID: int(id.Int()), Mode: mode.Str, Diagnosis: diag.Str}
		if d := item.Get("date"); d.Type == gjson.String {
			e.Date = d.Str
		}
		out = append(out, e)
		return true
	})
	if len(out) > MaxCollection {
		out = out[len(out)-MaxCollection:]
	}
	return out
}

// Level parses the stored level blob.
func Level(raw string) LevelData {
	if !gjson.Valid(raw) {
		return LevelData{}
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return LevelData{}
	}
	var d LevelData
	if xp := doc.Get("xp"); xp.Type == gjson.Number {
		// clamp before converting, a huge float does not fit an int
		d.XP = int(math.Max(0, math.Min(xp.Float(), MaxXP)))
	}
	if b := doc.Get("lastDailyBonus"); b.Type == gjson.String {
		d.LastDailyBonus = b.Str
	}
	return d
}

// Achievements parses a stored JSON array of achievement ids. Duplicates
// are collapsed, first occurrence wins.
func Achievements(raw string) []string {
	out := []string{}
	if !gjson.Valid(raw) {
		return out
	}
	doc := gjson.Parse(raw)
	if !doc.IsArray() {
		return out
	}
	seen := map[string]bool{}
	doc.ForEach(func(_, item gjson.Result) bool {
		if item.Type != gjson.String || len(item.Str) >= MaxAchievementID || seen[item.Str] {
			return true
		}
		seen[item.Str] = true
		out = append(out, item.Str)
		return true
	})
	return out
}

// Analytics returns a normalized copy of the stored rollup document. Only
// known fields survive; counters must be non-negative numbers.
func Analytics(raw string) string {
	doc := gjson.Result{}
	if gjson.Valid(raw) {
		doc = gjson.Parse(raw)
	}
	out := `{"events":{},"sessions":0,"rarities":{"common":0,"rare":0,"legendary":0},"modes":{"angry":0,"soft":0},"decks":{}}`
	if !doc.IsObject() {
		return out
	}
	for _, field := range []string{"events", "rarities", "modes", "decks"} {
		out = copyCounters(out, field, doc.Get(field))
	}
	if s := doc.Get("sessions"); s.Type == gjson.Number {
		out, _ = sjson.Set(out, "sessions", int(math.Max(0, math.Min(s.Float(), MaxSessions))))
	}
	for _, field := range []string{"firstVisit", "lastVisit", "lastSessionStart", "platform"} {
		if v := doc.Get(field); v.Type == gjson.String {
			out, _ = sjson.Set(out, field, v.Str)
		}
	}
	return out
}

func copyCounters(out, field string, src gjson.Result) string {
	if !src.IsObject() {
		return out
	}
	src.ForEach(func(k, v gjson.Result) bool {
		if v.Type != gjson.Number || !CounterKey(k.Str) {
			return true
		}
		n := int64(math.Max(0, math.Min(v.Float(), math.MaxInt32)))
		out, _ = sjson.Set(out, field+"."+k.Str, n)
		return true
	})
	return out
}

// CounterKey reports whether k is safe to use as a rollup path segment.
func CounterKey(k string) bool {
	if k == "" || len(k) > maxCounterKeyBytes {
		return false
	}
	return !strings.ContainsAny(k, ".*?|#@\\:!=<>%\"")
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
