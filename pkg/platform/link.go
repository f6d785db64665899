package platform

import (
	"net/url"
	"strconv"
	"strings"
)

// BuildShareURL appends the card deep link fragment to appURL.
func BuildShareURL(appURL string, sc ShareContext) string {
	if sc.CardID <= 0 || sc.Mode == "" {
		return appURL
	}
	base := appURL
	if i := strings.IndexByte(base, '#'); i >= 0 {
		base = base[:i]
	}
	return base + "#card=" + strconv.Itoa(sc.CardID) + "&mode=" + url.QueryEscape(sc.Mode)
}

// ParseFragment reads card and mode from a "card=<id>&mode=<m>"
// fragment. A leading '#' is ignored. ok is false when either part is
// missing or the id is not a positive integer.
func ParseFragment(fragment string) (cardID int, mode string, ok bool) {
	fragment = strings.TrimPrefix(fragment, "#")
	q, err := url.ParseQuery(fragment)
	if err != nil {
		return 0, "", false
	}
	id, err := strconv.Atoi(q.Get("card"))
	if err != nil || id <= 0 {
		return 0, "", false
	}
	mode = q.Get("mode")
	if mode == "" {
		return 0, "", false
	}
	return id, mode, true
}
