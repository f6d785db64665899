package platform

import (
	"net/url"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// Environment is everything detection looks at. It is built once at
// startup from whatever the runtime exposes.
type Environment struct {
	TelegramWebApp   bool   // the Telegram WebApp object is present
	TelegramInitData string // raw initData, empty outside a Telegram launch
	LaunchQuery      string // launch URL query, without the leading '?'
	Referrer         string
}

// EnvironmentFromURL builds an Environment from a launch URL and a
// referrer, which is all a non-embedded runtime can see.
func EnvironmentFromURL(launchURL, referrer string) Environment {
	env := Environment{Referrer: referrer}
	if u, err := url.Parse(launchURL); err == nil {
		env.LaunchQuery = u.RawQuery
		if data := u.Query().Get("tgWebAppData"); data != "" {
			env.TelegramWebApp = true
			env.TelegramInitData = data
		}
	}
	return env
}

// Detector scores how strongly env indicates its profile, in [0, 1].
type Detector struct {
	Profile Profile
	Match   func(Environment) float64
}

// DefaultDetectors, strongest signal first.
var DefaultDetectors = []Detector{
	{Telegram, func(e Environment) float64 {
		if e.TelegramWebApp && e.TelegramInitData != "" {
			return 1
		}
		return 0
	}},
	{VK, func(e Environment) float64 {
		if hasVKParams(e.LaunchQuery) || vkReferrer(e.Referrer) {
			return 0.9
		}
		return 0
	}},
	{Telegram, func(e Environment) float64 {
		if e.TelegramWebApp {
			return 0.5
		}
		return 0
	}},
	{Browser, func(Environment) float64 { return 0.1 }},
}

// Detect picks the profile with the highest confidence. Ties go to the
// detector listed first; with no match at all the result is Browser.
func Detect(env Environment, detectors ...Detector) Profile {
	if len(detectors) == 0 {
		detectors = DefaultDetectors
	}
	best, bestScore := Browser, 0.0
	for _, d := range detectors {
		if s := d.Match(env); s > bestScore {
			best, bestScore = d.Profile, s
		}
	}
	return best
}

func hasVKParams(rawQuery string) bool {
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return strings.Contains(rawQuery, "vk_")
	}
	for k := range q {
		if strings.HasPrefix(k, "vk_") {
			return true
		}
	}
	return false
}

var vkDomains = map[string]bool{"vk.com": true, "vk.ru": true}

func vkReferrer(ref string) bool {
	if ref == "" {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Hostname() == "" {
		return false
	}
	domain, err := publicsuffix.Domain(strings.ToLower(u.Hostname()))
	if err != nil {
		return false
	}
	return vkDomains[domain]
}
