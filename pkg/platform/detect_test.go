package platform

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		env  Environment
		want Profile
	}{
		{"empty", Environment{}, Browser},
		{"telegram launch", Environment{TelegramWebApp: true, TelegramInitData: "user=%7B%22id%22%3A1%7D"}, Telegram},
		{"vk params", Environment{LaunchQuery: "vk_user_id=1&vk_app_id=2"}, VK},
		{"vk mobile referrer", Environment{Referrer: "https://m.vk.com/app54437141"}, VK},
		{"vk.ru referrer", Environment{Referrer: "https://vk.ru/"}, VK},
		{"lookalike referrer", Environment{Referrer: "https://notvk.com/"}, Browser},
		{"telegram sdk without init data", Environment{TelegramWebApp: true}, Telegram},
		{"telegram sdk loaded inside vk", Environment{TelegramWebApp: true, LaunchQuery: "vk_user_id=1"}, VK},
		{"telegram launch wins over vk", Environment{TelegramWebApp: true, TelegramInitData: "x", Referrer: "https://vk.com"}, Telegram},
		{"admin only", Environment{LaunchQuery: "admin=true"}, Browser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.env); got != tt.want {
				t.Fatalf("Detect = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDetectTieGoesToFirst(t *testing.T) {
	ds := []Detector{
		{VK, func(Environment) float64 { return 0.5 }},
		{Telegram, func(Environment) float64 { return 0.5 }},
	}
	if got := Detect(Environment{}, ds...); got != VK {
		t.Fatalf("Detect = %s, want vk", got)
	}
}

func TestEnvironmentFromURL(t *testing.T) {
	env := EnvironmentFromURL("https://example.org/app?vk_user_id=5&tgWebAppData=abc", "https://vk.com")
	if env.LaunchQuery != "vk_user_id=5&tgWebAppData=abc" {
		t.Fatalf("LaunchQuery = %q", env.LaunchQuery)
	}
	if !env.TelegramWebApp || env.TelegramInitData != "abc" {
		t.Fatalf("telegram fields = %+v", env)
	}
}

func TestShareLinks(t *testing.T) {
	tests := []struct {
		app  string
		sc   ShareContext
		want string
	}{
		{"https://vk.com/app54437141", ShareContext{CardID: 12, Mode: "angry"}, "https://vk.com/app54437141#card=12&mode=angry"},
		{"https://vk.com/app54437141#old", ShareContext{CardID: 1, Mode: "soft"}, "https://vk.com/app54437141#card=1&mode=soft"},
		{"https://t.me/bot", ShareContext{}, "https://t.me/bot"},
	}
	for _, tt := range tests {
		if got := BuildShareURL(tt.app, tt.sc); got != tt.want {
			t.Errorf("BuildShareURL(%q) = %q, want %q", tt.app, got, tt.want)
		}
	}
}

func TestParseFragment(t *testing.T) {
	tests := []struct {
		in   string
		id   int
		mode string
		ok   bool
	}{
		{"#card=12&mode=angry", 12, "angry", true},
		{"mode=soft&card=3", 3, "soft", true},
		{"#card=abc&mode=soft", 0, "", false},
		{"#card=-1&mode=soft", 0, "", false},
		{"#card=4", 0, "", false},
		{"", 0, "", false},
		{"%zz", 0, "", false},
	}
	for _, tt := range tests {
		id, mode, ok := ParseFragment(tt.in)
		if id != tt.id || mode != tt.mode || ok != tt.ok {
			t.Errorf("ParseFragment(%q) = %d, %q, %v", tt.in, id, mode, ok)
		}
	}
}
