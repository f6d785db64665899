package content

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	if c.Total() != 14 {
		t.Fatalf("Total = %d", c.Total())
	}
	card, err := c.Card(14)
	if err != nil {
		t.Fatalf("Card(14): %v", err)
	}
	if card.Rarity != Legendary {
		t.Fatalf("card 14 rarity = %s", card.Rarity)
	}
	if card.Face(ModeSoft).Diagnosis == card.Face(ModeAngry).Diagnosis {
		t.Fatalf("faces should differ per mode")
	}
	if len(c.Videos(ModeAngry)) != 10 || len(c.Videos(ModeSoft)) != 12 {
		t.Fatalf("videos = %d/%d", len(c.Videos(ModeAngry)), len(c.Videos(ModeSoft)))
	}
	if _, err := c.Card(999); !errors.Is(err, ErrUnknownCard) {
		t.Fatalf("expected ErrUnknownCard, got %v", err)
	}
}

func TestCardsForDeck(t *testing.T) {
	c := Default()
	tests := []struct {
		deck string
		want int
	}{
		{"", 14},
		{"all", 14},
		{"work", 3},
		{"relations", 4},
		{"meaning", 5},
		{"lifestyle", 2},
	}
	for _, tt := range tests {
		got, err := c.CardsForDeck(tt.deck)
		if err != nil {
			t.Fatalf("CardsForDeck(%q): %v", tt.deck, err)
		}
		if len(got) != tt.want {
			t.Errorf("CardsForDeck(%q) = %d cards, want %d", tt.deck, len(got), tt.want)
		}
	}
	if _, err := c.CardsForDeck("nope"); !errors.Is(err, ErrUnknownDeck) {
		t.Fatalf("expected ErrUnknownDeck, got %v", err)
	}
}

func TestProducts(t *testing.T) {
	c := Default()
	p, err := c.Product("taps_5")
	if err != nil || p.BonusTaps != 5 {
		t.Fatalf("taps_5 = %+v, %v", p, err)
	}
	p, err = c.Product("unlimited_day")
	if err != nil || !p.Unlimited {
		t.Fatalf("unlimited_day = %+v, %v", p, err)
	}
	if _, err := c.Product("x"); !errors.Is(err, ErrUnknownProduct) {
		t.Fatalf("expected ErrUnknownProduct, got %v", err)
	}
}

func TestLoadRejectsBadCatalogs(t *testing.T) {
	tests := map[string]string{
		"empty":     "cards: []",
		"duplicate": "cards:\n  - id: 1\n  - id: 1\n",
		"rarity":    "cards:\n  - id: 1\n    rarity: mythic\n",
		"mode":      "cards:\n  - id: 1\nvideos:\n  grumpy: [a.mp4]\n",
		"syntax":    "cards: [",
	}
	for name, doc := range tests {
		if _, err := Load(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadDefaultsRarity(t *testing.T) {
	c, err := Load(strings.NewReader("cards:\n  - id: 7\n    theme: fear\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	card, _ := c.Card(7)
	if card.Rarity != Common {
		t.Fatalf("rarity = %q, want common", card.Rarity)
	}
}

func TestParseMode(t *testing.T) {
	if m, ok := ParseMode("soft"); !ok || m != ModeSoft {
		t.Fatalf("soft not parsed")
	}
	if _, ok := ParseMode("SOFT"); ok {
		t.Fatalf("mode parsing should be exact")
	}
}
