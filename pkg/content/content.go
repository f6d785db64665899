// Package content holds the static catalog: cards, decks, videos and
// purchasable products. The catalog is immutable once loaded.
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeAngry Mode = "angry"
	ModeSoft  Mode = "soft"
)

// Modes lists every mode in display order.
var Modes = []Mode{ModeAngry, ModeSoft}

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeAngry, ModeSoft:
		return Mode(s), true
	}
	return "", false
}

type Rarity string

const (
	Common    Rarity = "common"
	Rare      Rarity = "rare"
	Legendary Rarity = "legendary"
)

func ParseRarity(s string) (Rarity, bool) {
	switch Rarity(s) {
	case Common, Rare, Legendary:
		return Rarity(s), true
	}
	return "", false
}

var (
	ErrUnknownCard    = errors.New("unknown card")
	ErrUnknownDeck    = errors.New("unknown deck")
	ErrUnknownProduct = errors.New("unknown product")
)

// Face is the text shown for one mode of a card.
type Face struct {
	Hit       string `yaml:"hit"`
	Support   string `yaml:"support"`
	Diagnosis string `yaml:"diagnosis"`
}

type Card struct {
	ID     int    `yaml:"id"`
	Theme  string `yaml:"theme"`
	Rarity Rarity `yaml:"rarity"`
	Angry  Face   `yaml:"angry"`
	Soft   Face   `yaml:"soft"`
}

// Face returns the card text for m.
func (c Card) Face(m Mode) Face {
	if m == ModeSoft {
		return c.Soft
	}
	return c.Angry
}

// Deck is a themed sub-pool. A deck without themes covers every card.
type Deck struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Themes []string `yaml:"themes"`
}

type Product struct {
	ID        string `yaml:"id"`
	Title     string `yaml:"title"`
	Price     int    `yaml:"price"`
	BonusTaps int    `yaml:"bonus_taps"`
	Unlimited bool   `yaml:"unlimited_day"`
}

type Catalog struct {
	cards    []Card
	byID     map[int]int
	decks    []Deck
	videos   map[Mode][]string
	products []Product
}

type catalogFile struct {
	Cards    []Card              `yaml:"cards"`
	Decks    []Deck              `yaml:"decks"`
	Videos   map[string][]string `yaml:"videos"`
	Products []Product           `yaml:"products"`
}

//go:embed default.yaml
var defaultYAML []byte

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("content: built-in catalog is invalid: %v", err))
	}
	return c
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and checks a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c := &Catalog{
		cards:    f.Cards,
		byID:     make(map[int]int, len(f.Cards)),
		decks:    f.Decks,
		videos:   map[Mode][]string{},
		products: f.Products,
	}
	if len(c.cards) == 0 {
		return nil, errors.New("catalog has no cards")
	}
	for i, card := range c.cards {
		if _, dup := c.byID[card.ID]; dup {
			return nil, fmt.Errorf("duplicate card id %d", card.ID)
		}
		switch card.Rarity {
		case Common, Rare, Legendary:
		case "":
			c.cards[i].Rarity = Common
		default:
			return nil, fmt.Errorf("card %d: unknown rarity %q", card.ID, card.Rarity)
		}
		c.byID[card.ID] = i
	}
	for k, v := range f.Videos {
		m, ok := ParseMode(k)
		if !ok {
			return nil, fmt.Errorf("videos: unknown mode %q", k)
		}
		c.videos[m] = v
	}
	return c, nil
}

func (c *Catalog) Cards() []Card {
	return c.cards
}

// Total is the number of distinct cards.
func (c *Catalog) Total() int {
	return len(c.cards)
}

func (c *Catalog) Card(id int) (Card, error) {
	i, ok := c.byID[id]
	if !ok {
		return Card{}, fmt.Errorf("%w: %d", ErrUnknownCard, id)
	}
	return c.cards[i], nil
}

func (c *Catalog) Decks() []Deck {
	return c.decks
}

// CardsForDeck returns the cards whose theme belongs to the deck. An
// empty deck id selects every card.
func (c *Catalog) CardsForDeck(id string) ([]Card, error) {
	if id == "" {
		return c.cards, nil
	}
	for _, d := range c.decks {
		if d.ID != id {
			continue
		}
		if len(d.Themes) == 0 {
			return c.cards, nil
		}
		var out []Card
		for _, card := range c.cards {
			for _, th := range d.Themes {
				if card.Theme == th {
					out = append(out, card)
					break
				}
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownDeck, id)
}

func (c *Catalog) Videos(m Mode) []string {
	return c.videos[m]
}

func (c *Catalog) Products() []Product {
	return c.products
}

func (c *Catalog) Product(id string) (Product, error) {
	for _, p := range c.products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, fmt.Errorf("%w: %s", ErrUnknownProduct, id)
}
