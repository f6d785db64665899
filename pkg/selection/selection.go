// Package selection draws the next card and video with bounded
// anti-repeat history and weighted rarity, using a CSPRNG by default.
package selection

import (
	"crypto/rand"
	"errors"
	"math/big"
	"sync"

	"github.com/krevetka/krevetka/pkg/content"
)

const (
	CardHistoryCap  = 10
	VideoHistoryCap = 3
)

var ErrEmptyPool = errors.New("selection: empty pool")

// Source yields uniform integers in [0, n).
type Source interface {
	Intn(n int) int
}

// CryptoSource reads from crypto/rand.
type CryptoSource struct{}

func (CryptoSource) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// TierWeight is one row of a rarity table. Weights are relative.
type TierWeight struct {
	Rarity content.Rarity
	Weight int
}

// DefaultRarity is 5% legendary, 15% rare, 80% common, in basis points.
// Rows are checked in order, rarest first.
var DefaultRarity = []TierWeight{
	{content.Legendary, 500},
	{content.Rare, 1500},
	{content.Common, 8000},
}

type Engine struct {
	mu     sync.Mutex
	src    Source
	table  []TierWeight
	total  int
	cards  fifo[int]
	videos fifo[string]
}

type Option func(*Engine)

func WithSource(s Source) Option {
	return func(e *Engine) { e.src = s }
}

func WithRarity(table []TierWeight) Option {
	return func(e *Engine) { e.table = table }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		src:    CryptoSource{},
		table:  DefaultRarity,
		cards:  fifo[int]{cap: CardHistoryCap},
		videos: fifo[string]{cap: VideoHistoryCap},
	}
	for _, o := range opts {
		o(e)
	}
	for _, row := range e.table {
		if row.Weight > 0 {
			e.total += row.Weight
		}
	}
	return e
}

// DrawRarity samples a tier from the rarity table.
func (e *Engine) DrawRarity() content.Rarity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drawRarity()
}

func (e *Engine) drawRarity() content.Rarity {
	if e.total <= 0 {
		return content.Common
	}
	roll := e.src.Intn(e.total)
	cum := 0
	for _, row := range e.table {
		if row.Weight <= 0 {
			continue
		}
		cum += row.Weight
		if roll < cum {
			return row.Rarity
		}
	}
	return e.table[len(e.table)-1].Rarity
}

// SelectCard picks the next card from pool. Cards in the recent history
// are skipped unless that would leave nothing. The drawn tier is honored
// among the cards not seen recently; when none of them has that tier any
// of them may be picked, so a card repeats only once every card of the
// pool is in the history.
func (e *Engine) SelectCard(pool []content.Card) (content.Card, error) {
	if len(pool) == 0 {
		return content.Card{}, ErrEmptyPool
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	available := make([]content.Card, 0, len(pool))
	for _, c := range pool {
		if !e.cards.contains(c.ID) {
			available = append(available, c)
		}
	}
	if len(available) == 0 {
		available = pool
	}

	tier := e.drawRarity()
	candidates := byRarity(available, tier)
	if len(candidates) == 0 {
		candidates = append([]content.Card(nil), available...)
	}

	shuffle(e.src, candidates)
	picked := candidates[0]
	e.cards.push(picked.ID)
	return picked, nil
}

// SelectVideo picks the next asset, avoiding the last few. Once every
// asset is in the history the history is cleared.
func (e *Engine) SelectVideo(assets []string) (string, error) {
	switch len(assets) {
	case 0:
		return "", ErrEmptyPool
	case 1:
		return assets[0], nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var available []string
	for _, a := range assets {
		if !e.videos.contains(a) {
			available = append(available, a)
		}
	}
	if len(available) == 0 {
		e.videos.clear()
		available = assets
	}
	picked := available[e.src.Intn(len(available))]
	e.videos.push(picked)
	return picked, nil
}

// Reset clears both histories.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.cards.clear()
	e.videos.clear()
	e.mu.Unlock()
}

// CardHistory returns the recent card ids, oldest first.
func (e *Engine) CardHistory() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.cards.items...)
}

func (e *Engine) VideoHistory() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.videos.items...)
}

func byRarity(cards []content.Card, r content.Rarity) []content.Card {
	var out []content.Card
	for _, c := range cards {
		if c.Rarity == r {
			out = append(out, c)
		}
	}
	return out
}

// shuffle is Fisher-Yates over src.
func shuffle[T any](src Source, s []T) {
	for i := len(s) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

type fifo[T comparable] struct {
	cap   int
	items []T
}

func (f *fifo[T]) push(v T) {
	f.items = append(f.items, v)
	if len(f.items) > f.cap {
		f.items = f.items[len(f.items)-f.cap:]
	}
}

func (f *fifo[T]) contains(v T) bool {
	for _, it := range f.items {
		if it == v {
			return true
		}
	}
	return false
}

func (f *fifo[T]) clear() {
	f.items = nil
}
