package progress

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/krevetka/krevetka/pkg/clock"
	"github.com/krevetka/krevetka/pkg/content"
	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/krevetka/krevetka/pkg/validate"
)

// RecentCount is how many entries Stats reports as recent.
const RecentCount = 10

type CollectionStats struct {
	Total       int
	Unique      int
	Angry       int
	Soft        int
	MaxPossible int
	Percent     int
	RareFinds   int
	Recent      []validate.CollectionEntry // newest first
}

// Collection is the bounded log of discovered (card, mode) pairs.
type Collection struct {
	clock   clock.Clock
	persist *Persister
	catalog *content.Catalog
	log     platform.Logger

	mu      sync.Mutex
	entries []validate.CollectionEntry
}

func NewCollection(c clock.Clock, p *Persister, cat *content.Catalog, log platform.Logger) *Collection {
	if log == nil {
		log = platform.NopLogger()
	}
	return &Collection{clock: c, persist: p, catalog: cat, log: log, entries: []validate.CollectionEntry{}}
}

func (c *Collection) Load(ctx context.Context, s Store) {
	vals := s.StorageGet(ctx, []string{KeyCollection})
	entries := validate.Collection(vals[KeyCollection])
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
}

func (c *Collection) has(id int, mode content.Mode) bool {
	for _, e := range c.entries {
		if e.ID == id && e.Mode == string(mode) {
			return true
		}
	}
	return false
}

func (c *Collection) Has(id int, mode content.Mode) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.has(id, mode)
}

// Add records card in mode. It reports false, and changes nothing, when
// the pair is already collected.
func (c *Collection) Add(card content.Card, mode content.Mode) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.has(card.ID, mode) {
		return false
	}
	diag := []rune(card.Face(mode).Diagnosis)
	if len(diag) >= validate.MaxDiagnosisLen {
		diag = diag[:validate.MaxDiagnosisLen-1]
	}
	c.entries = append(c.entries, validate.CollectionEntry{
		ID:        card.ID,
		Mode:      string(mode),
		Diagnosis: string(diag),
		Date:      c.clock.Now().UTC().Format(time.RFC3339),
	})
	if len(c.entries) > validate.MaxCollection {
		c.entries = append([]validate.CollectionEntry(nil), c.entries[len(c.entries)-validate.MaxCollection:]...)
	}
	raw, err := json.Marshal(c.entries)
	if err != nil {
		c.log.Errorf("collection: encode: %v", err)
		return true
	}
	c.persist.Save(KeyCollection, string(raw))
	return true
}

// Entries returns a copy of the log, oldest first.
func (c *Collection) Entries() []validate.CollectionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]validate.CollectionEntry(nil), c.entries...)
}

// Stats derives counters from the current log.
func (c *Collection) Stats() CollectionStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := CollectionStats{Total: len(c.entries)}
	type pair struct {
		id   int
		mode string
	}
	seen := map[pair]bool{}
	for _, e := range c.entries {
		key := pair{e.ID, e.Mode}
		if seen[key] {
			continue
		}
		seen[key] = true
		st.Unique++
		switch content.Mode(e.Mode) {
		case content.ModeAngry:
			st.Angry++
		case content.ModeSoft:
			st.Soft++
		}
		if card, err := c.catalog.Card(e.ID); err == nil && card.Rarity != content.Common {
			st.RareFinds++
		}
	}
	st.MaxPossible = c.catalog.Total() * len(content.Modes)
	if st.MaxPossible > 0 {
		st.Percent = int(math.Round(float64(st.Unique) / float64(st.MaxPossible) * 100))
	}
	n := RecentCount
	if n > len(c.entries) {
		n = len(c.entries)
	}
	st.Recent = make([]validate.CollectionEntry, 0, n)
	for i := len(c.entries) - 1; i >= len(c.entries)-n; i-- {
		st.Recent = append(st.Recent, c.entries[i])
	}
	return st
}
