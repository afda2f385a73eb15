// Package catalog loads the compiled emoji catalog and answers lookup,
// category and search queries from in-memory indices.
//
// A Catalog is immutable once built. All methods are safe for concurrent use
// without locking.
package catalog

import (
	"slices"
	"sort"
	"strings"
)

// Entry is a single emoji record.
type Entry struct {
	ID       uint32
	Glyph    string
	Name     string
	Category Category
	Keywords []string
	// VariantGroup links skin-tone or gender variants; zero means none.
	VariantGroup uint32
}

// Catalog is the immutable entry sequence plus its derived indices.
type Catalog struct {
	version uint16
	entries []Entry

	byID       map[uint32]int
	byCategory [numCategories][]Entry
	tokens     map[string][]int
	sorted     []string

	// lower-cased search keys, parallel to entries
	nameKeys    []string
	keywordKeys [][]string
	fuzzyKeys   []string
}

// Stats summarizes catalog contents.
type Stats struct {
	Version    uint16
	Entries    int
	Tokens     int
	Categories map[Category]int
}

// index holds the derived structures for an entry sequence.
type index struct {
	byID       map[uint32]int
	categories [numCategories][]int
	tokens     map[string][]int
}

// New builds a Catalog from entries after validating them.
func New(entries []Entry) (*Catalog, error) {
	if err := validateEntries(entries); err != nil {
		return nil, err
	}
	idx := buildIndex(entries)
	return newCatalog(FormatVersion, slices.Clone(entries), idx), nil
}

func newCatalog(version uint16, entries []Entry, idx index) *Catalog {
	c := &Catalog{
		version:     version,
		entries:     entries,
		byID:        idx.byID,
		tokens:      idx.tokens,
		nameKeys:    make([]string, len(entries)),
		keywordKeys: make([][]string, len(entries)),
		fuzzyKeys:   make([]string, len(entries)),
	}
	for cat, positions := range idx.categories {
		bucket := make([]Entry, len(positions))
		for i, pos := range positions {
			bucket[i] = entries[pos]
		}
		c.byCategory[cat] = bucket
	}

	c.sorted = make([]string, 0, len(idx.tokens))
	for tok := range idx.tokens {
		c.sorted = append(c.sorted, tok)
	}
	sort.Strings(c.sorted)

	for i, e := range entries {
		c.nameKeys[i] = normalize(e.Name)
		kws := make([]string, len(e.Keywords))
		for j, kw := range e.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		c.keywordKeys[i] = kws
		c.fuzzyKeys[i] = c.nameKeys[i] + " " + strings.Join(kws, " ")
	}
	return c
}

// Version returns the file format version the catalog was loaded from.
func (c *Catalog) Version() uint16 { return c.version }

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Entries returns all entries in insertion order. The slice must not be modified.
func (c *Catalog) Entries() []Entry { return slices.Clip(c.entries) }

// At returns the entry at insertion position i.
func (c *Catalog) At(i int) Entry { return c.entries[i] }

// Lookup returns the entry with the given id.
func (c *Catalog) Lookup(id uint32) (Entry, bool) {
	pos, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return c.entries[pos], true
}

// ByCategory returns the precomputed bucket for cat in insertion order.
// The slice must not be modified.
func (c *Catalog) ByCategory(cat Category) []Entry {
	if !cat.Valid() {
		return nil
	}
	return slices.Clip(c.byCategory[cat])
}

// Stats returns entry, token and per-category counts.
func (c *Catalog) Stats() Stats {
	s := Stats{
		Version:    c.version,
		Entries:    len(c.entries),
		Tokens:     len(c.tokens),
		Categories: make(map[Category]int),
	}
	for cat, bucket := range c.byCategory {
		if len(bucket) > 0 {
			s.Categories[Category(cat)] = len(bucket)
		}
	}
	return s
}

func buildIndex(entries []Entry) index {
	idx := index{
		byID:   make(map[uint32]int, len(entries)),
		tokens: make(map[string][]int),
	}
	for pos, e := range entries {
		idx.byID[e.ID] = pos
		idx.categories[e.Category] = append(idx.categories[e.Category], pos)
		for _, tok := range Tokens(e) {
			idx.tokens[tok] = append(idx.tokens[tok], pos)
		}
	}
	return idx
}

// Tokens returns the distinct search tokens for an entry: the words of its
// name followed by its keywords and their words, lower-cased.
func Tokens(e Entry) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(tok string) {
		if tok == "" {
			return
		}
		if _, ok := seen[tok]; ok {
			return
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	for _, w := range strings.Fields(normalize(e.Name)) {
		add(w)
	}
	for _, kw := range e.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		add(kw)
		for _, w := range strings.Fields(normalize(kw)) {
			add(w)
		}
	}
	return out
}

var separators = strings.NewReplacer("_", " ", "-", " ")

// normalize lower-cases s and treats underscores and hyphens as spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(separators.Replace(strings.ToLower(s))), " ")
}
