package catalog

import (
	"iter"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Tier is the match quality of a search result. Lower tiers rank first.
type Tier uint8

const (
	TierExact Tier = iota
	TierPrefix
	TierSubstring
	TierFuzzy

	tierEnd
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierPrefix:
		return "prefix"
	case TierSubstring:
		return "substring"
	case TierFuzzy:
		return "fuzzy"
	}
	return "unknown"
}

// Match is a ranked search result.
type Match struct {
	Entry Entry
	Tier  Tier
	// Score is only meaningful within TierFuzzy.
	Score int
}

// Matches is a one-shot cursor over the results of a single query. Tiers are
// computed only when the cursor reaches them, so taking the first few results
// of a broad query skips the expensive fuzzy pass. Issue a new Search for
// every query string.
type Matches struct {
	c     *Catalog
	query string
	raw   string
	tier  Tier
	buf   []Match
	seen  []bool
}

// Search returns the ranked results for query: exact name matches, then name
// or keyword prefix matches, then substring matches, then fuzzy matches. Each
// entry appears once, at its best tier. Ties within a tier keep catalog order,
// except fuzzy matches which order by score first.
func (c *Catalog) Search(query string) *Matches {
	return &Matches{
		c:     c,
		query: normalize(query),
		raw:   strings.TrimSpace(query),
		seen:  make([]bool, len(c.entries)),
	}
}

// Next returns the next result, or false once the sequence is exhausted.
func (m *Matches) Next() (Match, bool) {
	for len(m.buf) == 0 {
		if m.tier >= tierEnd {
			return Match{}, false
		}
		m.buf = m.collect(m.tier)
		m.tier++
	}
	next := m.buf[0]
	m.buf = m.buf[1:]
	return next, true
}

// All drains the remaining results as an iterator.
func (m *Matches) All() iter.Seq[Match] {
	return func(yield func(Match) bool) {
		for {
			next, ok := m.Next()
			if !ok || !yield(next) {
				return
			}
		}
	}
}

// Take returns up to k remaining results. k <= 0 takes everything.
func (m *Matches) Take(k int) []Match {
	var out []Match
	for next := range m.All() {
		out = append(out, next)
		if k > 0 && len(out) == k {
			break
		}
	}
	return out
}

func (m *Matches) collect(t Tier) []Match {
	var positions []int
	switch t {
	case TierExact:
		positions = m.exact()
	case TierPrefix:
		positions = m.prefix()
	case TierSubstring:
		positions = m.substring()
	case TierFuzzy:
		return m.fuzzy()
	}

	out := make([]Match, 0, len(positions))
	for _, pos := range positions {
		if m.seen[pos] {
			continue
		}
		m.seen[pos] = true
		out = append(out, Match{Entry: m.c.entries[pos], Tier: t})
	}
	return out
}

func (m *Matches) exact() []int {
	if m.query == "" {
		return nil
	}
	var out []int
	for pos, key := range m.c.nameKeys {
		if key == m.query || m.c.entries[pos].Glyph == m.raw {
			out = append(out, pos)
		}
	}
	return out
}

func (m *Matches) prefix() []int {
	hit := make(map[int]struct{})
	// Token prefixes via the sorted token list.
	if m.query != "" {
		start := sort.SearchStrings(m.c.sorted, m.query)
		for _, tok := range m.c.sorted[start:] {
			if !strings.HasPrefix(tok, m.query) {
				break
			}
			for _, pos := range m.c.tokens[tok] {
				hit[pos] = struct{}{}
			}
		}
	}
	var out []int
	for pos, key := range m.c.nameKeys {
		if _, ok := hit[pos]; ok || strings.HasPrefix(key, m.query) {
			out = append(out, pos)
		}
	}
	return out
}

func (m *Matches) substring() []int {
	if m.query == "" {
		return nil
	}
	var out []int
	for pos, key := range m.c.nameKeys {
		if strings.Contains(key, m.query) {
			out = append(out, pos)
			continue
		}
		for _, kw := range m.c.keywordKeys[pos] {
			if strings.Contains(kw, m.query) {
				out = append(out, pos)
				break
			}
		}
	}
	return out
}

func (m *Matches) fuzzy() []Match {
	if m.query == "" {
		return nil
	}
	found := fuzzy.FindFrom(m.query, fuzzySource(m.c.fuzzyKeys))
	// Within the tier only catalog position decides; Score is kept for
	// diagnostics.
	sort.Slice(found, func(i, j int) bool { return found[i].Index < found[j].Index })

	var out []Match
	for _, f := range found {
		if m.seen[f.Index] {
			continue
		}
		m.seen[f.Index] = true
		out = append(out, Match{Entry: m.c.entries[f.Index], Tier: TierFuzzy, Score: f.Score})
	}
	return out
}

// fuzzySource adapts the precomputed name+keyword strings to fuzzy.Source.
type fuzzySource []string

func (s fuzzySource) String(i int) string { return s[i] }
func (s fuzzySource) Len() int            { return len(s) }
