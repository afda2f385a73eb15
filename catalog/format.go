package catalog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/grovetools/nicepick/errors"
)

// Binary layout, all integers little-endian:
//
//	header   magic[4] version u16 count u32 checksum u64
//	entry    id u32, glyph u8+bytes, name u16+bytes, category u8,
//	         variant u32, keywords u8 + (u8+bytes)...
//	cats     count u8, then code u8, n u32, ids u32...
//	tokens   count u32, then token u8+bytes, n u32, ids u32...
//
// The checksum is xxhash64 over every byte after the header.
const (
	Magic         = "NPCK"
	FormatVersion = uint16(1)
	HeaderSize    = 4 + 2 + 4 + 8
)

var byteOrder = binary.LittleEndian

// Encode writes entries in the compiled catalog format. Index tables are
// derived from the entries.
func Encode(w io.Writer, entries []Entry) error {
	if err := validateEntries(entries); err != nil {
		return err
	}
	for _, e := range entries {
		if err := checkEncodable(e); err != nil {
			return err
		}
	}
	idx := buildIndex(entries)

	var body []byte
	for _, e := range entries {
		body = byteOrder.AppendUint32(body, e.ID)
		body = appendString8(body, e.Glyph)
		body = byteOrder.AppendUint16(body, uint16(len(e.Name)))
		body = append(body, e.Name...)
		body = append(body, byte(e.Category))
		body = byteOrder.AppendUint32(body, e.VariantGroup)
		body = append(body, byte(len(e.Keywords)))
		for _, kw := range e.Keywords {
			body = appendString8(body, kw)
		}
	}

	var cats []Category
	for c, positions := range idx.categories {
		if len(positions) > 0 {
			cats = append(cats, Category(c))
		}
	}
	body = append(body, byte(len(cats)))
	for _, c := range cats {
		body = append(body, byte(c))
		body = appendIDs(body, entries, idx.categories[c])
	}

	toks := make([]string, 0, len(idx.tokens))
	for tok := range idx.tokens {
		if len(tok) > math.MaxUint8 {
			return fmt.Errorf("token %q exceeds %d bytes", tok, math.MaxUint8)
		}
		toks = append(toks, tok)
	}
	sort.Strings(toks)
	body = byteOrder.AppendUint32(body, uint32(len(toks)))
	for _, tok := range toks {
		body = appendString8(body, tok)
		body = appendIDs(body, entries, idx.tokens[tok])
	}

	var header bytes.Buffer
	header.WriteString(Magic)
	_ = binary.Write(&header, byteOrder, FormatVersion)
	_ = binary.Write(&header, byteOrder, uint32(len(entries)))
	_ = binary.Write(&header, byteOrder, xxhash.Sum64(body))

	if _, err := w.Write(header.Bytes()); err != nil {
		return fmt.Errorf("write catalog header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write catalog body: %w", err)
	}
	return nil
}

func appendString8(b []byte, s string) []byte {
	b = append(b, byte(len(s)))
	return append(b, s...)
}

func appendIDs(b []byte, entries []Entry, positions []int) []byte {
	b = byteOrder.AppendUint32(b, uint32(len(positions)))
	for _, pos := range positions {
		b = byteOrder.AppendUint32(b, entries[pos].ID)
	}
	return b
}

func checkEncodable(e Entry) error {
	switch {
	case len(e.Glyph) > math.MaxUint8:
		return fmt.Errorf("entry %d: glyph exceeds %d bytes", e.ID, math.MaxUint8)
	case len(e.Name) > math.MaxUint16:
		return fmt.Errorf("entry %d: name exceeds %d bytes", e.ID, math.MaxUint16)
	case len(e.Keywords) > math.MaxUint8:
		return fmt.Errorf("entry %d: more than %d keywords", e.ID, math.MaxUint8)
	}
	for _, kw := range e.Keywords {
		if len(kw) > math.MaxUint8 {
			return fmt.Errorf("entry %d: keyword %q exceeds %d bytes", e.ID, kw, math.MaxUint8)
		}
	}
	return nil
}

// validateEntries enforces the entry invariants shared by Encode and Decode.
func validateEntries(entries []Entry) error {
	seen := make(map[uint32]struct{}, len(entries))
	for i, e := range entries {
		if _, dup := seen[e.ID]; dup {
			return errors.CatalogCorrupt(fmt.Sprintf("duplicate entry id %d", e.ID)).
				WithDetail("position", i)
		}
		seen[e.ID] = struct{}{}
		if e.Glyph == "" || e.Name == "" {
			return errors.CatalogCorrupt(fmt.Sprintf("entry %d has an empty glyph or name", e.ID))
		}
		if !e.Category.Valid() {
			return errors.CatalogCorrupt(fmt.Sprintf("entry %d has unknown category code %d", e.ID, uint8(e.Category)))
		}
		if len(e.Keywords) == 0 {
			return errors.CatalogCorrupt(fmt.Sprintf("entry %d has no keywords", e.ID))
		}
	}
	return nil
}
