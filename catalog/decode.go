package catalog

import (
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/grovetools/nicepick/errors"
)

// Decode validates and parses a compiled catalog. It fails with
// CATALOG_VERSION_MISMATCH for an unsupported version and CATALOG_CORRUPT for
// any structural problem, including index tables that disagree with the
// entries. The returned Catalog does not retain data.
func Decode(data []byte) (*Catalog, error) {
	if len(data) < HeaderSize {
		return nil, errors.CatalogCorrupt(fmt.Sprintf("file is %d bytes, shorter than the header", len(data)))
	}
	if string(data[:4]) != Magic {
		return nil, errors.CatalogCorrupt(fmt.Sprintf("bad magic %q", data[:4]))
	}
	version := byteOrder.Uint16(data[4:6])
	if version != FormatVersion {
		return nil, errors.CatalogVersionMismatch(version, FormatVersion)
	}
	count := byteOrder.Uint32(data[6:10])
	sum := byteOrder.Uint64(data[10:18])

	body := data[HeaderSize:]
	if got := xxhash.Sum64(body); got != sum {
		return nil, errors.CatalogCorrupt("checksum mismatch").
			WithDetail("want", fmt.Sprintf("%016x", sum)).
			WithDetail("got", fmt.Sprintf("%016x", got))
	}

	r := &reader{buf: body}
	// Each entry needs at least 13 bytes, which bounds the allocation.
	if uint64(count)*13 > uint64(len(body)) {
		return nil, errors.CatalogCorrupt(fmt.Sprintf("entry count %d does not fit in %d bytes", count, len(body)))
	}
	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		e := Entry{ID: r.u32()}
		e.Glyph = string(r.bytes(int(r.u8())))
		e.Name = string(r.bytes(int(r.u16())))
		e.Category = Category(r.u8())
		e.VariantGroup = r.u32()
		n := int(r.u8())
		for k := 0; k < n && r.err == nil; k++ {
			e.Keywords = append(e.Keywords, string(r.bytes(int(r.u8()))))
		}
		if r.err != nil {
			return nil, errors.CatalogCorrupt(fmt.Sprintf("entry %d: %v", i, r.err))
		}
		entries = append(entries, e)
	}
	if err := validateEntries(entries); err != nil {
		return nil, err
	}

	idx := buildIndex(entries)
	if err := verifyTables(r, entries, idx); err != nil {
		return nil, err
	}
	if r.off != len(r.buf) {
		return nil, errors.CatalogCorrupt(fmt.Sprintf("%d trailing bytes after index tables", len(r.buf)-r.off))
	}

	return newCatalog(version, entries, idx), nil
}

// verifyTables reads the serialized index tables and checks that they are
// exactly the indices derived from entries.
func verifyTables(r *reader, entries []Entry, idx index) error {
	wantIDs := func(positions []int) []uint32 {
		ids := make([]uint32, len(positions))
		for i, pos := range positions {
			ids[i] = entries[pos].ID
		}
		return ids
	}

	nonEmpty := 0
	for _, positions := range idx.categories {
		if len(positions) > 0 {
			nonEmpty++
		}
	}
	ncat := int(r.u8())
	if r.err == nil && ncat != nonEmpty {
		return errors.CatalogCorrupt(fmt.Sprintf("category table has %d buckets, entries span %d", ncat, nonEmpty))
	}
	var seenCat [numCategories]bool
	for i := 0; i < ncat && r.err == nil; i++ {
		code := Category(r.u8())
		ids := r.ids()
		if r.err != nil {
			break
		}
		if !code.Valid() || seenCat[code] || !slices.Equal(ids, wantIDs(idx.categories[code])) {
			return errors.CatalogCorrupt(fmt.Sprintf("category bucket %s disagrees with entries", code))
		}
		seenCat[code] = true
	}

	ntok := int(r.u32())
	if r.err == nil && ntok != len(idx.tokens) {
		return errors.CatalogCorrupt(fmt.Sprintf("token table has %d tokens, entries yield %d", ntok, len(idx.tokens)))
	}
	seenTok := make(map[string]struct{}, ntok)
	for i := 0; i < ntok && r.err == nil; i++ {
		tok := string(r.bytes(int(r.u8())))
		ids := r.ids()
		if r.err != nil {
			break
		}
		positions, ok := idx.tokens[tok]
		if _, dup := seenTok[tok]; dup || !ok || !slices.Equal(ids, wantIDs(positions)) {
			return errors.CatalogCorrupt(fmt.Sprintf("token %q disagrees with entries", tok))
		}
		seenTok[tok] = struct{}{}
	}
	if r.err != nil {
		return errors.CatalogCorrupt(fmt.Sprintf("index tables: %v", r.err))
	}
	return nil
}

// reader is a bounds-checked cursor; the first failure sticks.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = fmt.Errorf("truncated at offset %d (need %d bytes)", r.off, n)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return byteOrder.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return byteOrder.Uint32(b)
}

func (r *reader) ids() []uint32 {
	n := int(r.u32())
	if r.err != nil {
		return nil
	}
	if n*4 > len(r.buf)-r.off {
		r.err = fmt.Errorf("id list of %d overruns buffer at offset %d", n, r.off)
		return nil
	}
	ids := make([]uint32, n)
	for i := range ids {
		ids[i] = r.u32()
	}
	return ids
}
