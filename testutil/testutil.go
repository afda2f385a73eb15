package testutil

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grovetools/nicepick/catalog"
)

// SampleEntries returns a small catalog covering several categories and
// tiers of the ranking.
func SampleEntries() []catalog.Entry {
	return []catalog.Entry{
		{ID: 1, Glyph: "😀", Name: "grinning_face", Category: catalog.Smileys, Keywords: []string{"grin", "happy"}},
		{ID: 2, Glyph: "❤️", Name: "red_heart", Category: catalog.Symbols, Keywords: []string{"love", "heart"}},
		{ID: 3, Glyph: "🐱", Name: "cat_face", Category: catalog.Animals, Keywords: []string{"cat", "pet"}},
		{ID: 4, Glyph: "🍕", Name: "pizza", Category: catalog.Food, Keywords: []string{"cheese", "slice"}},
		{ID: 5, Glyph: "😂", Name: "face_with_tears_of_joy", Category: catalog.Smileys, Keywords: []string{"laugh", "happy"}},
		{ID: 6, Glyph: "🇫🇷", Name: "flag_france", Category: catalog.Flags, Keywords: []string{"france"}},
	}
}

// WriteCatalog encodes entries into dir and returns the file path.
func WriteCatalog(t *testing.T, dir string, entries []catalog.Entry) string {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, catalog.Encode(&buf, entries))
	path := filepath.Join(dir, "catalog.bin")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0600))
	return path
}

// WriteCorruptCatalog writes a sample catalog with one payload byte flipped,
// so the checksum no longer matches.
func WriteCorruptCatalog(t *testing.T, dir string) string {
	t.Helper()

	path := WriteCatalog(t, dir, SampleEntries())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[catalog.HeaderSize+5] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// SocketDir returns a short temporary directory for unix sockets. Socket
// paths are limited to about 100 bytes, which t.TempDir can exceed.
func SocketDir(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "np-")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

// RandomString generates a random string of the specified length
func RandomString(length int) string {
	bytes := make([]byte, length/2+1)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)[:length]
}

// WaitFor polls cond until it holds or timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
