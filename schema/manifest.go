package schema

import (
	"sort"
	"sync"
)

// Extension is a top-level config section owned by another package. Its
// schema is reflected from Prototype and composed into the config schema.
type Extension struct {
	Key         string
	Description string
	Prototype   interface{}
}

var (
	extensionsMu sync.RWMutex
	extensions   = map[string]Extension{}
)

// RegisterExtension makes key a validated top-level config section.
// Packages call it from init; registering a key twice replaces it.
func RegisterExtension(key, description string, prototype interface{}) {
	extensionsMu.Lock()
	defer extensionsMu.Unlock()
	extensions[key] = Extension{Key: key, Description: description, Prototype: prototype}
}

// Extensions returns the registered extensions ordered by key.
func Extensions() []Extension {
	extensionsMu.RLock()
	defer extensionsMu.RUnlock()
	out := make([]Extension, 0, len(extensions))
	for _, ext := range extensions {
		out = append(out, ext)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
