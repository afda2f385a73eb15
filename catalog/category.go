package catalog

import (
	"fmt"
	"strings"
)

// Category is the closed set of emoji groups stored in the catalog.
type Category uint8

const (
	Smileys Category = iota
	People
	Animals
	Food
	Travel
	Activities
	Objects
	Symbols
	Flags

	numCategories
)

var categoryNames = [numCategories]string{
	Smileys:    "smileys",
	People:     "people",
	Animals:    "animals",
	Food:       "food",
	Travel:     "travel",
	Activities: "activities",
	Objects:    "objects",
	Symbols:    "symbols",
	Flags:      "flags",
}

// Categories returns every category in code order.
func Categories() []Category {
	out := make([]Category, 0, numCategories)
	for c := Category(0); c < numCategories; c++ {
		out = append(out, c)
	}
	return out
}

// Valid reports whether c is a known category code.
func (c Category) Valid() bool {
	return c < numCategories
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", uint8(c))
	}
	return categoryNames[c]
}

// ParseCategory resolves a category name case-insensitively.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range categoryNames {
		if name == s {
			return Category(c), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}
