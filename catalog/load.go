package catalog

import (
	"fmt"
	"os"
)

// Load reads the compiled catalog at path and builds its indices. The file is
// memory mapped where the platform allows it and read in bulk otherwise; it is
// released before Load returns.
func Load(path string) (*Catalog, error) {
	data, release, err := mapFile(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer release()
	return Decode(data)
}

func readWhole(path string) ([]byte, func(), error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return data, func() {}, nil
}
