//go:build !unix

package catalog

func mapFile(path string) ([]byte, func(), error) {
	return readWhole(path)
}
