package visual

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"lukechampine.com/blake3"
)

// AssetCache writes visuals into a content-addressed directory so the
// same chart or downloaded image is materialized once per session.
type AssetCache struct {
	dir string
}

func NewAssetCache(dir string) (*AssetCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &AssetCache{dir: dir}, nil
}

// Put stores data under its blake3 digest and returns the file path.
// Re-putting identical content is a no-op returning the same path.
func (c *AssetCache) Put(data []byte, ext string) (string, error) {
	sum := blake3.Sum256(data)
	name := hex.EncodeToString(sum[:16]) + ext
	path := filepath.Join(c.dir, name)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write asset: %w", err)
	}
	return path, nil
}

// Cleanup removes every cached asset. Called on session end; generated
// visuals are session-scoped.
func (c *AssetCache) Cleanup() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	var firstErr error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
