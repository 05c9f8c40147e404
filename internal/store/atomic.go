package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// fileLocks holds one mutex per absolute file path. Stores constructed
// independently for the same target still serialize on the same lock, so
// read-modify-write cycles never interleave within the process.
var fileLocks sync.Map // string -> *sync.Mutex

// lockFile acquires the process-local lock for path and returns the
// release function.
func lockFile(path string) func() {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	v, _ := fileLocks.LoadOrStore(abs, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// writeJSONAtomic marshals v as indented JSON and writes it to path via a
// temporary file in the same directory followed by a rename, so readers
// never observe a half-written document. Parent directories are created
// as needed.
func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory %q: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %q: %w", path, err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp file %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("renaming temp file to %q: %w", path, err)
	}
	return nil
}

// errCorrupt marks a state file that exists but cannot be decoded. Loaders
// translate it into "start fresh" plus a warning rather than failing.
var errCorrupt = errors.New("state file corrupt")

// readJSON decodes path into v. Returns (false, nil) when the file does
// not exist and wraps decode failures in errCorrupt.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading %q: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("%w: %s: %v", errCorrupt, path, err)
	}
	return true, nil
}
