package store

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ReadMemory returns the user-maintained memory file contents. The file
// is free-form markdown fed to scanners as ignore context; absence is an
// empty string, not an error.
func ReadMemory(targetPath string) (string, error) {
	data, err := os.ReadFile(MemoryPath(targetPath))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading memory file: %w", err)
	}
	return string(data), nil
}

// AppendMemory adds a dated bullet to the memory file, creating it with
// a heading on first use.
func AppendMemory(targetPath, note string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return fmt.Errorf("appending memory: note must not be empty")
	}

	path := MemoryPath(targetPath)
	unlock := lockFile(path)
	defer unlock()

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading memory file: %w", err)
	}

	var b strings.Builder
	if len(existing) == 0 {
		b.WriteString("# Rover Memory\n\nNotes passed to every scan. Use this to suppress known false positives.\n")
	} else {
		b.Write(existing)
		if !strings.HasSuffix(string(existing), "\n") {
			b.WriteByte('\n')
		}
	}
	fmt.Fprintf(&b, "\n- %s (%s)\n", note, time.Now().UTC().Format("2006-01-02"))

	if err := EnsureLayout(targetPath); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
