package fix

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// envSkipDirs are directory names never walked when collecting local config
// for a new worktree.
var envSkipDirs = map[string]bool{
	".git":         true,
	".rover":       true,
	"node_modules": true,
	"dist":         true,
}

// copyLocalConfig copies untracked local configuration from the target into
// a fresh worktree: every file whose basename starts with ".env" except
// ".env.example", plus every ".mcp.json". Relative paths are preserved so
// nested service directories keep their own env files. Individual copy
// failures are logged and skipped; the fix can proceed without them.
func copyLocalConfig(targetPath, worktreePath string, logger *log.Logger) {
	err := filepath.WalkDir(targetPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != targetPath && envSkipDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		name := d.Name()
		wantEnv := strings.HasPrefix(name, ".env") && name != ".env.example"
		if !wantEnv && name != ".mcp.json" {
			return nil
		}
		rel, relErr := filepath.Rel(targetPath, path)
		if relErr != nil {
			return nil
		}
		if copyErr := copyFile(path, filepath.Join(worktreePath, rel)); copyErr != nil {
			logger.Warn("could not copy local config into worktree", "file", rel, "error", copyErr)
			return nil
		}
		logger.Debug("copied local config into worktree", "file", rel)
		return nil
	})
	if err != nil {
		logger.Warn("local config scan failed", "target", targetPath, "error", err)
	}
}

// copyFile copies src to dst, creating parent directories and carrying over
// the source's permission bits so .env files stay private.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close() //nolint:errcheck
		return err
	}
	return out.Close()
}
