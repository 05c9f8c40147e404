//go:build tools

// Package tools pins dependencies that only narrow corners of the codebase
// import, so refactors there do not silently drop them from go.mod.
package tools

import (
	_ "github.com/atotto/clipboard"
	_ "github.com/bmatcuk/doublestar/v4"
	_ "github.com/cespare/xxhash/v2"
	_ "github.com/charmbracelet/bubbles/progress"
	_ "github.com/spf13/cobra/doc"
)
