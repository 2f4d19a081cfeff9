//go:build debug

package ui

import (
	"io/fs"
	"os"
)

// DistFS returns a live filesystem rooted at ui/, so a vite build --watch
// refreshes the served dashboard without recompiling the engine.
func DistFS() fs.FS {
	return os.DirFS("ui")
}
