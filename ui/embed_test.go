package ui

import (
	"io/fs"
	"strings"
	"testing"
)

// TestDistFSEmbedded verifies the dashboard dist directory is baked into the
// binary and serves a usable index page.
func TestDistFSEmbedded(t *testing.T) {
	distFS, err := fs.Sub(DistFS(), "dist")
	if err != nil {
		t.Fatalf("Failed to access dist subdirectory: %v", err)
	}

	indexData, err := fs.ReadFile(distFS, "index.html")
	if err != nil {
		t.Fatalf("Failed to read index.html from embedded filesystem: %v", err)
	}

	if len(indexData) == 0 {
		t.Fatal("index.html is empty")
	}

	content := string(indexData)
	if len(content) < 100 {
		t.Errorf("index.html seems too short (%d bytes), might be invalid", len(content))
	}

	if !strings.Contains(content, "<!DOCTYPE") && !strings.Contains(content, "<html") {
		t.Error("index.html does not appear to be valid HTML (missing DOCTYPE or <html>)")
	}
}

// TestDistFSReadable walks the embedded tree and confirms every entry opens.
// A broken embed directive surfaces here rather than at serve time.
func TestDistFSReadable(t *testing.T) {
	distFS, err := fs.Sub(DistFS(), "dist")
	if err != nil {
		t.Fatalf("Failed to access dist subdirectory: %v", err)
	}

	files := 0
	err = fs.WalkDir(distFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := fs.ReadFile(distFS, path)
		if err != nil {
			t.Errorf("Failed to read embedded file %s: %v", path, err)
			return nil
		}
		if len(data) == 0 {
			t.Errorf("Embedded file %s is empty", path)
		}
		files++
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to walk embedded filesystem: %v", err)
	}

	if files == 0 {
		t.Fatal("embedded dist directory contains no files")
	}
}
