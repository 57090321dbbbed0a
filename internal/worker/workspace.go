package worker

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Workspace is a scratch directory owned by exactly one conversion.
type Workspace struct {
	Dir string
}

// NewWorkspace creates a uniquely named directory under root (the OS temp dir
// when root is empty). The name combines a nanosecond timestamp with a random
// UUID; os.Mkdir fails rather than reuse an existing directory.
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, fmt.Sprintf("docx2pdf-%d-%s", time.Now().UnixNano(), uuid.NewString()))
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{Dir: dir}, nil
}

// WriteInput stores data as name inside the workspace and confirms the file on
// disk has the expected size.
func (w *Workspace) WriteInput(name string, data []byte) (string, error) {
	path := filepath.Join(w.Dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write input file: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat input file: %w", err)
	}
	if info.Size() != int64(len(data)) {
		return "", fmt.Errorf("input file truncated: wrote %d bytes, found %d on disk", len(data), info.Size())
	}
	return path, nil
}

// Listing describes the workspace contents, one "name (size)" entry per file.
// It never fails; a read error is reported as the only entry.
func (w *Workspace) Listing() []string {
	return listDir(w.Dir)
}

// Remove deletes the workspace and everything in it.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Dir)
}

func (w *Workspace) removeLogged(logger *slog.Logger) {
	if err := w.Remove(); err != nil {
		logger.Warn("Failed to remove workspace.", "workspace", w.Dir, "error", err)
	}
}

func listDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{fmt.Sprintf("<unreadable: %v>", err)}
	}
	listing := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			listing = append(listing, e.Name()+"/")
			continue
		}
		info, err := e.Info()
		if err != nil {
			listing = append(listing, e.Name())
			continue
		}
		listing = append(listing, fmt.Sprintf("%s (%d bytes)", e.Name(), info.Size()))
	}
	sort.Strings(listing)
	return listing
}
