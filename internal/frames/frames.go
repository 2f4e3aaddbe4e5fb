package frames

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"framepipe/internal/jobstate"
)

// Item is one unit of work: a frame file and its ordinal position in the
// target. Items are immutable once enumerated.
type Item struct {
	Path  string
	Index int
}

// ID returns the identifier recorded in the progress store.
func (i Item) ID() string {
	return filepath.Base(i.Path)
}

var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
	".gif":  {},
}

// IsImage reports whether path has a supported frame extension.
func IsImage(path string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// JobKeyFor derives the progress key for a target: its cleaned absolute path.
func JobKeyFor(target string) (jobstate.JobKey, error) {
	if strings.TrimSpace(target) == "" {
		return "", errors.New("target path is required")
	}
	abs, err := filepath.Abs(filepath.Clean(target))
	if err != nil {
		return "", fmt.Errorf("resolve target path: %w", err)
	}
	return jobstate.JobKey(abs), nil
}

// Enumerate lists the frame images directly inside dir in ordinal order.
// Numeric file stems (0001.png, frame_12.png) sort numerically; anything
// else sorts lexically after them.
func Enumerate(dir string) ([]Item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !IsImage(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}

	sort.SliceStable(names, func(a, b int) bool {
		na, okA := ordinal(names[a])
		nb, okB := ordinal(names[b])
		switch {
		case okA && okB && na != nb:
			return na < nb
		case okA != okB:
			return okA
		default:
			return names[a] < names[b]
		}
	})

	items := make([]Item, len(names))
	for i, name := range names {
		items[i] = Item{Path: filepath.Join(dir, name), Index: i}
	}
	return items, nil
}

// ordinal extracts the trailing integer of a file stem.
func ordinal(name string) (int, bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	end := len(stem)
	start := end
	for start > 0 && stem[start-1] >= '0' && stem[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, false
	}
	n, err := strconv.Atoi(stem[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Pending filters out items whose IDs are in done, preserving order.
func Pending(items []Item, done map[string]struct{}) []Item {
	if len(done) == 0 {
		return items
	}
	pending := make([]Item, 0, len(items))
	for _, item := range items {
		if _, ok := done[item.ID()]; ok {
			continue
		}
		pending = append(pending, item)
	}
	return pending
}
