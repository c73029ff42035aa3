package record

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Item is one record of a source. ID is unique within the source and names the output
// file relative to the output directory.
type Item struct {
	ID   string
	Load func() (Record, error)
}

// Source lists the records of an input.
type Source interface {
	Items(ctx context.Context) ([]Item, error)
}

// JSONDir is a directory of JSON record files.
type JSONDir struct {
	Dir     string
	Pattern string // glob matched against file names, "*.json" when empty
}

func (s JSONDir) Items(ctx context.Context) ([]Item, error) {
	pattern := s.Pattern
	if pattern == "" {
		pattern = "*.json"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("reading input directory: %w", err)
	}

	var items []Item
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(pattern, e.Name()); !ok {
			continue
		}
		path := filepath.Join(s.Dir, e.Name())
		items = append(items, Item{
			ID:   e.Name(),
			Load: func() (Record, error) { return ReadFile(path) },
		})
	}
	return items, nil
}

// ReadFile loads a single JSON record file.
func ReadFile(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Decode(data)
}

// Only returns the items whose ID is in ids, in their original order.
func Only(items []Item, ids []string) []Item {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Item
	for _, it := range items {
		if want[it.ID] {
			out = append(out, it)
		}
	}
	return out
}

// sortItems orders items by ID.
func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
}
