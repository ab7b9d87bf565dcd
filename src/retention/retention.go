// Package retention prunes aged cache target directories. The engine
// works on any named+timestamped store so tests never touch a real cache.
package retention

import (
	"fmt"
	"sort"
	"time"
)

// Item is one prunable entry, a cache target directory in practice.
type Item struct {
	Name     string
	LastUsed time.Time
}

// Store abstracts listing and deleting items so the engine stays off the
// filesystem.
type Store interface {
	List() ([]Item, error)
	Delete(name string) error
}

// Result captures what one Apply did.
type Result struct {
	Matched int      // items considered
	Kept    int      // items kept
	Deleted []string // items successfully deleted
	Errors  []error  // errors from individual deletes
}

// Apply keeps the most recently used `keep` items and deletes the rest.
// Deletion continues past individual failures; those errors ride along in
// the result.
func Apply(store Store, keep int) (*Result, error) {
	if keep < 1 {
		return nil, fmt.Errorf("retention: keep must be at least 1, got %d", keep)
	}

	items, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("retention: listing items: %w", err)
	}

	result := &Result{Matched: len(items)}

	sort.Slice(items, func(i, j int) bool {
		return items[i].LastUsed.After(items[j].LastUsed)
	})

	for i, item := range items {
		if i < keep {
			result.Kept++
			continue
		}
		if err := store.Delete(item.Name); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("deleting %s: %w", item.Name, err))
		} else {
			result.Deleted = append(result.Deleted, item.Name)
		}
	}

	return result, nil
}
