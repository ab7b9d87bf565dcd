package retention

import (
	"fmt"
	"slices"
	"testing"
	"time"
)

type fakeStore struct {
	items   []Item
	deleted []string
	failOn  string
}

func (s *fakeStore) List() ([]Item, error) { return s.items, nil }

func (s *fakeStore) Delete(name string) error {
	if name == s.failOn {
		return fmt.Errorf("busy")
	}
	s.deleted = append(s.deleted, name)
	return nil
}

func ageItems(names ...string) []Item {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	items := make([]Item, len(names))
	for i, name := range names {
		// Earlier position means more recently used.
		items[i] = Item{Name: name, LastUsed: base.Add(-time.Duration(i) * time.Hour)}
	}
	return items
}

func TestApplyKeepsMostRecentlyUsed(t *testing.T) {
	store := &fakeStore{items: ageItems("newest", "middle", "old", "oldest")}

	res, err := Apply(store, 2)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Matched != 4 || res.Kept != 2 {
		t.Errorf("matched=%d kept=%d, want 4 and 2", res.Matched, res.Kept)
	}
	if want := []string{"old", "oldest"}; !slices.Equal(res.Deleted, want) {
		t.Errorf("Deleted = %v, want %v", res.Deleted, want)
	}
	if !slices.Equal(store.deleted, res.Deleted) {
		t.Errorf("store deletions %v disagree with result %v", store.deleted, res.Deleted)
	}
}

func TestApplyKeepCoversEverything(t *testing.T) {
	store := &fakeStore{items: ageItems("a", "b")}

	res, err := Apply(store, 5)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Kept != 2 || len(res.Deleted) != 0 {
		t.Errorf("kept=%d deleted=%v, want everything kept", res.Kept, res.Deleted)
	}
}

func TestApplyContinuesPastDeleteFailure(t *testing.T) {
	store := &fakeStore{items: ageItems("a", "b", "c", "d"), failOn: "c"}

	res, err := Apply(store, 1)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if want := []string{"b", "d"}; !slices.Equal(res.Deleted, want) {
		t.Errorf("Deleted = %v, want %v", res.Deleted, want)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Errors = %v, want one entry", res.Errors)
	}
}

func TestApplyRejectsZeroKeep(t *testing.T) {
	if _, err := Apply(&fakeStore{}, 0); err == nil {
		t.Error("keep 0 should error, it would empty the cache")
	}
}
