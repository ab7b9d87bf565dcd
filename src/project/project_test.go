package project

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDerivesStableHash(t *testing.T) {
	dir := t.TempDir()

	a, err := Load(dir, "", "Dockerfile")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, err := Load(dir, "", "Dockerfile")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if a.PathHash != b.PathHash {
		t.Errorf("hash not stable: %s vs %s", a.PathHash, b.PathHash)
	}
	if len(a.PathHash) != 64 {
		t.Errorf("hash length = %d, want 64", len(a.PathHash))
	}
	if a.Namespace() != a.PathHash[:12] {
		t.Errorf("Namespace() = %q", a.Namespace())
	}
	if a.Name != filepath.Base(a.Root) {
		t.Errorf("Name = %q, want directory basename %q", a.Name, filepath.Base(a.Root))
	}
}

func TestLoadDistinctRootsDistinctHashes(t *testing.T) {
	a, err := Load(t.TempDir(), "", "Dockerfile")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, err := Load(t.TempDir(), "", "Dockerfile")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a.PathHash == b.PathHash {
		t.Error("distinct roots produced the same hash")
	}
}

func TestCheckRecipe(t *testing.T) {
	dir := t.TempDir()
	ctx, err := Load(dir, "app", "Dockerfile")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := ctx.CheckRecipe(); err == nil {
		t.Error("CheckRecipe succeeded with no recipe present")
	}

	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM scratch\n"), 0o644); err != nil {
		t.Fatalf("write recipe: %v", err)
	}
	if err := ctx.CheckRecipe(); err != nil {
		t.Errorf("CheckRecipe: %v", err)
	}
}

func TestSuggestRecipes(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"Dockerfile.dev", "worker.dockerfile"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("FROM scratch\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	ctx, err := Load(dir, "", "Dockerfile")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := ctx.SuggestRecipes()
	want := map[string]bool{"Dockerfile.dev": true, "worker.dockerfile": true}
	if len(got) != len(want) {
		t.Fatalf("SuggestRecipes() = %v, want %d entries", got, len(want))
	}
	for _, name := range got {
		if !want[name] {
			t.Errorf("unexpected suggestion %q", name)
		}
	}
}
