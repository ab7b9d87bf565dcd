// Package project resolves the invoking project's identity: its root
// directory, the path digest that namespaces its cache, and the build
// recipe inside it. Every component receives the Context explicitly
// instead of re-deriving locations from the working directory.
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Context identifies one project for the whole run.
type Context struct {
	Root     string // absolute, symlink-resolved project root
	PathHash string // sha256 hex of Root
	Name     string // project name for image tags and compose projects
	Recipe   string // absolute path to the build recipe
}

// recipeNames are filenames recognized as build recipes when the
// configured one is missing.
var recipeNames = []string{
	"Dockerfile",
	"Dockerfile.dev",
	"Dockerfile.build",
	"Containerfile",
}

// Load resolves dir into a project Context. name defaults to the directory
// basename; dockerfile is the recipe path relative to the root. Recipe
// existence is checked by CheckRecipe, not here, so read-only commands work
// in any directory.
func Load(dir, name, dockerfile string) (*Context, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	sum := sha256.Sum256([]byte(resolved))
	ctx := &Context{
		Root:     resolved,
		PathHash: hex.EncodeToString(sum[:]),
		Name:     name,
		Recipe:   filepath.Join(resolved, dockerfile),
	}
	if ctx.Name == "" {
		ctx.Name = filepath.Base(resolved)
	}
	return ctx, nil
}

// Namespace returns the short cache namespace derived from the project
// path. Two projects never share it unless they share a root.
func (c *Context) Namespace() string {
	return c.PathHash[:12]
}

// CheckRecipe verifies the build recipe exists and is a regular file.
func (c *Context) CheckRecipe() error {
	fi, err := os.Stat(c.Recipe)
	if err != nil {
		return fmt.Errorf("build recipe %s: %w", c.Recipe, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("build recipe %s is a directory", c.Recipe)
	}
	return nil
}

// SuggestRecipes lists recipe files present at the root, for remediation
// hints when the configured one is missing.
func (c *Context) SuggestRecipes() []string {
	var found []string
	for _, name := range recipeNames {
		path := filepath.Join(c.Root, name)
		if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
			found = append(found, name)
		}
	}
	matches, _ := filepath.Glob(filepath.Join(c.Root, "*.dockerfile"))
	for _, m := range matches {
		found = append(found, filepath.Base(m))
	}
	return found
}
