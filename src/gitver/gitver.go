// Package gitver derives image tags from repository state when the config
// does not pin one.
package gitver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// shortSHALen matches the abbreviation git itself settles on for small
// repositories.
const shortSHALen = 7

// Info holds the resolved repository state behind a derived version.
type Info struct {
	Version  string // "1.2.3", "1.2.3-dev.4+abc1234", "0.0.0-dev"
	Tag      string // nearest reachable semver tag, "" when none
	Distance int    // commits from that tag to HEAD
	SHA      string // short HEAD sha, "" outside a repository
	Dirty    bool
}

// ImageTag renders the full image reference for a project.
func (i *Info) ImageTag(project string) string {
	return project + ":" + i.Version
}

// Detect resolves version info from the repository containing rootDir.
// It never fails: outside a repository the version degrades to 0.0.0-dev,
// and inside one without tags to 0.0.0-dev+<sha>.
func Detect(rootDir string) *Info {
	info := &Info{Version: "0.0.0-dev"}

	repo, err := git.PlainOpenWithOptions(rootDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return info
	}

	head, err := repo.Head()
	if err != nil {
		return info
	}
	info.SHA = head.Hash().String()[:shortSHALen]
	info.Dirty = worktreeDirty(repo)

	tag, distance, ok := nearestTag(repo, head.Hash())
	if ok {
		info.Tag = tag.Original()
		info.Distance = distance
	}
	info.Version = render(tag, distance, ok, info.SHA, info.Dirty)
	return info
}

// render assembles <semver>[-dev.<n>][+<shortsha>][.dirty].
func render(tag *semver.Version, distance int, tagged bool, sha string, dirty bool) string {
	if !tagged {
		v := "0.0.0-dev+" + sha
		if dirty {
			v += ".dirty"
		}
		return v
	}

	v := tag.String()
	if distance > 0 {
		v = fmt.Sprintf("%s-dev.%d", v, distance)
	}
	if distance > 0 || dirty {
		v += "+" + sha
	}
	if dirty {
		v += ".dirty"
	}
	return v
}

// nearestTag walks history from head and returns the first commit carrying
// a semver tag, with the number of commits traversed to reach it. Multiple
// tags on one commit resolve to the highest version.
func nearestTag(repo *git.Repository, head plumbing.Hash) (*semver.Version, int, bool) {
	tags := tagsByCommit(repo)
	if len(tags) == 0 {
		return nil, 0, false
	}

	iter, err := repo.Log(&git.LogOptions{From: head})
	if err != nil {
		return nil, 0, false
	}
	defer iter.Close()

	var (
		found    *semver.Version
		distance int
		count    int
	)
	iter.ForEach(func(c *object.Commit) error {
		if v, ok := tags[c.Hash]; ok {
			found = v
			distance = count
			return storer.ErrStop
		}
		count++
		return nil
	})
	if found == nil {
		return nil, 0, false
	}
	return found, distance, true
}

// tagsByCommit maps commit hashes to the highest semver tag pointing at
// them, peeling annotated tags to their targets.
func tagsByCommit(repo *git.Repository) map[plumbing.Hash]*semver.Version {
	refs, err := repo.Tags()
	if err != nil {
		return nil
	}

	tags := make(map[plumbing.Hash]*semver.Version)
	refs.ForEach(func(ref *plumbing.Reference) error {
		v, err := semver.NewVersion(strings.TrimPrefix(ref.Name().Short(), "v"))
		if err != nil {
			return nil // non-semver tag
		}

		commit := ref.Hash()
		if obj, err := repo.TagObject(ref.Hash()); err == nil {
			commit = obj.Target
		} else if !errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil
		}

		if prev, ok := tags[commit]; !ok || v.GreaterThan(prev) {
			tags[commit] = v
		}
		return nil
	})
	return tags
}

// worktreeDirty reports uncommitted changes. Bare repositories count as
// clean.
func worktreeDirty(repo *git.Repository) bool {
	wt, err := repo.Worktree()
	if err != nil {
		return false
	}
	status, err := wt.Status()
	if err != nil {
		return false
	}
	return !status.IsClean()
}
