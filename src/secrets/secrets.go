// Package secrets gates build contexts on leaked credentials before any
// bytes reach an archive or image.
package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
	"golang.org/x/sync/semaphore"
)

// Finding is one detected credential, with the secret value redacted for
// display.
type Finding struct {
	File   string
	Line   int
	RuleID string
	Secret string
}

// Scanner runs the gitleaks detector over context files.
type Scanner struct {
	root     string
	detector *detect.Detector
}

// NewScanner builds a scanner rooted at the project directory using the
// default gitleaks ruleset.
func NewScanner(root string) (*Scanner, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading secret detector: %w", err)
	}
	return &Scanner{root: root, detector: d}, nil
}

// Scan checks every manifest path, fanning out across the CPUs. Findings
// come back sorted by file then line. Policy (fatal versus warning) is the
// caller's decision.
func (s *Scanner) Scan(ctx context.Context, paths []string) ([]Finding, error) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		findings []Finding
		errs     []error
	)

	sem := semaphore.NewWeighted(int64(runtime.NumCPU() * 2))

	for _, rel := range paths {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(rel string) {
			defer wg.Done()
			defer sem.Release(1)

			hits, err := s.scanFile(rel)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			findings = append(findings, hits...)
		}(rel)
	}

	wg.Wait()

	if len(errs) > 0 {
		return findings, fmt.Errorf("%d scan errors (first: %w)", len(errs), errs[0])
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].File != findings[j].File {
			return findings[i].File < findings[j].File
		}
		return findings[i].Line < findings[j].Line
	})
	return findings, nil
}

func (s *Scanner) scanFile(rel string) ([]Finding, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}

	hits := s.detector.DetectBytes(data)
	if len(hits) == 0 {
		return nil, nil
	}

	findings := make([]Finding, 0, len(hits))
	for _, h := range hits {
		findings = append(findings, Finding{
			File:   rel,
			Line:   h.StartLine + 1, // gitleaks is 0-indexed
			RuleID: h.RuleID,
			Secret: Redact(h.Secret),
		})
	}
	return findings, nil
}

// Redact keeps enough of a secret to locate it and no more.
func Redact(secret string) string {
	runes := []rune(secret)
	if len(runes) <= 8 {
		return "********"
	}
	return string(runes[:6]) + "…"
}
