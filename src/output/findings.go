package output

import (
	"fmt"
	"sort"
)

const (
	// SecretBudget caps displayed secret findings before truncation.
	SecretBudget = 15
	secretMax    = 100
)

// SecretRow is the view model for one secret-scan finding in CLI output.
type SecretRow struct {
	File   string // manifest-relative path
	Line   int
	RuleID string // gitleaks rule, e.g. "aws-access-key-id"
	Secret string // redacted match
}

// SectionSecrets renders the "Secrets (N)" block inside a section, sorted
// by file then line, truncated past the budget with a remainder note.
func SectionSecrets(sec *Section, rows []SecretRow, color bool) {
	if len(rows) == 0 {
		return
	}

	sorted := make([]SecretRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].File != sorted[j].File {
			return sorted[i].File < sorted[j].File
		}
		return sorted[i].Line < sorted[j].Line
	})

	sec.Row("")
	sec.Row("%s", bold(color, fmt.Sprintf("Secrets (%d)", len(sorted))))

	budget := SecretBudget
	if budget > secretMax {
		budget = secretMax
	}
	show := len(sorted)
	if show > budget {
		show = budget
	}

	for i := 0; i < show; i++ {
		r := sorted[i]
		loc := fmt.Sprintf("%s:%d", r.File, r.Line)
		sec.Row("  %-40s %-24s %s", loc, r.RuleID, Dimmed(r.Secret, color))
	}

	if rest := len(sorted) - show; rest > 0 {
		sec.Row("  %s", Dimmed(fmt.Sprintf("… and %d more", rest), color))
	}
}

func bold(color bool, s string) string {
	if !color {
		return s
	}
	return colorBold + s + colorReset
}
