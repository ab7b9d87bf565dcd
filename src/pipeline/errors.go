package pipeline

import "fmt"

// PreconditionError reports a missing prerequisite such as the recipe
// file or a required local tool. Nothing has executed when one of these
// surfaces.
type PreconditionError struct {
	Missing string
	Hint    string
}

func (e *PreconditionError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("precondition failed: %s (%s)", e.Missing, e.Hint)
	}
	return "precondition failed: " + e.Missing
}

// InvariantError reports a broken build invariant. These mean
// non-determinism or corruption rather than anything transient, so they
// are never retried.
type InvariantError struct {
	Check  string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated: %s: %s", e.Check, e.Detail)
}

// ConflictError reports a resource held by something outside this
// deployment, with the remediation the user should take.
type ConflictError struct {
	Resource string
	Remedy   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s — %s", e.Resource, e.Remedy)
}
