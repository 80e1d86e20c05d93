// Package workflow parses CircleCI-style workflow definitions into typed,
// precompiled branch and tag filters.
package workflow

// ReservedVersionKey is the workflows-level key that carries the config
// schema version rather than a workflow.
const ReservedVersionKey = "version"

// Definition is a parsed pipeline file reduced to what filter evaluation needs.
type Definition struct {
	Workflows   []Workflow
	Fingerprint string // blake3:<hex> of the normalized definition.
}

// Workflow is a named, ordered group of jobs.
type Workflow struct {
	Name string
	Jobs []Job
}

// Job is one entry of a workflow's jobs sequence.
type Job struct {
	Name    string
	Filters Filters
}

// Filters holds the branch and tag rules of a job. The zero value means
// "no filters".
type Filters struct {
	Branches Rule
	Tags     Rule
}

// Rule is an only/ignore pair for one dimension (branches or tags).
type Rule struct {
	Only   Pattern
	Ignore Pattern
}

// Configured reports whether either side of the rule carries a pattern.
func (r Rule) Configured() bool {
	return r.Only.Configured() || r.Ignore.Configured()
}

// Configured reports whether any pattern is set on the job.
func (f Filters) Configured() bool {
	return f.Branches.Configured() || f.Tags.Configured()
}

// HasOnly reports whether the job is gated by an only-pattern.
func (f Filters) HasOnly() bool {
	return f.Branches.Only.Configured() || f.Tags.Only.Configured()
}
