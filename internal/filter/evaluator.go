// Package filter decides which jobs of each workflow run for a given branch
// and tag, and renders the result as a report.
package filter

import (
	"github.com/mattjoyce/beefci/internal/workflow"
)

// Input is the branch and tag under evaluation. Either may be empty.
type Input struct {
	Branch string `json:"branch"`
	Tag    string `json:"tag"`
}

// Options tunes evaluation.
type Options struct {
	// Dedupe emits a job at most once per workflow. Without it a job whose
	// ignore rule and only rule both fire is listed twice.
	Dedupe bool
}

// Rule names recorded on a Decision.
const (
	RuleNotIgnored = "not_ignored" // neither ignore pattern matched
	RuleOnlyMatch  = "only_match"  // a configured only pattern matched
	RuleUngated    = "ungated"     // no only pattern, not excluded by both ignores
)

// Decision explains the outcome for one job.
type Decision struct {
	Job               string   `json:"job"`
	OnlyBranchMatch   bool     `json:"only_branch_match"`
	IgnoreBranchMatch bool     `json:"ignore_branch_match"`
	OnlyTagMatch      bool     `json:"only_tag_match"`
	IgnoreTagMatch    bool     `json:"ignore_tag_match"`
	Rules             []string `json:"rules,omitempty"`
	Emitted           int      `json:"emitted"`
}

// WorkflowResult lists the triggered jobs of one workflow in emission order.
type WorkflowResult struct {
	Name      string     `json:"name"`
	Jobs      []string   `json:"jobs"`
	Decisions []Decision `json:"decisions"`
}

// Result is the outcome of one evaluation.
type Result struct {
	Input       Input            `json:"input"`
	Fingerprint string           `json:"fingerprint"`
	Deduped     bool             `json:"deduped"`
	Workflows   []WorkflowResult `json:"workflows"`
}

// Evaluate applies every job's filters to in. Workflows and jobs keep their
// declaration order.
func Evaluate(def *workflow.Definition, in Input, opts Options) *Result {
	res := &Result{
		Input:       in,
		Fingerprint: def.Fingerprint,
		Deduped:     opts.Dedupe,
		Workflows:   make([]WorkflowResult, 0, len(def.Workflows)),
	}

	for _, wf := range def.Workflows {
		wr := WorkflowResult{
			Name:      wf.Name,
			Jobs:      []string{},
			Decisions: make([]Decision, 0, len(wf.Jobs)),
		}
		for _, job := range wf.Jobs {
			d := decide(job, in)
			if opts.Dedupe && d.Emitted > 1 {
				d.Emitted = 1
			}
			for i := 0; i < d.Emitted; i++ {
				wr.Jobs = append(wr.Jobs, job.Name)
			}
			wr.Decisions = append(wr.Decisions, d)
		}
		res.Workflows = append(res.Workflows, wr)
	}
	return res
}

// decide evaluates one job. Every flag starts true and is replaced by the
// match result only when its pattern is configured.
func decide(job workflow.Job, in Input) Decision {
	f := job.Filters
	d := Decision{
		Job:               job.Name,
		OnlyBranchMatch:   true,
		IgnoreBranchMatch: true,
		OnlyTagMatch:      true,
		IgnoreTagMatch:    true,
	}

	if f.Tags.Only.Configured() {
		d.OnlyTagMatch = f.Tags.Only.MatchString(in.Tag)
	}
	if f.Tags.Ignore.Configured() {
		d.IgnoreTagMatch = f.Tags.Ignore.MatchString(in.Tag)
	}
	if f.Branches.Only.Configured() {
		d.OnlyBranchMatch = f.Branches.Only.MatchString(in.Branch)
	}
	if f.Branches.Ignore.Configured() {
		d.IgnoreBranchMatch = f.Branches.Ignore.MatchString(in.Branch)
	}

	notIgnored := !d.IgnoreBranchMatch && !d.IgnoreTagMatch
	if notIgnored {
		d.Rules = append(d.Rules, RuleNotIgnored)
	}
	if (f.Branches.Only.Configured() && d.OnlyBranchMatch) || (f.Tags.Only.Configured() && d.OnlyTagMatch) {
		d.Rules = append(d.Rules, RuleOnlyMatch)
	}

	// Without an only pattern a job runs unless both ignore patterns are
	// configured and both matched.
	if !f.HasOnly() && !notIgnored {
		bothIgnored := f.Branches.Ignore.Configured() && f.Tags.Ignore.Configured() &&
			d.IgnoreBranchMatch && d.IgnoreTagMatch
		if !bothIgnored {
			d.Rules = append(d.Rules, RuleUngated)
		}
	}

	d.Emitted = len(d.Rules)
	return d
}
