// Package doctor lints a workflow definition for filter configurations whose
// effect differs from what their author likely intended.
package doctor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattjoyce/beefci/internal/workflow"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Issue categories.
const (
	CategoryLoad              = "load"
	CategoryEmptyWorkflow     = "empty_workflow"
	CategoryDuplicateJob      = "duplicate_job"
	CategoryEmptyPattern      = "empty_pattern"
	CategoryIgnoreIneffective = "ignore_ineffective"
	CategoryDoubleEmit        = "double_emit"
)

// Doctor validates a parsed definition.
type Doctor struct {
	def *workflow.Definition
}

// New creates a Doctor for a loaded definition.
func New(def *workflow.Definition) *Doctor {
	return &Doctor{def: def}
}

// LoadFailure reports a definition that could not be loaded at all.
func LoadFailure(err error) *Result {
	return &Result{
		Valid:  false,
		Errors: []Issue{{Category: CategoryLoad, Message: err.Error()}},
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateWorkflows(r)
	d.warnDuplicateJobs(r)
	d.warnEmptyPatterns(r)
	d.warnIgnoreIneffective(r)
	d.warnDoubleEmit(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func jobField(wf workflow.Workflow, idx int) string {
	return fmt.Sprintf("workflows.%s.jobs[%d].%s", wf.Name, idx, wf.Jobs[idx].Name)
}

// validateWorkflows checks that every workflow declares at least one job.
func (d *Doctor) validateWorkflows(r *Result) {
	for _, wf := range d.def.Workflows {
		if len(wf.Jobs) == 0 {
			d.addError(r, CategoryEmptyWorkflow, "workflows."+wf.Name+".jobs",
				fmt.Sprintf("workflow %q has no jobs", wf.Name))
		}
	}
}

// warnDuplicateJobs flags a job name listed more than once in a workflow.
func (d *Doctor) warnDuplicateJobs(r *Result) {
	for _, wf := range d.def.Workflows {
		seen := make(map[string]int, len(wf.Jobs))
		for i, job := range wf.Jobs {
			if first, ok := seen[job.Name]; ok {
				d.addWarning(r, CategoryDuplicateJob, jobField(wf, i),
					fmt.Sprintf("job %q already listed at jobs[%d]", job.Name, first))
				continue
			}
			seen[job.Name] = i
		}
	}
}

// warnEmptyPatterns flags sources that strip to nothing and are silently unset.
func (d *Doctor) warnEmptyPatterns(r *Result) {
	for _, wf := range d.def.Workflows {
		for i, job := range wf.Jobs {
			sides := []struct {
				name string
				p    workflow.Pattern
			}{
				{"filters.branches.only", job.Filters.Branches.Only},
				{"filters.branches.ignore", job.Filters.Branches.Ignore},
				{"filters.tags.only", job.Filters.Tags.Only},
				{"filters.tags.ignore", job.Filters.Tags.Ignore},
			}
			for _, side := range sides {
				for _, src := range side.p.Sources {
					if workflow.StripSlashes(src) == "" {
						d.addWarning(r, CategoryEmptyPattern, jobField(wf, i)+"."+side.name,
							fmt.Sprintf("pattern %q is empty once '/' is removed and is ignored", src))
					}
				}
			}
		}
	}
}

// warnIgnoreIneffective flags ignore patterns set on only one of branches and
// tags. The ignore rule needs both ignore patterns to fail before it applies.
func (d *Doctor) warnIgnoreIneffective(r *Result) {
	for _, wf := range d.def.Workflows {
		for i, job := range wf.Jobs {
			branches := job.Filters.Branches.Ignore.Configured()
			tags := job.Filters.Tags.Ignore.Configured()
			switch {
			case branches && !tags:
				d.addWarning(r, CategoryIgnoreIneffective, jobField(wf, i)+".filters.branches.ignore",
					"branches.ignore has no effect without tags.ignore")
			case tags && !branches:
				d.addWarning(r, CategoryIgnoreIneffective, jobField(wf, i)+".filters.tags.ignore",
					"tags.ignore has no effect without branches.ignore")
			}
		}
	}
}

// warnDoubleEmit flags jobs where both inclusion rules can fire.
func (d *Doctor) warnDoubleEmit(r *Result) {
	for _, wf := range d.def.Workflows {
		for i, job := range wf.Jobs {
			f := job.Filters
			if f.HasOnly() && f.Branches.Ignore.Configured() && f.Tags.Ignore.Configured() {
				d.addWarning(r, CategoryDoubleEmit, jobField(wf, i)+".filters",
					"job runs whenever neither ignore pattern matches, regardless of only, and is listed twice when an only pattern also matches")
			}
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Definition valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Definition valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Definition invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
