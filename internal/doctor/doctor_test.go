package doctor

import (
	"errors"
	"strings"
	"testing"

	"github.com/mattjoyce/beefci/internal/workflow"
)

func parse(t *testing.T, src string) *workflow.Definition {
	t.Helper()
	def, err := workflow.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return def
}

func hasIssue(issues []Issue, category string) bool {
	for _, issue := range issues {
		if issue.Category == category {
			return true
		}
	}
	return false
}

func TestValidate_CleanDefinition(t *testing.T) {
	t.Parallel()
	def := parse(t, `workflows:
  version: 2
  build:
    jobs:
      - compile
      - deploy:
          filters:
            branches:
              only: /^main$/
`)
	r := New(def).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
	if got := FormatHuman(r); got != "Definition valid.\n" {
		t.Fatalf("FormatHuman() = %q", got)
	}
}

func TestValidate_EmptyWorkflow(t *testing.T) {
	t.Parallel()
	r := New(parse(t, "workflows:\n  wf:\n    jobs: []\n")).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	if !hasIssue(r.Errors, CategoryEmptyWorkflow) {
		t.Fatalf("expected %s error, got %v", CategoryEmptyWorkflow, r.Errors)
	}
}

func TestValidate_DuplicateJob(t *testing.T) {
	t.Parallel()
	r := New(parse(t, "workflows:\n  wf:\n    jobs: [a, b, a]\n")).Validate()
	if !r.Valid {
		t.Fatalf("duplicates are a warning, got errors: %v", r.Errors)
	}
	if !hasIssue(r.Warnings, CategoryDuplicateJob) {
		t.Fatalf("expected %s warning, got %v", CategoryDuplicateJob, r.Warnings)
	}
	if r.Warnings[0].Field != "workflows.wf.jobs[2].a" {
		t.Fatalf("field = %q", r.Warnings[0].Field)
	}
}

func TestValidate_EmptyPattern(t *testing.T) {
	t.Parallel()
	r := New(parse(t, `workflows:
  wf:
    jobs:
      - a:
          filters:
            tags:
              only: /
`)).Validate()
	if !hasIssue(r.Warnings, CategoryEmptyPattern) {
		t.Fatalf("expected %s warning, got %v", CategoryEmptyPattern, r.Warnings)
	}
}

func TestValidate_IgnoreIneffective(t *testing.T) {
	t.Parallel()
	r := New(parse(t, `workflows:
  wf:
    jobs:
      - a:
          filters:
            branches:
              ignore: gh-pages
`)).Validate()
	if !hasIssue(r.Warnings, CategoryIgnoreIneffective) {
		t.Fatalf("expected %s warning, got %v", CategoryIgnoreIneffective, r.Warnings)
	}
	if !strings.HasSuffix(r.Warnings[0].Field, ".filters.branches.ignore") {
		t.Fatalf("field = %q", r.Warnings[0].Field)
	}
}

func TestValidate_DoubleEmit(t *testing.T) {
	t.Parallel()
	r := New(parse(t, `workflows:
  wf:
    jobs:
      - a:
          filters:
            branches:
              only: main
              ignore: dev
            tags:
              ignore: ^v
`)).Validate()
	if !hasIssue(r.Warnings, CategoryDoubleEmit) {
		t.Fatalf("expected %s warning, got %v", CategoryDoubleEmit, r.Warnings)
	}
	if hasIssue(r.Warnings, CategoryIgnoreIneffective) {
		t.Fatalf("both ignores set, unexpected %s warning", CategoryIgnoreIneffective)
	}
}

func TestLoadFailure(t *testing.T) {
	t.Parallel()
	r := LoadFailure(errors.New("boom"))
	if r.Valid || len(r.Errors) != 1 || r.Errors[0].Category != CategoryLoad {
		t.Fatalf("unexpected result: %+v", r)
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "ERROR [load] boom") {
		t.Fatalf("FormatHuman() = %q", out)
	}
	js, err := FormatJSON(r)
	if err != nil {
		t.Fatalf("FormatJSON() error = %v", err)
	}
	if !strings.Contains(js, `"valid": false`) {
		t.Fatalf("FormatJSON() = %s", js)
	}
}
