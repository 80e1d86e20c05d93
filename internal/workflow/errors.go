package workflow

import "fmt"

// ReadError reports that the pipeline file could not be read.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read pipeline file %q: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// ParseError reports malformed YAML or a document without a workflows mapping.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse pipeline: %v", e.Err)
	}
	return fmt.Sprintf("parse pipeline file %q: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MalformedWorkflowError reports a workflow whose jobs (or one of their
// filter blocks) do not have the expected shape.
type MalformedWorkflowError struct {
	Workflow string
	Field    string
	Line     int
	Reason   string
}

func (e *MalformedWorkflowError) Error() string {
	loc := fmt.Sprintf("workflow %q", e.Workflow)
	if e.Field != "" {
		loc += ": " + e.Field
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d): %s", loc, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", loc, e.Reason)
}

// PatternError reports a filter pattern that is not a valid regular expression.
type PatternError struct {
	Workflow string
	Job      string
	Field    string
	Pattern  string
	Err      error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("workflow %q job %q: %s: invalid pattern %q: %v", e.Workflow, e.Job, e.Field, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }
