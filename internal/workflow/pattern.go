package workflow

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// Pattern is one side (only or ignore) of a filter rule. A YAML scalar yields
// one source, a YAML sequence yields one source per element.
type Pattern struct {
	Sources []string // as written in the file
	Exprs   []string // sources with every '/' removed, empty results dropped
	res     []*regexp2.Regexp
}

// Configured reports whether the pattern has at least one non-empty
// expression. A source such as "/" strips to nothing and does not count.
func (p Pattern) Configured() bool {
	return len(p.Exprs) > 0
}

// MatchString reports whether any expression finds a match anywhere in s.
func (p Pattern) MatchString(s string) bool {
	for _, re := range p.res {
		// regexp2 only errors on a match timeout, and none is set.
		if ok, err := re.MatchString(s); err == nil && ok {
			return true
		}
	}
	return false
}

// StripSlashes removes every '/' so that CircleCI's /regex/ notation and a
// bare regex compile to the same expression.
func StripSlashes(src string) string {
	return strings.ReplaceAll(src, "/", "")
}

// CompilePattern strips and compiles sources with ECMAScript semantics.
func CompilePattern(sources ...string) (Pattern, error) {
	p := Pattern{Sources: append([]string(nil), sources...)}
	for _, src := range sources {
		expr := StripSlashes(src)
		if expr == "" {
			continue
		}
		re, err := regexp2.Compile(expr, regexp2.ECMAScript)
		if err != nil {
			return Pattern{}, fmt.Errorf("compile %q: %w", expr, err)
		}
		p.Exprs = append(p.Exprs, expr)
		p.res = append(p.res, re)
	}
	return p, nil
}
