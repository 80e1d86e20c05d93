package filter

import (
	"fmt"

	"github.com/mattjoyce/beefci/internal/log"
	"github.com/mattjoyce/beefci/internal/workflow"
)

// Run loads the pipeline file at path and evaluates it. Any read, parse or
// pattern error is returned before evaluation starts, so a caller never sees
// a partial result.
func Run(path string, in Input, opts Options) (*Result, error) {
	logger := log.WithComponent("filter")

	def, err := workflow.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load definition: %w", err)
	}
	logger.Debug("definition loaded",
		"path", path,
		"workflows", len(def.Workflows),
		"fingerprint", def.Fingerprint,
	)

	res := Evaluate(def, in, opts)
	for _, wf := range res.Workflows {
		log.WithWorkflow(wf.Name).Debug("workflow evaluated",
			"jobs_declared", len(wf.Decisions),
			"jobs_triggered", len(wf.Jobs),
		)
	}
	return res, nil
}
