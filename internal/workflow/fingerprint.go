package workflow

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// fingerprintDefinition hashes the normalized definition: order-sensitive,
// and over stripped expressions so "/^main$/" and "^main$" agree.
func fingerprintDefinition(def *Definition) (string, error) {
	type ruleShape struct {
		Only   []string `json:"only,omitempty"`
		Ignore []string `json:"ignore,omitempty"`
	}
	type jobShape struct {
		Name     string    `json:"name"`
		Branches ruleShape `json:"branches"`
		Tags     ruleShape `json:"tags"`
	}
	type workflowShape struct {
		Name string     `json:"name"`
		Jobs []jobShape `json:"jobs"`
	}

	shape := make([]workflowShape, 0, len(def.Workflows))
	for _, wf := range def.Workflows {
		ws := workflowShape{Name: wf.Name, Jobs: make([]jobShape, 0, len(wf.Jobs))}
		for _, job := range wf.Jobs {
			ws.Jobs = append(ws.Jobs, jobShape{
				Name:     job.Name,
				Branches: ruleShape{Only: job.Filters.Branches.Only.Exprs, Ignore: job.Filters.Branches.Ignore.Exprs},
				Tags:     ruleShape{Only: job.Filters.Tags.Only.Exprs, Ignore: job.Filters.Tags.Ignore.Exprs},
			})
		}
		shape = append(shape, ws)
	}

	body, err := json.Marshal(shape)
	if err != nil {
		return "", fmt.Errorf("marshal definition fingerprint input: %w", err)
	}
	sum := blake3.Sum256(body)
	return "blake3:" + hex.EncodeToString(sum[:]), nil
}
