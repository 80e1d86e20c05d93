package workflow

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and parses one pipeline file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}

	def, err := Parse(data)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Path = path
		}
		return nil, err
	}
	return def, nil
}

// Parse builds a Definition from YAML. Workflow and job order follow the
// document; the reserved version key and null workflow entries are skipped.
func Parse(data []byte) (*Definition, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Err: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &ParseError{Err: errors.New("document is empty")}
	}

	root := resolve(doc.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Err: fmt.Errorf("line %d: top level must be a mapping", root.Line)}
	}
	workflows := lookup(root, "workflows")
	if workflows == nil || isNull(workflows) {
		return nil, &ParseError{Err: errors.New("missing workflows mapping")}
	}
	if workflows.Kind != yaml.MappingNode {
		return nil, &ParseError{Err: fmt.Errorf("line %d: workflows must be a mapping", workflows.Line)}
	}

	def := &Definition{}
	for _, kv := range pairs(workflows) {
		if kv.key == ReservedVersionKey || isNull(kv.value) {
			continue
		}

		wf, err := parseWorkflow(kv.key, kv.value)
		if err != nil {
			return nil, err
		}
		def.Workflows = append(def.Workflows, wf)
	}

	fingerprint, err := fingerprintDefinition(def)
	if err != nil {
		return nil, err
	}
	def.Fingerprint = fingerprint
	return def, nil
}

func parseWorkflow(name string, node *yaml.Node) (Workflow, error) {
	wf := Workflow{Name: name}
	if node.Kind != yaml.MappingNode {
		return wf, &MalformedWorkflowError{Workflow: name, Line: node.Line, Reason: "workflow must be a mapping"}
	}

	jobs := lookup(node, "jobs")
	if jobs == nil || isNull(jobs) {
		return wf, &MalformedWorkflowError{Workflow: name, Field: "jobs", Line: node.Line, Reason: "jobs sequence is required"}
	}
	if jobs.Kind != yaml.SequenceNode {
		return wf, &MalformedWorkflowError{Workflow: name, Field: "jobs", Line: jobs.Line, Reason: "jobs must be a sequence"}
	}

	wf.Jobs = make([]Job, 0, len(jobs.Content))
	for i, item := range jobs.Content {
		job, err := parseJob(name, i, resolve(item))
		if err != nil {
			return wf, err
		}
		wf.Jobs = append(wf.Jobs, job)
	}
	return wf, nil
}

func parseJob(workflow string, idx int, node *yaml.Node) (Job, error) {
	field := fmt.Sprintf("jobs[%d]", idx)

	switch node.Kind {
	case yaml.ScalarNode:
		if isNull(node) || node.Value == "" {
			return Job{}, &MalformedWorkflowError{Workflow: workflow, Field: field, Line: node.Line, Reason: "job name is empty"}
		}
		return Job{Name: node.Value}, nil

	case yaml.MappingNode:
		entries := pairs(node)
		if len(entries) == 0 {
			return Job{}, &MalformedWorkflowError{Workflow: workflow, Field: field, Line: node.Line, Reason: "job entry is an empty mapping"}
		}
		// Only the first key names the job; any further keys are ignored.
		job := Job{Name: entries[0].key}
		cfg := entries[0].value
		if isNull(cfg) {
			return job, nil
		}
		if cfg.Kind != yaml.MappingNode {
			return Job{}, &MalformedWorkflowError{Workflow: workflow, Field: field + "." + job.Name, Line: cfg.Line, Reason: "job configuration must be a mapping"}
		}

		filters, err := parseFilters(workflow, job.Name, field+"."+job.Name+".filters", lookup(cfg, "filters"))
		if err != nil {
			return Job{}, err
		}
		job.Filters = filters
		return job, nil
	}

	return Job{}, &MalformedWorkflowError{Workflow: workflow, Field: field, Line: node.Line, Reason: "job entry must be a name or a single-key mapping"}
}

func parseFilters(workflow, job, field string, node *yaml.Node) (Filters, error) {
	if node == nil || isNull(node) {
		return Filters{}, nil
	}
	if node.Kind != yaml.MappingNode {
		return Filters{}, &MalformedWorkflowError{Workflow: workflow, Field: field, Line: node.Line, Reason: "filters must be a mapping"}
	}

	branches, err := parseRule(workflow, job, field+".branches", lookup(node, "branches"))
	if err != nil {
		return Filters{}, err
	}
	tags, err := parseRule(workflow, job, field+".tags", lookup(node, "tags"))
	if err != nil {
		return Filters{}, err
	}
	return Filters{Branches: branches, Tags: tags}, nil
}

func parseRule(workflow, job, field string, node *yaml.Node) (Rule, error) {
	if node == nil || isNull(node) {
		return Rule{}, nil
	}
	if node.Kind != yaml.MappingNode {
		return Rule{}, &MalformedWorkflowError{Workflow: workflow, Field: field, Line: node.Line, Reason: "must be a mapping with only/ignore"}
	}

	only, err := parsePattern(workflow, job, field+".only", lookup(node, "only"))
	if err != nil {
		return Rule{}, err
	}
	ignore, err := parsePattern(workflow, job, field+".ignore", lookup(node, "ignore"))
	if err != nil {
		return Rule{}, err
	}
	return Rule{Only: only, Ignore: ignore}, nil
}

func parsePattern(workflow, job, field string, node *yaml.Node) (Pattern, error) {
	if node == nil || isNull(node) {
		return Pattern{}, nil
	}

	var sources []string
	switch node.Kind {
	case yaml.ScalarNode:
		sources = []string{node.Value}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			item = resolve(item)
			if item.Kind != yaml.ScalarNode {
				return Pattern{}, &MalformedWorkflowError{Workflow: workflow, Field: field, Line: item.Line, Reason: "pattern list entries must be strings"}
			}
			if isNull(item) {
				continue
			}
			sources = append(sources, item.Value)
		}
	default:
		return Pattern{}, &MalformedWorkflowError{Workflow: workflow, Field: field, Line: node.Line, Reason: "pattern must be a string or a list of strings"}
	}

	p, err := CompilePattern(sources...)
	if err != nil {
		return Pattern{}, &PatternError{Workflow: workflow, Job: job, Field: field, Pattern: strings.Join(sources, ", "), Err: err}
	}
	return p, nil
}

// maxMergeDepth bounds how deeply merge keys are followed.
const maxMergeDepth = 32

type pair struct {
	key   string
	value *yaml.Node
}

// lookup returns the value node for key in a mapping node, or nil. Keys
// pulled in through "<<" merge keys are found too; explicit keys win.
func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for _, kv := range pairs(mapping) {
		if kv.key == key {
			return kv.value
		}
	}
	return nil
}

// pairs flattens a mapping node into its key/value pairs in document order,
// with merge keys expanded. Explicit keys come first; merged keys follow and
// are dropped when already present. Within a sequence of merge sources the
// earlier mapping wins.
func pairs(mapping *yaml.Node) []pair {
	return collectPairs(mapping, 0, map[string]bool{}, nil)
}

func collectPairs(mapping *yaml.Node, depth int, seen map[string]bool, out []pair) []pair {
	mapping = resolve(mapping)
	if mapping == nil || mapping.Kind != yaml.MappingNode || depth > maxMergeDepth {
		return out
	}

	var merges []*yaml.Node
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		k := mapping.Content[i]
		if isMergeKey(k) {
			merges = append(merges, resolve(mapping.Content[i+1]))
			continue
		}
		if seen[k.Value] {
			continue
		}
		seen[k.Value] = true
		out = append(out, pair{key: k.Value, value: resolve(mapping.Content[i+1])})
	}

	for _, src := range merges {
		if src == nil {
			continue
		}
		switch src.Kind {
		case yaml.MappingNode:
			out = collectPairs(src, depth+1, seen, out)
		case yaml.SequenceNode:
			for _, item := range src.Content {
				out = collectPairs(item, depth+1, seen, out)
			}
		}
	}
	return out
}

func isMergeKey(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!merge"
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}
