package flow

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/stepflow/core"
	"github.com/hupe1980/stepflow/model"
)

// Node types understood by the YAML loader.
const (
	nodeTypeRequired = "required"
	nodeTypeSchema   = "schema"
	nodeTypePersist  = "persist"
	nodeTypeDisplay  = "display"
	nodeTypeSet      = "set"
	nodeTypeGate     = "gate"
	nodeTypeReject   = "reject"
	nodeTypeModel    = "model"
)

// LoadError describes a problem in a flow document.
type LoadError struct {
	Flow    string
	Step    string
	Message string
}

func (e *LoadError) Error() string {
	switch {
	case e.Step != "":
		return fmt.Sprintf("flow %s: step %s: %s", e.Flow, e.Step, e.Message)
	case e.Flow != "":
		return fmt.Sprintf("flow %s: %s", e.Flow, e.Message)
	default:
		return e.Message
	}
}

// Unwrap classifies every load error as an invalid flow.
func (e *LoadError) Unwrap() error { return core.ErrInvalidFlow }

// LoaderOptions configures flow loading.
type LoaderOptions struct {
	// Models resolves the model referenced by "model" nodes.
	Models map[string]model.Model
}

type flowDoc struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Start       string    `yaml:"start"`
	Steps       []stepDoc `yaml:"steps"`
}

type stepDoc struct {
	ID       string     `yaml:"id"`
	Title    string     `yaml:"title"`
	Nodes    []nodeDoc  `yaml:"nodes"`
	Routes   []routeDoc `yaml:"routes"`
	Next     string     `yaml:"next"`
	Terminal bool       `yaml:"terminal"`
}

type routeDoc struct {
	When *condDoc `yaml:"when"`
	To   string   `yaml:"to"`
}

type nodeDoc struct {
	Type         string            `yaml:"type"`
	Name         string            `yaml:"name"`
	Fields       []string          `yaml:"fields"`
	Rename       map[string]string `yaml:"rename"`
	Schema       map[string]any    `yaml:"schema"`
	Key          string            `yaml:"key"`
	Template     string            `yaml:"template"`
	Target       string            `yaml:"target"`
	Value        any               `yaml:"value"`
	When         *condDoc          `yaml:"when"`
	Field        string            `yaml:"field"`
	Code         string            `yaml:"code"`
	Message      string            `yaml:"message"`
	Reason       string            `yaml:"reason"`
	Model        string            `yaml:"model"`
	Prompt       string            `yaml:"prompt"`
	Instructions string            `yaml:"instructions"`
	Stream       bool              `yaml:"stream"`
}

type condDoc struct {
	Field  string    `yaml:"field"`
	Equals any       `yaml:"equals"`
	In     []any     `yaml:"in"`
	Exists bool      `yaml:"exists"`
	Truthy bool      `yaml:"truthy"`
	Not    bool      `yaml:"not"`
	All    []condDoc `yaml:"all"`
	Any    []condDoc `yaml:"any"`
}

// Load reads one YAML flow document and returns the validated flow.
func Load(r io.Reader, optFns ...func(o *LoaderOptions)) (*Flow, error) {
	opts := LoaderOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc flowDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", core.ErrInvalidFlow, err)
	}

	f, err := buildFlow(doc, opts)
	if err != nil {
		return nil, err
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}

	return f, nil
}

// LoadFile loads a flow from a YAML file.
func LoadFile(path string, optFns ...func(o *LoaderOptions)) (*Flow, error) {
	file, err := os.Open(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := Load(file, optFns...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	return f, nil
}

// LoadDir loads every *.yaml and *.yml file in dir, sorted by file name.
// Flow names must be unique across the directory.
func LoadDir(dir string, optFns ...func(o *LoaderOptions)) ([]*Flow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	flows := make([]*Flow, 0, len(names))
	seen := map[string]string{}

	for _, name := range names {
		f, err := LoadFile(filepath.Join(dir, name), optFns...)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[f.Name]; dup {
			return nil, &LoadError{Flow: f.Name, Message: fmt.Sprintf("defined in %s and %s", prev, name)}
		}
		seen[f.Name] = name
		flows = append(flows, f)
	}

	return flows, nil
}

func buildFlow(doc flowDoc, opts LoaderOptions) (*Flow, error) {
	if doc.Name == "" {
		return nil, &LoadError{Message: "name is required"}
	}

	start := doc.Start
	if start == "" && len(doc.Steps) > 0 {
		start = doc.Steps[0].ID
	}

	f := NewFlow(doc.Name, start)
	f.Description = doc.Description

	for _, sd := range doc.Steps {
		step, err := buildStep(doc.Name, sd, opts)
		if err != nil {
			return nil, err
		}
		if err := f.AddStep(step); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func buildStep(flowName string, sd stepDoc, opts LoaderOptions) (*Step, error) {
	step := &Step{
		ID:       sd.ID,
		Title:    sd.Title,
		Next:     sd.Next,
		Terminal: sd.Terminal,
	}

	for i, nd := range sd.Nodes {
		n, err := buildNode(nd, opts)
		if err != nil {
			return nil, &LoadError{Flow: flowName, Step: sd.ID, Message: fmt.Sprintf("node %d: %v", i, err)}
		}
		step.Nodes = append(step.Nodes, n)
	}

	for i, rd := range sd.Routes {
		if rd.When == nil {
			return nil, &LoadError{Flow: flowName, Step: sd.ID, Message: fmt.Sprintf("route %d: when is required", i)}
		}
		cond, err := buildCondition(*rd.When)
		if err != nil {
			return nil, &LoadError{Flow: flowName, Step: sd.ID, Message: fmt.Sprintf("route %d: %v", i, err)}
		}
		step.Routes = append(step.Routes, Route{When: cond, To: rd.To})
	}

	return step, nil
}

func buildNode(nd nodeDoc, opts LoaderOptions) (core.Node, error) {
	switch nd.Type {
	case nodeTypeRequired:
		if len(nd.Fields) == 0 {
			return nil, errors.New("required: fields are empty")
		}
		return Required(nd.Fields...), nil
	case nodeTypeSchema:
		name := nd.Name
		if name == "" {
			name = nodeTypeSchema
		}
		return Schema(name, nd.Schema)
	case nodeTypePersist:
		if len(nd.Rename) == 0 {
			return Persist(nd.Fields...), nil
		}
		return persistRenamed(nd.Fields, nd.Rename), nil
	case nodeTypeDisplay:
		if nd.Key == "" {
			return nil, errors.New("display: key is required")
		}
		return Display(nd.Key, nd.Template)
	case nodeTypeSet:
		target, err := ParseTarget(nd.Target)
		if err != nil {
			return nil, err
		}
		if nd.Key == "" {
			return nil, errors.New("set: key is required")
		}
		return Set(target, nd.Key, nd.Value), nil
	case nodeTypeGate:
		if nd.When == nil {
			return nil, errors.New("gate: when is required")
		}
		cond, err := buildCondition(*nd.When)
		if err != nil {
			return nil, err
		}
		code := nd.Code
		if code == "" {
			code = nodeTypeGate
		}
		name := nd.Name
		if name == "" {
			name = nodeTypeGate
		}
		return Gate(name, cond, nd.Field, code, nd.Message), nil
	case nodeTypeReject:
		if nd.When == nil {
			return nil, errors.New("reject: when is required")
		}
		cond, err := buildCondition(*nd.When)
		if err != nil {
			return nil, err
		}
		return RejectWhen(cond, nd.Reason), nil
	case nodeTypeModel:
		m, ok := opts.Models[nd.Model]
		if !ok {
			return nil, fmt.Errorf("model: unknown model %q", nd.Model)
		}
		target, err := ParseTarget(nd.Target)
		if err != nil {
			return nil, err
		}
		name := nd.Name
		if name == "" {
			name = nodeTypeModel
		}
		return NewModelNode(name, m, nd.Prompt, func(o *ModelNodeOptions) {
			o.Instructions = nd.Instructions
			o.Target = target
			o.Stream = nd.Stream
			if nd.Key != "" {
				o.Key = nd.Key
			}
		})
	default:
		return nil, fmt.Errorf("unknown node type %q", nd.Type)
	}
}

// persistRenamed persists fields as-is and every rename entry under its new name.
func persistRenamed(fields []string, rename map[string]string) core.Node {
	froms := make([]string, 0, len(rename))
	for from := range rename {
		froms = append(froms, from)
	}
	sort.Strings(froms)

	nodes := []core.Node{Persist(fields...)}
	for _, from := range froms {
		nodes = append(nodes, PersistAs(from, rename[from]))
	}

	return core.NewNodeFunc("persist", func(rc *core.RunContext) error {
		for _, n := range nodes {
			if err := n.Execute(rc); err != nil {
				return err
			}
		}
		return nil
	})
}

func buildCondition(cd condDoc) (Condition, error) {
	var cond Condition

	switch {
	case len(cd.All) > 0 || len(cd.Any) > 0:
		if cd.Field != "" {
			return nil, errors.New("condition: field cannot be combined with all/any")
		}
		subs, err := buildConditions(cd.All)
		if err != nil {
			return nil, err
		}
		alts, err := buildConditions(cd.Any)
		if err != nil {
			return nil, err
		}
		switch {
		case len(subs) > 0 && len(alts) > 0:
			cond = All(All(subs...), Any(alts...))
		case len(subs) > 0:
			cond = All(subs...)
		default:
			cond = Any(alts...)
		}
	case cd.Field == "":
		return nil, errors.New("condition: field is required")
	case cd.Equals != nil:
		cond = FieldEquals(cd.Field, cd.Equals)
	case len(cd.In) > 0:
		cond = FieldIn(cd.Field, cd.In...)
	case cd.Exists:
		cond = FieldExists(cd.Field)
	case cd.Truthy:
		cond = FieldTruthy(cd.Field)
	default:
		return nil, fmt.Errorf("condition on %q: one of equals, in, exists or truthy is required", cd.Field)
	}

	if cd.Not {
		cond = Not(cond)
	}

	return cond, nil
}

func buildConditions(docs []condDoc) ([]Condition, error) {
	out := make([]Condition, 0, len(docs))
	for _, d := range docs {
		c, err := buildCondition(d)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
