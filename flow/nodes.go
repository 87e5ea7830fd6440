package flow

import (
	"encoding/json"
	"fmt"
	"html/template"
	"reflect"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hupe1980/stepflow/core"
	"github.com/hupe1980/stepflow/internal/util"
)

// Target selects the output container a node writes to.
type Target string

const (
	// Backend output is merged into the order record.
	Backend Target = "backend"
	// Frontend output is returned to the client only.
	Frontend Target = "frontend"
)

// ParseTarget parses "backend" or "frontend". An empty string selects Frontend.
func ParseTarget(s string) (Target, error) {
	switch Target(strings.ToLower(s)) {
	case "", Frontend:
		return Frontend, nil
	case Backend:
		return Backend, nil
	default:
		return "", fmt.Errorf("%w: unknown target %q", core.ErrInvalidFlow, s)
	}
}

func (t Target) fields(o *core.Outcome) *core.Fields {
	if t == Backend {
		return o.Backend
	}
	return o.Frontend
}

// Required fails every listed field that is missing, nil or blank in the
// current submission.
func Required(fields ...string) core.Node {
	return core.NewNodeFunc("required", func(rc *core.RunContext) error {
		cur := rc.Current()
		for _, f := range fields {
			v, ok := cur.Get(f)
			if !ok || isBlank(v) {
				rc.Outcome.Fail(f, "required", fmt.Sprintf("%s is required", f))
			}
		}
		return nil
	})
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

// SchemaNode validates the current submission against a JSON schema.
type SchemaNode struct {
	name   string
	schema *gojsonschema.Schema
}

// Schema compiles a JSON schema given as a Go document.
func Schema(name string, schema map[string]any) (*SchemaNode, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("%w: schema %s: %v", core.ErrInvalidFlow, name, err)
	}
	return &SchemaNode{name: name, schema: s}, nil
}

// SchemaJSON compiles a JSON schema given as raw JSON.
func SchemaJSON(name string, raw []byte) (*SchemaNode, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: schema %s: %v", core.ErrInvalidFlow, name, err)
	}
	return &SchemaNode{name: name, schema: s}, nil
}

// StructSchema derives a schema from the json tags of a Go struct.
func StructSchema(v any) (*SchemaNode, error) {
	name := "schema"
	if t := reflect.TypeOf(v); t != nil {
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		name = strings.ToLower(t.Name())
	}
	return Schema(name, util.CreateSchema(v))
}

// Name returns the node name.
func (n *SchemaNode) Name() string { return n.name }

// Execute records one field error per schema violation.
func (n *SchemaNode) Execute(rc *core.RunContext) error {
	doc, err := json.Marshal(rc.Current())
	if err != nil {
		return fmt.Errorf("schema %s: encode input: %w", n.name, err)
	}

	result, err := n.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema %s: %w", n.name, err)
	}

	for _, re := range result.Errors() {
		rc.Outcome.Fail(schemaField(re), re.Type(), re.Description())
	}

	return nil
}

const rootContext = "(root)"

// schemaField maps a result error to the input field it concerns. Required
// errors are reported on the parent object; the missing property is in the
// details.
func schemaField(re gojsonschema.ResultError) string {
	field := re.Field()
	if field == rootContext {
		field = ""
	}

	if re.Type() == "required" {
		if p, ok := re.Details()["property"].(string); ok {
			if field == "" {
				return p
			}
			return field + "." + p
		}
	}

	return field
}

// Persist copies the listed fields of the merged data into Backend.
// Absent fields are skipped.
func Persist(fields ...string) core.Node {
	return core.NewNodeFunc("persist", func(rc *core.RunContext) error {
		merged := rc.Merged()
		for _, f := range fields {
			if v, ok := merged.Get(f); ok {
				if err := rc.Outcome.Backend.Set(f, v); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// PersistAs copies the merged field from into Backend under to.
func PersistAs(from, to string) core.Node {
	return core.NewNodeFunc("persist_as", func(rc *core.RunContext) error {
		v, ok := rc.Merged().Get(from)
		if !ok {
			return nil
		}
		return rc.Outcome.Backend.Set(to, v)
	})
}

// DisplayNode renders an HTML template into a Frontend field.
type DisplayNode struct {
	key  string
	tmpl *template.Template
}

// Display compiles text and returns a node writing the rendered output to
// Frontend[key]. The template sees the merged data overlaid with the backend
// output produced by earlier nodes.
func Display(key, text string) (*DisplayNode, error) {
	tmpl, err := util.ParseTemplate(key, text)
	if err != nil {
		return nil, fmt.Errorf("%w: display %s: %v", core.ErrInvalidFlow, key, err)
	}
	return &DisplayNode{key: key, tmpl: tmpl}, nil
}

// Name returns the node name.
func (n *DisplayNode) Name() string { return "display:" + n.key }

// Execute renders the template.
func (n *DisplayNode) Execute(rc *core.RunContext) error {
	data := rc.Merged().Merge(rc.Outcome.Backend.Freeze())

	out, err := util.ExecuteTemplate(n.tmpl, data.Map())
	if err != nil {
		return fmt.Errorf("display %s: %w", n.key, err)
	}

	return rc.Outcome.Frontend.Set(n.key, out)
}

// Set writes a constant into the target container.
func Set(target Target, key string, value any) core.Node {
	return core.NewNodeFunc("set:"+key, func(rc *core.RunContext) error {
		return target.fields(rc.Outcome).Set(key, value)
	})
}

// Compute derives backend values from the merged data.
func Compute(name string, fn func(data core.Values) (map[string]any, error)) core.Node {
	return core.NewNodeFunc(name, func(rc *core.RunContext) error {
		out, err := fn(rc.Merged())
		if err != nil {
			return err
		}
		for k, v := range out {
			if err := rc.Outcome.Backend.Set(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Gate records a field error unless cond holds for the merged data.
func Gate(name string, cond Condition, field, code, message string) core.Node {
	return core.NewNodeFunc(name, func(rc *core.RunContext) error {
		if !cond(rc.Merged()) {
			rc.Outcome.Fail(field, code, message)
		}
		return nil
	})
}

// RejectWhen ends the order with reason when cond holds for the merged data.
func RejectWhen(cond Condition, reason string) core.Node {
	return core.NewNodeFunc("reject", func(rc *core.RunContext) error {
		if cond(rc.Merged()) {
			rc.Outcome.Reject(reason)
		}
		return nil
	})
}
