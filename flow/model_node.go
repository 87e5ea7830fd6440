package flow

import (
	"fmt"
	"text/template"
	"time"

	"github.com/hupe1980/stepflow/core"
	"github.com/hupe1980/stepflow/internal/util"
	"github.com/hupe1980/stepflow/logging"
	"github.com/hupe1980/stepflow/model"
)

// ModelNodeOptions configures a ModelNode.
type ModelNodeOptions struct {
	// Instructions is the system prompt.
	Instructions string
	// Target selects where the generated text is written. Defaults to Frontend.
	Target Target
	// Key is the output field. Defaults to the node name.
	Key string
	// Stream requests a streaming generation; chunks are joined.
	Stream bool
}

// ModelNode prompts a language model with a template rendered over the merged
// data and stores the generated text. Prompts are rendered without HTML
// escaping.
type ModelNode struct {
	name   string
	model  model.Model
	prompt *template.Template
	opts   ModelNodeOptions
}

// NewModelNode compiles prompt and returns a node calling m.
func NewModelNode(name string, m model.Model, prompt string, optFns ...func(o *ModelNodeOptions)) (*ModelNode, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: model node %s: model is nil", core.ErrInvalidFlow, name)
	}

	opts := ModelNodeOptions{
		Target: Frontend,
		Key:    name,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	tmpl, err := util.ParsePromptTemplate(name, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: model node %s: %v", core.ErrInvalidFlow, name, err)
	}

	return &ModelNode{name: name, model: m, prompt: tmpl, opts: opts}, nil
}

// Name returns the node name.
func (n *ModelNode) Name() string { return n.name }

// Execute renders the prompt, calls the model and writes the answer.
func (n *ModelNode) Execute(rc *core.RunContext) error {
	if err := rc.Limiter.Increment(); err != nil {
		return err
	}

	prompt, err := util.ExecuteTemplate(n.prompt, rc.Merged().Map())
	if err != nil {
		return fmt.Errorf("model node %s: render prompt: %w", n.name, err)
	}

	req := model.Request{
		Instructions: n.opts.Instructions,
		Messages:     []model.Message{{Role: model.RoleUser, Text: prompt}},
		Stream:       n.opts.Stream,
	}

	start := time.Now()
	respCh, errCh := n.model.Generate(rc.Context, req)
	resp, err := model.Collect(rc.Context, respCh, errCh)

	info := n.model.Info()
	tokens := 0
	if err == nil && resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}

	n.logCall(rc, info, tokens, time.Since(start), err)

	if err != nil {
		return core.WrapTransient(err, "flow", "ModelNode.Execute", n.name)
	}

	return n.opts.Target.fields(rc.Outcome).Set(n.opts.Key, resp.Text)
}

func (n *ModelNode) logCall(rc *core.RunContext, info model.Info, tokens int, d time.Duration, err error) {
	if fl, ok := rc.Logger().(*logging.FlowLogger); ok {
		fl.WithContext("node", n.name).WithContext("provider", info.Provider).LogModelCall(info.Name, tokens, d, err)
		return
	}

	if err != nil {
		rc.LogError("flow.model.failed", "node", n.name, "model", info.Name, "error", err.Error())
		return
	}

	rc.LogDebug(
		"flow.model.called",
		"node", n.name,
		"model", info.Name,
		"provider", info.Provider,
		"tokens", tokens,
		"duration_ms", d.Milliseconds(),
	)
}
