package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/stepflow/model"
)

func TestBuildMessages_SkipsSystemAndEmpty(t *testing.T) {
	msgs := buildMessages([]model.Message{
		{Role: model.RoleSystem, Text: "be brief"},
		{Role: model.RoleUser, Text: "hello"},
		{Role: model.RoleAssistant, Text: ""},
		{Role: "tool", Text: "treated as user"},
	})

	assert.Len(t, msgs, 2)
}

func TestSystemBlocks(t *testing.T) {
	blocks := systemBlocks(model.Request{
		Instructions: "You summarize orders.",
		Messages:     []model.Message{{Role: model.RoleSystem, Text: "Use EUR."}},
	})

	assert.Len(t, blocks, 2)
	assert.Equal(t, "You summarize orders.", blocks[0].Text)
	assert.Equal(t, "Use EUR.", blocks[1].Text)
}

func TestInfo(t *testing.T) {
	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.Model = "claude-test"
	})

	assert.Equal(t, model.Info{Name: "claude-test", Provider: "anthropic"}, m.Info())
}
