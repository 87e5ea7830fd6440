package stepflow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/stepflow/core"
	"github.com/hupe1980/stepflow/flow"
	"github.com/hupe1980/stepflow/metric"
	"github.com/hupe1980/stepflow/model"
)

const greetingFlow = `
name: greeting
steps:
  - id: name
    nodes:
      - type: required
        fields: [name]
      - type: persist
        fields: [name]
    next: reply
  - id: reply
    terminal: true
    nodes:
      - type: model
        model: mock
        prompt: "Say hello to {{ .name }}"
`

func TestStepflow_EndToEnd(t *testing.T) {
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greeting.yaml"), []byte(greetingFlow), 0o600))

	sf, err := New()
	require.NoError(t, err)

	names, err := sf.LoadFlows(dir, map[string]model.Model{"mock": model.NewMockModel("mock")})
	require.NoError(t, err)
	assert.Equal(t, []string{"greeting"}, names)
	assert.Equal(t, []string{"greeting"}, sf.Flows())

	o, err := sf.Start(ctx, "greeting", nil)
	require.NoError(t, err)

	resp, err := sf.Submit(ctx, o.ID, "name", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "reply", resp.NextStep)

	resp, err = sf.Submit(ctx, o.ID, "reply", nil)
	require.NoError(t, err)
	assert.Equal(t, core.ResponseCompleted, resp.Status)
	assert.Contains(t, resp.Frontend.GetString("model"), "Say hello to Ada")

	got, err := sf.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OrderCompleted, got.Status)
	assert.NotContains(t, got.Data, "model")
}

func TestStepflow_RegisterFlowAndHandler(t *testing.T) {
	reg := metric.NewRegistry()

	sf, err := New(func(o *Options) {
		o.Metrics = reg
	})
	require.NoError(t, err)

	f := flow.NewFlow("ping", "ping")
	f.MustAddStep(&flow.Step{ID: "ping", Terminal: true})
	require.NoError(t, sf.RegisterFlow(f))

	_, err = sf.Start(context.Background(), "ping", nil)
	require.NoError(t, err)

	srv := httptest.NewServer(sf.Handler())
	defer srv.Close()

	res, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	_, err = New(func(o *Options) { o.Metrics = reg })
	assert.Error(t, err, "metrics cannot be registered twice on one registry")
}
