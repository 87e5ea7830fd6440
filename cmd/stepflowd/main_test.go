package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/stepflow/config"
	"github.com/hupe1980/stepflow/model"
	"github.com/hupe1980/stepflow/order"
)

func TestBuildModels(t *testing.T) {
	models, err := buildModels([]config.ModelConfig{
		{Name: "fake", Provider: config.ProviderMock},
		{Name: "gpt", Provider: config.ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "test"},
		{Name: "claude", Provider: config.ProviderAnthropic, Model: "claude-3-5-haiku-latest", APIKey: "test"},
	})
	require.NoError(t, err)
	require.Len(t, models, 3)

	assert.IsType(t, &model.MockModel{}, models["fake"])
	assert.Equal(t, "gpt-4o-mini", models["gpt"].Info().Name)
	assert.Equal(t, "claude-3-5-haiku-latest", models["claude"].Info().Name)

	_, err = buildModels([]config.ModelConfig{{Name: "x", Provider: "cohere"}})
	assert.ErrorContains(t, err, "unknown provider")
}

func TestOpenStore(t *testing.T) {
	store, closeFn, err := openStore(context.Background(), config.StoreConfig{Driver: config.StoreMemory}, nil)
	require.NoError(t, err)
	defer closeFn()

	assert.IsType(t, &order.InMemoryStore{}, store)

	_, _, err = openStore(context.Background(), config.StoreConfig{Driver: "etcd"}, nil)
	assert.Error(t, err)
}

func TestRun_ValidateOnly(t *testing.T) {
	dir := t.TempDir()
	flows := filepath.Join(dir, "flows")
	require.NoError(t, os.Mkdir(flows, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(flows, "ping.yaml"), []byte(`
name: ping
steps:
  - id: ping
    terminal: true
    nodes:
      - type: model
        model: fake
        prompt: ping
`), 0o600))

	cfgPath := filepath.Join(dir, "stepflow.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
log:
  level: error
flows:
  dir: `+flows+`
models:
  - name: fake
    provider: mock
`), 0o600))

	require.NoError(t, run(context.Background(), cfgPath, true))
}

func TestRun_UnknownModelFails(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ping.yaml"), []byte(`
name: ping
steps:
  - id: ping
    terminal: true
    nodes:
      - type: model
        model: missing
        prompt: ping
`), 0o600))

	cfgPath := filepath.Join(t.TempDir(), "stepflow.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("flows:\n  dir: "+dir+"\n"), 0o600))

	err := run(context.Background(), cfgPath, true)
	assert.ErrorContains(t, err, "load flows")
}
