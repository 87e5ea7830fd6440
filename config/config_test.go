package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Runner.MaxConflictRetries)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestParse_OverridesAndExpansion(t *testing.T) {
	t.Setenv("OPENAI_TEST_KEY", "sk-test")

	cfg, err := Parse([]byte(`
server:
  addr: ":9090"
  shutdown_timeout: 5s
log:
  level: debug
  format: text
engine:
  node_timeout: 2s
  max_model_calls: 1
runner:
  allow_revisit: true
store:
  driver: nats
  nats:
    url: nats://nats:4222
    ttl: 72h
models:
  - name: assistant
    provider: openai
    model: gpt-4o-mini
    api_key: ${OPENAI_TEST_KEY}
`))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout, "unset values keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2*time.Second, cfg.Engine.NodeTimeout)
	assert.Equal(t, 64, cfg.Engine.MaxConcurrentExecutions)
	assert.Equal(t, 1, cfg.Engine.MaxModelCalls)
	assert.True(t, cfg.Runner.AllowRevisit)
	assert.Equal(t, StoreNATS, cfg.Store.Driver)
	assert.Equal(t, "nats://nats:4222", cfg.Store.NATS.URL)
	assert.Equal(t, "stepflow_orders", cfg.Store.NATS.Bucket)
	assert.Equal(t, 72*time.Hour, cfg.Store.NATS.TTL)

	require.Len(t, cfg.Models, 1)
	assert.Equal(t, "sk-test", cfg.Models[0].APIKey)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("STEPFLOW_ADDR", ":7070")
	t.Setenv("STEPFLOW_FLOWS_DIR", "/etc/stepflow/flows")

	cfg, err := Parse([]byte("server:\n  addr: \":9090\"\n"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "/etc/stepflow/flows", cfg.Flows.Dir)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		msg  string
	}{
		{name: "unknown field", yaml: "server:\n  port: 80\n", msg: "field port not found"},
		{name: "bad duration", yaml: "engine:\n  node_timeout: soon\n", msg: "parse config"},
		{name: "log level", yaml: "log:\n  level: loud\n", msg: "log.level"},
		{name: "log format", yaml: "log:\n  format: xml\n", msg: "log.format"},
		{name: "store driver", yaml: "store:\n  driver: redis\n", msg: "store.driver"},
		{name: "nats url", yaml: "store:\n  driver: nats\n  nats:\n    url: \"\"\n", msg: "store.nats.url"},
		{name: "negative limits", yaml: "engine:\n  max_model_calls: -1\n", msg: "must not be negative"},
		{name: "model provider", yaml: "models:\n  - name: a\n    provider: cohere\n", msg: "unknown provider"},
		{name: "model name", yaml: "models:\n  - provider: mock\n", msg: "name is required"},
		{name: "duplicate model", yaml: "models:\n  - {name: a, provider: mock}\n  - {name: a, provider: mock}\n", msg: "duplicate name"},
		{name: "missing model id", yaml: "models:\n  - {name: a, provider: anthropic}\n", msg: "model is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stepflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("flows:\n  dir: ./defs\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./defs", cfg.Flows.Dir)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
