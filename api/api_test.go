package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/stepflow/core"
	"github.com/hupe1980/stepflow/engine"
	"github.com/hupe1980/stepflow/flow"
	"github.com/hupe1980/stepflow/logging"
	"github.com/hupe1980/stepflow/metric"
	"github.com/hupe1980/stepflow/order"
	"github.com/hupe1980/stepflow/runner"
)

func newTestServer(t *testing.T, optFns ...func(o *Options)) *httptest.Server {
	t.Helper()

	display, err := flow.Display("summary", "Shipping to {{ .shipping_street }}")
	require.NoError(t, err)

	f := flow.NewFlow("checkout", "address")
	f.MustAddStep(&flow.Step{
		ID: "address",
		Nodes: []core.Node{
			flow.Required("street"),
			flow.PersistAs("street", "shipping_street"),
			flow.Set(flow.Backend, "internal_score", 42),
			display,
		},
		Next: "confirm",
	}).MustAddStep(&flow.Step{ID: "confirm", Terminal: true})

	eng := engine.New()
	require.NoError(t, eng.Register(f))

	r := runner.New(eng, order.NewInMemoryStore())

	srv := httptest.NewServer(NewRouter(r, eng, optFns...))
	t.Cleanup(srv.Close)

	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)

	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}

	return res.StatusCode, out
}

func startOrder(t *testing.T, srv *httptest.Server) string {
	t.Helper()

	status, body := do(t, srv, http.MethodPost, "/api/v1/flows/checkout/orders", `{"data":{"name":"Ada"}}`)
	require.Equal(t, http.StatusCreated, status)

	return body["id"].(string)
}

func TestAPI_HealthAndFlows(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body = do(t, srv, http.MethodGet, "/api/v1/flows", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"checkout"}, body["flows"])

	status, _ = do(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, status, "metrics are disabled without a handler")
}

func TestAPI_StartOrder(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodPost, "/api/v1/flows/checkout/orders", `{"data":{"name":"Ada"}}`)
	require.Equal(t, http.StatusCreated, status)

	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "checkout", body["flow"])
	assert.Equal(t, "address", body["current_step"])
	assert.Equal(t, "new", body["status"])
	assert.NotContains(t, body, "data", "order views never expose record data")

	status, _ = do(t, srv, http.MethodPost, "/api/v1/flows/checkout/orders", "")
	assert.Equal(t, http.StatusCreated, status, "empty body starts an order without data")

	status, _ = do(t, srv, http.MethodPost, "/api/v1/flows/returns/orders", `{}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = do(t, srv, http.MethodPost, "/api/v1/flows/checkout/orders", `{"data":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid request body", body["error"])
}

func TestAPI_SubmitStepExposesFrontendOnly(t *testing.T) {
	srv := newTestServer(t)
	id := startOrder(t, srv)

	status, body := do(t, srv, http.MethodPost, "/api/v1/orders/"+id+"/steps/address", `{"data":{"street":"Main St 1"}}`)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "confirm", body["next_step"])
	assert.Equal(t, map[string]any{"summary": "Shipping to Main St 1"}, body["data"])
	assert.NotContains(t, body, "backend")
	assert.NotContains(t, body, "validated")

	status, body = do(t, srv, http.MethodGet, "/api/v1/orders/"+id, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "confirm", body["current_step"])
	assert.Equal(t, "in_progress", body["status"])
	assert.Equal(t, float64(2), body["version"])
	assert.Len(t, body["history"], 1)

	status, body = do(t, srv, http.MethodPost, "/api/v1/orders/"+id+"/steps/confirm", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "completed", body["status"])
}

func TestAPI_SubmitStepErrors(t *testing.T) {
	srv := newTestServer(t)
	id := startOrder(t, srv)

	t.Run("invalid input", func(t *testing.T) {
		status, body := do(t, srv, http.MethodPost, "/api/v1/orders/"+id+"/steps/address", `{"data":{"street":"  "}}`)
		require.Equal(t, http.StatusUnprocessableEntity, status)

		assert.Equal(t, "invalid", body["status"])
		assert.Equal(t, "address", body["next_step"])

		errs, ok := body["errors"].([]any)
		require.True(t, ok)
		require.Len(t, errs, 1)
		assert.Equal(t, "street", errs[0].(map[string]any)["field"])
		assert.Equal(t, "required", errs[0].(map[string]any)["code"])
	})

	t.Run("step not allowed", func(t *testing.T) {
		status, _ := do(t, srv, http.MethodPost, "/api/v1/orders/"+id+"/steps/confirm", "")
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("unknown order", func(t *testing.T) {
		status, _ := do(t, srv, http.MethodPost, "/api/v1/orders/missing/steps/address", `{"data":{}}`)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("bad body", func(t *testing.T) {
		status, _ := do(t, srv, http.MethodPost, "/api/v1/orders/"+id+"/steps/address", `[1,2]`)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestAPI_CancelAndList(t *testing.T) {
	srv := newTestServer(t)
	first := startOrder(t, srv)
	startOrder(t, srv)

	status, body := do(t, srv, http.MethodDelete, "/api/v1/orders/"+first, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cancelled", body["status"])

	status, _ = do(t, srv, http.MethodDelete, "/api/v1/orders/"+first, "")
	assert.Equal(t, http.StatusConflict, status)

	status, body = do(t, srv, http.MethodGet, "/api/v1/orders", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["total"])

	status, body = do(t, srv, http.MethodGet, "/api/v1/orders?status=cancelled", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])
}

func TestAPI_Metrics(t *testing.T) {
	reg := metric.NewRegistry()

	srv := newTestServer(t, func(o *Options) {
		o.Metrics = reg.Handler()
	})

	res, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(raw), "go_goroutines")
}

type panickingOrders struct{ Orders }

func (panickingOrders) Get(context.Context, string) (*core.Order, error) {
	panic("store exploded")
}

type staticFlows []string

func (s staticFlows) Flows() []string { return s }

func TestAPI_RecoversPanics(t *testing.T) {
	srv := httptest.NewServer(NewRouter(panickingOrders{}, staticFlows{"checkout"}))
	defer srv.Close()

	res, err := srv.Client().Get(srv.URL + "/api/v1/orders/o-1")
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
}

type brokenOrders struct{ Orders }

func (brokenOrders) Get(context.Context, string) (*core.Order, error) {
	return nil, errors.New("dial tcp 10.0.0.7:4222: connection refused")
}

func TestAPI_InternalErrorsAreNotExposed(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := logging.DefaultLoggerConfig()
	cfg.Output = buf

	srv := httptest.NewServer(NewRouter(brokenOrders{}, staticFlows{"checkout"}, func(o *Options) {
		o.Logger = logging.NewLogger(cfg)
	}))
	defer srv.Close()

	status, body := do(t, srv, http.MethodGet, "/api/v1/orders/o-1", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal Server Error", body["error"])

	assert.Contains(t, buf.String(), "api.request.failed")
	assert.Contains(t, buf.String(), "connection refused")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: core.ErrOrderNotFound, want: http.StatusNotFound},
		{err: core.WrapInvalid(core.ErrFlowNotFound, "engine", "Execute", "flow x"), want: http.StatusNotFound},
		{err: core.ErrOrderClosed, want: http.StatusConflict},
		{err: core.ErrStepNotAllowed, want: http.StatusConflict},
		{err: core.ErrVersionConflict, want: http.StatusConflict},
		{err: core.WrapInvalid(core.ErrInvalidArgument, "core", "Build", "step id is empty"), want: http.StatusBadRequest},
		{err: core.WrapFatal(io.ErrUnexpectedEOF, "engine", "runNode", "node x"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
