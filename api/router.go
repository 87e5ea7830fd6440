package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hupe1980/stepflow/core"
	"github.com/hupe1980/stepflow/logging"
)

// Orders is the order lifecycle surface served by the API.
// runner.Runner implements it.
type Orders = core.OrderRunner

// FlowLister lists registered flow names. engine.Engine implements it.
type FlowLister interface {
	Flows() []string
}

// Options configures the router.
type Options struct {
	// Logger receives one entry per request.
	Logger logging.Logger
	// Metrics serves GET /metrics. Nil disables the route.
	Metrics http.Handler
	// MaxBodyBytes limits request bodies.
	MaxBodyBytes int64
	// RequestTimeout bounds handler runtime. Zero disables the bound.
	RequestTimeout time.Duration
}

// NewRouter builds the HTTP handler.
func NewRouter(orders Orders, flows FlowLister, optFns ...func(o *Options)) *chi.Mux {
	opts := Options{
		Logger:       logging.NoOpLogger{},
		MaxBodyBytes: 1 << 20,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	h := &handler{orders: orders, flows: flows, maxBody: opts.MaxBodyBytes, logger: opts.Logger}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Get("/healthz", h.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Flows
		r.Get("/flows", h.listFlows)
		r.Post("/flows/{flow}/orders", h.startOrder)

		// Orders
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{orderId}", h.getOrder)
		r.Delete("/orders/{orderId}", h.cancelOrder)

		// Steps
		r.Post("/orders/{orderId}/steps/{stepId}", h.submitStep)
	})

	return r
}

func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			logger.Info(
				"api.request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
