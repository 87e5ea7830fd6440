package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hupe1980/stepflow/core"
	"github.com/hupe1980/stepflow/logging"
)

type handler struct {
	orders  Orders
	flows   FlowLister
	maxBody int64
	logger  logging.Logger
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listFlows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"flows": h.flows.Flows()})
}

func (h *handler) startOrder(w http.ResponseWriter, r *http.Request) {
	flowName := chi.URLParam(r, "flow")

	var req dataRequest
	if err := readJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.Start(r.Context(), flowName, req.Data)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newOrderView(o))
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	flowName := r.URL.Query().Get("flow")
	status := r.URL.Query().Get("status")

	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		if flowName != "" && o.Flow != flowName {
			continue
		}
		if status != "" && string(o.Status) != status {
			continue
		}
		views = append(views, newOrderView(o))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orders": views,
		"total":  len(views),
	})
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newOrderView(o))
}

func (h *handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newOrderView(o))
}

func (h *handler) submitStep(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	stepID := chi.URLParam(r, "stepId")

	var req dataRequest
	if err := readJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.orders.Submit(r.Context(), orderID, stepID, req.Data)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	status := http.StatusOK
	if resp.Status == core.ResponseInvalid {
		status = http.StatusUnprocessableEntity
	}

	writeJSON(w, status, newStepView(resp))
}

// writeFailure maps err to an HTTP status. Internal errors are logged and
// answered with a generic message.
func (h *handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status != http.StatusInternalServerError {
		writeError(w, status, err.Error())
		return
	}

	h.logger.Error(
		"api.request.failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err.Error(),
	)

	writeError(w, status, http.StatusText(status))
}
