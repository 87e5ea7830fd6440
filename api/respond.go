package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hupe1980/stepflow/core"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// readJSON decodes an optional JSON body into v. An empty body leaves v untouched.
func readJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrOrderNotFound),
		errors.Is(err, core.ErrFlowNotFound),
		errors.Is(err, core.ErrStepNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrOrderClosed),
		errors.Is(err, core.ErrStepNotAllowed),
		errors.Is(err, core.ErrVersionConflict),
		errors.Is(err, core.ErrOrderExists):
		return http.StatusConflict
	case core.IsInvalid(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
