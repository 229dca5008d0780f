package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/btcsuite/btclog"
)

// apiError carries the HTTP status a handler wants written, alongside the
// detail string the response body reports (spec section 7's taxonomy).
type apiError struct {
	status int
	detail string
}

func (e *apiError) Error() string { return e.detail }

func unauthorized(detail string) *apiError {
	return &apiError{status: http.StatusUnauthorized, detail: detail}
}

func badRequest(err error) *apiError {
	return &apiError{status: http.StatusBadRequest, detail: err.Error()}
}

func notFound(detail string) *apiError {
	return &apiError{status: http.StatusNotFound, detail: detail}
}

func internalServerError(err error) *apiError {
	return &apiError{status: http.StatusInternalServerError, detail: err.Error()}
}

// writeError logs and serializes an error per spec section 7's
// propagation rule: unknown errors at WARN/500, validation errors at
// INFO/400, auth failures at INFO/401.
func writeError(w http.ResponseWriter, log btclog.Logger, err error) {
	apiErr, ok := err.(*apiError)
	if !ok {
		apiErr = internalServerError(err)
	}

	switch apiErr.status {
	case http.StatusUnauthorized, http.StatusBadRequest, http.StatusNotFound:
		log.Infof("%d: %s", apiErr.status, apiErr.detail)
	default:
		log.Warnf("%d: %s", apiErr.status, apiErr.detail)
	}

	writeJSON(w, apiErr.status, Error{
		Status: fmt.Sprintf("%d %s", apiErr.status, http.StatusText(apiErr.status)),
		Detail: apiErr.detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}
