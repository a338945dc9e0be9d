package httphandler

import (
	"encoding/json"
	"io"
	"net/http"

	"MozoPOS/internal/mozoapi/models"
	"MozoPOS/internal/poserr"
	"MozoPOS/pkg/logging"
)

type errorView struct {
	Kind      poserr.Kind           `json:"kind"`
	Reason    poserr.Reason         `json:"reason,omitempty"`
	Detail    string                `json:"detail,omitempty"`
	Invalid   []models.InvalidOrder `json:"invalid,omitempty"`
	Retryable bool                  `json:"retryable"`
}

func statusOf(e *poserr.Error) int {
	switch e.Kind {
	case poserr.Validation:
		return http.StatusBadRequest
	case poserr.StateConflict:
		return http.StatusConflict
	}
	switch e.Reason {
	case poserr.NoPayableOrders, poserr.InvalidOrders:
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, err error) {
	e, ok := poserr.From(err)
	if !ok {
		e = poserr.Wrap(err, poserr.HardFailure, "", "")
	}
	logging.GetLogger().WithError(err).Warn("request failed")
	detail := e.Detail
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	writeJSON(w, statusOf(e), &errorView{
		Kind:      e.Kind,
		Reason:    e.Reason,
		Detail:    detail,
		Invalid:   e.Invalid,
		Retryable: e.Retryable(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.GetLogger().Errorf("failed to send response, error: %v", err)
	}
}

// readJSON decodes the request body into out. An empty body leaves out as is.
func readJSON(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if r.Body == nil {
		return true
	}
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(out)
	if err == io.EOF {
		return true
	}
	if err != nil {
		writeError(w, poserr.Wrap(err, poserr.Validation, "", "malformed request body"))
		return false
	}
	return true
}
