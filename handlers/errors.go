package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/you/subway/models"
)

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

var kindStatus = map[models.ErrorKind]int{
	models.KindInvalidInput: http.StatusBadRequest,
	models.KindNotFound:     http.StatusNotFound,
	models.KindConflict:     http.StatusConflict,
	models.KindInternal:     http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a registry error to its status code. Internal errors are
// logged and their cause is not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, message string, err error) {
	kind := models.KindOf(err)
	status := kindStatus[kind]

	resp := ErrorResponse{
		Error:   message,
		Details: map[string]interface{}{"kind": string(kind)},
	}
	if kind == models.KindInternal {
		log.Printf("%s %s: %s: %v", r.Method, r.URL.Path, message, err)
	} else {
		resp.Details["reason"] = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message})
}

// int64Param reads a positive integer path parameter
func int64Param(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return id, nil
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
