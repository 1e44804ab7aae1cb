// Package httpserver serves the read-only test results API.
package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
)

// Error codes of the JSON envelope.
const (
	codeInvalidArgument     = "INVALID_ARGUMENT"
	codeNotFound            = "NOT_FOUND"
	codeForbidden           = "FORBIDDEN"
	codeNotAcceptable       = "NOT_ACCEPTABLE"
	codeUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	codeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	codeInternal            = "INTERNAL"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// errorClasses is checked in order; the first sentinel matched wins.
var errorClasses = []struct {
	target error
	status int
	code   string
}{
	{domain.ErrInvalidArgument, http.StatusBadRequest, codeInvalidArgument},
	{domain.ErrNotFound, http.StatusNotFound, codeNotFound},
	{domain.ErrForbidden, http.StatusForbidden, codeForbidden},
	{domain.ErrTimedOut, http.StatusGatewayTimeout, codeUpstreamTimeout},
	{domain.ErrTransport, http.StatusServiceUnavailable, codeUpstreamUnavailable},
	{domain.ErrService, http.StatusServiceUnavailable, codeUpstreamUnavailable},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeEnvelope(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: msg, Details: details}})
}

// writeError maps err onto a status and envelope code. Unclassified errors
// become 500 and are logged with the request logger.
func writeError(w http.ResponseWriter, r *http.Request, err error, details any) {
	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			writeEnvelope(w, c.status, c.code, err.Error(), details)
			return
		}
	}
	if r != nil {
		LoggerFrom(r).Error("unclassified error", slog.Any("error", err))
	}
	writeEnvelope(w, http.StatusInternalServerError, codeInternal, err.Error(), details)
}
