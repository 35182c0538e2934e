package errors

import (
	"net/http"
)

const (
	// RequestIDHeader is the HTTP header for request ID
	RequestIDHeader = "X-Request-ID"
)

// Reporter receives server errors before they are masked for the client.
type Reporter func(r *http.Request, err error)

// Handler is an http.HandlerFunc that returns its failure instead of writing it.
type Handler func(w http.ResponseWriter, r *http.Request) error

// HandleFunc converts a Handler to a standard http.HandlerFunc with automatic error handling.
// Server errors are passed to report (when non-nil) with their cause intact.
func HandleFunc(h Handler, report Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		if report != nil && IsServerError(err) {
			report(r, err)
		}
		WriteError(w, GetRequestID(r.Context()), err)
	}
}
