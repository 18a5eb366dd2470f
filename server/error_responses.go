// Helpers for building various types of error responses.

package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/flusio/minz-worker/rest"
)

func new405(r *http.Request) *rest.Error {
	return &rest.Error{
		Title:      "Method not allowed",
		ID:         "method_not_allowed",
		Instance:   r.URL.Path,
		StatusCode: http.StatusMethodNotAllowed,
	}
}

func new404(r *http.Request) *rest.Error {
	return &rest.Error{
		Title:      "Resource not found",
		ID:         "not_found",
		Instance:   r.URL.Path,
		StatusCode: http.StatusNotFound,
	}
}

func insecure403(r *http.Request) *rest.Error {
	return &rest.Error{
		Title:      "Server not available over HTTP",
		ID:         "insecure_request",
		Detail:     "For your security, please use an encrypted connection",
		Instance:   r.URL.Path,
		StatusCode: http.StatusForbidden,
	}
}

func new401(r *http.Request) *rest.Error {
	return &rest.Error{
		Title:      "Unauthorized. Please include your API credentials",
		ID:         "unauthorized",
		Instance:   r.URL.Path,
		StatusCode: http.StatusUnauthorized,
	}
}

func jobLocked(r *http.Request) *rest.Error {
	return &rest.Error{
		Title:      "Job is locked by a worker",
		ID:         "job_locked",
		Detail:     "Wait for the worker to finish, or unlock the job if the worker is gone",
		Instance:   r.URL.Path,
		StatusCode: http.StatusConflict,
	}
}

func invalidRequest(r *http.Request) *rest.Error {
	return &rest.Error{
		Title:      "Invalid request: bad JSON. Double check the types of the fields you sent",
		ID:         "invalid_request",
		Instance:   r.URL.Path,
		StatusCode: http.StatusBadRequest,
	}
}

func invalidParameter(r *http.Request, err error) *rest.Error {
	return &rest.Error{
		Title:      "Invalid job",
		ID:         "invalid_parameter",
		Detail:     err.Error(),
		Instance:   r.URL.Path,
		StatusCode: http.StatusBadRequest,
	}
}

func malformedJobType(r *http.Request, err error) *rest.Error {
	return &rest.Error{
		Title:      "Job type can't be performed. The job was deleted",
		ID:         "malformed_job_type",
		Detail:     err.Error(),
		Instance:   r.URL.Path,
		StatusCode: http.StatusBadRequest,
	}
}

func schedulingInvariant(r *http.Request, err error) *rest.Error {
	return &rest.Error{
		Title:      "Job frequency does not advance time",
		ID:         "scheduling_invariant",
		Detail:     err.Error(),
		Instance:   r.URL.Path,
		StatusCode: http.StatusInternalServerError,
	}
}

func entityTooLarge(r *http.Request) *rest.Error {
	return &rest.Error{
		Title:      fmt.Sprintf("Request body is too large (%dKB max)", MaxEnqueueDataSize/1024),
		ID:         "entity_too_large",
		Instance:   r.URL.Path,
		StatusCode: http.StatusRequestEntityTooLarge,
	}
}

// createEmptyErr returns a rest.Error indicating the request omits a required
// field.
func createEmptyErr(field string, path string) *rest.Error {
	return &rest.Error{
		Title:      fmt.Sprintf("Missing required field: %s", field),
		Detail:     fmt.Sprintf("Please include a %s in the request body", field),
		ID:         "missing_parameter",
		Instance:   path,
		StatusCode: http.StatusBadRequest,
	}
}

func notFound(w http.ResponseWriter, err *rest.Error) {
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(err)
}

func badRequest(w http.ResponseWriter, r *http.Request, err *rest.Error) {
	slog.Info("bad request", "status", 400, "method", r.Method, "path", r.URL.Path, "err", err.Error())
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(err)
}

func conflict(w http.ResponseWriter, err *rest.Error) {
	w.WriteHeader(http.StatusConflict)
	json.NewEncoder(w).Encode(err)
}

func authenticate(w http.ResponseWriter, err *rest.Error) {
	w.Header().Set("WWW-Authenticate", "Basic realm=\"minz-worker\"")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(err)
}

func forbidden(w http.ResponseWriter, err *rest.Error) {
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(err)
}

var serverError = rest.Error{
	StatusCode: http.StatusInternalServerError,
	ID:         "server_error",
	Title:      "Unexpected server error. Please try again",
}

// writeServerError logs the provided error, and returns a generic server error
// message to the client.
func writeServerError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("server error", "status", 500, "method", r.Method, "path", r.URL.Path, "err", err)
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(serverError)
}
