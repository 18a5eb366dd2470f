package rest

import (
	"fmt"
	"net/http"
)

// Error is an HTTP problem, in the format described at
// https://tools.ietf.org/html/draft-ietf-appsawg-http-problem-03. The server
// writes it as the body of every error response, and the Client decodes it.
type Error struct {
	// Title is a short message for humans, without a final period.
	Title string `json:"title"`
	// ID identifies the kind of problem: "not_found", "job_locked", etc.
	ID     string `json:"id"`
	Detail string `json:"detail,omitempty"`
	// Instance is the path of the resource in error.
	Instance   string `json:"instance,omitempty"`
	Type       string `json:"type,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

func (e *Error) Error() string {
	return e.Title
}

func (e *Error) String() string {
	if e.Detail == "" {
		return fmt.Sprintf("rest: %s", e.Title)
	}
	return fmt.Sprintf("rest: %s. %s", e.Title, e.Detail)
}

// Temporary reports whether the same request may succeed later.
func (e *Error) Temporary() bool {
	switch e.StatusCode {
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true
	}
	return e.ID == "service_unavailable"
}
