package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/flusio/minz-worker/rest"
)

// DefaultAuthorizer is the authorizer the server binary uses. Add users to it
// with AddUser.
var DefaultAuthorizer = NewSharedSecretAuthorizer()

// AddUser allows user to access the API with password, through the
// DefaultAuthorizer.
func AddUser(user string, password string) {
	DefaultAuthorizer.AddUser(user, password)
}

// An Authorizer decides whether the credentials sent with a request give
// access to the API.
type Authorizer interface {
	// Authorize returns nil if user and token may access the API. The
	// returned error is written as the body of a 401 or 403 response.
	Authorize(user string, token string) *rest.Error
}

// SharedSecretAuthorizer checks credentials against users and passwords kept
// in memory.
type SharedSecretAuthorizer struct {
	mu    sync.RWMutex
	users map[string]string
}

func NewSharedSecretAuthorizer() *SharedSecretAuthorizer {
	return &SharedSecretAuthorizer{users: make(map[string]string)}
}

// AddUser allows userID to access the API with password. Calling it again
// replaces the password.
func (a *SharedSecretAuthorizer) AddUser(userID string, password string) {
	a.mu.Lock()
	a.users[userID] = password
	a.mu.Unlock()
}

func (a *SharedSecretAuthorizer) Authorize(userID string, token string) *rest.Error {
	a.mu.RLock()
	password, ok := a.users[userID]
	a.mu.RUnlock()
	switch {
	case !ok && userID == "":
		return &rest.Error{
			Title: "No authentication provided",
			ID:    "missing_authentication",
		}
	case !ok:
		return &rest.Error{
			Title: "Username or password are invalid. Please double check your credentials",
			ID:    "forbidden",
		}
	case subtle.ConstantTimeCompare([]byte(token), []byte(password)) != 1:
		return &rest.Error{
			Title: fmt.Sprintf("Incorrect password for user %s", userID),
			ID:    "incorrect_password",
		}
	}
	return nil
}

// UnsafeBypassAuthorizer lets every request through.
type UnsafeBypassAuthorizer struct{}

func (u *UnsafeBypassAuthorizer) Authorize(userID string, token string) *rest.Error {
	return nil
}

// handleAuthorizeError writes the error returned by an Authorizer to the
// response.
func handleAuthorizeError(w http.ResponseWriter, r *http.Request, err *rest.Error) {
	switch {
	case err.ID == "forbidden_api" || err.ID == "missing_authentication":
		err.StatusCode = http.StatusUnauthorized
		authenticate(w, err)
	case err.ID == "incorrect_password" || err.ID == "forbidden":
		err.StatusCode = http.StatusForbidden
		forbidden(w, err)
	case err.StatusCode == http.StatusInternalServerError || err.ID == "server_error":
		writeServerError(w, r, err)
	case err.StatusCode >= 400:
		w.WriteHeader(err.StatusCode)
		json.NewEncoder(w).Encode(err)
	default:
		forbidden(w, err)
	}
}
