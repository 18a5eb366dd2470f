package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flusio/minz-worker/config"
	"github.com/flusio/minz-worker/rest"
	"github.com/flusio/minz-worker/test"
)

// forbiddenAuthorizer always denies access.
type forbiddenAuthorizer struct {
	UserID string
	Token  string
}

func (f *forbiddenAuthorizer) Authorize(userID string, token string) *rest.Error {
	f.UserID = userID
	f.Token = token
	return &rest.Error{
		Title: "Invalid Access Token",
		ID:    "forbidden_api",
	}
}

// routes that don't touch the database
var bypass = Get(&UnsafeBypassAuthorizer{}, Config{})

func Test404JSONUnknownResource(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/foo/unknown", nil)
	bypass.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusNotFound)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.Title, "Resource not found")
	test.AssertEquals(t, e.Instance, "/foo/unknown")
}

var prototests = []struct {
	hval    string
	allowed bool
}{
	{"http", false},
	{"", true},
	{"foo", true},
	{"https", true},
}

func TestXForwardedProtoDisallowed(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	})
	h := forbidNonTLSTrafficHandler(mux)
	for _, tt := range prototests {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-Proto", tt.hval)
		h.ServeHTTP(w, req)
		if tt.allowed {
			test.AssertEquals(t, w.Code, 200)
		} else {
			test.AssertEquals(t, w.Code, 403)
			var e rest.Error
			err := json.Unmarshal(w.Body.Bytes(), &e)
			test.AssertNotError(t, err, "")
			test.AssertEquals(t, e.ID, "insecure_request")
		}
	}
}

func TestMetricsForbidsUnknownUsers(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest("GET", "/debug/metrics", nil)
	w := httptest.NewRecorder()
	req.SetBasicAuth("Unknown user", "Wrong password")
	Get(NewSharedSecretAuthorizer(), Config{}).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, 403)
}

func TestMetricsDisallowsUnauthedUsers(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest("GET", "/debug/metrics", nil)
	w := httptest.NewRecorder()
	bypass.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, 401)
	test.AssertEquals(t, w.Header().Get("WWW-Authenticate"), `Basic realm="minz-worker"`)
}

func TestMetricsRendersJSON(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest("GET", "/debug/metrics", nil)
	req.SetBasicAuth("foo", "bar")
	w := httptest.NewRecorder()
	bypass.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, 200)
	test.AssertEquals(t, w.Header().Get("Content-Type"), "application/json; charset=utf-8")
	var m map[string]interface{}
	test.AssertNotError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
}

func TestServerVersionHeader(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest("GET", "/debug/metrics", nil)
	w := httptest.NewRecorder()
	req.SetBasicAuth("foo", "bar")
	bypass.ServeHTTP(w, req)
	test.AssertEquals(t, w.Header().Get("Server"), fmt.Sprintf("minz-worker/%s", config.Version))
}

func TestStrictTransportHeader(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest("GET", "/debug/metrics", nil)
	w := httptest.NewRecorder()
	req.SetBasicAuth("foo", "bar")
	bypass.ServeHTTP(w, req)
	test.AssertEquals(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000; includeSubDomains; preload")
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest("PUT", "/v1/jobs", nil)
	req.SetBasicAuth("foo", "bar")
	w := httptest.NewRecorder()
	bypass.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusMethodNotAllowed)
	var e rest.Error
	test.AssertNotError(t, json.Unmarshal(w.Body.Bytes(), &e), "")
	test.AssertEquals(t, e.ID, "method_not_allowed")
}

func TestInvalidID(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest("GET", "/v1/jobs/99999999999999999999", nil)
	req.SetBasicAuth("foo", "bar")
	w := httptest.NewRecorder()
	bypass.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
	var e rest.Error
	test.AssertNotError(t, json.Unmarshal(w.Body.Bytes(), &e), "")
	test.AssertEquals(t, e.ID, "invalid_id")
}

func TestAuthorizerErrorIs401(t *testing.T) {
	t.Parallel()
	f := &forbiddenAuthorizer{}
	req := httptest.NewRequest("GET", "/v1/jobs", nil)
	req.SetBasicAuth("jobs", "secret")
	w := httptest.NewRecorder()
	Get(f, Config{}).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusUnauthorized)
	test.AssertEquals(t, f.UserID, "jobs")
	test.AssertEquals(t, f.Token, "secret")
	var e rest.Error
	test.AssertNotError(t, json.Unmarshal(w.Body.Bytes(), &e), "")
	test.AssertEquals(t, e.ID, "forbidden_api")
}
