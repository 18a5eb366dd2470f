package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/flusio/minz-worker/test"
)

func TestPost(t *testing.T) {
	t.Parallel()
	var user, pass string
	var ok bool
	var requestURL *url.URL
	var agent string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok = r.BasicAuth()
		requestURL = r.URL
		agent = r.UserAgent()
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"id": 3}`))
	}))
	defer s.Close()
	client := NewClient("foo", "bar", s.URL)
	req, err := client.NewRequest(context.Background(), "POST", "/v1/jobs", nil)
	test.AssertNotError(t, err, "")
	var body struct {
		ID int64 `json:"id"`
	}
	err = client.Do(req, &body)
	test.AssertNotError(t, err, "")
	test.Assert(t, ok, "expected basic auth")
	test.AssertEquals(t, user, "foo")
	test.AssertEquals(t, pass, "bar")
	test.AssertEquals(t, requestURL.Path, "/v1/jobs")
	test.AssertEquals(t, body.ID, int64(3))
	test.Assert(t, strings.HasPrefix(agent, "minz-worker/v"), agent)
}

func TestPostError(t *testing.T) {
	t.Parallel()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(&Error{
			Title: "Service unavailable",
			ID:    "service_unavailable",
		})
	}))
	defer s.Close()
	client := NewClient("foo", "bar", s.URL)
	req, err := client.NewRequest(context.Background(), "POST", "/", nil)
	test.AssertNotError(t, err, "")
	err = client.Do(req, &struct{}{})
	test.AssertError(t, err, "")
	test.AssertEquals(t, err.Error(), "Service unavailable")
	var rerr *Error
	test.Assert(t, errors.As(err, &rerr), "")
	test.AssertEquals(t, rerr.ID, "service_unavailable")
	test.AssertEquals(t, rerr.StatusCode, http.StatusServiceUnavailable)
}

func TestInvalidErrorBody(t *testing.T) {
	t.Parallel()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("oops"))
	}))
	defer s.Close()
	client := NewClient("foo", "bar", s.URL)
	req, err := client.NewRequest(context.Background(), "GET", "/", nil)
	test.AssertNotError(t, err, "")
	err = client.Do(req, nil)
	test.AssertError(t, err, "")
	test.Assert(t, strings.Contains(err.Error(), "oops"), err.Error())
}

var temporaryTests = []struct {
	err       Error
	temporary bool
}{
	{Error{StatusCode: 503}, true},
	{Error{StatusCode: 502}, true},
	{Error{ID: "service_unavailable"}, true},
	{Error{StatusCode: 500, ID: "server_error"}, false},
	{Error{StatusCode: 400, ID: "invalid_parameter"}, false},
}

func TestTemporary(t *testing.T) {
	t.Parallel()
	for _, tt := range temporaryTests {
		test.AssertEquals(t, tt.err.Temporary(), tt.temporary)
	}
}
