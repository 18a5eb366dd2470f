// Package server provides an HTTP interface for inspecting and managing
// stored jobs.
package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"net/http/pprof"
	"os"
	"regexp"
	"strings"

	"github.com/flusio/minz-worker/clock"
	"github.com/flusio/minz-worker/config"
	"github.com/flusio/minz-worker/metrics"
	"github.com/flusio/minz-worker/models"
	"github.com/flusio/minz-worker/services"
)

// The maximum size of the body of a request to create a job.
const MaxEnqueueDataSize = 100 * 1024

var disallowUnencryptedRequests = true

// GET/POST /v1/jobs
var jobsRoute = regexp.MustCompile(`^/v1/jobs$`)

// GET/DELETE /v1/jobs/:id
var jobRoute = regexp.MustCompile(`^/v1/jobs/(?P<id>[0-9]+)$`)

// POST /v1/jobs/:id/run, /v1/jobs/:id/unfail, /v1/jobs/:id/unlock
var jobActionRoute = regexp.MustCompile(`^/v1/jobs/(?P<id>[0-9]+)/(?P<action>run|unfail|unlock)$`)

// Config holds what the job routes act on.
type Config struct {
	// Runner performs jobs for POST /v1/jobs/:id/run. Its Locker is used to
	// unlock jobs.
	Runner *services.Runner
	Limits models.Limits
	Clock  clock.Clock
}

// Get returns a http.Handler with all routes initialized using the given
// Authorizer.
func Get(a Authorizer, c Config) http.Handler {
	if c.Clock == nil {
		c.Clock = clock.Default
	}
	if c.Limits == (models.Limits{}) {
		c.Limits = models.DefaultLimits()
	}
	h := new(RegexpHandler)

	h.Handler(jobsRoute, []string{"GET", "POST"}, authHandler(jobsHandler(c), a))
	h.Handler(jobRoute, []string{"GET", "DELETE"}, authHandler(jobHandler(c), a))
	h.Handler(jobActionRoute, []string{"POST"}, authHandler(jobActionHandler(c), a))

	h.Handler(regexp.MustCompile("^/debug/metrics$"), []string{"GET"}, authHandler(metrics.Handler(), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/?$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Index), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/cmdline$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Cmdline), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/profile$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Profile), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/symbol$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Symbol), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/trace$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Trace), a))

	return debugRequestBodyHandler(
		serverHeaderHandler(
			forbidNonTLSTrafficHandler(h),
		),
	)
}

func init() {
	disallowUnencryptedRequests = os.Getenv("ALLOW_UNENCRYPTED_PROXY_TRAFFIC") != "true"
}

func serverHeaderHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/debug/pprof") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		} else {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		}
		w.Header().Set("Server", fmt.Sprintf("minz-worker/%s", config.Version))
		h.ServeHTTP(w, r)
	})
}

// forbidNonTLSTrafficHandler returns a 403 to traffic that is sent via a proxy
func forbidNonTLSTrafficHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if disallowUnencryptedRequests && r.Header.Get("X-Forwarded-Proto") == "http" {
			forbidden(w, insecure403(r))
			return
		}
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		h.ServeHTTP(w, r)
	})
}

func authHandler(h http.Handler, a Authorizer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, token, ok := r.BasicAuth()
		if !ok {
			authenticate(w, new401(r))
			return
		}
		if err := a.Authorize(userID, token); err != nil {
			metrics.Increment("auth.error")
			handleAuthorizeError(w, r, err)
			return
		}
		metrics.Increment("auth.success")
		h.ServeHTTP(w, r)
	})
}

// debugRequestBodyHandler prints all incoming and outgoing HTTP traffic if the
// DEBUG_HTTP_TRAFFIC environment variable is set to true. Output is jumbled
// when requests are served concurrently.
func debugRequestBodyHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if os.Getenv("DEBUG_HTTP_TRAFFIC") != "true" {
			h.ServeHTTP(w, r)
			return
		}
		// Write everything at once, otherwise concurrent requests interleave.
		b := new(bytes.Buffer)
		bits, err := httputil.DumpRequest(r, true)
		if err != nil {
			_, _ = b.WriteString(err.Error())
		} else {
			_, _ = b.Write(bits)
		}
		res := httptest.NewRecorder()
		h.ServeHTTP(res, r)

		_, _ = fmt.Fprintf(b, "HTTP/1.1 %d\r\n", res.Code)
		_ = res.Header().Write(b)
		for k, v := range res.Header() {
			w.Header()[k] = v
		}
		w.WriteHeader(res.Code)
		_, _ = b.WriteString("\r\n")
		writer := io.MultiWriter(w, b)
		_, _ = res.Body.WriteTo(writer)
		_, _ = b.WriteTo(os.Stderr)
	})
}
