// A simple http.Handler that matches routes against regular expressions, and
// calls the appropriate handler.
package server

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

type route struct {
	pattern *regexp.Regexp
	methods []string
	handler http.Handler
}

// RegexpHandler dispatches to the first route whose pattern matches the
// request path. A matching route that doesn't accept the method gets a 405.
type RegexpHandler struct {
	routes []*route
}

func (h *RegexpHandler) Handler(pattern *regexp.Regexp, methods []string, handler http.Handler) {
	h.routes = append(h.routes, &route{
		pattern: pattern,
		methods: methods,
		handler: handler,
	})
}

func (h *RegexpHandler) HandleFunc(pattern *regexp.Regexp, methods []string, handler func(http.ResponseWriter, *http.Request)) {
	h.Handler(pattern, methods, http.HandlerFunc(handler))
}

func (r *route) allows(method string) bool {
	for _, m := range r.methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func (h *RegexpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for _, route := range h.routes {
		if !route.pattern.MatchString(r.URL.Path) {
			continue
		}
		if route.allows(r.Method) {
			route.handler.ServeHTTP(w, r)
			return
		}
		if strings.EqualFold(r.Method, "OPTIONS") {
			w.Header().Set("Allow", strings.Join(append(route.methods, "OPTIONS"), ", "))
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(new405(r))
		return
	}
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(new404(r))
}
