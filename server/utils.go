package server

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/flusio/minz-worker/rest"
)

// routeParam returns the named group of route in the request path, or the
// empty string.
func routeParam(route *regexp.Regexp, r *http.Request, name string) string {
	match := route.FindStringSubmatch(r.URL.Path)
	i := route.SubexpIndex(name)
	if match == nil || i < 0 {
		return ""
	}
	return match[i]
}

// getID parses the "id" parameter of route. Returns the ID, and a boolean
// describing whether the helper has written a response.
func getID(w http.ResponseWriter, r *http.Request, route *regexp.Regexp) (int64, bool) {
	id, err := strconv.ParseInt(routeParam(route, r, "id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, r, &rest.Error{
			ID:       "invalid_id",
			Title:    "Job IDs must be positive integers",
			Instance: r.URL.Path,
		})
		return 0, true
	}
	return id, false
}
