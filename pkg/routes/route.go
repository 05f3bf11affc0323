// Package routes declares API endpoints as data so each domain handler can
// publish its routes as a Group for the API module to register.
package routes

import (
	"net/http"
	"strings"
)

// Route binds a method and a path pattern, relative to its Group, to a
// handler. An empty Pattern serves the group prefix itself.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// pattern renders the ServeMux pattern for r beneath prefix.
func (r Route) pattern(prefix string) string {
	path := prefix + r.Pattern
	if path == "" {
		path = "/{$}"
	}
	return strings.ToUpper(r.Method) + " " + path
}
