// Package module mounts self-contained HTTP surfaces under a one-segment path
// prefix, each with its own middleware stack, behind a single Router.
package module

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/JaimeStill/emcode/pkg/middleware"
)

// Module serves an inner router beneath a prefix such as "/api". The inner
// router sees paths with the prefix removed.
type Module struct {
	prefix     string
	router     http.Handler
	middleware middleware.System

	once    sync.Once
	handler http.Handler
}

// New creates a Module and panics when prefix fails ValidatePrefix. Callers
// validate configured prefixes first.
func New(prefix string, router http.Handler) *Module {
	if err := ValidatePrefix(prefix); err != nil {
		panic(err)
	}
	return &Module{
		prefix:     prefix,
		router:     router,
		middleware: middleware.New(),
	}
}

// ValidatePrefix accepts a single path segment with a leading slash.
func ValidatePrefix(prefix string) error {
	rest, ok := strings.CutPrefix(prefix, "/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return fmt.Errorf("module prefix %q must be a single segment such as /api", prefix)
	}
	return nil
}

// Prefix returns the mount prefix.
func (m *Module) Prefix() string {
	return m.prefix
}

// Use appends middleware. The stack is fixed at the first request.
func (m *Module) Use(mw func(http.Handler) http.Handler) {
	m.middleware.Use(mw)
}

// ServeHTTP strips the prefix and dispatches through the middleware stack.
func (m *Module) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.once.Do(func() {
		m.handler = http.StripPrefix(m.prefix, m.middleware.Apply(rootPath(m.router)))
	})
	m.handler.ServeHTTP(w, r)
}

// rootPath maps the bare prefix ("/api" stripped to "") onto "/".
func rootPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" {
			r.URL.Path = "/"
		}
		next.ServeHTTP(w, r)
	})
}
