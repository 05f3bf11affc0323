package module

import (
	"fmt"
	"net/http"
	"strings"
)

// Router routes on the first path segment to a mounted Module, and sends
// everything else to a fallback mux for root-level endpoints such as health
// checks.
type Router struct {
	modules  map[string]*Module
	fallback *http.ServeMux
}

// NewRouter creates a Router with no modules.
func NewRouter() *Router {
	return &Router{
		modules:  make(map[string]*Module),
		fallback: http.NewServeMux(),
	}
}

// HandleNative registers a root-level handler on the fallback mux.
func (r *Router) HandleNative(pattern string, handler http.HandlerFunc) {
	r.fallback.HandleFunc(pattern, handler)
}

// Mount attaches m under its prefix. Mounting two modules on one prefix
// panics.
func (r *Router) Mount(m *Module) {
	if _, exists := r.modules[m.prefix]; exists {
		panic(fmt.Sprintf("module prefix %s already mounted", m.prefix))
	}
	r.modules[m.prefix] = m
}

// ServeHTTP trims one trailing slash so /api/batches/ and /api/batches match
// the same route, then dispatches.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if p := req.URL.Path; len(p) > 1 && strings.HasSuffix(p, "/") {
		req = withPath(req, strings.TrimSuffix(p, "/"))
	}

	segment, _, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")
	if m, ok := r.modules["/"+segment]; ok {
		m.ServeHTTP(w, req)
		return
	}
	r.fallback.ServeHTTP(w, req)
}

func withPath(req *http.Request, path string) *http.Request {
	r := new(http.Request)
	*r = *req
	u := *req.URL
	u.Path = path
	u.RawPath = ""
	r.URL = &u
	return r
}
