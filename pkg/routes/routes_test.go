package routes_test

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/JaimeStill/emcode/pkg/routes"
)

func respond(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()

	patterns := routes.Register(mux,
		routes.Group{
			Prefix: "/batches",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "", Handler: respond(http.StatusOK)},
				{Method: "POST", Pattern: "", Handler: respond(http.StatusAccepted)},
				{Method: "GET", Pattern: "/{id}", Handler: respond(http.StatusOK)},
			},
			Children: []routes.Group{
				{
					Prefix: "/{id}",
					Routes: []routes.Route{
						{Method: "POST", Pattern: "/retry", Handler: respond(http.StatusAccepted)},
					},
				},
			},
		},
		routes.Group{
			Prefix: "/codes",
			Routes: []routes.Route{
				{Method: "get", Pattern: "", Handler: respond(http.StatusOK)},
			},
		},
		routes.Group{
			Routes: []routes.Route{
				{Method: "GET", Pattern: "", Handler: respond(http.StatusNoContent)},
			},
		},
	)

	want := []string{
		"GET /batches",
		"POST /batches",
		"GET /batches/{id}",
		"POST /batches/{id}/retry",
		"GET /codes",
		"GET /{$}",
	}
	if !slices.Equal(patterns, want) {
		t.Errorf("patterns = %v, want %v", patterns, want)
	}

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/batches", http.StatusOK},
		{"POST", "/batches", http.StatusAccepted},
		{"GET", "/batches/abc", http.StatusOK},
		{"POST", "/batches/abc/retry", http.StatusAccepted},
		{"GET", "/codes", http.StatusOK},
		{"DELETE", "/codes", http.StatusMethodNotAllowed},
		{"GET", "/", http.StatusNoContent},
		{"GET", "/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
