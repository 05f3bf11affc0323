package storage_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/JaimeStill/emcode/pkg/storage"
)

const azuriteConnString = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func newSystem(t *testing.T) storage.System {
	t.Helper()
	sys, err := storage.New(&storage.Config{
		ContainerName:    "notes",
		ConnectionString: azuriteConnString,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return sys
}

func TestNewInvalidConnectionString(t *testing.T) {
	_, err := storage.New(&storage.Config{
		ContainerName:    "notes",
		ConnectionString: "not-a-connection-string",
	}, slog.Default())
	if err == nil {
		t.Fatal("expected error for invalid connection string")
	}
}

func TestKeyValidation(t *testing.T) {
	sys := newSystem(t)
	ctx := context.Background()

	tests := []struct {
		key  string
		want error
	}{
		{"", storage.ErrEmptyKey},
		{"../etc/passwd", storage.ErrInvalidKey},
		{"notes/../../secret.txt", storage.ErrInvalidKey},
		{"/visits/a.txt", storage.ErrInvalidKey},
		{"visits/a\x00.txt", storage.ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := sys.Upload(ctx, tt.key, strings.NewReader("note"), "text/plain"); !errors.Is(err, tt.want) {
				t.Errorf("Upload err = %v, want %v", err, tt.want)
			}
			if _, err := sys.Download(ctx, tt.key); !errors.Is(err, tt.want) {
				t.Errorf("Download err = %v, want %v", err, tt.want)
			}
			if err := sys.Delete(ctx, tt.key); !errors.Is(err, tt.want) {
				t.Errorf("Delete err = %v, want %v", err, tt.want)
			}
			if _, err := sys.Exists(ctx, tt.key); !errors.Is(err, tt.want) {
				t.Errorf("Exists err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("download: %w", storage.ErrNotFound), http.StatusNotFound},
		{storage.ErrEmptyKey, http.StatusBadRequest},
		{storage.ErrInvalidKey, http.StatusBadRequest},
		{storage.ErrEmptyNote, http.StatusBadRequest},
		{fmt.Errorf("%w: scan.txt", storage.ErrNotText), http.StatusBadRequest},
		{storage.ErrNoteTooLarge, http.StatusRequestEntityTooLarge},
		{errors.New("network"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := storage.MapHTTPStatus(tt.err); got != tt.want {
				t.Errorf("MapHTTPStatus = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConfigFinalize(t *testing.T) {
	t.Setenv("TEST_STORAGE_CONN", azuriteConnString)

	var cfg storage.Config
	err := cfg.Finalize(&storage.Env{ConnectionString: "TEST_STORAGE_CONN"})
	if err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	if cfg.ContainerName != "notes" {
		t.Errorf("container = %q, want default notes", cfg.ContainerName)
	}

	var empty storage.Config
	if err := empty.Finalize(nil); err == nil {
		t.Error("expected error without a connection string")
	}
}

func TestContainerNameValidation(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"notes", true},
		{"clinic-notes-2026", true},
		{"abc", true},
		{"ab", false},
		{"Notes", false},
		{"-notes", false},
		{"notes-", false},
		{"clinic--notes", false},
		{"clinic_notes", false},
		{strings.Repeat("n", 64), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := storage.Config{ContainerName: tt.name, ConnectionString: azuriteConnString}
			err := cfg.Finalize(nil)
			if (err == nil) != tt.valid {
				t.Errorf("Finalize(%q) = %v, want valid %v", tt.name, err, tt.valid)
			}
		})
	}
}
