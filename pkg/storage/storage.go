// Package storage keeps clinical note text in Azure Blob Storage so batch
// documents can reference a note by key instead of inlining it.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/JaimeStill/emcode/pkg/lifecycle"
)

// System stores note blobs under caller-chosen keys.
type System interface {
	// Start creates the notes container during startup if it is missing and
	// gates lifecycle readiness on it.
	Start(lc *lifecycle.Coordinator) error
	// Upload writes a note, replacing any blob already stored at key.
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error
	// Download opens the note at key. The caller closes the reader.
	// Returns ErrNotFound if no note is stored at key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the note at key. Returns ErrNotFound if none is stored.
	Delete(ctx context.Context, key string) error
	// Exists reports whether a note is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
}

type noteStore struct {
	notes  *container.Client
	logger *slog.Logger
	ready  atomic.Bool
}

// New builds the note store from cfg. The connection string is parsed here;
// nothing is sent to the service until Start.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &noteStore{
		notes:  client.ServiceClient().NewContainerClient(cfg.ContainerName),
		logger: logger.With("system", "storage", "container", cfg.ContainerName),
	}, nil
}

// Ready reports whether the notes container exists.
func (s *noteStore) Ready() bool {
	return s.ready.Load()
}

func (s *noteStore) Start(lc *lifecycle.Coordinator) error {
	s.logger.Info("starting note storage")
	lc.Watch("storage", s)

	lc.OnStartup(func() {
		if _, err := s.notes.Create(lc.Context(), nil); err != nil &&
			!bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			s.logger.Error("notes container initialization failed", "error", err)
			return
		}
		s.ready.Store(true)
		s.logger.Info("notes container ready")
	})

	return nil
}

func (s *noteStore) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	opts := &blockblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	}
	if _, err := s.notes.NewBlockBlobClient(key).UploadStream(ctx, reader, opts); err != nil {
		return fmt.Errorf("upload note %s: %w", key, err)
	}

	s.logger.Debug("note stored", "key", key)
	return nil
}

func (s *noteStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	note, err := s.note(key)
	if err != nil {
		return nil, err
	}

	resp, err := note.DownloadStream(ctx, nil)
	if err != nil {
		return nil, notFound(err, "download", key)
	}
	return resp.Body, nil
}

func (s *noteStore) Delete(ctx context.Context, key string) error {
	note, err := s.note(key)
	if err != nil {
		return err
	}

	if _, err := note.Delete(ctx, nil); err != nil {
		return notFound(err, "delete", key)
	}

	s.logger.Debug("note deleted", "key", key)
	return nil
}

func (s *noteStore) Exists(ctx context.Context, key string) (bool, error) {
	note, err := s.note(key)
	if err != nil {
		return false, err
	}

	if _, err := note.GetProperties(ctx, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("stat note %s: %w", key, err)
	}
	return true, nil
}

func (s *noteStore) note(key string) (*blob.Client, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return s.notes.NewBlobClient(key), nil
}

// notFound translates a missing blob into ErrNotFound and wraps anything else.
func notFound(err error, op, key string) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s note %s: %w", op, key, err)
}

// validateKey rejects keys that are empty, climb out of the container, or
// cannot be stored as a blob name.
func validateKey(key string) error {
	switch {
	case key == "":
		return ErrEmptyKey
	case strings.Contains(key, ".."),
		strings.HasPrefix(key, "/"),
		strings.ContainsRune(key, 0):
		return ErrInvalidKey
	}
	return nil
}
