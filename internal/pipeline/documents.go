package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JaimeStill/emcode/internal/workflow"
	"github.com/JaimeStill/emcode/pkg/storage"
)

// ParseDocuments decodes a submission body. Anything other than a JSON array
// returns ErrNotAList.
func ParseDocuments(data []byte) ([]workflow.Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotAList
	}

	var docs []workflow.Document
	if err := json.Unmarshal(trimmed, &docs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return docs, nil
}

// Validate checks a batch before any workflow starts. Every problem is
// reported, not just the first.
func Validate(docs []workflow.Document) error {
	if len(docs) == 0 {
		return fmt.Errorf("%w: batch must contain at least one document", ErrInvalidInput)
	}

	var errs []error
	seen := make(map[string]int, len(docs))

	for i, doc := range docs {
		id := strings.TrimSpace(doc.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("document %d: id required", i))
		} else if prev, ok := seen[id]; ok {
			errs = append(errs, fmt.Errorf("document %d: id %q duplicates document %d", i, id, prev))
		} else {
			seen[id] = i
		}

		if strings.TrimSpace(doc.FullText) == "" && strings.TrimSpace(doc.StorageKey) == "" {
			errs = append(errs, fmt.Errorf("document %d: full_text or storage_key required", i))
		}

		if field := nulField(doc); field != "" {
			errs = append(errs, fmt.Errorf("document %d: %s contains a NUL character", i, field))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}

// nulField names the first text field holding U+0000, which Postgres cannot
// store in JSONB.
func nulField(doc workflow.Document) string {
	fields := []struct {
		name, value string
	}{
		{"id", doc.ID},
		{"provider", doc.Provider},
		{"date_of_service", doc.DateOfService},
		{"patient_id", doc.PatientID},
		{"patient_name", doc.PatientName},
		{"full_text", doc.FullText},
		{"storage_key", doc.StorageKey},
	}
	for _, f := range fields {
		if strings.ContainsRune(f.value, 0) {
			return f.name
		}
	}
	return ""
}

// resolveText fills FullText from blob storage for documents that only carry
// a storage key. Documents are copied; the input slice is not modified.
func resolveText(ctx context.Context, blobs storage.System, docs []workflow.Document) ([]workflow.Document, error) {
	resolved := make([]workflow.Document, len(docs))

	for i, doc := range docs {
		resolved[i] = doc
		if strings.TrimSpace(doc.FullText) != "" {
			continue
		}

		if blobs == nil {
			return nil, fmt.Errorf("%w: document %d: storage_key given but storage is not configured", ErrInvalidInput, i)
		}

		text, err := storage.ReadNote(ctx, blobs, doc.StorageKey)
		if err != nil {
			if storage.MapHTTPStatus(err) == http.StatusInternalServerError {
				return nil, fmt.Errorf("resolve document %d: %w", i, err)
			}
			return nil, fmt.Errorf("%w: document %d: %w", ErrInvalidInput, i, err)
		}
		resolved[i].FullText = text
	}

	return resolved, nil
}
