package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/JaimeStill/emcode/internal/workflow"
	"github.com/JaimeStill/emcode/pkg/query"
	"github.com/JaimeStill/emcode/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "batches", "b").
	Project("id", "ID").
	Project("status", "Status").
	Project("custom_status", "CustomStatus").
	Project("document_count", "DocumentCount").
	Project("retry_of", "RetryOf").
	Project("report", "Report").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt").
	Project("completed_at", "CompletedAt")

var dbErrors = repository.Errors{
	NotFound:  ErrNotFound,
	Duplicate: ErrDuplicate,
	Invalid:   ErrInvalidInput,
}

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("RetryOf", f.RetryOf).
		WhereRange("CreatedAt", f.SubmittedAfter, f.SubmittedBefore)
}

func scanInstance(s repository.Scanner) (Instance, error) {
	var (
		inst   Instance
		report []byte
	)

	err := s.Scan(
		&inst.ID,
		&inst.Status,
		&inst.CustomStatus,
		&inst.DocumentCount,
		&inst.RetryOf,
		&report,
		&inst.CreatedAt,
		&inst.UpdatedAt,
		&inst.CompletedAt,
	)
	if err != nil {
		return inst, err
	}

	if len(report) > 0 {
		var r BatchReport
		if err := json.Unmarshal(report, &r); err != nil {
			return inst, fmt.Errorf("decode report: %w", err)
		}
		inst.Report = &r
	}

	return inst, nil
}

func scanDocument(s repository.Scanner) (workflow.Document, error) {
	var (
		doc  workflow.Document
		data []byte
	)

	if err := s.Scan(&data); err != nil {
		return doc, err
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func scanCheckpoint(s repository.Scanner) (workflow.Checkpoint, error) {
	var (
		cp      workflow.Checkpoint
		result  []byte
		failure []byte
	)

	if err := s.Scan(&result, &failure, &cp.ElapsedMS); err != nil {
		return cp, err
	}

	if len(result) > 0 {
		cp.Result = result
	}

	if len(failure) > 0 {
		var desc workflow.ErrorDescriptor
		if err := json.Unmarshal(failure, &desc); err != nil {
			return cp, fmt.Errorf("decode checkpoint failure: %w", err)
		}
		cp.Failure = &desc
	}

	return cp, nil
}

// nullJSON returns nil for an absent value so the column stores SQL NULL.
func nullJSON(v any) (any, error) {
	switch t := v.(type) {
	case json.RawMessage:
		if len(t) == 0 {
			return nil, nil
		}
		return []byte(t), nil
	case *workflow.ErrorDescriptor:
		if t == nil {
			return nil, nil
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}
