// Package pipeline coordinates batches of Document Workflows. A batch fans out
// to one workflow per document, fans back in once every workflow is terminal,
// and freezes the result into a BatchReport.
package pipeline

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/emcode/internal/workflow"
)

// Status is the lifecycle state of a batch.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

const statusStarting = "Starting document processing"

func statusEnhancing(n int) string {
	return fmt.Sprintf("Enhancing %d documents", n)
}

func statusAuditing(n int) string {
	return fmt.Sprintf("Enhancement phase complete, auditing %d documents", n)
}

func statusCompleted(succeeded, failed int) string {
	return fmt.Sprintf("Completed: %d succeeded, %d failed", succeeded, failed)
}

// Instance identifies one batch run. Report is set once the batch completes.
type Instance struct {
	ID            uuid.UUID    `json:"id"`
	Status        Status       `json:"status"`
	CustomStatus  string       `json:"custom_status"`
	DocumentCount int          `json:"document_count"`
	RetryOf       *uuid.UUID   `json:"retry_of,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	Report        *BatchReport `json:"report,omitempty"`
}

// ReportTiming aggregates batch timing. EnhancementMS and AuditMS sum the
// per-document stage durations.
type ReportTiming struct {
	WallMS        int64 `json:"wall_ms"`
	EnhancementMS int64 `json:"enhancement_ms"`
	AuditMS       int64 `json:"audit_ms"`
}

// BatchReport is the frozen aggregate of a completed batch. Outcomes are in
// submission order.
type BatchReport struct {
	Status      Status             `json:"status"`
	Total       int                `json:"total"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	Outcomes    []workflow.Outcome `json:"outcomes"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	Timing      ReportTiming       `json:"timing"`
}

// NewReport aggregates outcomes into a completed BatchReport.
func NewReport(outcomes []workflow.Outcome, startedAt, completedAt time.Time) BatchReport {
	report := BatchReport{
		Status:      StatusCompleted,
		Total:       len(outcomes),
		Outcomes:    outcomes,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Timing: ReportTiming{
			WallMS: completedAt.Sub(startedAt).Milliseconds(),
		},
	}

	for _, o := range outcomes {
		if o.Succeeded() {
			report.Succeeded++
		} else {
			report.Failed++
		}
		report.Timing.EnhancementMS += o.Timing.EnhanceMS
		report.Timing.AuditMS += o.Timing.AuditMS
	}

	return report
}

// FailedPositions returns the submission positions of failed documents.
func (r *BatchReport) FailedPositions() []int {
	positions := make([]int, 0, r.Failed)
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			positions = append(positions, o.Position)
		}
	}
	return positions
}

// Filters contains optional filtering criteria for batch queries.
// SubmittedAfter is inclusive and SubmittedBefore exclusive.
type Filters struct {
	Status          *string    `json:"status,omitempty"`
	RetryOf         *uuid.UUID `json:"retry_of,omitempty"`
	SubmittedAfter  *time.Time `json:"submitted_after,omitempty"`
	SubmittedBefore *time.Time `json:"submitted_before,omitempty"`
}

// FiltersFromQuery extracts filter values from URL query parameters.
// Malformed values are ignored. Times are RFC 3339.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("status"); s != "" {
		f.Status = &s
	}

	if r := values.Get("retry_of"); r != "" {
		if id, err := uuid.Parse(r); err == nil {
			f.RetryOf = &id
		}
	}

	f.SubmittedAfter = queryTime(values, "submitted_after")
	f.SubmittedBefore = queryTime(values, "submitted_before")

	return f
}

func queryTime(values url.Values, key string) *time.Time {
	t, err := time.Parse(time.RFC3339, values.Get(key))
	if err != nil {
		return nil
	}
	return &t
}

func (f Filters) matches(inst Instance) bool {
	if f.Status != nil && string(inst.Status) != *f.Status {
		return false
	}
	if f.RetryOf != nil && (inst.RetryOf == nil || *inst.RetryOf != *f.RetryOf) {
		return false
	}
	if f.SubmittedAfter != nil && inst.CreatedAt.Before(*f.SubmittedAfter) {
		return false
	}
	if f.SubmittedBefore != nil && !inst.CreatedAt.Before(*f.SubmittedBefore) {
		return false
	}
	return true
}
