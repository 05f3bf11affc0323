package workflow

import (
	"github.com/google/uuid"

	"github.com/JaimeStill/emcode/internal/codes"
)

const (
	KeyJob            = "job"
	KeyPhase          = "phase"
	KeyEnhancement    = "enhancement"
	KeyAudit          = "audit"
	KeyFailure        = "failure"
	KeyEnhanceElapsed = "enhance_elapsed"
	KeyAuditElapsed   = "audit_elapsed"
	KeyOutcome        = "outcome"
)

// Document is one clinical note submitted for coding. IsNewPatient is nil
// when the visit type is unknown.
type Document struct {
	ID            string `json:"id"`
	Provider      string `json:"provider,omitempty"`
	DateOfService string `json:"date_of_service,omitempty"`
	PatientID     string `json:"patient_id,omitempty"`
	PatientName   string `json:"patient_name,omitempty"`
	FullText      string `json:"full_text,omitempty"`
	IsNewPatient  *bool  `json:"is_new_patient"`
	StorageKey    string `json:"storage_key,omitempty"`
}

// PatientType returns the code family for the document and whether it is known.
func (d Document) PatientType() (codes.PatientType, bool) {
	if d.IsNewPatient == nil {
		return "", false
	}
	return codes.Of(*d.IsNewPatient), true
}

// Job binds a document to its batch and submission position. Observe, when
// set, receives every phase the workflow enters.
type Job struct {
	BatchID  uuid.UUID
	Position int
	Document Document
	Observe  func(Phase)
}

// EnhancementResult is the initial code proposal for a document.
type EnhancementResult struct {
	DocumentID    string `json:"document_id"`
	AssignedCode  string `json:"assigned_code"`
	Justification string `json:"justification"`
	IsNewPatient  *bool  `json:"is_new_patient"`
}

// Justification is the structured rationale behind a final code.
type Justification struct {
	SupportedBy          string   `json:"supported_by"`
	DocumentationSummary []string `json:"documentation_summary"`
	MDMConsiderations    []string `json:"mdm_considerations"`
	ComplianceAlerts     []string `json:"compliance_alerts,omitempty"`
}

// ConfidenceTier is the label derived from a confidence score.
type ConfidenceTier string

const (
	TierVeryHigh ConfidenceTier = "very_high"
	TierHigh     ConfidenceTier = "high"
	TierModerate ConfidenceTier = "moderate"
	TierLow      ConfidenceTier = "low"
	TierVeryLow  ConfidenceTier = "very_low"
)

// TierFor maps a 0-100 score to its tier.
func TierFor(score int) ConfidenceTier {
	switch {
	case score >= 90:
		return TierVeryHigh
	case score >= 70:
		return TierHigh
	case score >= 50:
		return TierModerate
	case score >= 30:
		return TierLow
	default:
		return TierVeryLow
	}
}

// Confidence is the audit's assessment of how well the documentation
// supports the final code.
type Confidence struct {
	Score                    int            `json:"score"`
	Tier                     ConfidenceTier `json:"tier"`
	AssignmentReasons        []string       `json:"mdm_assignment_reason"`
	EnhancementOpportunities []string       `json:"documentation_enhancement_opportunities"`
	ScoreDeductions          []string       `json:"score_deductions"`
	QuickTip                 string         `json:"quick_tip,omitempty"`
}

// AuditResult is the final, patient-type validated coding result.
type AuditResult struct {
	DocumentID        string        `json:"document_id"`
	EnhancementCode   string        `json:"enhancement_code"`
	FinalAssignedCode string        `json:"final_assigned_code"`
	AuditFlags        []string      `json:"audit_flags"`
	Justification     Justification `json:"final_justification"`
	Confidence        Confidence    `json:"confidence"`
	IsNewPatient      *bool         `json:"is_new_patient"`
	Corrected         bool          `json:"corrected"`
}

// OutcomeStatus is the terminal classification of a document.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
)

// StageTiming records how long each stage call took, as measured when the
// call was made.
type StageTiming struct {
	EnhanceMS int64 `json:"enhance_ms"`
	AuditMS   int64 `json:"audit_ms"`
}

// Outcome is the terminal result of one Document Workflow. Exactly one of
// Result and Error is set.
type Outcome struct {
	Position   int              `json:"position"`
	DocumentID string           `json:"document_id"`
	Status     OutcomeStatus    `json:"status"`
	Result     *AuditResult     `json:"result,omitempty"`
	Error      *ErrorDescriptor `json:"error,omitempty"`
	Timing     StageTiming      `json:"timing"`
}

// Succeeded reports whether the outcome carries an audit result.
func (o Outcome) Succeeded() bool {
	return o.Status == OutcomeSucceeded
}
