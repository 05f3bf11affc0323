package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JaimeStill/go-agents-orchestration/pkg/state"

	"github.com/JaimeStill/emcode/internal/codes"
	"github.com/JaimeStill/emcode/internal/prompts"
	"github.com/JaimeStill/emcode/pkg/formatting"
)

type auditResponse struct {
	AuditFlags         []string      `json:"audit_flags"`
	FinalAssignedCode  string        `json:"final_assigned_code"`
	FinalJustification Justification `json:"final_justification"`
	Confidence         Confidence    `json:"confidence"`
}

// Audit issues the audit call for doc and its enhancement result. The
// returned result always satisfies the patient-type rule when the patient
// type is known.
func Audit(ctx context.Context, rt *Runtime, doc Document, enh EnhancementResult) (*AuditResult, error) {
	prompt, err := ComposePrompt(ctx, rt.Prompts, prompts.StageAudit, auditRequest(doc, enh))
	if err != nil {
		return nil, err
	}

	content, err := rt.invoke(ctx, prompts.StageAudit, prompt)
	if err != nil {
		return nil, err
	}

	parsed, err := formatting.Parse[auditResponse](content)
	if err != nil {
		return nil, &InferenceError{Stage: prompts.StageAudit, Err: err}
	}

	if err := validateAudit(parsed); err != nil {
		return nil, &InferenceError{Stage: prompts.StageAudit, Err: err}
	}

	flags := make([]string, 0, len(parsed.AuditFlags)+1)
	flags = append(flags, parsed.AuditFlags...)

	result := &AuditResult{
		DocumentID:        doc.ID,
		EnhancementCode:   enh.AssignedCode,
		FinalAssignedCode: strings.TrimSpace(parsed.FinalAssignedCode),
		AuditFlags:        flags,
		Justification:     parsed.FinalJustification,
		Confidence:        parsed.Confidence,
		IsNewPatient:      doc.IsNewPatient,
	}
	result.Confidence.Tier = TierFor(result.Confidence.Score)

	enforcePatientType(result)
	return result, nil
}

func validateAudit(r auditResponse) error {
	if strings.TrimSpace(r.FinalAssignedCode) == "" {
		return fmt.Errorf("%w: missing final_assigned_code", ErrInvalidResponse)
	}
	if r.Confidence.Score < 0 || r.Confidence.Score > 100 {
		return fmt.Errorf("%w: confidence score %d outside 0-100", ErrInvalidResponse, r.Confidence.Score)
	}
	return nil
}

// enforcePatientType re-maps a final code from the wrong family and appends
// a flag describing the correction.
func enforcePatientType(r *AuditResult) {
	if r.IsNewPatient == nil {
		return
	}

	corrected, ok := codes.Correct(r.FinalAssignedCode, *r.IsNewPatient)
	if !ok {
		return
	}

	r.AuditFlags = append(r.AuditFlags, codes.MismatchFlag(r.FinalAssignedCode, corrected, *r.IsNewPatient))
	r.FinalAssignedCode = corrected
	r.Corrected = true
}

// AuditNode returns a state node that runs the audit stage on the recorded
// enhancement result as a checkpointed activity.
func AuditNode(rt *Runtime) state.StateNode {
	return state.NewFunctionNode(func(ctx context.Context, s state.State) (state.State, error) {
		job, err := extractJob(s)
		if err != nil {
			return s, fmt.Errorf("audit: %w", err)
		}

		enh, err := extractEnhancement(s)
		if err != nil {
			return s, fmt.Errorf("audit: %w", err)
		}

		if s, err = advance(s, job, PhaseAuditing); err != nil {
			return s, fmt.Errorf("audit: %w", err)
		}

		key := CheckpointKey{BatchID: job.BatchID, Position: job.Position, Stage: prompts.StageAudit}
		result, elapsed, err := activity(ctx, rt, key, func(ctx context.Context) (*AuditResult, error) {
			return Audit(ctx, rt, job.Document, enh)
		})
		s = s.Set(KeyAuditElapsed, elapsed)

		if errors.Is(err, ErrInterrupted) {
			return s, err
		}
		if err != nil {
			return fail(ctx, rt, s, job, prompts.StageAudit, err)
		}

		rt.Logger.InfoContext(
			ctx, "audit node complete",
			"batch_id", job.BatchID,
			"document_id", job.Document.ID,
			"final_code", result.FinalAssignedCode,
			"corrected", result.Corrected,
			"confidence", result.Confidence.Score,
			"elapsed", elapsed,
		)

		s = s.Set(KeyAudit, *result)
		return advance(s, job, PhaseSucceeded)
	})
}

func extractEnhancement(s state.State) (EnhancementResult, error) {
	val, ok := s.Get(KeyEnhancement)
	if !ok {
		return EnhancementResult{}, fmt.Errorf("%w: %s", ErrMissingState, KeyEnhancement)
	}

	enh, ok := val.(EnhancementResult)
	if !ok {
		return EnhancementResult{}, fmt.Errorf("%w: %s is not EnhancementResult", ErrMissingState, KeyEnhancement)
	}
	return enh, nil
}
