package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/JaimeStill/emcode/internal/codes"
	"github.com/JaimeStill/emcode/internal/prompts"
)

// ComposePrompt builds a stage prompt from the stage instructions, the fixed
// response specification, and the stage request.
func ComposePrompt(
	ctx context.Context,
	ps prompts.System,
	stage prompts.Stage,
	request string,
) (string, error) {
	instructions, err := ps.Instructions(ctx, stage)
	if err != nil {
		return "", fmt.Errorf("load instructions for %s: %w", stage, err)
	}

	spec, err := ps.Spec(ctx, stage)
	if err != nil {
		return "", fmt.Errorf("load spec for %s: %w", stage, err)
	}

	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\n")
	sb.WriteString(spec)
	sb.WriteString("\n\n")
	sb.WriteString(request)

	return sb.String(), nil
}

func writeDocumentHeader(sb *strings.Builder, doc Document) {
	fmt.Fprintf(sb, "Document ID: %s\n", doc.ID)
	if doc.DateOfService != "" {
		fmt.Fprintf(sb, "Date of Service: %s\n", doc.DateOfService)
	}
	if doc.Provider != "" {
		fmt.Fprintf(sb, "Provider: %s\n", doc.Provider)
	}

	if pt, ok := doc.PatientType(); ok {
		fmt.Fprintf(sb, "Patient Type: %s patient\n", pt)
		fmt.Fprintf(sb, "Valid Codes: %s\n", codes.Range(pt))
	} else {
		sb.WriteString("Patient Type: unknown\n")
		fmt.Fprintf(
			sb, "Valid Codes: %s for new patients, %s for established patients\n",
			codes.Range(codes.NewPatient), codes.Range(codes.EstablishedPatient),
		)
	}
}

func enhanceRequest(doc Document) string {
	var sb strings.Builder
	sb.WriteString("CODING REQUEST\n")
	writeDocumentHeader(&sb, doc)
	sb.WriteString("\nProgress Note:\n")
	sb.WriteString(doc.FullText)
	sb.WriteString("\n\nAssign the E/M code supported by this note with a brief MDM-focused justification.")
	return sb.String()
}

func auditRequest(doc Document, enh EnhancementResult) string {
	var sb strings.Builder
	sb.WriteString("AUDIT REQUEST\n")
	writeDocumentHeader(&sb, doc)

	fmt.Fprintf(&sb, "\nProposed Code: %s (%s)\n", enh.AssignedCode, codes.Describe(enh.AssignedCode))
	fmt.Fprintf(&sb, "Proposed Justification: %s\n", enh.Justification)

	if doc.IsNewPatient != nil {
		if suggested, corrected := codes.Correct(enh.AssignedCode, *doc.IsNewPatient); corrected {
			fmt.Fprintf(
				&sb, "\nCODE VALIDATION ISSUE: %s is not valid for a %s patient. Suggested correction: %s\n",
				enh.AssignedCode, codes.Of(*doc.IsNewPatient), suggested,
			)
		}
	}

	sb.WriteString("\nProgress Note:\n")
	sb.WriteString(doc.FullText)
	sb.WriteString("\n\nAudit the proposed code and produce the final result.")
	return sb.String()
}
