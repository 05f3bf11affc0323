package prompts

const enhanceSpec = `Respond with a JSON object matching this exact structure:

{
  "assigned_code": "<code>",
  "justification": "<explanation>"
}

Field constraints:
- assigned_code: A single five-digit office/outpatient E/M code.
- justification: Brief MDM-focused explanation citing the problems,
  data, and risk documented in the note.

Behavioral constraints:
- Always respond with valid JSON, no markdown fencing
- Assign exactly one code`

const auditSpec = `Respond with a JSON object matching this exact structure:

{
  "audit_flags": ["<flag>"],
  "final_assigned_code": "<code>",
  "final_justification": {
    "supported_by": "<statement>",
    "documentation_summary": ["<item>"],
    "mdm_considerations": ["<item>"],
    "compliance_alerts": ["<item>"]
  },
  "confidence": {
    "score": 0,
    "mdm_assignment_reason": ["<reason>"],
    "documentation_enhancement_opportunities": ["<opportunity>"],
    "score_deductions": ["<deduction>"],
    "quick_tip": "<tip>"
  }
}

Field constraints:
- audit_flags: Specific compliance concerns, one per entry. Empty array
  when there are none.
- final_assigned_code: The confirmed or adjusted five-digit E/M code.
- final_justification.supported_by: One sentence naming what supports
  the final level (MDM or time).
- final_justification.compliance_alerts: Optional; omit or leave empty
  when there are none.
- confidence.score: Integer from 0 to 100.
- confidence.quick_tip: Optional single improvement tip.

Behavioral constraints:
- Always respond with valid JSON, no markdown fencing
- Do not include fields beyond this structure`

var specs = map[Stage]string{
	StageEnhance: enhanceSpec,
	StageAudit:   auditSpec,
}

// Spec returns the response specification for a pipeline stage. Specs define
// the structure the stage parser expects and cannot be overridden.
func Spec(stage Stage) (string, error) {
	text, ok := specs[stage]
	if !ok {
		return "", ErrInvalidStage
	}
	return text, nil
}
