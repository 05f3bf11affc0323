package prompts

import (
	"fmt"
	"slices"
)

// Stage names one of the two inference calls a document passes through.
type Stage string

const (
	StageEnhance Stage = "enhance"
	StageAudit   Stage = "audit"
)

// Stages returns the stages in execution order.
func Stages() []Stage {
	return []Stage{StageEnhance, StageAudit}
}

// ParseStage accepts exactly "enhance" or "audit".
func ParseStage(s string) (Stage, error) {
	v := Stage(s)
	if !slices.Contains(Stages(), v) {
		return "", fmt.Errorf("%w: %q", ErrInvalidStage, s)
	}
	return v, nil
}

// UnmarshalText rejects unknown stages wherever a Stage is decoded: request
// bodies, stored checkpoints, and failure descriptors.
func (s *Stage) UnmarshalText(text []byte) error {
	v, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
