package codes

import (
	"fmt"
	"strings"
)

// ToPatientType returns the code at the same level in the family matching
// isNewPatient. Codes outside the table are returned unchanged.
func ToPatientType(code string, isNewPatient bool) string {
	pos, ok := index[strings.TrimSpace(code)]
	if !ok {
		return code
	}
	return table[pos.tier].code(Of(isNewPatient))
}

// IsValidForPatientType reports whether code belongs to the family matching
// isNewPatient. Codes outside the table are always valid.
func IsValidForPatientType(code string, isNewPatient bool) bool {
	pos, ok := index[strings.TrimSpace(code)]
	if !ok {
		return true
	}
	return pos.patientType == Of(isNewPatient)
}

// Correct returns code unchanged when it is valid for the patient type,
// otherwise the mapped code and true.
func Correct(code string, isNewPatient bool) (string, bool) {
	if IsValidForPatientType(code, isNewPatient) {
		return code, false
	}
	return ToPatientType(code, isNewPatient), true
}

// MismatchFlag is the audit flag recorded when Correct replaces a code.
func MismatchFlag(original, corrected string, isNewPatient bool) string {
	target := Of(isNewPatient)
	source := EstablishedPatient
	if target == EstablishedPatient {
		source = NewPatient
	}
	return fmt.Sprintf(
		"Patient type mismatch: code %s is for %s patients, use %s for %s patients. Corrected from %s to %s",
		original, source, corrected, target, original, corrected,
	)
}
