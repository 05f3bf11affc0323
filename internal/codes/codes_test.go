package codes_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/JaimeStill/emcode/internal/codes"
)

var pairs = []struct {
	level       codes.Level
	new         string
	established string
}{
	{codes.Straightforward, "99202", "99212"},
	{codes.Low, "99203", "99213"},
	{codes.Moderate, "99204", "99214"},
	{codes.High, "99205", "99215"},
}

func TestToPatientTypeRoundTrip(t *testing.T) {
	for _, p := range pairs {
		t.Run(p.level.String(), func(t *testing.T) {
			if got := codes.ToPatientType(codes.ToPatientType(p.established, true), false); got != p.established {
				t.Errorf("established round trip = %s, want %s", got, p.established)
			}
			if got := codes.ToPatientType(codes.ToPatientType(p.new, false), true); got != p.new {
				t.Errorf("new round trip = %s, want %s", got, p.new)
			}
			if got := codes.ToPatientType(p.established, true); got != p.new {
				t.Errorf("ToPatientType(%s, new) = %s, want %s", p.established, got, p.new)
			}
			if got := codes.ToPatientType(p.new, false); got != p.established {
				t.Errorf("ToPatientType(%s, established) = %s, want %s", p.new, got, p.established)
			}
		})
	}
}

func TestToPatientTypeUnknownCode(t *testing.T) {
	for _, code := range []string{"99211", "G2211", "", "not-a-code"} {
		if got := codes.ToPatientType(code, true); got != code {
			t.Errorf("ToPatientType(%q) = %q, want unchanged", code, got)
		}
	}
}

func TestIsValidForPatientType(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		isNew bool
		want  bool
	}{
		{"new code for new patient", "99203", true, true},
		{"established code for new patient", "99213", true, false},
		{"established code for established patient", "99215", false, true},
		{"new code for established patient", "99205", false, false},
		{"unknown code for new patient", "99211", true, true},
		{"unknown code for established patient", "99381", false, true},
		{"surrounding whitespace", " 99213 ", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := codes.IsValidForPatientType(tt.code, tt.isNew); got != tt.want {
				t.Errorf("IsValidForPatientType(%q, %v) = %v, want %v", tt.code, tt.isNew, got, tt.want)
			}
		})
	}
}

func TestCorrect(t *testing.T) {
	tests := []struct {
		name          string
		code          string
		isNew         bool
		want          string
		wantCorrected bool
	}{
		{"established code for new patient", "99213", true, "99203", true},
		{"new code for established patient", "99205", false, "99215", true},
		{"already valid", "99214", false, "99214", false},
		{"unknown code", "99499", true, "99499", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, corrected := codes.Correct(tt.code, tt.isNew)
			if got != tt.want || corrected != tt.wantCorrected {
				t.Errorf("Correct(%q, %v) = (%q, %v), want (%q, %v)",
					tt.code, tt.isNew, got, corrected, tt.want, tt.wantCorrected)
			}
		})
	}
}

func TestCorrectIdempotent(t *testing.T) {
	for _, e := range codes.Entries() {
		isNew := e.PatientType == codes.NewPatient

		first, c1 := codes.Correct(e.Code, isNew)
		second, c2 := codes.Correct(first, isNew)

		if c1 || c2 {
			t.Errorf("%s: valid code reported corrected (%v, %v)", e.Code, c1, c2)
		}
		if first != e.Code || second != e.Code {
			t.Errorf("%s: Correct changed a valid code to %s, %s", e.Code, first, second)
		}
	}
}

func TestCorrectedCodeIsValid(t *testing.T) {
	for _, e := range codes.Entries() {
		for _, isNew := range []bool{true, false} {
			got, _ := codes.Correct(e.Code, isNew)
			if !codes.IsValidForPatientType(got, isNew) {
				t.Errorf("Correct(%s, %v) = %s is not valid", e.Code, isNew, got)
			}
		}
	}
}

func TestMismatchFlag(t *testing.T) {
	flag := codes.MismatchFlag("99213", "99203", true)

	for _, want := range []string{"99213", "99203", "Patient type mismatch", "established patients", "new patients"} {
		if !strings.Contains(flag, want) {
			t.Errorf("flag %q missing %q", flag, want)
		}
	}
}

func TestLookup(t *testing.T) {
	e, ok := codes.Lookup("99214")
	if !ok {
		t.Fatal("Lookup(99214) not found")
	}
	if e.Level != codes.Moderate || e.PatientType != codes.EstablishedPatient {
		t.Errorf("Lookup(99214) = %+v", e)
	}
	if e.Description != "Established Patient Office/Outpatient Visit - Moderate MDM or 30-39 minutes" {
		t.Errorf("Description = %q", e.Description)
	}

	if _, ok := codes.Lookup("99211"); ok {
		t.Error("Lookup(99211) should not be found")
	}
	if got := codes.Describe("99211"); got != "E/M Code 99211" {
		t.Errorf("Describe(99211) = %q", got)
	}
}

func TestEntries(t *testing.T) {
	entries := codes.Entries()
	if len(entries) != 8 {
		t.Fatalf("len(Entries) = %d, want 8", len(entries))
	}
	if entries[0].Code != "99202" || entries[7].Code != "99215" {
		t.Errorf("Entries order = %s..%s", entries[0].Code, entries[7].Code)
	}
}

func TestRange(t *testing.T) {
	if got := codes.Range(codes.NewPatient); got != "99202-99205" {
		t.Errorf("Range(new) = %s", got)
	}
	if got := codes.Range(codes.EstablishedPatient); got != "99212-99215" {
		t.Errorf("Range(established) = %s", got)
	}
}

func TestLevelJSON(t *testing.T) {
	data, err := json.Marshal(codes.High)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"high"` {
		t.Errorf("marshal = %s", data)
	}

	var l codes.Level
	if err := json.Unmarshal([]byte(`"Moderate"`), &l); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if l != codes.Moderate {
		t.Errorf("unmarshal = %v", l)
	}

	if err := json.Unmarshal([]byte(`"extreme"`), &l); err == nil {
		t.Error("expected error for unknown level")
	}
}
