// Package codes defines the office/outpatient E/M code taxonomy: four
// medical decision making levels, each with exactly one new-patient code and
// one established-patient code.
package codes

import (
	"fmt"
	"strings"
)

// Level is an E/M complexity tier.
type Level int

const (
	Straightforward Level = iota
	Low
	Moderate
	High
)

var levelNames = [...]string{"straightforward", "low", "moderate", "high"}

func (l Level) String() string {
	if l < Straightforward || l > High {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	for i, name := range levelNames {
		if strings.EqualFold(string(text), name) {
			*l = Level(i)
			return nil
		}
	}
	return fmt.Errorf("unknown level %q", text)
}

// PatientType distinguishes the two code families.
type PatientType string

const (
	NewPatient         PatientType = "new"
	EstablishedPatient PatientType = "established"
)

// Of returns the family matching an is_new_patient flag.
func Of(isNewPatient bool) PatientType {
	if isNewPatient {
		return NewPatient
	}
	return EstablishedPatient
}

// Entry describes one known code.
type Entry struct {
	Code        string      `json:"code"`
	Level       Level       `json:"level"`
	PatientType PatientType `json:"patient_type"`
	Description string      `json:"description"`
}

type tier struct {
	level       Level
	new         string
	established string
	newBand     string
	estBand     string
}

var table = [...]tier{
	{Straightforward, "99202", "99212", "15-29", "10-19"},
	{Low, "99203", "99213", "30-44", "20-29"},
	{Moderate, "99204", "99214", "45-59", "30-39"},
	{High, "99205", "99215", "60-74", "40-54"},
}

type position struct {
	tier        int
	patientType PatientType
}

var index = func() map[string]position {
	m := make(map[string]position, len(table)*2)
	for i, t := range table {
		m[t.new] = position{i, NewPatient}
		m[t.established] = position{i, EstablishedPatient}
	}
	return m
}()

func (t tier) code(pt PatientType) string {
	if pt == NewPatient {
		return t.new
	}
	return t.established
}

func (t tier) entry(pt PatientType) Entry {
	prefix, band := "Established", t.estBand
	if pt == NewPatient {
		prefix, band = "New", t.newBand
	}
	name := levelNames[t.level]
	return Entry{
		Code:        t.code(pt),
		Level:       t.level,
		PatientType: pt,
		Description: fmt.Sprintf(
			"%s Patient Office/Outpatient Visit - %s%s MDM or %s minutes",
			prefix, strings.ToUpper(name[:1]), name[1:], band,
		),
	}
}

// Lookup returns the table entry for a code.
func Lookup(code string) (Entry, bool) {
	pos, ok := index[strings.TrimSpace(code)]
	if !ok {
		return Entry{}, false
	}
	return table[pos.tier].entry(pos.patientType), true
}

// Describe returns the human description of a code, or a generic label for
// codes outside the table.
func Describe(code string) string {
	if e, ok := Lookup(code); ok {
		return e.Description
	}
	return fmt.Sprintf("E/M Code %s", code)
}

// Entries returns every known code in tier order, new before established.
func Entries() []Entry {
	entries := make([]Entry, 0, len(table)*2)
	for _, t := range table {
		entries = append(entries, t.entry(NewPatient), t.entry(EstablishedPatient))
	}
	return entries
}

// Range returns the codes valid for a patient type as "first-last".
func Range(pt PatientType) string {
	return table[0].code(pt) + "-" + table[len(table)-1].code(pt)
}
