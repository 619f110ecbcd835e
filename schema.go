package medrex

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// FieldType is the closed set of semantic types a schema field can declare.
// Validator dispatch is by this tag only; there is no runtime type
// inspection of the data.
type FieldType string

const (
	FieldIdentifier  FieldType = "identifier"
	FieldDate        FieldType = "date"
	FieldPhone       FieldType = "phone"
	FieldMeasurement FieldType = "measurement"
	FieldBoolean     FieldType = "boolean"
	FieldNumeric     FieldType = "numeric"
	FieldText        FieldType = "text"
)

// Field declares one expected column: its canonical name and semantic type.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Schema is the ordered set of fields a job expects. The order is
// significant: validation reports list issues in schema order so identical
// input always produces an identical report. Schemas are immutable per job.
type Schema []Field

func (s Schema) has(name string) bool {
	for _, f := range s {
		if f.Name == name {
			return true
		}
	}
	return false
}

// names returns the canonical field names in schema order.
func (s Schema) names() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Name
	}
	return out
}

// Match is the result of reconciling expected field names against the
// columns actually present in a file.
type Match struct {
	// Matched maps expected field name to the single incoming column that
	// won the reconciliation.
	Matched map[string]string

	// Missing lists expected fields with no candidate column, in expected
	// order.
	Missing []string

	// Ambiguous maps expected field name to the candidate columns (sorted)
	// that tied. Ambiguous fields are excluded from Matched: a wrong silent
	// pick corrupts typed data downstream, so ties are always surfaced.
	Ambiguous map[string][]string
}

// Reconcile matches expected field names against actual column names using
// case-, punctuation-, and separator-insensitive comparison, falling back
// to bounded edit distance for near misses ("patientid" vs "patient_idd").
//
// Resolution per expected field:
//   - exactly one column whose normalized form equals the field's: matched,
//     regardless of any fuzzier candidates
//   - two or more normalized-equal columns: ambiguous
//   - otherwise, columns within the edit-distance threshold are candidates;
//     one candidate matches, several are ambiguous, none is missing
//
// Reconcile is a pure function of its inputs.
func Reconcile(expected, actual []string) Match {
	m := Match{
		Matched:   make(map[string]string),
		Ambiguous: make(map[string][]string),
	}

	normActual := make([]string, len(actual))
	for i, a := range actual {
		normActual[i] = normalizeName(a)
	}

	for _, want := range expected {
		normWant := normalizeName(want)

		var exact, fuzzy []string
		for i, a := range actual {
			if normActual[i] == normWant {
				exact = append(exact, a)
				continue
			}
			if withinDistance(normWant, normActual[i]) {
				fuzzy = append(fuzzy, a)
			}
		}

		candidates := exact
		if len(exact) == 0 {
			candidates = fuzzy
		}

		switch len(candidates) {
		case 0:
			m.Missing = append(m.Missing, want)
		case 1:
			m.Matched[want] = candidates[0]
		default:
			sorted := append([]string(nil), candidates...)
			sort.Strings(sorted)
			m.Ambiguous[want] = sorted
		}
	}

	return m
}

// normalizeName lowercases a column name and strips everything that is not
// a letter or digit, so "PatientID", "patient_id", and "PATIENT ID" all
// normalize to "patientid".
func normalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// withinDistance reports whether two normalized names are close enough to
// be considered the same field. The threshold scales with name length but
// never exceeds a small constant: column names are short, and a generous
// threshold would start conflating distinct clinical fields.
func withinDistance(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	allowed := min(2, max(1, len(a)/4))
	return levenshtein.ComputeDistance(a, b) <= allowed
}
