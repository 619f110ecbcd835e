package medrex

import (
	"strings"
	"unicode/utf8"
)

// Scanner applies schema reconciliation and per-type field validation to
// incoming data, producing a deterministic [ValidationReport].
//
// A Scanner is stateless with respect to the data it scans and safe for
// concurrent use once configured.
type Scanner struct {
	schema Schema

	sampleLimit   int
	dateLayouts   []string
	preferredDate string
	units         UnitTable
}

// NewScanner creates a Scanner for the expected schema.
func NewScanner(schema Schema) *Scanner {
	return &Scanner{schema: schema}
}

// WithSampleLimit bounds the number of records examined per scan. Zero
// (the default) scans everything. Sampling is a throughput choice for very
// large inputs, not a correctness requirement; violation counts then refer
// to the sample.
func (s *Scanner) WithSampleLimit(n int) *Scanner {
	if n >= 0 {
		s.sampleLimit = n
	}
	return s
}

// WithDateLayouts replaces the built-in list of date layouts tried in order.
func (s *Scanner) WithDateLayouts(layouts ...string) *Scanner {
	s.dateLayouts = layouts
	return s
}

// WithPreferredDateLayout resolves otherwise-ambiguous dates in favor of
// the given layout. Without a preferred layout an ambiguous date is a
// critical violation.
func (s *Scanner) WithPreferredDateLayout(layout string) *Scanner {
	s.preferredDate = layout
	return s
}

// WithUnitTable supplies the measurement unit conversion table.
func (s *Scanner) WithUnitTable(t UnitTable) *Scanner {
	s.units = t
	return s
}

// validatorFor dispatches on the closed set of field types. Unknown tags
// fall back to the text validator rather than guessing a stricter type.
func (s *Scanner) validatorFor(t FieldType) Validator {
	switch t {
	case FieldIdentifier:
		return IdentifierValidator()
	case FieldDate:
		return DateValidator(s.dateLayouts, s.preferredDate)
	case FieldPhone:
		return PhoneValidator()
	case FieldMeasurement:
		return MeasurementValidator(s.units)
	case FieldBoolean:
		return BooleanValidator()
	case FieldNumeric:
		return NumericValidator()
	default:
		return TextValidator()
	}
}

// validators builds the full dispatch table for this scanner's schema.
func (s *Scanner) validators() map[FieldType]Validator {
	out := make(map[FieldType]Validator)
	for _, f := range s.schema {
		if _, ok := out[f.Type]; !ok {
			out[f.Type] = s.validatorFor(f.Type)
		}
	}
	return out
}

// Match reconciles the scanner's schema against a file's column names.
func (s *Scanner) Match(columns []string) Match {
	return Reconcile(s.schema.names(), columns)
}

// Clean validates one record against the matched schema fields and returns
// a normalized copy keyed by canonical field names, plus any violations.
//
// Empty cells are treated as absent, not violations: the canonical key is
// simply omitted. On a violation the raw value is carried through under the
// canonical key so callers configured to flag or quarantine still see it.
func (s *Scanner) Clean(m Match, rec Record) (Record, []FieldViolation) {
	vals := s.validators()
	out := make(Record, len(s.schema))
	var violations []FieldViolation

	for _, f := range s.schema {
		actual, ok := m.Matched[f.Name]
		if !ok {
			continue
		}
		raw := rec[actual]
		if strings.TrimSpace(raw) == "" {
			continue
		}

		if !utf8.ValidString(raw) {
			out[f.Name] = raw
			violations = append(violations, FieldViolation{
				Field: f.Name,
				Type:  f.Type,
				Value: raw,
				Violation: Violation{
					Code:     "garbled_encoding",
					Reason:   "value is not valid UTF-8",
					Critical: true,
				},
			})
			continue
		}

		normalized, v := vals[f.Type](raw)
		if v != nil {
			out[f.Name] = raw
			violations = append(violations, FieldViolation{Field: f.Name, Type: f.Type, Value: raw, Violation: *v})
			continue
		}
		out[f.Name] = normalized
	}

	return out, violations
}

// Scan produces a ValidationReport for the given records. Missing and
// ambiguous fields become schema issues and are excluded from the value
// checks; matched fields collect up to MaxViolationSamples offending values
// each plus a total count.
//
// An identifier column where no non-empty value matches any accepted
// pattern is escalated from a data-quality issue to a critical error: the
// column's declared type is fundamentally incompatible with its content.
//
// Scan is deterministic: identical input and schema produce a
// byte-for-byte identical report.
func (s *Scanner) Scan(columns []string, records []Record) *ValidationReport {
	m := s.Match(columns)
	b := newReportBuilder(s.schema)

	missing := make(map[string]bool, len(m.Missing))
	for _, name := range m.Missing {
		missing[name] = true
	}
	for _, f := range s.schema {
		if cands, ok := m.Ambiguous[f.Name]; ok {
			b.addSchemaIssue(SchemaAmbiguous, f.Name, cands)
		} else if missing[f.Name] {
			b.addSchemaIssue(SchemaMissing, f.Name, nil)
		}
	}

	seen := make(map[string]int64) // non-empty values examined per field
	valid := make(map[string]int64)

	limit := len(records)
	if s.sampleLimit > 0 && s.sampleLimit < limit {
		limit = s.sampleLimit
	}

	for _, rec := range records[:limit] {
		cleaned, violations := s.Clean(m, rec)
		for _, fv := range violations {
			seen[fv.Field]++
			b.addViolation(fv)
		}
		for _, f := range s.schema {
			if _, ok := cleaned[f.Name]; !ok {
				continue
			}
			violated := false
			for _, fv := range violations {
				if fv.Field == f.Name {
					violated = true
					break
				}
			}
			if !violated {
				seen[f.Name]++
				valid[f.Name]++
			}
		}
	}

	for _, f := range s.schema {
		if f.Type != FieldIdentifier {
			continue
		}
		if seen[f.Name] > 0 && valid[f.Name] == 0 {
			b.escalateColumn(f.Name, "no values match any accepted identifier pattern")
		}
	}

	return b.build()
}
