package medrex

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Violation describes why a value failed validation. Violations are values,
// not errors: validators hand them back so the scanner can aggregate
// thousands of them without aborting anything.
type Violation struct {
	// Code is a stable machine-readable failure code.
	Code string `json:"code"`

	// Reason is a human-readable description.
	Reason string `json:"reason"`

	// Critical marks the value as unrecoverable without human
	// intervention (garbled encoding, ambiguous date with no configured
	// preference). Non-critical violations are recoverable data-quality
	// findings.
	Critical bool `json:"critical,omitempty"`
}

// FieldViolation ties a Violation to the field and raw value that produced
// it.
type FieldViolation struct {
	Field     string    `json:"field"`
	Type      FieldType `json:"type"`
	Value     string    `json:"value"`
	Violation Violation `json:"violation"`
}

// Validator validates and normalizes a single raw value. On success it
// returns the canonical form and a nil violation. Validators are pure and
// safe for concurrent use.
type Validator func(raw string) (string, *Violation)

// Conversion rescales a source unit into a canonical unit.
type Conversion struct {
	Factor float64
	Unit   string
}

// UnitTable maps lowercase unit suffixes to their canonical conversion,
// e.g. {"mg/dl": {Factor: 0.01, Unit: "g/L"}}. Tables are supplied by the
// caller; an unlisted unit is a validation failure, never a guessed
// conversion.
type UnitTable map[string]Conversion

// Default date layouts tried in order. Purely-numeric slash and dash forms
// appear in both month-first and day-first order; a value that parses
// differently under both is ambiguous and must be resolved by a configured
// preferred layout.
var defaultDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"01-02-2006",
	"02-01-2006",
	"20060102",
	"Jan 2, 2006",
	"January 2, 2006",
}

var (
	idNumericRE  = regexp.MustCompile(`^[0-9]+$`)
	idPrefixedRE = regexp.MustCompile(`^[A-Za-z]{1,5}-?[0-9]{3,}$`)
	idUUIDRE     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	comparatorRE  = regexp.MustCompile(`^([<>])\s*([0-9]+(?:\.[0-9]+)?)$`)
	measurementRE = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*([^\s0-9][^\s]*)$`)
	bareNumberRE  = regexp.MustCompile(`^[0-9]+(?:\.[0-9]+)?$`)
)

// IdentifierValidator accepts any of the enumerated identifier shapes:
// purely numeric, a short alpha prefix plus digits (with optional hyphen),
// or a UUID. Prefixed identifiers normalize to upper case, UUIDs to lower
// case.
func IdentifierValidator() Validator {
	return func(raw string) (string, *Violation) {
		v := strings.TrimSpace(raw)
		switch {
		case idNumericRE.MatchString(v):
			return v, nil
		case idPrefixedRE.MatchString(v):
			return strings.ToUpper(v), nil
		case idUUIDRE.MatchString(v):
			return strings.ToLower(v), nil
		}
		return "", &Violation{Code: "identifier_pattern", Reason: "value matches no accepted identifier pattern"}
	}
}

// DateValidator parses a calendar date against the given layouts and
// normalizes to ISO 8601 (2006-01-02). Layouts default to
// the package's built-in list when nil.
//
// A value that parses to different dates under different layouts (the
// classic "01/02/2023" problem) is never silently resolved: if preferred
// names a layout and the value parses under it, that parse wins; otherwise
// the value is a critical violation. Locale guessing is a known source of
// silent corruption in clinical data, so there is no default.
func DateValidator(layouts []string, preferred string) Validator {
	if layouts == nil {
		layouts = defaultDateLayouts
	}
	return func(raw string) (string, *Violation) {
		v := strings.TrimSpace(raw)
		if v == "" {
			return "", &Violation{Code: "date_empty", Reason: "empty date"}
		}

		if preferred != "" {
			if t, err := time.Parse(preferred, v); err == nil {
				return t.Format(time.DateOnly), nil
			}
		}

		distinct := make(map[string]bool)
		var first string
		for _, layout := range layouts {
			t, err := time.Parse(layout, v)
			if err != nil {
				continue
			}
			iso := t.Format(time.DateOnly)
			if len(distinct) == 0 {
				first = iso
			}
			distinct[iso] = true
		}

		switch len(distinct) {
		case 0:
			return "", &Violation{Code: "date_unparseable", Reason: "value matches no known date layout"}
		case 1:
			return first, nil
		default:
			return "", &Violation{
				Code:     "date_ambiguous",
				Reason:   "value parses differently under multiple layouts and no preferred layout is configured",
				Critical: true,
			}
		}
	}
}

// PhoneValidator strips punctuation and accepts exactly ten digits,
// normalizing to "(AAA) BBB-CCCC". Nine or eleven digits fail; country
// codes are never guessed.
func PhoneValidator() Validator {
	return func(raw string) (string, *Violation) {
		var digits []byte
		for i := 0; i < len(raw); i++ {
			if raw[i] >= '0' && raw[i] <= '9' {
				digits = append(digits, raw[i])
			}
		}
		if len(digits) != 10 {
			return "", &Violation{
				Code:   "phone_digits",
				Reason: fmt.Sprintf("expected 10 digits, got %d", len(digits)),
			}
		}
		return fmt.Sprintf("(%s) %s-%s", digits[0:3], digits[3:6], digits[6:10]), nil
	}
}

// MeasurementValidator handles lab values. A leading comparison operator
// plus a number ("<5", "> 400") normalizes to "<op> <magnitude>" with no
// unit conversion. A number with a unit suffix converts to the canonical
// unit through the supplied table; a unit absent from the table is a
// failure. A bare number is a failure too (missing unit).
func MeasurementValidator(units UnitTable) Validator {
	return func(raw string) (string, *Violation) {
		v := strings.TrimSpace(raw)

		if m := comparatorRE.FindStringSubmatch(v); m != nil {
			return m[1] + " " + m[2], nil
		}

		if bareNumberRE.MatchString(v) {
			return "", &Violation{Code: "measurement_unit_missing", Reason: "numeric value has no unit"}
		}

		m := measurementRE.FindStringSubmatch(v)
		if m == nil {
			return "", &Violation{Code: "measurement_format", Reason: "value is not a number with a unit suffix"}
		}

		mag, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return "", &Violation{Code: "measurement_format", Reason: "magnitude is not a valid number"}
		}

		conv, ok := units[strings.ToLower(m[2])]
		if !ok {
			return "", &Violation{
				Code:   "measurement_unit_unknown",
				Reason: fmt.Sprintf("unit %q not in conversion table", m[2]),
			}
		}

		return strconv.FormatFloat(mag*conv.Factor, 'g', -1, 64) + " " + conv.Unit, nil
	}
}

// BooleanValidator accepts the usual spellings and normalizes to "true" or
// "false".
func BooleanValidator() Validator {
	return func(raw string) (string, *Violation) {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "t", "yes", "y", "1":
			return "true", nil
		case "false", "f", "no", "n", "0":
			return "false", nil
		}
		return "", &Violation{Code: "boolean_format", Reason: "value is not a recognized boolean"}
	}
}

// NumericValidator parses a floating-point number and normalizes its
// formatting.
func NumericValidator() Validator {
	return func(raw string) (string, *Violation) {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return "", &Violation{Code: "numeric_format", Reason: "value is not a number"}
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
}

// TextValidator trims surrounding whitespace. Free text has no format to
// violate; encoding problems are caught before dispatch.
func TextValidator() Validator {
	return func(raw string) (string, *Violation) {
		return strings.TrimSpace(raw), nil
	}
}
