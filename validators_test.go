package medrex_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bjaus/medrex"
)

func TestIdentifierValidator(t *testing.T) {
	validate := medrex.IdentifierValidator()

	tests := []struct {
		name  string
		raw   string
		want  string
		fails bool
	}{
		{name: "numeric", raw: "1234567", want: "1234567"},
		{name: "prefixed with hyphen", raw: "MRN-00123", want: "MRN-00123"},
		{name: "prefixed without hyphen", raw: "mrn00123", want: "MRN00123"},
		{name: "uuid normalizes to lower", raw: "550E8400-E29B-41D4-A716-446655440000", want: "550e8400-e29b-41d4-a716-446655440000"},
		{name: "surrounding whitespace trimmed", raw: "  42  ", want: "42"},
		{name: "prefix too long", raw: "ABCDEF-123", fails: true},
		{name: "too few digits after prefix", raw: "AB-12", fails: true},
		{name: "free text", raw: "hello world", fails: true},
		{name: "empty", raw: "", fails: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, v := validate(tt.raw)
			if tt.fails {
				require.NotNil(t, v)
				require.Equal(t, "identifier_pattern", v.Code)
				return
			}
			require.Nil(t, v)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDateValidator(t *testing.T) {
	validate := medrex.DateValidator(nil, "")

	tests := []struct {
		name     string
		raw      string
		want     string
		code     string
		critical bool
	}{
		{name: "iso passes through", raw: "2023-05-01", want: "2023-05-01"},
		{name: "day first is unambiguous when month exceeds 12", raw: "13/02/2023", want: "2023-02-13"},
		{name: "month first is unambiguous when day exceeds 12", raw: "02/26/2023", want: "2023-02-26"},
		{name: "compact form", raw: "20230501", want: "2023-05-01"},
		{name: "long form", raw: "January 2, 2023", want: "2023-01-02"},
		{name: "ambiguous slash date is critical", raw: "01/02/2023", code: "date_ambiguous", critical: true},
		{name: "unparseable", raw: "next tuesday", code: "date_unparseable"},
		{name: "empty", raw: "", code: "date_empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, v := validate(tt.raw)
			if tt.code != "" {
				require.NotNil(t, v)
				require.Equal(t, tt.code, v.Code)
				require.Equal(t, tt.critical, v.Critical)
				return
			}
			require.Nil(t, v)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDateValidator_PreferredLayout(t *testing.T) {
	validate := medrex.DateValidator(nil, "02/01/2006")

	got, v := validate("01/02/2023")
	require.Nil(t, v)
	require.Equal(t, "2023-02-01", got)

	// The preferred layout only resolves values it can actually parse.
	_, v = validate("garbage")
	require.NotNil(t, v)
	require.Equal(t, "date_unparseable", v.Code)
}

func TestPhoneValidator(t *testing.T) {
	validate := medrex.PhoneValidator()

	tests := []struct {
		name  string
		raw   string
		want  string
		fails bool
	}{
		{name: "parenthesized", raw: "(555) 123-4567", want: "(555) 123-4567"},
		{name: "dashed", raw: "555-123-4567", want: "(555) 123-4567"},
		{name: "dotted", raw: "555.123.4567", want: "(555) 123-4567"},
		{name: "bare digits", raw: "5551234567", want: "(555) 123-4567"},
		{name: "spaced", raw: " 555 123 4567 ", want: "(555) 123-4567"},
		{name: "nine digits", raw: "555-123-456", fails: true},
		{name: "eleven digits", raw: "1-555-123-4567", fails: true},
		{name: "empty", raw: "", fails: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, v := validate(tt.raw)
			if tt.fails {
				require.NotNil(t, v)
				require.Equal(t, "phone_digits", v.Code)
				return
			}
			require.Nil(t, v)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestMeasurementValidator(t *testing.T) {
	units := medrex.UnitTable{
		"mg/dl": {Factor: 0.01, Unit: "g/L"},
		"g/l":   {Factor: 1, Unit: "g/L"},
	}
	validate := medrex.MeasurementValidator(units)

	tests := []struct {
		name string
		raw  string
		want string
		code string
	}{
		{name: "unit conversion", raw: "150 mg/dL", want: "1.5 g/L"},
		{name: "already canonical", raw: "1.5 g/L", want: "1.5 g/L"},
		{name: "no space before unit", raw: "150mg/dl", want: "1.5 g/L"},
		{name: "comparator below", raw: "<5", want: "< 5"},
		{name: "comparator above with space", raw: "> 400", want: "> 400"},
		{name: "bare number has no unit", raw: "42", code: "measurement_unit_missing"},
		{name: "unknown unit", raw: "150 furlongs", code: "measurement_unit_unknown"},
		{name: "not a measurement", raw: "pending", code: "measurement_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, v := validate(tt.raw)
			if tt.code != "" {
				require.NotNil(t, v)
				require.Equal(t, tt.code, v.Code)
				return
			}
			require.Nil(t, v)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBooleanValidator(t *testing.T) {
	validate := medrex.BooleanValidator()

	for _, raw := range []string{"true", "T", "Yes", "y", "1"} {
		got, v := validate(raw)
		require.Nil(t, v, "raw=%q", raw)
		require.Equal(t, "true", got, "raw=%q", raw)
	}
	for _, raw := range []string{"false", "F", "No", "n", "0"} {
		got, v := validate(raw)
		require.Nil(t, v, "raw=%q", raw)
		require.Equal(t, "false", got, "raw=%q", raw)
	}

	_, v := validate("maybe")
	require.NotNil(t, v)
	require.Equal(t, "boolean_format", v.Code)
}

func TestNumericValidator(t *testing.T) {
	validate := medrex.NumericValidator()

	got, v := validate(" 3.140 ")
	require.Nil(t, v)
	require.Equal(t, "3.14", got)

	got, v = validate("1e3")
	require.Nil(t, v)
	require.Equal(t, "1000", got)

	_, v = validate("12abc")
	require.NotNil(t, v)
	require.Equal(t, "numeric_format", v.Code)
}

func TestTextValidator(t *testing.T) {
	validate := medrex.TextValidator()

	got, v := validate("  some note  ")
	require.Nil(t, v)
	require.Equal(t, "some note", got)
}
