package medrex_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bjaus/medrex"
)

var patientSchema = medrex.Schema{
	{Name: "patient_id", Type: medrex.FieldIdentifier},
	{Name: "dob", Type: medrex.FieldDate},
	{Name: "phone", Type: medrex.FieldPhone},
	{Name: "glucose", Type: medrex.FieldMeasurement},
	{Name: "notes", Type: medrex.FieldText},
}

func TestScanner_Clean(t *testing.T) {
	scanner := medrex.NewScanner(patientSchema).
		WithUnitTable(medrex.UnitTable{"mg/dl": {Factor: 0.01, Unit: "g/L"}})

	m := scanner.Match([]string{"PatientID", "DOB", "Phone#", "glucose", "notes"})
	require.Empty(t, m.Missing)
	require.Empty(t, m.Ambiguous)

	t.Run("normalizes and rekeys", func(t *testing.T) {
		cleaned, violations := scanner.Clean(m, medrex.Record{
			"PatientID": "MRN-00123",
			"DOB":       "2023-05-01",
			"Phone#": "555.123.4567",
			"glucose":   "150 mg/dL",
			"notes":     "  stable  ",
		})
		require.Empty(t, violations)
		require.Equal(t, medrex.Record{
			"patient_id": "MRN-00123",
			"dob":        "2023-05-01",
			"phone":      "(555) 123-4567",
			"glucose":    "1.5 g/L",
			"notes":      "stable",
		}, cleaned)
	})

	t.Run("empty cells are absent not violations", func(t *testing.T) {
		cleaned, violations := scanner.Clean(m, medrex.Record{
			"PatientID": "12345",
			"DOB":       "",
			"notes":     "   ",
		})
		require.Empty(t, violations)
		require.Equal(t, medrex.Record{"patient_id": "12345"}, cleaned)
	})

	t.Run("violating field keeps its raw value", func(t *testing.T) {
		cleaned, violations := scanner.Clean(m, medrex.Record{
			"PatientID": "12345",
			"Phone#": "555-123",
		})
		require.Len(t, violations, 1)
		require.Equal(t, "phone", violations[0].Field)
		require.Equal(t, "phone_digits", violations[0].Violation.Code)
		require.Equal(t, "555-123", violations[0].Value)
		require.Equal(t, "555-123", cleaned["phone"])
	})

	t.Run("garbled encoding is critical", func(t *testing.T) {
		_, violations := scanner.Clean(m, medrex.Record{"notes": "caf\xff\xfe"})
		require.Len(t, violations, 1)
		require.Equal(t, "garbled_encoding", violations[0].Violation.Code)
		require.True(t, violations[0].Violation.Critical)
	})
}

func TestScanner_Scan_SampleCap(t *testing.T) {
	scanner := medrex.NewScanner(patientSchema)
	columns := []string{"patient_id", "dob", "phone", "glucose", "notes"}

	records := make([]medrex.Record, 7)
	for i := range records {
		records[i] = medrex.Record{"patient_id": "12345", "phone": "not a phone"}
	}

	report := scanner.Scan(columns, records)
	require.Len(t, report.DataQualityIssues, 1)

	issue := report.DataQualityIssues[0]
	require.Equal(t, "phone", issue.Column)
	require.Equal(t, medrex.FieldPhone, issue.ExpectedType)
	require.Equal(t, int64(7), issue.Violations)
	require.Len(t, issue.Samples, medrex.MaxViolationSamples)
}

func TestScanner_Scan_SchemaIssues(t *testing.T) {
	scanner := medrex.NewScanner(patientSchema)

	// phone is missing entirely; two columns tie for patient_id.
	columns := []string{"patientid", "Patient_ID", "dob", "glucose", "notes"}
	records := []medrex.Record{{"dob": "2023-05-01"}}

	report := scanner.Scan(columns, records)
	require.Equal(t, []medrex.SchemaIssue{
		{Kind: medrex.SchemaAmbiguous, Field: "patient_id", Candidates: []string{"Patient_ID", "patientid"}},
		{Kind: medrex.SchemaMissing, Field: "phone"},
	}, report.SchemaIssues)

	// Unbound fields never produce data-quality issues, even with values
	// present in the file under the candidate columns.
	require.Empty(t, report.DataQualityIssues)
	require.Empty(t, report.CriticalErrors)
}

func TestScanner_Scan_SchemaIssuesFollowSchemaOrder(t *testing.T) {
	scanner := medrex.NewScanner(patientSchema)

	// patient_id is missing and phone is ambiguous; the report lists them
	// in schema order, never grouped by kind.
	columns := []string{"dob", "Phone", "phone_", "glucose", "notes"}

	report := scanner.Scan(columns, nil)
	require.Equal(t, []medrex.SchemaIssue{
		{Kind: medrex.SchemaMissing, Field: "patient_id"},
		{Kind: medrex.SchemaAmbiguous, Field: "phone", Candidates: []string{"Phone", "phone_"}},
	}, report.SchemaIssues)
}

func TestScanner_Scan_IdentifierEscalation(t *testing.T) {
	scanner := medrex.NewScanner(patientSchema)
	columns := []string{"patient_id", "dob", "phone", "glucose", "notes"}

	records := []medrex.Record{
		{"patient_id": "garbage"},
		{"patient_id": "more garbage"},
		{"patient_id": "still garbage"},
	}

	report := scanner.Scan(columns, records)
	require.True(t, report.Critical())
	require.Equal(t, []medrex.CriticalError{{
		Column: "patient_id",
		Reason: "no values match any accepted identifier pattern",
		Count:  3,
	}}, report.CriticalErrors)

	// The escalation replaces the per-value findings.
	require.Empty(t, report.DataQualityIssues)
}

func TestScanner_Scan_IdentifierNotEscalatedWhenAnyValid(t *testing.T) {
	scanner := medrex.NewScanner(patientSchema)
	columns := []string{"patient_id", "dob", "phone", "glucose", "notes"}

	records := []medrex.Record{
		{"patient_id": "garbage"},
		{"patient_id": "12345"},
	}

	report := scanner.Scan(columns, records)
	require.False(t, report.Critical())
	require.Len(t, report.DataQualityIssues, 1)
	require.Equal(t, int64(1), report.DataQualityIssues[0].Violations)
}

func TestScanner_Scan_SampleLimit(t *testing.T) {
	scanner := medrex.NewScanner(patientSchema).WithSampleLimit(1)
	columns := []string{"patient_id", "dob", "phone", "glucose", "notes"}

	records := []medrex.Record{
		{"patient_id": "12345"},
		{"phone": "not a phone"}, // beyond the sample limit
	}

	report := scanner.Scan(columns, records)
	require.True(t, report.Clean())
}

func TestScanner_Scan_Deterministic(t *testing.T) {
	scanner := medrex.NewScanner(patientSchema)
	columns := []string{"patient_id", "glucose", "notes", "dob"}
	records := []medrex.Record{
		{"patient_id": "nope", "glucose": "42", "dob": "01/02/2023"},
		{"patient_id": "also nope", "glucose": "high", "dob": "13/02/2023"},
		{"patient_id": "still nope", "notes": "ok"},
	}

	first, err := json.Marshal(scanner.Scan(columns, records))
	require.NoError(t, err)

	for range 20 {
		again, err := json.Marshal(scanner.Scan(columns, records))
		require.NoError(t, err)
		require.Equal(t, string(first), string(again))
	}
}

func TestScanner_Scan_ReportFollowsSchemaOrder(t *testing.T) {
	scanner := medrex.NewScanner(patientSchema)
	// File order deliberately reversed relative to the schema.
	columns := []string{"notes", "glucose", "phone", "dob", "patient_id"}
	records := []medrex.Record{
		{"phone": "123", "glucose": "42", "dob": "junk", "patient_id": "12345"},
	}

	report := scanner.Scan(columns, records)
	require.Len(t, report.DataQualityIssues, 3)
	require.Equal(t, "dob", report.DataQualityIssues[0].Column)
	require.Equal(t, "phone", report.DataQualityIssues[1].Column)
	require.Equal(t, "glucose", report.DataQualityIssues[2].Column)
}
