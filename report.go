package medrex

// MaxViolationSamples caps the number of offending raw values retained per
// column in a report. The true violation count is unbounded; samples are
// bounded so a pathological file cannot blow up memory or logs.
const MaxViolationSamples = 5

// SchemaIssueKind classifies a schema reconciliation problem.
type SchemaIssueKind string

const (
	SchemaMissing   SchemaIssueKind = "missing"
	SchemaAmbiguous SchemaIssueKind = "ambiguous"
)

// SchemaIssue records an expected field that could not be bound to exactly
// one incoming column.
type SchemaIssue struct {
	Kind  SchemaIssueKind `json:"kind"`
	Field string          `json:"field"`

	// Candidates lists the incoming columns that tied for the field, sorted.
	// Empty for missing fields.
	Candidates []string `json:"candidates,omitempty"`
}

// ColumnIssue records recoverable type or format violations observed in one
// column.
type ColumnIssue struct {
	Column       string    `json:"column"`
	ExpectedType FieldType `json:"expected_type"`
	Violations   int64     `json:"violations"`

	// Samples holds at most MaxViolationSamples offending raw values, in
	// encounter order.
	Samples []string `json:"samples,omitempty"`
}

// CriticalError records a condition judged unrecoverable for a column
// without human intervention: garbled encoding, an identifier column where
// no value matches any accepted pattern, or an ambiguous date with no
// configured preferred layout.
type CriticalError struct {
	Column string `json:"column"`
	Reason string `json:"reason"`
	Count  int64  `json:"count"`
}

// ValidationReport is the structured outcome of scanning a file or a chunk.
// Reports are built fresh and never mutated afterwards; re-validation
// produces a new report. Issue ordering follows the expected schema's field
// order, not the incoming file's, so identical input always yields an
// identical report.
type ValidationReport struct {
	SchemaIssues      []SchemaIssue   `json:"schema_issues,omitempty"`
	DataQualityIssues []ColumnIssue   `json:"data_quality_issues,omitempty"`
	CriticalErrors    []CriticalError `json:"critical_errors,omitempty"`
}

// Clean reports whether the scan found nothing at all.
func (r *ValidationReport) Clean() bool {
	return len(r.SchemaIssues) == 0 && len(r.DataQualityIssues) == 0 && len(r.CriticalErrors) == 0
}

// Critical reports whether any unrecoverable condition was found.
func (r *ValidationReport) Critical() bool { return len(r.CriticalErrors) > 0 }

// MergeReports combines per-chunk reports into one. Callers pass reports in
// chunk-index order so the merge is deterministic regardless of which chunk
// finished first; nil entries (chunks with nothing to report) are skipped.
//
// Schema issues are deduplicated by field since every chunk reconciles the
// same columns. Column issues are summed per column with samples re-capped
// at MaxViolationSamples; critical error counts are summed per
// column/reason pair.
func MergeReports(reports ...*ValidationReport) *ValidationReport {
	merged := &ValidationReport{}

	seenSchema := make(map[string]bool)
	colIdx := make(map[string]int)
	critIdx := make(map[string]int)

	for _, r := range reports {
		if r == nil {
			continue
		}
		for _, si := range r.SchemaIssues {
			key := string(si.Kind) + "\x00" + si.Field
			if seenSchema[key] {
				continue
			}
			seenSchema[key] = true
			merged.SchemaIssues = append(merged.SchemaIssues, si)
		}
		for _, ci := range r.DataQualityIssues {
			i, ok := colIdx[ci.Column]
			if !ok {
				colIdx[ci.Column] = len(merged.DataQualityIssues)
				merged.DataQualityIssues = append(merged.DataQualityIssues, ColumnIssue{
					Column:       ci.Column,
					ExpectedType: ci.ExpectedType,
				})
				i = colIdx[ci.Column]
			}
			dst := &merged.DataQualityIssues[i]
			dst.Violations += ci.Violations
			for _, s := range ci.Samples {
				if len(dst.Samples) >= MaxViolationSamples {
					break
				}
				dst.Samples = append(dst.Samples, s)
			}
		}
		for _, ce := range r.CriticalErrors {
			key := ce.Column + "\x00" + ce.Reason
			i, ok := critIdx[key]
			if !ok {
				critIdx[key] = len(merged.CriticalErrors)
				merged.CriticalErrors = append(merged.CriticalErrors, CriticalError{
					Column: ce.Column,
					Reason: ce.Reason,
				})
				i = critIdx[key]
			}
			merged.CriticalErrors[i].Count += ce.Count
		}
	}

	return merged
}

// reportBuilder accumulates violations during a scan and emits a report
// ordered by the expected schema. It enforces the sample cap as violations
// arrive so memory stays bounded no matter how dirty the column is.
type reportBuilder struct {
	schema   Schema
	schemaIs []SchemaIssue
	columns  map[string]*ColumnIssue
	critIdx  map[string]int
	criticls []*CriticalError
}

func newReportBuilder(schema Schema) *reportBuilder {
	return &reportBuilder{
		schema:  schema,
		columns: make(map[string]*ColumnIssue),
		critIdx: make(map[string]int),
	}
}

func (b *reportBuilder) addSchemaIssue(kind SchemaIssueKind, field string, candidates []string) {
	b.schemaIs = append(b.schemaIs, SchemaIssue{Kind: kind, Field: field, Candidates: candidates})
}

func (b *reportBuilder) addViolation(fv FieldViolation) {
	if fv.Violation.Critical {
		b.addCritical(fv.Field, fv.Violation.Reason, 1)
		return
	}

	ci, ok := b.columns[fv.Field]
	if !ok {
		ci = &ColumnIssue{Column: fv.Field, ExpectedType: fv.Type}
		b.columns[fv.Field] = ci
	}
	ci.Violations++
	if len(ci.Samples) < MaxViolationSamples {
		ci.Samples = append(ci.Samples, fv.Value)
	}
}

func (b *reportBuilder) addCritical(column, reason string, count int64) {
	key := column + "\x00" + reason
	i, ok := b.critIdx[key]
	if !ok {
		i = len(b.criticls)
		b.critIdx[key] = i
		b.criticls = append(b.criticls, &CriticalError{Column: column, Reason: reason})
	}
	b.criticls[i].Count += count
}

// importReport seeds the builder from a previously persisted report so a
// chunk resumed mid-way keeps the violations observed before the crash.
func (b *reportBuilder) importReport(r *ValidationReport) {
	if r == nil {
		return
	}
	b.schemaIs = append(b.schemaIs, r.SchemaIssues...)
	for _, ci := range r.DataQualityIssues {
		dst, ok := b.columns[ci.Column]
		if !ok {
			dst = &ColumnIssue{Column: ci.Column, ExpectedType: ci.ExpectedType}
			b.columns[ci.Column] = dst
		}
		dst.Violations += ci.Violations
		for _, s := range ci.Samples {
			if len(dst.Samples) >= MaxViolationSamples {
				break
			}
			dst.Samples = append(dst.Samples, s)
		}
	}
	for _, ce := range r.CriticalErrors {
		b.addCritical(ce.Column, ce.Reason, ce.Count)
	}
}

// escalateColumn converts a column's accumulated recoverable violations
// into a single critical error. Used when a column's content proves
// fundamentally incompatible with its declared type.
func (b *reportBuilder) escalateColumn(column, reason string) {
	var count int64 = 0
	if ci, ok := b.columns[column]; ok {
		count = ci.Violations
		delete(b.columns, column)
	}
	if count == 0 {
		count = 1
	}
	b.addCritical(column, reason, count)
}

// build assembles the report in schema field order.
func (b *reportBuilder) build() *ValidationReport {
	r := &ValidationReport{SchemaIssues: b.schemaIs}

	for _, f := range b.schema {
		if ci, ok := b.columns[f.Name]; ok {
			r.DataQualityIssues = append(r.DataQualityIssues, *ci)
		}
	}
	for _, f := range b.schema {
		for _, ce := range b.criticls {
			if ce.Column == f.Name {
				r.CriticalErrors = append(r.CriticalErrors, *ce)
			}
		}
	}
	// Criticals not tied to a schema field (e.g. unreadable records) go last.
	for _, ce := range b.criticls {
		if !b.schema.has(ce.Column) {
			r.CriticalErrors = append(r.CriticalErrors, *ce)
		}
	}

	return r
}
