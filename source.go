package medrex

import (
	"context"
	"iter"
)

// Record is a single decoded row, keyed by column name. Sources key records
// by the incoming file's column names; the coordinator re-keys cleaned
// records by the canonical schema field names before handing them to the
// sink.
type Record map[string]string

// FileMetadata describes a file before chunking. It is derived once per
// file by the source (typically during a cheap pre-scan) and read-only
// afterwards.
type FileMetadata struct {
	// TotalRecords is the number of data records in the file.
	TotalRecords int64

	// SampleRecords is a small set of representative records used for the
	// pre-flight quality scan.
	SampleRecords []Record

	// AvgRecordBytes is the average encoded size of a record. Must be
	// positive for any file with records; the planner rejects zero or
	// negative values as a configuration error.
	AvgRecordBytes float64
}

// Source supplies a decoded, column-labeled record stream. Encoding
// detection, delimiter sniffing, and byte-level preprocessing happen
// upstream of this interface; the pipeline consumes only clean text.
//
// Records must be stable across calls: the record at a given offset is
// always the same record, so resuming from a checkpoint offset never
// re-reads completed work.
type Source interface {
	// Columns returns the file's declared column names, in file order.
	Columns(ctx context.Context) ([]string, error)

	// Metadata returns the file's record count and size profile.
	Metadata(ctx context.Context) (FileMetadata, error)

	// Records yields up to limit records starting at the given absolute
	// record offset. Yielded errors represent unreadable records; the
	// coordinator counts them and moves on or retries the chunk depending
	// on configuration.
	Records(ctx context.Context, offset, limit int64) iter.Seq2[Record, error]
}

// Sink receives batches of cleaned, canonically-keyed records.
//
// Writes should be idempotent: records near a checkpoint boundary may be
// re-delivered after a crash/resume cycle.
type Sink interface {
	Write(ctx context.Context, batch []Record) error
}

// Quarantiner is an optional capability on a [Sink]. When the violation
// action is [ActionQuarantine] and the sink implements Quarantiner,
// records with recoverable violations are routed here instead of being
// dropped.
type Quarantiner interface {
	Quarantine(ctx context.Context, rec Record, violations []FieldViolation) error
}
