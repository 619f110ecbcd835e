// Package medrex provides a fault-tolerant batch ingestion pipeline for
// heterogeneous tabular exports, built for the kind of large CSV record
// dumps delivered by uncoordinated upstream sources.
//
// The package is organized around three cooperating subsystems:
//
//   - Schema and content validation: a [Scanner] reconciles an incoming
//     file's column names against an expected [Schema] using fuzzy name
//     matching, applies per-type field validators to the data, and produces
//     a deterministic [ValidationReport].
//   - Resource-aware chunk planning: a [Planner] partitions very large
//     files into bounded-memory chunks and picks a safe degree of
//     parallelism from a [Resources] snapshot.
//   - Checkpoint and recovery: a [Store] persists per-chunk progress with
//     integrity checksums so multi-hour jobs resume after a crash without
//     reprocessing completed work.
//
// A [Coordinator] ties the three together and drives a [Source] of decoded
// records through cleaning into a [Sink].
//
// # Quick Start
//
//	schema := medrex.Schema{
//	    {Name: "patient_id", Type: medrex.FieldIdentifier},
//	    {Name: "visit_date", Type: medrex.FieldDate},
//	    {Name: "phone", Type: medrex.FieldPhone},
//	    {Name: "glucose", Type: medrex.FieldMeasurement},
//	}
//
//	store := medrex.NewStore(medrex.NewMemoryKV())
//	planner := medrex.NewPlanner(medrex.SystemResources{})
//
//	result, err := medrex.NewCoordinator(source, sink, schema, store, planner).
//	    WithRetries(3).
//	    WithChunkTimeout(10 * time.Minute).
//	    Run(ctx)
//
// # Failures Are Values
//
// Field validators never panic and never abort a scan. Each validator
// returns a normalized value or a [Violation]; the scanner aggregates
// violations into the report with a bounded number of sample offenders per
// column. One bad record never takes down a chunk.
//
// # Resumability
//
// The coordinator checkpoints after every successful batch write. On
// restart it asks the [Store] for the latest checkpoint that passes
// checksum verification, falling back to older checkpoints when a newer
// one is corrupt, and resumes each chunk past the recorded offset. Sinks
// should still be idempotent (UPSERT rather than INSERT) since records
// near a checkpoint boundary may be re-delivered.
//
// # Configuration
//
// Runtime knobs follow the same pattern throughout: a WithXxx builder
// method overrides a default. Deployment-level settings can also be read
// from the environment via [LoadConfig] and applied with
// [Coordinator.WithConfig].
//
// # Checkpoint Backends
//
// The [Store] persists through a narrow [KV] contract. [MemoryKV] suits
// tests and single-shot jobs; the sqlitekv and pgkv subpackages provide
// durable SQLite and PostgreSQL backends.
package medrex
