package medrex

import "context"

// Starter is called before any planning or processing begins. Implement it
// on a [Source] or [Sink] to perform setup work or enrich the context; the
// returned context is used for the entire job.
//
// Example:
//
//	func (s *ExportSource) Start(ctx context.Context) context.Context {
//	    s.startedAt = time.Now()
//	    slog.InfoContext(ctx, "ingestion starting", "file", s.path)
//	    return ctx
//	}
//
// Start is called exactly once per run.
type Starter interface {
	Start(ctx context.Context) context.Context
}

// Stopper is called after a run completes, regardless of outcome.
// Implement it on a [Source] or [Sink] for cleanup, final logging, or
// metrics.
//
// The result carries the terminal status, merged report, and stats; err is
// the same error returned by [Coordinator.Run] (nil on success).
type Stopper interface {
	Stop(ctx context.Context, result *RunResult, err error)
}

// ReportInterval controls how often progress is reported, measured in
// records written. It is embedded in [ProgressReporter]; implementing
// ProgressReporter automatically satisfies it.
type ReportInterval interface {
	// ReportInterval returns how often to call OnProgress (in records
	// written).
	ReportInterval() int
}

// ProgressReporter receives periodic progress updates while chunks are
// processing. Implement it on a [Source] or [Sink] to log throughput or
// feed a dashboard.
//
// OnProgress is called each time the cumulative written count crosses a
// ReportInterval boundary. The Stats snapshot is safe to read
// concurrently. Avoid blocking I/O here; it runs on a chunk worker
// goroutine.
type ProgressReporter interface {
	ReportInterval

	OnProgress(ctx context.Context, stats *Stats)
}
