package medrex

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// State identifies where in its lifecycle a job currently is.
type State string

const (
	StatePlanning      State = "planning"
	StateValidating    State = "validating"
	StateRecovering    State = "recovering"
	StateProcessing    State = "processing"
	StateCheckpointing State = "checkpointing"
	StateComplete      State = "complete"
	StateFailed        State = "failed"
)

// Status is a job's terminal outcome.
type Status string

const (
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// RunResult summarizes a finished run: the terminal status, the merged
// validation report (pre-flight plus all chunk reports, in chunk order),
// the stats, and the plan the job ran under.
type RunResult struct {
	JobID  string
	Status Status
	Report *ValidationReport
	Stats  *Stats
	Plan   ChunkPlan
}

// Coordinator orchestrates a single ingestion job: plan chunks, run the
// pre-flight quality scan, process chunks across workers with
// checkpointing, and resume past completed work on restart.
//
// Each worker owns a disjoint set of chunk indexes, so checkpoint writes
// are single-writer per chunk and recovery reads happen only at worker
// startup, before the worker claims its first chunk.
type Coordinator struct {
	source  Source
	sink    Sink
	schema  Schema
	store   *Store
	planner *Planner
	scanner *Scanner
	logger  *slog.Logger

	jobID string

	// Configuration overrides (nil means use the default).
	workers        *int
	retries        *int
	chunkTimeout   *time.Duration
	retryBackoff   *time.Duration
	writeBatchSize *int
	reportInterval *int

	action           Action
	escalateCritical bool

	// Optional capabilities (detected from source and sink).
	quarantine Quarantiner
	starter    Starter
	stopper    Stopper
	progress   ProgressReporter

	state atomic.Value // State
}

// NewCoordinator creates a coordinator for one source/sink pair. Optional
// interfaces ([Starter], [Stopper], [ProgressReporter] on the source or
// sink, [Quarantiner] on the sink) are auto-detected.
func NewCoordinator(source Source, sink Sink, schema Schema, store *Store, planner *Planner) *Coordinator {
	c := &Coordinator{
		source:  source,
		sink:    sink,
		schema:  schema,
		store:   store,
		planner: planner,
		scanner: NewScanner(schema),
		logger:  slog.Default(),
		jobID:   uuid.NewString(),
		action:  ActionDrop,
	}

	for _, owner := range []any{source, sink} {
		if s, ok := owner.(Starter); ok && c.starter == nil {
			c.starter = s
		}
		if s, ok := owner.(Stopper); ok && c.stopper == nil {
			c.stopper = s
		}
		if p, ok := owner.(ProgressReporter); ok && c.progress == nil {
			c.progress = p
		}
	}
	if q, ok := sink.(Quarantiner); ok {
		c.quarantine = q
	}

	return c
}

// WithJobID sets the job identifier used to namespace chunk checkpoints.
// Reuse the same ID across restarts of the same file so recovery finds the
// previous run's checkpoints.
func (c *Coordinator) WithJobID(id string) *Coordinator {
	if id != "" {
		c.jobID = id
	}
	return c
}

// WithWorkers overrides the planner's parallelism decision.
// Values less than 1 are ignored.
func (c *Coordinator) WithWorkers(n int) *Coordinator {
	if n >= 1 {
		c.workers = &n
	}
	return c
}

// WithRetries sets how many times a chunk is retried from its last
// checkpoint before the job fails. Negative values are ignored.
func (c *Coordinator) WithRetries(n int) *Coordinator {
	if n >= 0 {
		c.retries = &n
	}
	return c
}

// WithChunkTimeout bounds one attempt at one chunk. A chunk exceeding its
// timeout is a recoverable processing error, retried like any other.
// Zero disables the timeout; negative values are ignored.
func (c *Coordinator) WithChunkTimeout(d time.Duration) *Coordinator {
	if d >= 0 {
		c.chunkTimeout = &d
	}
	return c
}

// WithRetryBackoff sets the pause between chunk retry attempts.
func (c *Coordinator) WithRetryBackoff(d time.Duration) *Coordinator {
	if d >= 0 {
		c.retryBackoff = &d
	}
	return c
}

// WithWriteBatchSize sets how many cleaned records are buffered per sink
// write. Each successful write is followed by a checkpoint.
// Values less than 1 are ignored.
func (c *Coordinator) WithWriteBatchSize(n int) *Coordinator {
	if n >= 1 {
		c.writeBatchSize = &n
	}
	return c
}

// WithReportInterval overrides how often progress is reported (in records
// written). Values less than 1 are ignored.
func (c *Coordinator) WithReportInterval(n int) *Coordinator {
	if n >= 1 {
		c.reportInterval = &n
	}
	return c
}

// WithViolationAction sets what happens to records carrying recoverable
// violations: drop, quarantine, or flag.
func (c *Coordinator) WithViolationAction(a Action) *Coordinator {
	switch a {
	case ActionDrop, ActionQuarantine, ActionFlag:
		c.action = a
	}
	return c
}

// WithEscalateCritical makes a critical violation fail the whole chunk
// instead of dropping the offending record.
func (c *Coordinator) WithEscalateCritical(on bool) *Coordinator {
	c.escalateCritical = on
	return c
}

// WithScanner replaces the default scanner, carrying custom date layouts,
// unit tables, or sampling limits.
func (c *Coordinator) WithScanner(s *Scanner) *Coordinator {
	if s != nil {
		c.scanner = s
	}
	return c
}

// WithLogger sets the structured logger for the run.
func (c *Coordinator) WithLogger(l *slog.Logger) *Coordinator {
	if l != nil {
		c.logger = l
	}
	return c
}

// WithConfig applies environment-derived settings. Zero values leave the
// corresponding knob untouched.
func (c *Coordinator) WithConfig(cfg *Config) *Coordinator {
	if cfg == nil {
		return c
	}
	if cfg.Workers > 0 {
		c.WithWorkers(cfg.Workers)
	}
	if cfg.Retries > 0 {
		c.WithRetries(cfg.Retries)
	}
	if cfg.ChunkTimeout > 0 {
		c.WithChunkTimeout(cfg.ChunkTimeout)
	}
	if cfg.RetryBackoff > 0 {
		c.WithRetryBackoff(cfg.RetryBackoff)
	}
	if cfg.WriteBatchSize > 0 {
		c.WithWriteBatchSize(cfg.WriteBatchSize)
	}
	if cfg.ViolationAction != "" {
		c.WithViolationAction(Action(cfg.ViolationAction))
	}
	if cfg.EscalateCritical {
		c.WithEscalateCritical(true)
	}
	if cfg.ScanSampleLimit > 0 {
		c.scanner.WithSampleLimit(cfg.ScanSampleLimit)
	}
	if cfg.PreferredDateLayout != "" {
		c.scanner.WithPreferredDateLayout(cfg.PreferredDateLayout)
	}
	return c
}

// State returns the job's current lifecycle state.
func (c *Coordinator) State() State {
	if s, ok := c.state.Load().(State); ok {
		return s
	}
	return StatePlanning
}

func (c *Coordinator) setState(s State) { c.state.Store(s) }

func (c *Coordinator) chunkID(idx int64) string {
	return fmt.Sprintf("%s/chunk-%06d", c.jobID, idx)
}

func (c *Coordinator) resolveWorkers(plan ChunkPlan) int {
	n := plan.Workers
	if c.workers != nil {
		n = *c.workers
	}
	if int64(n) > plan.ChunkCount {
		n = int(plan.ChunkCount)
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (c *Coordinator) resolveRetries() int {
	if c.retries != nil {
		return *c.retries
	}
	return DefaultRetries
}

func (c *Coordinator) resolveChunkTimeout() time.Duration {
	if c.chunkTimeout != nil {
		return *c.chunkTimeout
	}
	return DefaultChunkTimeout
}

func (c *Coordinator) resolveRetryBackoff() time.Duration {
	if c.retryBackoff != nil {
		return *c.retryBackoff
	}
	return DefaultRetryBackoff
}

func (c *Coordinator) resolveWriteBatchSize() int {
	if c.writeBatchSize != nil {
		return *c.writeBatchSize
	}
	return DefaultWriteBatchSize
}

func (c *Coordinator) resolveReportInterval() int {
	if c.reportInterval != nil {
		return *c.reportInterval
	}
	if c.progress != nil {
		if n := c.progress.ReportInterval(); n >= 1 {
			return n
		}
	}
	return DefaultReportInterval
}

// Run executes the job. Cancellation of ctx is observed between chunks:
// in-flight chunks run to completion (or their own timeout) before the
// coordinator stops dispatching, so progress up to the last checkpoint
// survives a shutdown.
func (c *Coordinator) Run(ctx context.Context) (*RunResult, error) {
	stats := &Stats{}
	result := &RunResult{JobID: c.jobID, Stats: stats}

	if c.starter != nil {
		ctx = c.starter.Start(ctx)
	}

	fail := func(err error) (*RunResult, error) {
		c.setState(StateFailed)
		result.Status = StatusFailed
		c.logger.ErrorContext(ctx, "job failed", "job_id", c.jobID, "stats", stats, "error", err)
		if c.stopper != nil {
			c.stopper.Stop(ctx, result, err)
		}
		return result, err
	}

	c.setState(StatePlanning)
	meta, err := c.source.Metadata(ctx)
	if err != nil {
		return fail(fmt.Errorf("read file metadata: %w", err))
	}
	columns, err := c.source.Columns(ctx)
	if err != nil {
		return fail(fmt.Errorf("read columns: %w", err))
	}
	plan, err := c.planner.Plan(ctx, meta)
	if err != nil {
		return fail(fmt.Errorf("plan chunks: %w", err))
	}
	result.Plan = plan

	c.setState(StateValidating)
	preflight := c.scanner.Scan(columns, meta.SampleRecords)
	result.Report = preflight
	if preflight.Critical() && c.escalateCritical {
		return fail(fmt.Errorf("pre-flight scan found %d critical errors", len(preflight.CriticalErrors)))
	}

	if plan.ChunkCount == 0 {
		c.setState(StateComplete)
		result.Status = StatusComplete
		if c.stopper != nil {
			c.stopper.Stop(ctx, result, nil)
		}
		return result, nil
	}

	match := c.scanner.Match(columns)
	workers := c.resolveWorkers(plan)
	chunkReports := make([]*ValidationReport, plan.ChunkCount)

	c.logger.InfoContext(ctx, "job starting",
		"job_id", c.jobID,
		"records", meta.TotalRecords,
		"chunks", plan.ChunkCount,
		"chunk_size", plan.ChunkSize,
		"workers", workers,
	)

	c.setState(StateRecovering)
	group, groupCtx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		group.Go(func() error {
			return c.runWorker(ctx, groupCtx, w, workers, plan, meta.TotalRecords, match, chunkReports, stats)
		})
	}
	runErr := group.Wait()

	if runErr != nil {
		return fail(runErr)
	}

	merged := make([]*ValidationReport, 0, len(chunkReports)+1)
	merged = append(merged, preflight)
	merged = append(merged, chunkReports...)
	result.Report = MergeReports(merged...)

	c.setState(StateComplete)
	result.Status = StatusComplete
	c.logger.InfoContext(ctx, "job complete", "job_id", c.jobID, "stats", stats)
	if c.stopper != nil {
		c.stopper.Stop(ctx, result, nil)
	}
	return result, nil
}

// runWorker processes the disjoint set of chunks owned by worker w: chunk
// indexes congruent to w modulo the worker count. Recovery reads all happen
// up front, before the first chunk is claimed.
func (c *Coordinator) runWorker(
	ctx, groupCtx context.Context,
	w, workers int,
	plan ChunkPlan,
	totalRecords int64,
	match Match,
	chunkReports []*ValidationReport,
	stats *Stats,
) error {
	resume := make(map[int64]*Checkpoint)
	for i := int64(w); i < plan.ChunkCount; i += int64(workers) {
		cp, err := c.store.Latest(ctx, c.chunkID(i))
		if err != nil {
			return fmt.Errorf("recover chunk %d: %w", i, err)
		}
		if cp != nil {
			resume[i] = cp
		}
	}

	for i := int64(w); i < plan.ChunkCount; i += int64(workers) {
		// Cancellation is observed here, between chunks, never mid-chunk.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-groupCtx.Done():
			return groupCtx.Err()
		default:
		}

		report, err := c.runChunk(ctx, i, plan, totalRecords, match, resume[i], stats)
		if err != nil {
			return err
		}
		// Disjoint index: no other worker touches chunkReports[i].
		chunkReports[i] = report
	}

	return nil
}

// runChunk drives one chunk through its retry budget. Each attempt resumes
// from the freshest verified checkpoint so completed work is never redone.
func (c *Coordinator) runChunk(
	ctx context.Context,
	idx int64,
	plan ChunkPlan,
	totalRecords int64,
	match Match,
	cp *Checkpoint,
	stats *Stats,
) (*ValidationReport, error) {
	start := idx * plan.ChunkSize
	end := start + plan.ChunkSize
	if end > totalRecords {
		end = totalRecords
	}

	resumeFrom := start
	var prior *ProcessingMetadata
	if cp != nil {
		if cp.Offset >= end {
			// Chunk finished in a previous run; nothing to redo.
			return cp.Metadata.Validation, nil
		}
		if cp.Offset > resumeFrom {
			resumeFrom = cp.Offset
		}
		prior = &cp.Metadata
	}

	retries := c.resolveRetries()
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			stats.incRetries(1)
			c.logger.WarnContext(ctx, "retrying chunk",
				"job_id", c.jobID, "chunk", idx, "attempt", attempt, "error", lastErr)

			select {
			case <-time.After(c.resolveRetryBackoff()):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

			fresh, err := c.store.Latest(ctx, c.chunkID(idx))
			if err != nil {
				return nil, fmt.Errorf("recover chunk %d before retry: %w", idx, err)
			}
			if fresh != nil && fresh.Offset > resumeFrom {
				resumeFrom = fresh.Offset
				prior = &fresh.Metadata
			}
		}

		report, err := c.processChunk(ctx, idx, start, resumeFrom, end, match, prior, stats)
		if err == nil {
			return report, nil
		}
		lastErr = err
	}

	return nil, &ChunkError{Chunk: int(idx), Attempts: retries + 1, Err: lastErr}
}

// processChunk is one attempt at one chunk: read records from the resume
// offset, clean them, write batches to the sink, and checkpoint after every
// successful write. The chunk runs on its own context so a job-level
// cancellation never kills it mid-flight; only the per-chunk timeout can.
//
// prior is the checkpoint metadata this attempt resumes from; its report
// and error counts seed this attempt's so every checkpoint stays cumulative
// for the whole chunk, not just the records since the last resume.
func (c *Coordinator) processChunk(
	parent context.Context,
	idx, start, from, end int64,
	match Match,
	prior *ProcessingMetadata,
	stats *Stats,
) (*ValidationReport, error) {
	ctx := context.WithoutCancel(parent)
	if timeout := c.resolveChunkTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	builder := newReportBuilder(c.schema)
	errCounts := make(map[string]int64)
	if prior != nil {
		builder.importReport(prior.Validation)
		for k, v := range prior.ErrorCounts {
			errCounts[k] = v
		}
	}

	chunkID := c.chunkID(idx)
	batchSize := c.resolveWriteBatchSize()
	reportEvery := int64(c.resolveReportInterval())

	var batch []Record
	offset := from

	flush := func(upTo int64) error {
		if len(batch) > 0 {
			if err := c.sink.Write(ctx, batch); err != nil {
				return fmt.Errorf("write batch: %w", err)
			}
			written := stats.incWritten(int64(len(batch)))
			prev := written - int64(len(batch))
			if c.progress != nil && written/reportEvery > prev/reportEvery {
				c.progress.OnProgress(ctx, stats)
			}
			batch = nil
		}

		c.setState(StateCheckpointing)
		defer c.setState(StateProcessing)
		counts := make(map[string]int64, len(errCounts))
		for k, v := range errCounts {
			counts[k] = v
		}
		if _, err := c.store.Save(ctx, chunkID, upTo, ProcessingMetadata{
			RecordsProcessed: upTo - start,
			Validation:       builder.build(),
			ErrorCounts:      counts,
		}); err != nil {
			return fmt.Errorf("checkpoint chunk %d: %w", idx, err)
		}
		return nil
	}

	c.setState(StateProcessing)
	for rec, err := range c.source.Records(ctx, from, end-from) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("chunk %d attempt aborted: %w", idx, ctxErr)
		}
		if err != nil {
			// Transient read failure: recoverable processing error, retried
			// from the last checkpoint.
			return nil, fmt.Errorf("read record at offset %d: %w", offset, err)
		}

		stats.incScanned(1)
		offset++

		cleaned, violations := c.scanner.Clean(match, rec)
		if len(violations) > 0 {
			stats.incViolations(int64(len(violations)))
			critical := false
			for _, fv := range violations {
				builder.addViolation(fv)
				if fv.Violation.Critical {
					critical = true
				}
			}

			if critical {
				errCounts["critical"]++
				if c.escalateCritical {
					return nil, fmt.Errorf("chunk %d: critical violation at offset %d", idx, offset-1)
				}
				stats.incDropped(1)
				continue
			}

			errCounts["violation"]++
			switch c.action {
			case ActionFlag:
				cleaned[FlagColumn] = "suspect"
				stats.incFlagged(1)
			case ActionQuarantine:
				if c.quarantine != nil {
					if err := c.quarantine.Quarantine(ctx, cleaned, violations); err != nil {
						return nil, fmt.Errorf("quarantine record at offset %d: %w", offset-1, err)
					}
					stats.incQuarantined(1)
				} else {
					stats.incDropped(1)
				}
				continue
			default:
				stats.incDropped(1)
				continue
			}
		}

		batch = append(batch, cleaned)
		if len(batch) >= batchSize {
			if err := flush(offset); err != nil {
				return nil, err
			}
		}
	}

	if err := flush(offset); err != nil {
		return nil, err
	}
	return builder.build(), nil
}
