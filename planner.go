package medrex

import (
	"context"
	"fmt"
)

// ChunkPlan is the immutable work-sizing decision for one file. It holds
// the invariant
//
//	ChunkSize × AvgRecordBytes × Workers ≤ memory budget
//
// so the whole fleet of workers fits in the budget with room for the
// planner's safety factor.
type ChunkPlan struct {
	// ChunkSize is the number of records per chunk.
	ChunkSize int64

	// ChunkCount is ceil(TotalRecords / ChunkSize). Zero for an empty
	// file: no work scheduled, not an error.
	ChunkCount int64

	// Workers is the safe degree of chunk parallelism.
	Workers int

	// MemoryPerChunkBytes estimates the raw bytes held by one in-flight
	// chunk.
	MemoryPerChunkBytes float64
}

// Resources is the system-resource query the planner consults once per
// planning cycle. Implementations live at the process boundary;
// [SystemResources] reads the host, [StaticResources] pins values for
// tests and constrained deployments.
type Resources interface {
	AvailableMemoryBytes(ctx context.Context) (uint64, error)
	CPUCount(ctx context.Context) (int, error)
}

// StaticResources is a fixed Resources snapshot.
type StaticResources struct {
	Memory uint64
	CPUs   int
}

func (r StaticResources) AvailableMemoryBytes(context.Context) (uint64, error) { return r.Memory, nil }
func (r StaticResources) CPUCount(context.Context) (int, error)                { return r.CPUs, nil }

// Planner computes bounded-memory, bounded-parallelism chunk plans from
// file metadata and a resource snapshot.
type Planner struct {
	res Resources

	safetyFactor   float64
	maxChunkSize   int64
	memoryFraction float64
}

// NewPlanner creates a Planner over the given resource query.
func NewPlanner(res Resources) *Planner {
	return &Planner{
		res:            res,
		safetyFactor:   DefaultSafetyFactor,
		maxChunkSize:   DefaultMaxChunkSize,
		memoryFraction: DefaultMemoryFraction,
	}
}

// WithSafetyFactor sets the headroom multiplier applied to raw record
// bytes, reserving space for in-flight transformation overhead. Values
// below 1 are ignored.
func (p *Planner) WithSafetyFactor(f float64) *Planner {
	if f >= 1 {
		p.safetyFactor = f
	}
	return p
}

// WithMaxChunkSize sets the hard cap on records per chunk. A generous
// memory budget never pushes chunks past this. Values below 1 are ignored.
func (p *Planner) WithMaxChunkSize(n int64) *Planner {
	if n >= 1 {
		p.maxChunkSize = n
	}
	return p
}

// WithMemoryFraction sets the portion of available memory treated as the
// budget. Values outside (0, 1] are ignored.
func (p *Planner) WithMemoryFraction(f float64) *Planner {
	if f > 0 && f <= 1 {
		p.memoryFraction = f
	}
	return p
}

// Plan computes the chunk plan for one file. The resource snapshot is
// queried once; the plan is immutable afterwards.
//
// An empty file yields a zero-chunk plan and no error. A non-empty file
// with a non-positive average record size is a configuration error
// ([ErrInvalidMetadata]), caught here before any work is scheduled.
func (p *Planner) Plan(ctx context.Context, meta FileMetadata) (ChunkPlan, error) {
	if meta.TotalRecords == 0 {
		return ChunkPlan{}, nil
	}
	if meta.AvgRecordBytes <= 0 {
		return ChunkPlan{}, fmt.Errorf("planning %d records: %w", meta.TotalRecords, ErrInvalidMetadata)
	}

	avail, err := p.res.AvailableMemoryBytes(ctx)
	if err != nil {
		return ChunkPlan{}, fmt.Errorf("query available memory: %w", err)
	}
	cpus, err := p.res.CPUCount(ctx)
	if err != nil {
		return ChunkPlan{}, fmt.Errorf("query cpu count: %w", err)
	}

	budget := float64(avail) * p.memoryFraction

	chunkSize := int64(budget / (meta.AvgRecordBytes * p.safetyFactor))
	if chunkSize < 1 {
		chunkSize = 1
	}
	if chunkSize > p.maxChunkSize {
		chunkSize = p.maxChunkSize
	}
	if chunkSize > meta.TotalRecords {
		chunkSize = meta.TotalRecords
	}

	chunkCount := (meta.TotalRecords + chunkSize - 1) / chunkSize

	// One core stays with the host process; each worker needs memory for
	// two chunks (current plus next prefetch).
	perWorker := float64(chunkSize) * meta.AvgRecordBytes * 2
	workers := int(budget / perWorker)
	if workers > cpus-1 {
		workers = cpus - 1
	}
	if int64(workers) > chunkCount {
		workers = int(chunkCount)
	}
	if workers < 1 {
		workers = 1
	}

	return ChunkPlan{
		ChunkSize:           chunkSize,
		ChunkCount:          chunkCount,
		Workers:             workers,
		MemoryPerChunkBytes: float64(chunkSize) * meta.AvgRecordBytes,
	}, nil
}
