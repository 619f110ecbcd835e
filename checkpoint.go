package medrex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// ProcessingMetadata is the state snapshot persisted alongside a
// checkpoint's offset.
type ProcessingMetadata struct {
	// RecordsProcessed counts records completed within the chunk.
	RecordsProcessed int64 `json:"records_processed"`

	// Validation is the chunk's report as of the checkpoint.
	Validation *ValidationReport `json:"validation,omitempty"`

	// ErrorCounts tallies failures by kind (violation, critical, write, ...).
	ErrorCounts map[string]int64 `json:"error_counts,omitempty"`
}

// Checkpoint is a durable snapshot of one chunk's progress. Checkpoints
// are created and mutated exclusively by [Store]; everything else only
// reads the latest valid one.
type Checkpoint struct {
	// ChunkID identifies the chunk, namespaced by job.
	ChunkID string `json:"chunk_id"`

	// Offset is the absolute record offset one past the last processed
	// record. Monotonically non-decreasing across checkpoints for the same
	// chunk.
	Offset int64 `json:"offset"`

	Metadata  ProcessingMetadata `json:"metadata"`
	Timestamp time.Time          `json:"timestamp"`

	// Checksum is a SHA-256 over the chunk ID, offset, and metadata. A
	// checkpoint whose stored checksum does not match the recomputation is
	// never trusted.
	Checksum string `json:"checksum"`
}

// checksum computes the integrity hash over the fields that matter for
// resumption. The metadata's JSON encoding is deterministic (encoding/json
// sorts map keys), so equal state always hashes equally.
func (c Checkpoint) checksum() (string, error) {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(c.ChunkID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(c.Offset, 10)))
	h.Write([]byte{0})
	h.Write(meta)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes the checkpoint's checksum and checks internal
// consistency. A checkpoint failing Verify is never returned by
// [Store.Latest].
func Verify(c Checkpoint) bool {
	if c.Offset < 0 || c.Metadata.RecordsProcessed < 0 {
		return false
	}
	for _, n := range c.Metadata.ErrorCounts {
		if n < 0 {
			return false
		}
	}
	sum, err := c.checksum()
	if err != nil {
		return false
	}
	return sum == c.Checksum
}

// Store persists and retrieves chunk checkpoints over a [KV] medium.
//
// Writes are keyed by chunk ID and the coordinator guarantees a single
// writer per chunk, so the store only needs a per-key lock to stay correct
// under concurrent workers. A Store's lifetime is scoped to a job; it is
// explicitly constructed and passed in, never process-global.
type Store struct {
	kv     KV
	retain int
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a checkpoint store over the given KV medium.
func NewStore(kv KV) *Store {
	return &Store{
		kv:     kv,
		retain: DefaultRetainedCheckpoints,
		logger: slog.Default(),
		locks:  make(map[string]*sync.Mutex),
	}
}

// WithRetention sets how many checkpoints to keep per chunk. Values below
// 1 are ignored.
func (s *Store) WithRetention(n int) *Store {
	if n >= 1 {
		s.retain = n
	}
	return s
}

// WithLogger sets the logger used for best-effort prune warnings.
func (s *Store) WithLogger(l *slog.Logger) *Store {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *Store) lockFor(chunkID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[chunkID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chunkID] = l
	}
	return l
}

// Save computes the checksum, persists the checkpoint, and prunes history
// beyond the retention limit. Pruning is best-effort: a prune failure is
// logged and never fails the save.
//
// Save enforces offset monotonicity per chunk: a checkpoint that would
// move the offset backwards returns [ErrOffsetRegression].
func (s *Store) Save(ctx context.Context, chunkID string, offset int64, meta ProcessingMetadata) (Checkpoint, error) {
	lock := s.lockFor(chunkID)
	lock.Lock()
	defer lock.Unlock()

	if prev, err := s.latestRaw(ctx, chunkID); err != nil {
		return Checkpoint{}, fmt.Errorf("read previous checkpoint for %s: %w", chunkID, err)
	} else if prev != nil && offset < prev.Offset {
		return Checkpoint{}, fmt.Errorf("%w: %s offset %d < %d", ErrOffsetRegression, chunkID, offset, prev.Offset)
	}

	cp := Checkpoint{
		ChunkID:   chunkID,
		Offset:    offset,
		Metadata:  meta,
		Timestamp: time.Now().UTC(),
	}
	sum, err := cp.checksum()
	if err != nil {
		return Checkpoint{}, fmt.Errorf("checksum checkpoint for %s: %w", chunkID, err)
	}
	cp.Checksum = sum

	data, err := json.Marshal(cp)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("encode checkpoint for %s: %w", chunkID, err)
	}
	if err := s.kv.Put(ctx, chunkID, data); err != nil {
		return Checkpoint{}, fmt.Errorf("persist checkpoint for %s: %w", chunkID, err)
	}

	if err := s.kv.Prune(ctx, chunkID, s.retain); err != nil {
		s.logger.WarnContext(ctx, "checkpoint prune failed", "chunk_id", chunkID, "error", err)
	}

	return cp, nil
}

// latestRaw decodes the most recent stored checkpoint without verifying it.
func (s *Store) latestRaw(ctx context.Context, chunkID string) (*Checkpoint, error) {
	vals, err := s.kv.Recent(ctx, chunkID, 1)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	var cp Checkpoint
	if err := json.Unmarshal(vals[0], &cp); err != nil {
		// Undecodable newest entry: monotonicity cannot be checked against
		// it, and Latest will skip it anyway.
		return nil, nil //nolint:nilerr // corrupt entries are handled by Latest's fallback
	}
	return &cp, nil
}

// Latest returns the most recent checkpoint for the chunk that passes
// [Verify], falling back through retained history when newer entries are
// corrupt. It returns (nil, nil) when no checkpoint verifies, which forces
// the chunk to restart from the beginning.
func (s *Store) Latest(ctx context.Context, chunkID string) (*Checkpoint, error) {
	vals, err := s.kv.Recent(ctx, chunkID, s.retain)
	if err != nil {
		return nil, fmt.Errorf("read checkpoints for %s: %w", chunkID, err)
	}

	for _, data := range vals {
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable checkpoint", "chunk_id", chunkID, "error", err)
			continue
		}
		if !Verify(cp) {
			s.logger.WarnContext(ctx, "skipping checkpoint failing verification", "chunk_id", chunkID, "offset", cp.Offset)
			continue
		}
		return &cp, nil
	}

	return nil, nil
}
