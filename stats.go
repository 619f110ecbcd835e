package medrex

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
)

// Stats provides job statistics with thread-safe access.
// Counter fields use atomic operations for safe concurrent access from
// chunk worker goroutines.
type Stats struct {
	scanned     atomic.Int64
	written     atomic.Int64
	dropped     atomic.Int64
	quarantined atomic.Int64
	flagged     atomic.Int64
	violations  atomic.Int64
	retries     atomic.Int64
}

// Scanned returns the number of records read from the source.
func (s *Stats) Scanned() int64 { return s.scanned.Load() }

// Written returns the number of cleaned records delivered to the sink.
func (s *Stats) Written() int64 { return s.written.Load() }

// Dropped returns the number of records discarded for violations.
func (s *Stats) Dropped() int64 { return s.dropped.Load() }

// Quarantined returns the number of records routed to the quarantine sink.
func (s *Stats) Quarantined() int64 { return s.quarantined.Load() }

// Flagged returns the number of violating records passed through flagged.
func (s *Stats) Flagged() int64 { return s.flagged.Load() }

// Violations returns the number of field-level violations observed.
func (s *Stats) Violations() int64 { return s.violations.Load() }

// Retries returns the number of chunk retry attempts.
func (s *Stats) Retries() int64 { return s.retries.Load() }

// LogValue implements slog.LogValuer for structured logging.
func (s *Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("scanned", s.Scanned()),
		slog.Int64("written", s.Written()),
		slog.Int64("dropped", s.Dropped()),
		slog.Int64("quarantined", s.Quarantined()),
		slog.Int64("flagged", s.Flagged()),
		slog.Int64("violations", s.Violations()),
		slog.Int64("retries", s.Retries()),
	)
}

// statsJSON is the JSON representation for marshaling/unmarshaling Stats.
type statsJSON struct {
	Scanned     int64 `json:"scanned"`
	Written     int64 `json:"written"`
	Dropped     int64 `json:"dropped"`
	Quarantined int64 `json:"quarantined"`
	Flagged     int64 `json:"flagged"`
	Violations  int64 `json:"violations"`
	Retries     int64 `json:"retries"`
}

// MarshalJSON implements json.Marshaler for Stats serialization.
func (s *Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(statsJSON{
		Scanned:     s.scanned.Load(),
		Written:     s.written.Load(),
		Dropped:     s.dropped.Load(),
		Quarantined: s.quarantined.Load(),
		Flagged:     s.flagged.Load(),
		Violations:  s.violations.Load(),
		Retries:     s.retries.Load(),
	})
}

// UnmarshalJSON implements json.Unmarshaler for Stats deserialization.
func (s *Stats) UnmarshalJSON(data []byte) error {
	var v statsJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	s.scanned.Store(v.Scanned)
	s.written.Store(v.Written)
	s.dropped.Store(v.Dropped)
	s.quarantined.Store(v.Quarantined)
	s.flagged.Store(v.Flagged)
	s.violations.Store(v.Violations)
	s.retries.Store(v.Retries)
	return nil
}

// Internal increment methods. These return the new value after
// incrementing, which is essential for race-free progress tracking across
// concurrent workers.
func (s *Stats) incScanned(n int64) int64     { return s.scanned.Add(n) }
func (s *Stats) incWritten(n int64) int64     { return s.written.Add(n) }
func (s *Stats) incDropped(n int64) int64     { return s.dropped.Add(n) }
func (s *Stats) incQuarantined(n int64) int64 { return s.quarantined.Add(n) }
func (s *Stats) incFlagged(n int64) int64     { return s.flagged.Add(n) }
func (s *Stats) incViolations(n int64) int64  { return s.violations.Add(n) }
func (s *Stats) incRetries(n int64) int64     { return s.retries.Add(n) }
