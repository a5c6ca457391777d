package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Stats counts cache outcomes for the lifetime of the process.
type Stats struct {
	hits          atomic.Int64
	misses        atomic.Int64
	fills         atomic.Int64
	failures      atomic.Int64
	storeFailures atomic.Int64
}

type StatsSnapshot struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Fills         int64 `json:"fills"`
	Failures      int64 `json:"failures"`
	StoreFailures int64 `json:"store_failures"`
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) Hit()          { s.hits.Add(1) }
func (s *Stats) Miss()         { s.misses.Add(1) }
func (s *Stats) Fill()         { s.fills.Add(1) }
func (s *Stats) Failure()      { s.failures.Add(1) }
func (s *Stats) StoreFailure() { s.storeFailures.Add(1) }

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		Fills:         s.fills.Load(),
		Failures:      s.failures.Load(),
		StoreFailures: s.storeFailures.Load(),
	}
}

// Report logs a snapshot every interval until ctx is cancelled.
func (s *Stats) Report(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	for {
		select {
		case <-time.After(interval):
			snap := s.Snapshot()
			log.Info().
				Int64("hits", snap.Hits).
				Int64("misses", snap.Misses).
				Int64("fills", snap.Fills).
				Int64("failures", snap.Failures).
				Int64("storeFailures", snap.StoreFailures).
				Msg("cache stats")
		case <-ctx.Done():
			log.Debug().Msg("stopping stats reporter")
			return
		}
	}
}
