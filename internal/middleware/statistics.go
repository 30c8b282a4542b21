package middleware

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/benjaminschubert/offcache/internal/cacheproxy"
)

// Statistics count request outcomes since the cache was created. They are
// saved on shutdown and loaded back on start.
type Statistics struct {
	hits        atomic.Uint64
	misses      atomic.Uint64
	uncacheable atomic.Uint64
	bypassed    atomic.Uint64
	offline     atomic.Uint64
	degraded    atomic.Uint64
	errors      atomic.Uint64
}

type StatisticsSnapshot struct {
	Hits        uint64 `json:"hits"        yaml:"hits"`
	Misses      uint64 `json:"misses"      yaml:"misses"`
	Uncacheable uint64 `json:"uncacheable" yaml:"uncacheable"`
	Bypassed    uint64 `json:"bypassed"    yaml:"bypassed"`
	Offline     uint64 `json:"offline"     yaml:"offline"`
	Degraded    uint64 `json:"degraded"    yaml:"degraded"`
	Errors      uint64 `json:"errors"      yaml:"errors"`
}

func (s StatisticsSnapshot) HitRatio() float64 {
	total := s.Hits + s.Misses + s.Uncacheable + s.Offline + s.Degraded + s.Errors
	if total == 0 {
		return 0
	}
	return float64(s.Hits+s.Offline) / float64(total)
}

func LoadSavedStatistics(path string, logger *zerolog.Logger) (*Statistics, error) {
	stats := new(Statistics)

	fp, err := os.Open(path) //nolint:gosec
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug().Msg("Statistics don't exist. Creating new one")
			return stats, nil
		}
		return nil, err
	}
	defer func() {
		if err := fp.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing the statistics file")
		}
	}()

	var snapshot StatisticsSnapshot
	if err := json.NewDecoder(fp).Decode(&snapshot); err != nil {
		return nil, err
	}

	stats.hits.Store(snapshot.Hits)
	stats.misses.Store(snapshot.Misses)
	stats.uncacheable.Store(snapshot.Uncacheable)
	stats.bypassed.Store(snapshot.Bypassed)
	stats.offline.Store(snapshot.Offline)
	stats.degraded.Store(snapshot.Degraded)
	stats.errors.Store(snapshot.Errors)

	logger.Debug().Str("path", path).Msg("Statistics loaded from disk")
	return stats, nil
}

func (s *Statistics) Save(path string, logger *zerolog.Logger) error {
	fp, err := os.Create(path) //nolint:gosec
	if err != nil {
		return err
	}
	defer func() {
		if err := fp.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing the statistics file")
		}
	}()

	return json.NewEncoder(fp).Encode(s.Snapshot())
}

func (s *Statistics) Snapshot() StatisticsSnapshot {
	return StatisticsSnapshot{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Uncacheable: s.uncacheable.Load(),
		Bypassed:    s.bypassed.Load(),
		Offline:     s.offline.Load(),
		Degraded:    s.degraded.Load(),
		Errors:      s.errors.Load(),
	}
}

// Record counts one outcome, as reported by the cache proxy.
func (s *Statistics) Record(status string) {
	switch status {
	case cacheproxy.StatusHit:
		s.hits.Add(1)
	case cacheproxy.StatusMiss:
		s.misses.Add(1)
	case cacheproxy.StatusUncacheable:
		s.uncacheable.Add(1)
	case cacheproxy.StatusBypass:
		s.bypassed.Add(1)
	case cacheproxy.StatusOffline:
		s.offline.Add(1)
	case cacheproxy.StatusDegraded:
		s.degraded.Add(1)
	case cacheproxy.StatusError:
		s.errors.Add(1)
	}
}

// Notifier reports a cache outcome on both the request and the statistics.
func (s *Statistics) Notifier() func(r *http.Request, status string) {
	return func(r *http.Request, status string) {
		SetCacheState(r, status)
		s.Record(status)
	}
}
