// Package syncer keeps the local listening history in step with Last.fm and
// regenerates the dashboard after new listens arrive.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ademuri/last-fm-dashboard/internal/dashboard"
	"github.com/ademuri/last-fm-dashboard/internal/lastfm"
	"github.com/ademuri/last-fm-dashboard/internal/logging"
	"github.com/ademuri/last-fm-dashboard/internal/metrics"
	"github.com/ademuri/last-fm-dashboard/internal/snapshot"
	"github.com/ademuri/last-fm-dashboard/internal/store"
)

// ErrBusy is returned by Refresh when a cycle is already running.
var ErrBusy = errors.New("sync already in progress")

// Fetcher is the part of the Last.fm client used for ingestion.
type Fetcher interface {
	RecentTracks(ctx context.Context, user string, page int) (lastfm.Page, error)
	TrackDuration(ctx context.Context, track, artist string) (int64, error)
}

type Config struct {
	User string
	// After stops paging once listens older than this are reached.
	After time.Time
	// Force pages through the whole history and ignores MinUpdateInterval.
	Force bool
	// MinUpdateInterval skips a cycle when the user was updated more
	// recently than this.
	MinUpdateInterval time.Duration
	// DurationBatch is the number of track durations looked up per cycle.
	DurationBatch int
	// SyncInterval is the period of the Serve loop.
	SyncInterval time.Duration
	// Location is used for calendar keys. Defaults to time.Local.
	Location *time.Location
}

// Result summarizes one cycle.
type Result struct {
	CycleID     string    `json:"cycle_id"`
	Skipped     bool      `json:"skipped"`
	Pages       int       `json:"pages"`
	Added       int       `json:"added"`
	Durations   int       `json:"durations"`
	Regenerated bool      `json:"regenerated"`
	GeneratedAt time.Time `json:"generated_at,omitempty"`
}

type Syncer struct {
	store   *store.Store
	fetcher Fetcher
	cache   *snapshot.Cache
	cfg     Config
	now     func() time.Time

	// cycleMu serializes ingestion cycles; regenMu serializes regeneration.
	cycleMu sync.Mutex
	regenMu sync.Mutex
}

func New(s *store.Store, f Fetcher, cache *snapshot.Cache, cfg Config) *Syncer {
	cfg.User = strings.ToLower(cfg.User)
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 15 * time.Minute
	}
	return &Syncer{
		store:   s,
		fetcher: f,
		cache:   cache,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Sync runs one ingestion cycle followed by a duration backfill, waiting for
// any cycle already in progress. It does not regenerate the dashboard.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	return s.sync(ctx, uuid.NewString())
}

// Refresh runs a cycle and regenerates the dashboard. It fails with ErrBusy
// instead of waiting when a cycle is already running.
func (s *Syncer) Refresh(ctx context.Context) (Result, error) {
	if !s.cycleMu.TryLock() {
		return Result{}, ErrBusy
	}
	defer s.cycleMu.Unlock()

	res, err := s.sync(ctx, uuid.NewString())
	if err != nil {
		return res, err
	}
	entry, err := s.Regenerate(ctx)
	if err != nil {
		return res, err
	}
	res.Regenerated = true
	res.GeneratedAt = entry.GeneratedAt
	return res, nil
}

func (s *Syncer) sync(ctx context.Context, cycleID string) (Result, error) {
	log := logging.With().Str("cycle_id", cycleID).Str("user", s.cfg.User).Logger()
	res := Result{CycleID: cycleID}

	ingest, err := s.ingest(ctx, log)
	res.Skipped = ingest.skipped
	res.Pages = ingest.pages
	res.Added = ingest.added
	if err != nil {
		metrics.SyncCycles.WithLabelValues("error").Inc()
		return res, err
	}

	n, err := s.BackfillDurations(ctx)
	res.Durations = n
	if err != nil {
		// Tracks without a duration fall back to the estimate.
		log.Warn().Err(err).Int("fetched", n).Msg("duration backfill incomplete")
	}

	switch {
	case res.Skipped:
		metrics.SyncCycles.WithLabelValues("skipped").Inc()
	case res.Added > 0:
		metrics.SyncCycles.WithLabelValues("updated").Inc()
	default:
		metrics.SyncCycles.WithLabelValues("unchanged").Inc()
	}
	log.Info().Bool("skipped", res.Skipped).Int("pages", res.Pages).Int("added", res.Added).
		Int("durations", res.Durations).Msg("sync cycle finished")
	return res, nil
}

// Regenerate rebuilds the dashboard from the store and replaces the cached
// snapshot. Concurrent callers wait for each other.
func (s *Syncer) Regenerate(ctx context.Context) (snapshot.Entry, error) {
	s.regenMu.Lock()
	defer s.regenMu.Unlock()
	return s.regenerate()
}

func (s *Syncer) regenerate() (snapshot.Entry, error) {
	start := time.Now()
	events, err := s.store.ListAllEvents(s.cfg.User)
	if err != nil {
		return snapshot.Entry{}, fmt.Errorf("listing events: %w", err)
	}
	durations, err := s.store.Durations()
	if err != nil {
		return snapshot.Entry{}, fmt.Errorf("loading durations: %w", err)
	}

	now := s.now().In(s.cfg.Location)
	payload, err := dashboard.Aggregate(events, durations, now)
	if err != nil {
		return snapshot.Entry{}, fmt.Errorf("aggregating: %w", err)
	}
	data, err := dashboard.Encode(payload, false)
	if err != nil {
		return snapshot.Entry{}, err
	}

	entry := snapshot.Entry{Data: data, GeneratedAt: now, Events: len(events)}
	if err := s.cache.Replace(entry); err != nil {
		return snapshot.Entry{}, err
	}

	took := time.Since(start)
	metrics.RecordAggregation(len(events), took)
	logging.Info().Str("user", s.cfg.User).Int("events", len(events)).Int("bytes", len(data)).
		Dur("took", took).Msg("dashboard regenerated")
	return entry, nil
}

// Ensure returns the cached dashboard, generating it first when the cache is
// empty.
func (s *Syncer) Ensure(ctx context.Context) (snapshot.Entry, error) {
	if entry, err := s.cache.Get(); err == nil {
		metrics.DashboardCache.WithLabelValues("hit").Inc()
		return entry, nil
	}
	metrics.DashboardCache.WithLabelValues("miss").Inc()

	s.regenMu.Lock()
	defer s.regenMu.Unlock()
	// Another caller may have filled the cache while we waited.
	if entry, err := s.cache.Get(); err == nil {
		return entry, nil
	}
	return s.regenerate()
}

// Serve runs a cycle immediately and then every SyncInterval until ctx is
// canceled. Failed cycles are logged and retried on the next tick.
func (s *Syncer) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Syncer) tick(ctx context.Context) {
	res, err := s.Sync(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("cycle_id", res.CycleID).Msg("sync cycle failed")
	}

	_, cacheErr := s.cache.Get()
	if res.Added == 0 && cacheErr == nil {
		return
	}
	if _, err := s.Regenerate(ctx); err != nil {
		logging.Error().Err(err).Msg("regenerating dashboard")
	}
}

func (s *Syncer) String() string {
	return "syncer"
}
