package syncer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ademuri/last-fm-dashboard/internal/metrics"
)

type ingestResult struct {
	skipped bool
	pages   int
	added   int
}

// ingest pages through recent tracks, newest first, until it reaches
// cfg.After, the last page, or (unless forced) listens more than a week older
// than the newest one already stored.
func (s *Syncer) ingest(ctx context.Context, log zerolog.Logger) (ingestResult, error) {
	var res ingestResult
	user := s.cfg.User

	if err := s.store.CreateUser(user); err != nil {
		return res, fmt.Errorf("creating user: %w", err)
	}

	lastUpdated, err := s.store.GetLastUpdated(user)
	if err != nil {
		return res, err
	}
	now := s.now()
	if !s.cfg.Force && !lastUpdated.IsZero() && now.Sub(lastUpdated) < s.cfg.MinUpdateInterval {
		log.Info().Time("last_updated", lastUpdated).Msg("user data was updated recently, skipping")
		res.skipped = true
		return res, nil
	}

	latestListen, err := s.store.GetLatestListen(user)
	if err != nil {
		return res, fmt.Errorf("getting latest listen: %w", err)
	}
	log.Debug().Time("latest_listen", latestListen).Time("last_updated", lastUpdated).Msg("updating listens")

	totalPages := 0
	for page := 1; ; page++ {
		recent, err := s.fetcher.RecentTracks(ctx, user, page)
		if err != nil {
			return res, fmt.Errorf("fetching recent tracks (page %d): %w", page, err)
		}
		if totalPages == 0 {
			totalPages = recent.TotalPages
		}
		res.pages++
		if len(recent.Tracks) == 0 {
			break
		}

		added, err := s.store.AddRecentTracks(user, recent.Tracks)
		if err != nil {
			return res, fmt.Errorf("inserting recent tracks (page %d): %w", page, err)
		}
		res.added += added
		metrics.ScrobblesIngested.Add(float64(added))

		oldest := recent.Tracks[len(recent.Tracks)-1].Timestamp
		log.Debug().Int("page", page).Int("pages", totalPages).Int("added", added).
			Int64("oldest", oldest).Msg("downloaded page")

		if !s.cfg.After.IsZero() && oldest < s.cfg.After.Unix() {
			break
		}
		if page >= totalPages {
			break
		}
		if !s.cfg.Force && !latestListen.IsZero() && oldest < latestListen.AddDate(0, 0, -7).Unix() {
			log.Debug().Msg("refreshed back to existing data")
			break
		}
	}

	if err := s.store.SetLastUpdated(user, now); err != nil {
		return res, err
	}
	return res, nil
}

// BackfillDurations looks up durations for up to DurationBatch tracks that
// have never been looked up. It returns how many were stored.
func (s *Syncer) BackfillDurations(ctx context.Context) (int, error) {
	if s.cfg.DurationBatch <= 0 {
		return 0, nil
	}
	missing, err := s.store.TracksMissingDuration(s.cfg.User, s.cfg.DurationBatch)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, key := range missing {
		ms, err := s.fetcher.TrackDuration(ctx, key.Track, key.Artist)
		if err != nil {
			return stored, fmt.Errorf("fetching duration of %q by %q: %w", key.Track, key.Artist, err)
		}
		if err := s.store.SaveDuration(key.Track, key.Artist, ms); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}
