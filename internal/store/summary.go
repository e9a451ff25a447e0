package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Summary queries recompute dashboard totals directly in SQL, independently
// of the aggregation engine.

type ArtistScrobbleCount struct {
	Name      string
	Scrobbles int64
}

func (s *Store) GetTotalScrobbles(user string) (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM Listen WHERE user = ?", user).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting scrobbles: %w", err)
	}
	return count, nil
}

func (s *Store) GetTotalArtists(user string) (int, error) {
	var count int
	query := `SELECT COUNT(DISTINCT t.artist) FROM Listen l JOIN Track t ON l.track = t.id WHERE l.user = ?`
	if err := s.db.QueryRow(query, user).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting artists: %w", err)
	}
	return count, nil
}

// GetFirstListen returns the zero time when the user has no listens.
func (s *Store) GetFirstListen(user string) (time.Time, error) {
	var date sql.NullInt64
	err := s.db.QueryRow("SELECT MIN(date) FROM Listen WHERE user = ?", user).Scan(&date)
	if err != nil {
		return time.Time{}, fmt.Errorf("getting first listen: %w", err)
	}
	if !date.Valid {
		return time.Time{}, nil
	}
	return time.Unix(date.Int64, 0), nil
}

// GetScrobblesInPeriod counts listens in [start, end).
func (s *Store) GetScrobblesInPeriod(user string, start, end time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM Listen WHERE user = ? AND date >= ? AND date < ?",
		user, start.Unix(), end.Unix()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting scrobbles in period: %w", err)
	}
	return count, nil
}

// GetScrobblesByYear counts listens per calendar year in loc, from the year
// of the first listen through the year of the last.
func (s *Store) GetScrobblesByYear(user string, loc *time.Location) (map[int]int64, error) {
	first, err := s.GetFirstListen(user)
	if err != nil {
		return nil, err
	}
	years := map[int]int64{}
	if first.IsZero() {
		return years, nil
	}
	last, err := s.GetLatestListen(user)
	if err != nil {
		return nil, err
	}

	for year := first.In(loc).Year(); year <= last.In(loc).Year(); year++ {
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
		count, err := s.GetScrobblesInPeriod(user, start, start.AddDate(1, 0, 0))
		if err != nil {
			return nil, fmt.Errorf("counting year %d: %w", year, err)
		}
		if count > 0 {
			years[year] = count
		}
	}
	return years, nil
}

// GetTopArtists ranks artists by listens in [start, end).
func (s *Store) GetTopArtists(user string, start, end time.Time, limit int) ([]ArtistScrobbleCount, error) {
	query := `
		SELECT t.artist, COUNT(*) as scrobbles
		FROM Listen l
		JOIN Track t ON l.track = t.id
		WHERE l.user = ? AND l.date >= ? AND l.date < ?
		GROUP BY t.artist
		ORDER BY scrobbles DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, user, start.Unix(), end.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("querying top artists: %w", err)
	}
	defer rows.Close()

	var artists []ArtistScrobbleCount
	for rows.Next() {
		var a ArtistScrobbleCount
		if err := rows.Scan(&a.Name, &a.Scrobbles); err != nil {
			return nil, err
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}
