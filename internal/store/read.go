package store

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) GetSessionKey(user string) (string, error) {
	row := s.db.QueryRow("SELECT session_key FROM User WHERE name = ? AND session_key <> ''", user)
	var key string
	err := row.Scan(&key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting session key: %w", err)
	}
	return key, nil
}

func (s *Store) GetLastUpdated(user string) (time.Time, error) {
	row := s.db.QueryRow("SELECT last_updated FROM User WHERE name = ?", user)
	var t sql.NullTime
	err := row.Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("getting last updated: %w", err)
	}
	return t.Time, nil
}

// GetLatestListen returns the zero time when the user has no listens.
func (s *Store) GetLatestListen(user string) (time.Time, error) {
	row := s.db.QueryRow("SELECT MAX(date) FROM Listen WHERE user = ?", user)
	var date sql.NullInt64
	if err := row.Scan(&date); err != nil {
		return time.Time{}, fmt.Errorf("scanning latest listen: %w", err)
	}
	if !date.Valid {
		return time.Time{}, nil
	}
	return time.Unix(date.Int64, 0), nil
}

// ListAllEvents returns every listen for the user, oldest first. Listens with
// the same timestamp come back in insertion order.
func (s *Store) ListAllEvents(user string) ([]PlayEvent, error) {
	query := `
		SELECT t.artist, t.name, t.album, l.date, l.image_url
		FROM Listen l
		JOIN Track t ON l.track = t.id
		WHERE l.user = ?
		ORDER BY l.date ASC, l.id ASC
	`
	rows, err := s.db.Query(query, user)
	if err != nil {
		return nil, fmt.Errorf("querying listens: %w", err)
	}
	defer rows.Close()

	events := []PlayEvent{}
	for rows.Next() {
		var e PlayEvent
		var album, image sql.NullString
		if err := rows.Scan(&e.Artist, &e.Track, &album, &e.Timestamp, &image); err != nil {
			return nil, fmt.Errorf("scanning listen: %w", err)
		}
		e.Album = album.String
		e.ImageURL = image.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// Durations loads the whole duration index, including recorded misses.
func (s *Store) Durations() (DurationIndex, error) {
	rows, err := s.db.Query("SELECT track, artist, duration_ms FROM TrackDuration")
	if err != nil {
		return nil, fmt.Errorf("querying durations: %w", err)
	}
	defer rows.Close()

	index := DurationIndex{}
	for rows.Next() {
		var track, artist string
		var ms int64
		if err := rows.Scan(&track, &artist, &ms); err != nil {
			return nil, fmt.Errorf("scanning duration: %w", err)
		}
		index[DurationKey(track, artist)] = ms
	}
	return index, rows.Err()
}

// TracksMissingDuration lists up to limit (track, artist) pairs the user has
// played that have never been looked up, most played first.
func (s *Store) TracksMissingDuration(user string, limit int) ([]TrackKey, error) {
	query := `
		SELECT t.name, t.artist
		FROM Listen l
		JOIN Track t ON l.track = t.id
		LEFT JOIN TrackDuration d ON d.track = t.name AND d.artist = t.artist
		WHERE l.user = ? AND d.track IS NULL
		GROUP BY t.name, t.artist
		ORDER BY COUNT(*) DESC, MIN(l.date) ASC
		LIMIT ?
	`
	rows, err := s.db.Query(query, user, limit)
	if err != nil {
		return nil, fmt.Errorf("querying tracks missing duration: %w", err)
	}
	defer rows.Close()

	var keys []TrackKey
	for rows.Next() {
		var k TrackKey
		if err := rows.Scan(&k.Track, &k.Artist); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
