package store

import (
	"database/sql"
	"fmt"
	"time"
)

type TrackImport struct {
	Artist    string
	Album     string
	TrackName string
	Timestamp int64
	ImageURL  string
}

// CreateUser ensures a user exists in the database.
func (s *Store) CreateUser(user string) error {
	row := s.db.QueryRow("SELECT name FROM User WHERE name = ?", user)
	var name string
	err := row.Scan(&name)
	if err == sql.ErrNoRows {
		_, err := s.db.Exec("INSERT INTO User (name) VALUES (?)", user)
		if err != nil {
			return fmt.Errorf("inserting user %q: %w", user, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking user %q: %w", user, err)
	}
	return nil
}

func (s *Store) SetLastUpdated(user string, updated time.Time) error {
	_, err := s.db.Exec("UPDATE User SET last_updated = ? WHERE name = ?", updated, user)
	if err != nil {
		return fmt.Errorf("updating last_updated for %q: %w", user, err)
	}
	return nil
}

func (s *Store) SetSessionKey(user, key string) error {
	_, err := s.db.Exec("UPDATE User SET session_key = ? WHERE name = ?", key, user)
	if err != nil {
		return fmt.Errorf("updating session key for %q: %w", user, err)
	}
	return nil
}

// AddRecentTracks inserts a batch of tracks transactionally and returns how
// many listens were new. A listen already stored for the same artist, track
// and timestamp is skipped.
func (s *Store) AddRecentTracks(user string, tracks []TrackImport) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for _, track := range tracks {
		if track.Timestamp <= 0 {
			return 0, fmt.Errorf("track %q by %q has no timestamp", track.TrackName, track.Artist)
		}
		if err := createArtist(tx, track.Artist); err != nil {
			return 0, err
		}
		if track.Album != "" {
			if err := createAlbum(tx, track.Artist, track.Album); err != nil {
				return 0, err
			}
		}
		trackID, err := createTrack(tx, track.Artist, track.Album, track.TrackName)
		if err != nil {
			return 0, err
		}
		inserted, err := createListen(tx, user, trackID, track)
		if err != nil {
			return 0, err
		}
		if inserted {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return added, nil
}

func createArtist(tx *sql.Tx, name string) error {
	var dummy string
	err := tx.QueryRow("SELECT name FROM Artist WHERE name = ?", name).Scan(&dummy)
	if err == sql.ErrNoRows {
		_, err := tx.Exec("INSERT INTO Artist (name) VALUES (?)", name)
		if err != nil {
			return fmt.Errorf("inserting artist %q: %w", name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking artist %q: %w", name, err)
	}
	return nil
}

func createAlbum(tx *sql.Tx, artist, name string) error {
	var dummy string
	err := tx.QueryRow("SELECT name FROM Album WHERE artist = ? AND name = ?", artist, name).Scan(&dummy)
	if err == sql.ErrNoRows {
		_, err := tx.Exec("INSERT INTO Album (artist, name) VALUES (?, ?)", artist, name)
		if err != nil {
			return fmt.Errorf("inserting album %q for %q: %w", name, artist, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking album %q: %w", name, err)
	}
	return nil
}

func createTrack(tx *sql.Tx, artist, album, name string) (int64, error) {
	var id int64
	err := tx.QueryRow("SELECT id FROM Track WHERE artist = ? AND album = ? AND name = ?", artist, album, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("checking track %q: %w", name, err)
	}

	res, err := tx.Exec("INSERT INTO Track (artist, album, name) VALUES (?, ?, ?)", artist, album, name)
	if err != nil {
		return 0, fmt.Errorf("inserting track %q: %w", name, err)
	}
	return res.LastInsertId()
}

func createListen(tx *sql.Tx, user string, trackID int64, track TrackImport) (bool, error) {
	// Identity is (artist, track, timestamp); the album does not take part.
	var id int64
	var image sql.NullString
	err := tx.QueryRow(`
		SELECT l.id, l.image_url
		FROM Listen l
		JOIN Track t ON l.track = t.id
		WHERE l.user = ? AND l.date = ? AND t.artist = ? AND t.name = ?
	`, user, track.Timestamp, track.Artist, track.TrackName).Scan(&id, &image)
	if err == nil {
		if image.String == "" && track.ImageURL != "" {
			if _, err := tx.Exec("UPDATE Listen SET image_url = ? WHERE id = ?", track.ImageURL, id); err != nil {
				return false, fmt.Errorf("backfilling listen image: %w", err)
			}
		}
		return false, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("checking listen: %w", err)
	}

	_, err = tx.Exec("INSERT INTO Listen (user, track, date, image_url) VALUES (?, ?, ?, ?)",
		user, trackID, track.Timestamp, nullIfEmpty(track.ImageURL))
	if err != nil {
		return false, fmt.Errorf("inserting listen: %w", err)
	}
	return true, nil
}

// SaveDuration records the duration of a track. Zero records a lookup that
// found nothing, so the track is not fetched again.
func (s *Store) SaveDuration(track, artist string, durationMS int64) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO TrackDuration (track, artist, duration_ms, fetched) VALUES (?, ?, ?, ?)",
		track, artist, durationMS, time.Now())
	if err != nil {
		return fmt.Errorf("saving duration for %q by %q: %w", track, artist, err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
