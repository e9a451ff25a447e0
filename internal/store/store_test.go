package store

import (
	"path/filepath"
	"testing"
	"time"
)

func createTestDb(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "lastfm.db")

	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("New(%s) error: %v", dbPath, err)
	}

	return store
}

func createTestUser(t *testing.T, s *Store, user string) {
	t.Helper()
	if err := s.CreateUser(user); err != nil {
		t.Fatalf("CreateUser(%q) error: %v", user, err)
	}
}

func TestCreateUser(t *testing.T) {
	s := createTestDb(t)
	defer s.Close()

	user := "testuser"
	err := s.CreateUser(user)
	if err != nil {
		t.Fatalf("CreateUser(%q) error: %v", user, err)
	}

	// Idempotency
	err = s.CreateUser(user)
	if err != nil {
		t.Fatalf("CreateUser(%q) error: %v", user, err)
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "lastfm.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New(%s) error: %v", dbPath, err)
	}
	createTestUser(t, s, "testuser")
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("New(%s) on existing db error: %v", dbPath, err)
	}
	defer s.Close()
	if err := s.SaveDuration("Track", "Artist", 1000); err != nil {
		t.Fatalf("SaveDuration after reopen: %v", err)
	}
}

func TestAddRecentTracks(t *testing.T) {
	s := createTestDb(t)
	defer s.Close()

	user := "testuser"
	createTestUser(t, s, user)

	tracks := []TrackImport{
		{
			Artist:    "Test Artist",
			Album:     "Test Album",
			TrackName: "Test Track",
			Timestamp: 1600000000,
		},
	}

	added, err := s.AddRecentTracks(user, tracks)
	if err != nil {
		t.Fatalf("AddRecentTracks failed: %v", err)
	}
	if added != 1 {
		t.Errorf("AddRecentTracks added %d, want 1", added)
	}

	// Test idempotent insert (same data)
	added, err = s.AddRecentTracks(user, tracks)
	if err != nil {
		t.Fatalf("AddRecentTracks (repeat) failed: %v", err)
	}
	if added != 0 {
		t.Errorf("AddRecentTracks (repeat) added %d, want 0", added)
	}

	count, err := s.GetTotalScrobbles(user)
	if err != nil {
		t.Fatalf("GetTotalScrobbles: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 listen after repeat, got %d", count)
	}
}

func TestAddRecentTracksAlbumDoesNotAffectIdentity(t *testing.T) {
	s := createTestDb(t)
	defer s.Close()

	user := "testuser"
	createTestUser(t, s, user)

	first := []TrackImport{{Artist: "A", TrackName: "T", Timestamp: 1600000000}}
	second := []TrackImport{{Artist: "A", Album: "Later Album", TrackName: "T", Timestamp: 1600000000}}
	if _, err := s.AddRecentTracks(user, first); err != nil {
		t.Fatalf("AddRecentTracks: %v", err)
	}
	added, err := s.AddRecentTracks(user, second)
	if err != nil {
		t.Fatalf("AddRecentTracks: %v", err)
	}
	if added != 0 {
		t.Errorf("same artist, track and timestamp added %d, want 0", added)
	}

	// A different timestamp is a distinct play.
	second[0].Timestamp++
	added, err = s.AddRecentTracks(user, second)
	if err != nil {
		t.Fatalf("AddRecentTracks: %v", err)
	}
	if added != 1 {
		t.Errorf("new timestamp added %d, want 1", added)
	}
}

func TestAddRecentTracksRejectsMissingTimestamp(t *testing.T) {
	s := createTestDb(t)
	defer s.Close()

	user := "testuser"
	createTestUser(t, s, user)

	tracks := []TrackImport{
		{Artist: "A", TrackName: "Good", Timestamp: 1600000000},
		{Artist: "A", TrackName: "Now Playing"},
	}
	if _, err := s.AddRecentTracks(user, tracks); err == nil {
		t.Fatalf("AddRecentTracks with zero timestamp: expected error")
	}

	// The whole batch is rolled back.
	count, err := s.GetTotalScrobbles(user)
	if err != nil {
		t.Fatalf("GetTotalScrobbles: %v", err)
	}
	if count != 0 {
		t.Errorf("GetTotalScrobbles = %d after failed batch, want 0", count)
	}
}

func TestListAllEvents(t *testing.T) {
	s := createTestDb(t)
	defer s.Close()

	user := "testuser"
	createTestUser(t, s, user)

	tracks := []TrackImport{
		{Artist: "B", Album: "Second", TrackName: "Later", Timestamp: 1600000300, ImageURL: "http://img/b.jpg"},
		{Artist: "A", TrackName: "Earlier", Timestamp: 1600000100},
		{Artist: "C", Album: "Third", TrackName: "Same Time", Timestamp: 1600000300},
	}
	if _, err := s.AddRecentTracks(user, tracks); err != nil {
		t.Fatalf("AddRecentTracks: %v", err)
	}

	events, err := s.ListAllEvents(user)
	if err != nil {
		t.Fatalf("ListAllEvents: %v", err)
	}
	want := []PlayEvent{
		{Artist: "A", Track: "Earlier", Timestamp: 1600000100},
		{Artist: "B", Track: "Later", Album: "Second", Timestamp: 1600000300, ImageURL: "http://img/b.jpg"},
		{Artist: "C", Track: "Same Time", Album: "Third", Timestamp: 1600000300},
	}
	if len(events) != len(want) {
		t.Fatalf("ListAllEvents returned %d events, want %d: %+v", len(events), len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestListAllEventsEmpty(t *testing.T) {
	s := createTestDb(t)
	defer s.Close()

	events, err := s.ListAllEvents("nobody")
	if err != nil {
		t.Fatalf("ListAllEvents: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("ListAllEvents = %#v, want empty slice", events)
	}
}

func TestImageBackfill(t *testing.T) {
	s := createTestDb(t)
	defer s.Close()

	user := "testuser"
	createTestUser(t, s, user)

	track := TrackImport{Artist: "A", Album: "Al", TrackName: "T", Timestamp: 1600000000}
	if _, err := s.AddRecentTracks(user, []TrackImport{track}); err != nil {
		t.Fatalf("AddRecentTracks: %v", err)
	}
	track.ImageURL = "http://img/a.jpg"
	if _, err := s.AddRecentTracks(user, []TrackImport{track}); err != nil {
		t.Fatalf("AddRecentTracks: %v", err)
	}

	events, err := s.ListAllEvents(user)
	if err != nil {
		t.Fatalf("ListAllEvents: %v", err)
	}
	if len(events) != 1 || events[0].ImageURL != track.ImageURL {
		t.Errorf("ListAllEvents = %+v, want one event with image %q", events, track.ImageURL)
	}
}

func TestDurations(t *testing.T) {
	s := createTestDb(t)
	defer s.Close()

	user := "testuser"
	createTestUser(t, s, user)

	tracks := []TrackImport{
		{Artist: "A", TrackName: "Known", Timestamp: 1600000000},
		{Artist: "A", TrackName: "Known", Timestamp: 1600000500},
		{Artist: "A", TrackName: "Unknown", Timestamp: 1600001000},
		{Artist: "B", TrackName: "Pending", Timestamp: 1600002000},
	}
	if _, err := s.AddRecentTracks(user, tracks); err != nil {
		t.Fatalf("AddRecentTracks: %v", err)
	}

	missing, err := s.TracksMissingDuration(user, 10)
	if err != nil {
		t.Fatalf("TracksMissingDuration: %v", err)
	}
	if len(missing) != 3 || missing[0] != (TrackKey{Track: "Known", Artist: "A"}) {
		t.Errorf("TracksMissingDuration = %+v, want 3 keys with Known first", missing)
	}

	if err := s.SaveDuration("Known", "A", 240000); err != nil {
		t.Fatalf("SaveDuration: %v", err)
	}
	if err := s.SaveDuration("Unknown", "A", 0); err != nil {
		t.Fatalf("SaveDuration: %v", err)
	}

	index, err := s.Durations()
	if err != nil {
		t.Fatalf("Durations: %v", err)
	}
	if got := index[DurationKey("Known", "A")]; got != 240000 {
		t.Errorf("Durations[Known] = %d, want 240000", got)
	}
	if got, ok := index[DurationKey("Unknown", "A")]; !ok || got != 0 {
		t.Errorf("Durations[Unknown] = %d, %v; want recorded miss", got, ok)
	}

	missing, err = s.TracksMissingDuration(user, 10)
	if err != nil {
		t.Fatalf("TracksMissingDuration: %v", err)
	}
	if len(missing) != 1 || missing[0] != (TrackKey{Track: "Pending", Artist: "B"}) {
		t.Errorf("TracksMissingDuration = %+v, want [Pending]", missing)
	}
}

func TestLastUpdated(t *testing.T) {
	s := createTestDb(t)
	defer s.Close()

	user := "testuser"
	createTestUser(t, s, user)

	last, err := s.GetLastUpdated(user)
	if err != nil {
		t.Fatalf("GetLastUpdated: %v", err)
	}
	if !last.IsZero() {
		t.Errorf("GetLastUpdated for new user = %v, want zero", last)
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.SetLastUpdated(user, now); err != nil {
		t.Fatalf("SetLastUpdated: %v", err)
	}
	last, err = s.GetLastUpdated(user)
	if err != nil {
		t.Fatalf("GetLastUpdated: %v", err)
	}
	if !last.Equal(now) {
		t.Errorf("GetLastUpdated = %v, want %v", last, now)
	}
}

func TestSessionKey(t *testing.T) {
	s := createTestDb(t)
	defer s.Close()

	user := "testuser"
	createTestUser(t, s, user)

	key, err := s.GetSessionKey(user)
	if err != nil {
		t.Fatalf("GetSessionKey: %v", err)
	}
	if key != "" {
		t.Errorf("GetSessionKey for new user = %q, want empty", key)
	}

	if err := s.SetSessionKey(user, "abc123"); err != nil {
		t.Fatalf("SetSessionKey: %v", err)
	}
	key, err = s.GetSessionKey(user)
	if err != nil {
		t.Fatalf("GetSessionKey: %v", err)
	}
	if key != "abc123" {
		t.Errorf("GetSessionKey = %q, want %q", key, "abc123")
	}
}

func TestGetLatestListen(t *testing.T) {
	s := createTestDb(t)
	defer s.Close()

	user := "testuser"
	createTestUser(t, s, user)

	latest, err := s.GetLatestListen(user)
	if err != nil {
		t.Fatalf("GetLatestListen: %v", err)
	}
	if !latest.IsZero() {
		t.Errorf("GetLatestListen with no listens = %v, want zero", latest)
	}

	// 1593490750 = 2020-06-30
	tracks := []TrackImport{
		{Artist: "Artist", Album: "Album", TrackName: "Track", Timestamp: 1500000000},
		{Artist: "Artist", Album: "Album", TrackName: "Track", Timestamp: 1593490750},
	}
	if _, err := s.AddRecentTracks(user, tracks); err != nil {
		t.Fatalf("AddRecentTracks: %v", err)
	}

	latest, err = s.GetLatestListen(user)
	if err != nil {
		t.Fatalf("GetLatestListen failed: %v", err)
	}
	if latest.Unix() != 1593490750 {
		t.Errorf("GetLatestListen = %v, want 1593490750", latest.Unix())
	}
}

func TestSummaries(t *testing.T) {
	s := createTestDb(t)
	defer s.Close()

	user := "testuser"
	createTestUser(t, s, user)

	utc := time.UTC
	tracks := []TrackImport{
		{Artist: "A", TrackName: "x", Timestamp: time.Date(2022, 12, 31, 23, 30, 0, 0, utc).Unix()},
		{Artist: "A", TrackName: "y", Timestamp: time.Date(2023, 1, 1, 0, 30, 0, 0, utc).Unix()},
		{Artist: "B", TrackName: "z", Timestamp: time.Date(2023, 6, 1, 12, 0, 0, 0, utc).Unix()},
	}
	if _, err := s.AddRecentTracks(user, tracks); err != nil {
		t.Fatalf("AddRecentTracks: %v", err)
	}

	artists, err := s.GetTotalArtists(user)
	if err != nil {
		t.Fatalf("GetTotalArtists: %v", err)
	}
	if artists != 2 {
		t.Errorf("GetTotalArtists = %d, want 2", artists)
	}

	years, err := s.GetScrobblesByYear(user, utc)
	if err != nil {
		t.Fatalf("GetScrobblesByYear: %v", err)
	}
	if years[2022] != 1 || years[2023] != 2 || len(years) != 2 {
		t.Errorf("GetScrobblesByYear(UTC) = %v, want 2022:1 2023:2", years)
	}

	// One hour east moves the New Year's Eve play into 2023.
	east := time.FixedZone("UTC+1", 60*60)
	years, err = s.GetScrobblesByYear(user, east)
	if err != nil {
		t.Fatalf("GetScrobblesByYear: %v", err)
	}
	if years[2023] != 3 || len(years) != 1 {
		t.Errorf("GetScrobblesByYear(UTC+1) = %v, want 2023:3", years)
	}

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, utc)
	top, err := s.GetTopArtists(user, start, start.AddDate(1, 0, 0), 10)
	if err != nil {
		t.Fatalf("GetTopArtists: %v", err)
	}
	if len(top) != 2 || top[0].Scrobbles != 1 {
		t.Errorf("GetTopArtists = %+v, want two artists with one play each", top)
	}
}
