package lastfm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	lfm "github.com/ademuri/lastfm-go/lastfm"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ademuri/last-fm-dashboard/internal/store"
)

type fakeBackend struct {
	pages     map[int]Page
	durations map[string]int64
	// errs are returned, in order, before any successful response.
	errs  []error
	calls int
}

func (f *fakeBackend) next() error {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeBackend) recentTracks(user string, page int) (Page, error) {
	if err := f.next(); err != nil {
		return Page{}, err
	}
	return f.pages[page], nil
}

func (f *fakeBackend) trackDuration(track, artist string) (int64, error) {
	if err := f.next(); err != nil {
		return 0, err
	}
	return f.durations[store.DurationKey(track, artist)], nil
}

func (f *fakeBackend) authToken() (string, string, error) {
	if err := f.next(); err != nil {
		return "", "", err
	}
	return "token", "https://www.last.fm/api/auth?token=token", nil
}

func (f *fakeBackend) login(token string) (string, error) {
	if err := f.next(); err != nil {
		return "", err
	}
	return "session-for-" + token, nil
}

func testClient(b backend) *Client {
	return newClient(b, Config{RequestInterval: -1, RetryDelay: time.Millisecond})
}

func TestRecentTracks(t *testing.T) {
	want := Page{
		TotalPages: 2,
		Tracks: []store.TrackImport{
			{Artist: "A", TrackName: "X", Timestamp: 1600000000},
		},
	}
	b := &fakeBackend{pages: map[int]Page{1: want}}
	c := testClient(b)

	got, err := c.RecentTracks(context.Background(), "someone", 1)
	if err != nil {
		t.Fatalf("RecentTracks() error: %v", err)
	}
	if got.TotalPages != 2 || len(got.Tracks) != 1 || got.Tracks[0] != want.Tracks[0] {
		t.Errorf("RecentTracks() = %+v, want %+v", got, want)
	}
}

func TestRetriesTransientErrors(t *testing.T) {
	b := &fakeBackend{
		durations: map[string]int64{store.DurationKey("X", "A"): 200000},
		errs:      []error{&lfm.LastfmError{Code: 503}, &lfm.LastfmError{Code: codeServiceOffline}},
	}
	c := testClient(b)

	ms, err := c.TrackDuration(context.Background(), "X", "A")
	if err != nil {
		t.Fatalf("TrackDuration() error: %v", err)
	}
	if ms != 200000 {
		t.Errorf("TrackDuration() = %d, want 200000", ms)
	}
	if b.calls != 3 {
		t.Errorf("backend called %d times, want 3", b.calls)
	}
}

func TestDoesNotRetryPermanentErrors(t *testing.T) {
	b := &fakeBackend{errs: []error{&lfm.LastfmError{Code: 10}}}
	c := testClient(b)

	if _, err := c.RecentTracks(context.Background(), "someone", 1); err == nil {
		t.Fatalf("RecentTracks() expected error")
	}
	if b.calls != 1 {
		t.Errorf("backend called %d times, want 1", b.calls)
	}
}

func TestBreakerOpens(t *testing.T) {
	var errs []error
	for i := 0; i < 20; i++ {
		errs = append(errs, errors.New("connection refused"))
	}
	b := &fakeBackend{errs: errs}
	c := testClient(b)

	for i := 0; i < 10; i++ {
		if _, err := c.RecentTracks(context.Background(), "someone", 1); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	calls := b.calls

	_, err := c.RecentTracks(context.Background(), "someone", 1)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("RecentTracks() error = %v, want open circuit", err)
	}
	if b.calls != calls {
		t.Errorf("backend was called while the circuit was open")
	}
}

func TestCanceledContext(t *testing.T) {
	b := &fakeBackend{}
	c := newClient(b, Config{RequestInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	// The first call uses the limiter's only token.
	if _, err := c.TrackDuration(ctx, "X", "A"); err != nil {
		t.Fatalf("TrackDuration() error: %v", err)
	}
	cancel()
	if _, err := c.TrackDuration(ctx, "X", "A"); err == nil {
		t.Errorf("TrackDuration() on canceled context: expected error")
	}
}

func TestAuthentication(t *testing.T) {
	c := testClient(&fakeBackend{})

	token, url, err := c.AuthURL(context.Background())
	if err != nil {
		t.Fatalf("AuthURL() error: %v", err)
	}
	if token != "token" || !strings.Contains(url, "token=token") {
		t.Errorf("AuthURL() = %q, %q", token, url)
	}
	key, err := c.Login(context.Background(), token)
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if key != "session-for-token" {
		t.Errorf("Login() = %q", key)
	}
}

func TestLargestImage(t *testing.T) {
	tests := []struct {
		images []image
		want   string
	}{
		{nil, ""},
		{[]image{{"small", "s"}, {"extralarge", "xl"}, {"large", "l"}}, "xl"},
		{[]image{{"small", "s"}, {"extralarge", ""}, {"medium", "m"}}, "m"},
		{[]image{{"", "unsized"}}, "unsized"},
	}
	for _, tt := range tests {
		if got := largestImage(tt.images); got != tt.want {
			t.Errorf("largestImage(%v) = %q, want %q", tt.images, got, tt.want)
		}
	}
}

func TestTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&lfm.LastfmError{Code: 500}, true},
		{&lfm.LastfmError{Code: codeRateLimited}, true},
		{&lfm.LastfmError{Code: codeInvalidParameters}, false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		if got := transient(tt.err); got != tt.want {
			t.Errorf("transient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
