package lastfm

import (
	"errors"
	"fmt"
	"strconv"

	lfm "github.com/ademuri/lastfm-go/lastfm"

	"github.com/ademuri/last-fm-dashboard/internal/store"
)

const (
	userAgent = "last-fm-dashboard/1.0"
	pageLimit = 200

	// Last.fm API error codes.
	codeInvalidParameters = 6
	codeOperationFailed   = 8
	codeServiceOffline    = 11
	codeTemporaryError    = 16
	codeRateLimited       = 29
)

// Page is one page of a user's recent tracks, newest first. The track
// currently playing is not included since it has no timestamp yet.
type Page struct {
	Tracks     []store.TrackImport
	TotalPages int
}

// backend is the part of the Last.fm API the client uses.
type backend interface {
	recentTracks(user string, page int) (Page, error)
	// trackDuration returns 0 when Last.fm does not know the track.
	trackDuration(track, artist string) (int64, error)
	authToken() (token, url string, err error)
	login(token string) (string, error)
}

type apiBackend struct {
	api *lfm.Api
}

func newAPIBackend(key, secret, sessionKey string) *apiBackend {
	api := lfm.New(key, secret)
	api.SetUserAgent(userAgent)
	if sessionKey != "" {
		api.SetSession(sessionKey)
	}
	return &apiBackend{api: api}
}

func (b *apiBackend) recentTracks(user string, page int) (Page, error) {
	recent, err := b.api.User.GetRecentTracks(lfm.P{
		"limit": pageLimit,
		"page":  page,
		"user":  user,
	})
	if err != nil {
		return Page{}, err
	}

	result := Page{TotalPages: recent.TotalPages}
	for _, t := range recent.Tracks {
		if t.NowPlaying == "true" || t.Date.Uts == "" {
			continue
		}
		uts, err := strconv.ParseInt(t.Date.Uts, 10, 64)
		if err != nil {
			return Page{}, fmt.Errorf("parsing date of %q: %w", t.Name, err)
		}

		var images []image
		for _, img := range t.Images {
			images = append(images, image{size: img.Size, url: img.Url})
		}

		result.Tracks = append(result.Tracks, store.TrackImport{
			Artist:    t.Artist.Name,
			Album:     t.Album.Name,
			TrackName: t.Name,
			Timestamp: uts,
			ImageURL:  largestImage(images),
		})
	}
	return result, nil
}

func (b *apiBackend) trackDuration(track, artist string) (int64, error) {
	info, err := b.api.Track.GetInfo(lfm.P{
		"track":       track,
		"artist":      artist,
		"autocorrect": 1,
	})
	if err != nil {
		var lerr *lfm.LastfmError
		if errors.As(err, &lerr) && lerr.Code == codeInvalidParameters {
			return 0, nil
		}
		return 0, err
	}
	if info.Duration == "" {
		return 0, nil
	}
	ms, err := strconv.ParseInt(info.Duration, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing duration %q: %w", info.Duration, err)
	}
	return ms, nil
}

func (b *apiBackend) authToken() (string, string, error) {
	token, err := b.api.GetToken()
	if err != nil {
		return "", "", err
	}
	return token, b.api.GetAuthTokenUrl(token), nil
}

func (b *apiBackend) login(token string) (string, error) {
	if err := b.api.LoginWithToken(token); err != nil {
		return "", err
	}
	return b.api.GetSessionKey(), nil
}

type image struct {
	size string
	url  string
}

var imageSizes = map[string]int{
	"small":      1,
	"medium":     2,
	"large":      3,
	"extralarge": 4,
}

// largestImage picks the biggest non-empty image, or "" when there is none.
func largestImage(images []image) string {
	best, bestRank := "", 0
	for _, img := range images {
		if img.url == "" {
			continue
		}
		rank := imageSizes[img.size]
		if best == "" || rank > bestRank {
			best, bestRank = img.url, rank
		}
	}
	return best
}

// transient reports whether a request that failed with err may succeed if
// retried.
func transient(err error) bool {
	var lerr *lfm.LastfmError
	if !errors.As(err, &lerr) {
		return false
	}
	if lerr.Code/100 == 5 {
		return true
	}
	switch lerr.Code {
	case codeOperationFailed, codeServiceOffline, codeTemporaryError, codeRateLimited:
		return true
	}
	return false
}
