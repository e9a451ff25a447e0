package dashboard

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/ademuri/last-fm-dashboard/internal/store"
)

const (
	MonthTopN       = 5
	YearTopN        = 10
	MaxArtists      = 300
	MaxArtistImages = 5

	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// ErrInvalidEvent is returned when an event lacks a timestamp, artist or
// track.
var ErrInvalidEvent = errors.New("invalid play event")

type dayKey struct {
	name   string
	artist string
}

type dayAcc struct {
	count   int
	minutes float64
	tracks  *tally[dayKey, counter]
	albums  *tally[dayKey, counter]
}

type monthAcc struct {
	date    string
	count   int
	minutes float64
	img     string
	albums  *tally[string, counter]
	tracks  *tally[string, counter]
}

type yearAcc struct {
	year    int
	total   int
	minutes float64
	months  [12]int
	days    [7]int
	hours   [24]int
	albums  *tally[string, counter]
	tracks  *tally[string, counter]
	artists *tally[string, counter]
}

type albumAcc struct {
	count  int
	tracks *tally[string, counter]
}

type artistAcc struct {
	total     int
	minutes   float64
	years     map[string]int
	tod       Dayparts
	firstSeen int64
	albums    *tally[string, albumAcc]
	images    []string
}

// aggregator holds the working state of a single Aggregate call.
type aggregator struct {
	loc       *time.Location
	durations store.DurationIndex

	timeline map[string]int
	days     *tally[string, dayAcc]
	months   *tally[string, monthAcc]
	years    *tally[string, yearAcc]
	artists  *tally[string, artistAcc]
}

// Aggregate builds the dashboard payload from the full play history. Events
// may arrive in any order; a sorted copy is processed, so the caller's slice
// is left untouched. Calendar keys use now's location.
func Aggregate(events []store.PlayEvent, durations store.DurationIndex, now time.Time) (*Payload, error) {
	for i, e := range events {
		if err := validate(e); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}

	sorted := make([]store.PlayEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	a := &aggregator{
		loc:       now.Location(),
		durations: durations,
		timeline:  map[string]int{},
		days:      newTally[string, dayAcc](),
		months:    newTally[string, monthAcc](),
		years:     newTally[string, yearAcc](),
		artists:   newTally[string, artistAcc](),
	}
	// The current year is always rendered, even when empty.
	a.year(now.Year())

	for _, e := range sorted {
		a.add(e)
	}

	p := a.finish()
	p.Meta.TotalScrobbles = len(sorted)
	if len(sorted) > 0 {
		p.Meta.FirstScrobble = sorted[0].Timestamp
		p.Meta.LastScrobble = sorted[len(sorted)-1].Timestamp
	}
	p.Meta.UpdateTime = now.Format(time.RFC3339)

	binges := DetectBinges(sorted, durations)
	p.Meta.BingeSessions = len(binges)
	if len(binges) > MaxBinges {
		binges = binges[:MaxBinges]
	}
	p.Binges = binges

	return p, nil
}

func validate(e store.PlayEvent) error {
	if e.Timestamp <= 0 {
		return fmt.Errorf("%w: %q by %q has no timestamp", ErrInvalidEvent, e.Track, e.Artist)
	}
	if e.Artist == "" {
		return fmt.Errorf("%w: %q at %d has no artist", ErrInvalidEvent, e.Track, e.Timestamp)
	}
	if e.Track == "" {
		return fmt.Errorf("%w: play by %q at %d has no track", ErrInvalidEvent, e.Artist, e.Timestamp)
	}
	return nil
}

// mondayFirst maps time.Weekday (Sunday=0) to Monday=0 ... Sunday=6.
func mondayFirst(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// add counts a play in its daypart: morning 05-11, afternoon 12-16,
// evening 17-21, night otherwise.
func (d *Dayparts) add(hour int) {
	switch {
	case hour >= 5 && hour < 12:
		d.Morning++
	case hour >= 12 && hour < 17:
		d.Afternoon++
	case hour >= 17 && hour < 22:
		d.Evening++
	default:
		d.Night++
	}
}

func (a *aggregator) year(y int) *yearAcc {
	return a.years.get(strconv.Itoa(y), func() *yearAcc {
		return &yearAcc{
			year:    y,
			albums:  newTally[string, counter](),
			tracks:  newTally[string, counter](),
			artists: newTally[string, counter](),
		}
	})
}

func (a *aggregator) add(e store.PlayEvent) {
	t := time.Unix(e.Timestamp, 0).In(a.loc)
	day := t.Format(dayLayout)
	month := t.Format(monthLayout)
	hour := t.Hour()
	minutes := EstimateMinutes(e.Track, e.Artist, a.durations)

	a.timeline[day]++

	m := a.months.get(month, func() *monthAcc {
		return &monthAcc{
			date:   month,
			albums: newTally[string, counter](),
			tracks: newTally[string, counter](),
		}
	})
	m.count++
	m.minutes += minutes
	if m.img == "" {
		m.img = e.ImageURL
	}
	if e.Album != "" {
		m.albums.get(e.Album, newCounter(e.Album, e.Artist)).add(e.ImageURL, minutes)
	}
	m.tracks.get(e.Track, newCounter(e.Track, e.Artist)).add(e.ImageURL, minutes)

	d := a.days.get(day, func() *dayAcc {
		return &dayAcc{
			tracks: newTally[dayKey, counter](),
			albums: newTally[dayKey, counter](),
		}
	})
	d.count++
	d.minutes += minutes
	d.tracks.get(dayKey{e.Track, e.Artist}, newCounter(e.Track, e.Artist)).add(e.ImageURL, minutes)
	if e.Album != "" {
		d.albums.get(dayKey{e.Album, e.Artist}, newCounter(e.Album, e.Artist)).add(e.ImageURL, minutes)
	}

	y := a.year(t.Year())
	y.total++
	y.minutes += minutes
	y.months[int(t.Month())-1]++
	y.days[mondayFirst(t.Weekday())]++
	y.hours[hour]++
	if e.Album != "" {
		y.albums.get(e.Album, newCounter(e.Album, e.Artist)).add(e.ImageURL, minutes)
	}
	y.tracks.get(e.Track, newCounter(e.Track, e.Artist)).add(e.ImageURL, minutes)
	y.artists.get(e.Artist, newCounter(e.Artist, "")).add("", minutes)

	ar := a.artists.get(e.Artist, func() *artistAcc {
		return &artistAcc{
			years:     map[string]int{},
			firstSeen: e.Timestamp,
			albums:    newTally[string, albumAcc](),
		}
	})
	ar.total++
	ar.minutes += minutes
	ar.years[strconv.Itoa(t.Year())]++
	ar.tod.add(hour)
	if e.Timestamp < ar.firstSeen {
		ar.firstSeen = e.Timestamp
	}
	if e.Album != "" {
		al := ar.albums.get(e.Album, func() *albumAcc {
			return &albumAcc{tracks: newTally[string, counter]()}
		})
		al.count++
		al.tracks.get(e.Track, newCounter(e.Track, "")).add("", minutes)
	}
	if e.ImageURL != "" && len(ar.images) < MaxArtistImages && !slices.Contains(ar.images, e.ImageURL) {
		ar.images = append(ar.images, e.ImageURL)
	}
}

func (a *aggregator) finish() *Payload {
	p := &Payload{
		Timeline: a.timeline,
		Calendar: make(map[string]CalendarDay, a.days.len()),
		History:  make([]MonthSummary, 0, a.months.len()),
		Years:    make(map[string]*YearSummary, a.years.len()),
		Artists:  map[string]*ArtistProfile{},
	}

	a.days.each(func(day string, d *dayAcc) {
		entry := CalendarDay{Count: d.count, Minutes: d.minutes}
		if t := best(d.tracks); t != nil {
			entry.TopTrack = DayTop{Name: t.name, Artist: t.artist, Count: t.count}
		}
		if al := best(d.albums); al != nil {
			entry.TopAlbum = &DayTop{Name: al.name, Artist: al.artist, Count: al.count}
		}
		p.Calendar[day] = entry
	})

	a.months.each(func(_ string, m *monthAcc) {
		p.History = append(p.History, MonthSummary{
			Date:      m.date,
			Scrobbles: m.count,
			Minutes:   m.minutes,
			TopAlbums: top(m.albums, MonthTopN),
			TopTracks: top(m.tracks, MonthTopN),
			Image:     m.img,
		})
	})

	a.years.each(func(key string, y *yearAcc) {
		p.Years[key] = &YearSummary{
			Year:       y.year,
			Total:      y.total,
			Minutes:    y.minutes,
			Months:     y.months,
			Days:       y.days,
			Hours:      y.hours,
			TopAlbums:  top(y.albums, YearTopN),
			TopTracks:  top(y.tracks, YearTopN),
			TopArtists: top(y.artists, YearTopN),
		}
	})

	p.Meta.UniqueArtists = a.artists.len()
	order := a.artists.sorted(func(ar *artistAcc) int { return ar.total })
	if len(order) > MaxArtists {
		order = order[:MaxArtists]
	}
	for _, i := range order {
		p.Artists[a.artists.keys[i]] = a.artists.vals[i].profile()
	}

	return p
}

func (ar *artistAcc) profile() *ArtistProfile {
	albums := make([]ArtistAlbum, 0, ar.albums.len())
	for _, i := range ar.albums.sorted(func(al *albumAcc) int { return al.count }) {
		al := ar.albums.vals[i]
		tracks := make([]TrackCount, 0, al.tracks.len())
		for _, item := range top(al.tracks, 0) {
			tracks = append(tracks, TrackCount{Name: item.Name, Count: item.Count})
		}
		albums = append(albums, ArtistAlbum{
			Name:   ar.albums.keys[i],
			Count:  al.count,
			Tracks: tracks,
		})
	}

	images := make([]string, len(ar.images))
	copy(images, ar.images)

	return &ArtistProfile{
		Total:     ar.total,
		Minutes:   ar.minutes,
		Years:     ar.years,
		TimeOfDay: ar.tod,
		FirstSeen: ar.firstSeen,
		Albums:    albums,
		Images:    images,
	}
}
