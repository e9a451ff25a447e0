package dashboard

// Payload is the full dashboard document. It is rebuilt from scratch on every
// run and never modified afterwards.
type Payload struct {
	Meta     Meta                      `json:"meta"`
	Timeline map[string]int            `json:"timeline"`
	Calendar map[string]CalendarDay    `json:"calendar"`
	History  []MonthSummary            `json:"history"`
	Years    map[string]*YearSummary   `json:"years"`
	Artists  map[string]*ArtistProfile `json:"artists"`
	Binges   []Binge                   `json:"binges"`
}

type Meta struct {
	TotalScrobbles int    `json:"total_scrobbles"`
	UniqueArtists  int    `json:"unique_artists"`
	FirstScrobble  int64  `json:"first_scrobble"`
	LastScrobble   int64  `json:"last_scrobble"`
	UpdateTime     string `json:"update_time"`
	BingeSessions  int    `json:"binge_sessions"`
}

// RankedItem is one row of a top-N list. Artist is empty for artist rankings.
type RankedItem struct {
	Name   string `json:"name"`
	Artist string `json:"artist,omitempty"`
	Count  int    `json:"count"`
	Image  string `json:"img,omitempty"`
}

type DayTop struct {
	Name   string `json:"name"`
	Artist string `json:"artist"`
	Count  int    `json:"count"`
}

// CalendarDay is only produced for days with at least one play. TopAlbum is
// nil when none of the day's plays had an album.
type CalendarDay struct {
	Count    int     `json:"count"`
	Minutes  float64 `json:"minutes"`
	TopTrack DayTop  `json:"top_track"`
	TopAlbum *DayTop `json:"top_album"`
}

type MonthSummary struct {
	Date      string       `json:"date"`
	Scrobbles int          `json:"scrobbles"`
	Minutes   float64      `json:"minutes"`
	TopAlbums []RankedItem `json:"top_albums"`
	TopTracks []RankedItem `json:"top_tracks"`
	Image     string       `json:"img"`
}

// YearSummary histograms: Months is January-first, Days is Monday-first and
// Hours is local hour of day.
type YearSummary struct {
	Year       int          `json:"year"`
	Total      int          `json:"total"`
	Minutes    float64      `json:"minutes"`
	Months     [12]int      `json:"months"`
	Days       [7]int       `json:"days"`
	Hours      [24]int      `json:"hours"`
	TopAlbums  []RankedItem `json:"top_albums"`
	TopTracks  []RankedItem `json:"top_tracks"`
	TopArtists []RankedItem `json:"top_artists"`
}

type Dayparts struct {
	Morning   int `json:"morning"`
	Afternoon int `json:"afternoon"`
	Evening   int `json:"evening"`
	Night     int `json:"night"`
}

type TrackCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type ArtistAlbum struct {
	Name   string       `json:"name"`
	Count  int          `json:"count"`
	Tracks []TrackCount `json:"tracks"`
}

// ArtistProfile uses short field names to keep the artist directory small.
type ArtistProfile struct {
	Total     int            `json:"t"`
	Minutes   float64        `json:"m"`
	Years     map[string]int `json:"y"`
	TimeOfDay Dayparts       `json:"tod"`
	FirstSeen int64          `json:"fs"`
	Albums    []ArtistAlbum  `json:"al"`
	Images    []string       `json:"img"`
}

// Binge is a run of consecutive plays of one artist.
type Binge struct {
	Artist  string  `json:"artist"`
	Plays   int     `json:"plays"`
	Minutes float64 `json:"minutes"`
	Start   int64   `json:"start"`
	End     int64   `json:"end"`
}
