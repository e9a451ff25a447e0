package store

// PlayEvent is one scrobble. Album and ImageURL are empty when Last.fm did
// not report them.
type PlayEvent struct {
	Artist    string
	Track     string
	Album     string
	Timestamp int64
	ImageURL  string
}

// DurationIndex maps DurationKey(track, artist) to a duration in
// milliseconds. A missing key and a zero value both mean "unknown".
type DurationIndex map[string]int64

// DurationKeySeparator is used verbatim; names containing it are ambiguous.
const DurationKeySeparator = "|||"

func DurationKey(track, artist string) string {
	return track + DurationKeySeparator + artist
}

// TrackKey identifies a (track, artist) pair for duration lookups.
type TrackKey struct {
	Track  string
	Artist string
}
