package dashboard

import "github.com/ademuri/last-fm-dashboard/internal/store"

// FallbackMinutes is charged for every play whose duration is unknown.
const FallbackMinutes = 3.5

// EstimateMinutes returns the listening time of one play of track. Every
// minutes figure in the payload goes through here.
func EstimateMinutes(track, artist string, durations store.DurationIndex) float64 {
	if ms := durations[store.DurationKey(track, artist)]; ms > 0 {
		return float64(ms) / 60000
	}
	return FallbackMinutes
}
