package dashboard

import (
	"sort"
	"time"

	"github.com/ademuri/last-fm-dashboard/internal/store"
)

const (
	// BingeMaxGap is the longest pause between two plays of the same run.
	BingeMaxGap = 45 * time.Minute
	// BingeMinPlays is the shortest run reported as a binge.
	BingeMinPlays = 8
	// MaxBinges caps the binge list in the payload.
	MaxBinges = 20
)

// DetectBinges splits chronologically sorted plays into runs of one artist,
// breaking a run when the artist changes or the gap exceeds BingeMaxGap.
// Runs of at least BingeMinPlays plays are returned, longest first; equal
// runs keep chronological order.
func DetectBinges(sorted []store.PlayEvent, durations store.DurationIndex) []Binge {
	binges := []Binge{}
	maxGap := int64(BingeMaxGap / time.Second)

	var run *Binge
	flush := func() {
		if run != nil && run.Plays >= BingeMinPlays {
			binges = append(binges, *run)
		}
		run = nil
	}

	for _, e := range sorted {
		if run != nil && (run.Artist != e.Artist || e.Timestamp-run.End > maxGap) {
			flush()
		}
		if run == nil {
			run = &Binge{Artist: e.Artist, Start: e.Timestamp}
		}
		run.Plays++
		run.Minutes += EstimateMinutes(e.Track, e.Artist, durations)
		run.End = e.Timestamp
	}
	flush()

	sort.SliceStable(binges, func(i, j int) bool {
		return binges[i].Plays > binges[j].Plays
	})
	return binges
}
