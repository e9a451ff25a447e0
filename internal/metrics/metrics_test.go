package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordLastfmRequest(t *testing.T) {
	before := testutil.ToFloat64(LastfmRequests.WithLabelValues("user.getRecentTracks", "success"))
	RecordLastfmRequest("user.getRecentTracks", "success")
	after := testutil.ToFloat64(LastfmRequests.WithLabelValues("user.getRecentTracks", "success"))
	if after-before != 1 {
		t.Errorf("lastfm_requests_total increased by %v, want 1", after-before)
	}
}

func TestRecordAggregation(t *testing.T) {
	RecordAggregation(42, 150*time.Millisecond)
	if got := testutil.ToFloat64(AggregationEvents); got != 42 {
		t.Errorf("aggregation_events = %v, want 42", got)
	}
	if n := testutil.CollectAndCount(AggregationDuration); n != 1 {
		t.Errorf("aggregation_duration_seconds has %d series, want 1", n)
	}
}
