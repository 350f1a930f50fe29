package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_ObserveQuery(t *testing.T) {
	before := testutil.ToFloat64(QueriesTotal.WithLabelValues("A", "NOERROR"))

	var r Recorder
	r.ObserveQuery("A", "NOERROR", 5*time.Millisecond)

	after := testutil.ToFloat64(QueriesTotal.WithLabelValues("A", "NOERROR"))
	if after != before+1 {
		t.Fatalf("expected counter to increment by 1, got %v -> %v", before, after)
	}
}

func TestRecorder_IncWorkers(t *testing.T) {
	before := testutil.ToFloat64(ActiveWorkers)
	var r Recorder
	r.IncWorkers(3)
	after := testutil.ToFloat64(ActiveWorkers)
	if after != before+3 {
		t.Fatalf("expected gauge to increase by 3, got %v -> %v", before, after)
	}
	r.IncWorkers(-3)
}

func TestCacheHitMiss(t *testing.T) {
	beforeHit := testutil.ToFloat64(CacheOperations.WithLabelValues("l1", "hit"))
	beforeMiss := testutil.ToFloat64(CacheOperations.WithLabelValues("l1", "miss"))

	CacheHit("l1")
	CacheMiss("l1")

	if got := testutil.ToFloat64(CacheOperations.WithLabelValues("l1", "hit")); got != beforeHit+1 {
		t.Errorf("expected hit counter to increment, got %v -> %v", beforeHit, got)
	}
	if got := testutil.ToFloat64(CacheOperations.WithLabelValues("l1", "miss")); got != beforeMiss+1 {
		t.Errorf("expected miss counter to increment, got %v -> %v", beforeMiss, got)
	}
}
