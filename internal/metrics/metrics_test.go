package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveTick(120*time.Millisecond, nil)
	m.ObserveTick(time.Second, errors.New("walk failed"))
	m.Skipped()
	m.Skipped()
	m.PipelineResult("FILE", nil)
	m.PipelineResult("FILE", errors.New("transfer"))
	m.PipelineResult("DIRECTORY", nil)

	if got := testutil.ToFloat64(m.ticks.WithLabelValues(ResultSuccess)); got != 1 {
		t.Errorf("successful ticks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ticks.WithLabelValues(ResultFailure)); got != 1 {
		t.Errorf("failed ticks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.skipped); got != 2 {
		t.Errorf("skipped = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.pipelineResults.WithLabelValues("FILE", ResultFailure)); got != 1 {
		t.Errorf("file failures = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.tickDuration); got != 1 {
		t.Errorf("tick duration series = %d, want 1", got)
	}
}

func TestMetrics_InFlight(t *testing.T) {
	m := New()
	m.UploadStarted()
	m.UploadStarted()
	m.UploadFinished()

	if got := testutil.ToFloat64(m.inFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
}

func TestMetrics_NilIsNoOp(t *testing.T) {
	var m *Metrics
	m.ObserveTick(time.Second, nil)
	m.Skipped()
	m.PipelineResult("FILE", nil)
	m.UploadStarted()
	m.UploadFinished()
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Skipped()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "memora_agent_entries_skipped_total 1") {
		t.Errorf("metrics output missing skipped counter:\n%s", body)
	}
}
