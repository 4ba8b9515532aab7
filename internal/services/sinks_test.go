package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"docutrack/internal/models"
)

type fakeSink struct {
	name  string
	err   error
	calls int32
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) SaveEvents(_ context.Context, _ []*models.TrackingEvent) error {
	atomic.AddInt32(&f.calls, 1)
	return f.err
}

func sampleEvents(n int) []*models.TrackingEvent {
	events := make([]*models.TrackingEvent, n)
	for i := range events {
		events[i] = &models.TrackingEvent{
			EventName: "button_click",
			EventType: models.EventTypeUserAction,
			Timestamp: 1700000000000,
			SessionID: "sess-1",
		}
	}
	return events
}

func TestSinkManager_AnySuccessAccepts(t *testing.T) {
	failing := &fakeSink{name: "failing", err: errors.New("down")}
	working := &fakeSink{name: "working"}
	manager := NewSinkManager(nil, failing, working)

	if !manager.SaveEvents(context.Background(), sampleEvents(3)) {
		t.Error("Expected batch accepted when one sink succeeds")
	}
	if atomic.LoadInt32(&failing.calls) != 1 || atomic.LoadInt32(&working.calls) != 1 {
		t.Error("Expected every sink to receive the batch")
	}
}

func TestSinkManager_AllFailRejects(t *testing.T) {
	a := &fakeSink{name: "a", err: errors.New("down")}
	b := &fakeSink{name: "b", err: errors.New("also down")}
	manager := NewSinkManager(nil, a, b)

	if manager.SaveEvents(context.Background(), sampleEvents(1)) {
		t.Error("Expected batch rejected when every sink fails")
	}
}

func TestSinkManager_RecordsSinkFailures(t *testing.T) {
	metrics := InitMetrics()
	failing := &fakeSink{name: "failing", err: errors.New("down")}
	working := &fakeSink{name: "working"}
	manager := NewSinkManager(metrics, failing, working)

	manager.SaveEvents(context.Background(), sampleEvents(1))

	if got := testutil.ToFloat64(metrics.SinkFailures.WithLabelValues("failing")); got != 1 {
		t.Errorf("Expected 1 recorded failure for failing sink, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.SinkFailures.WithLabelValues("working")); got != 0 {
		t.Errorf("Expected no recorded failures for working sink, got %v", got)
	}
}

func TestSinkManager_NoSinksRejects(t *testing.T) {
	manager := NewSinkManager(nil)
	if manager.SaveEvents(context.Background(), sampleEvents(1)) {
		t.Error("Expected rejection with zero sinks configured")
	}
}

func TestForwarderSink_ReportsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink := NewForwarderSink(server.URL, 100)
	if err := sink.SaveEvents(context.Background(), sampleEvents(2)); err == nil {
		t.Error("Expected error on 502 response")
	}
}

func TestForwarderSink_SendsBatch(t *testing.T) {
	var received int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewForwarderSink(server.URL, 100)
	if err := sink.SaveEvents(context.Background(), sampleEvents(2)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("Expected 1 forwarded request, got %d", received)
	}
}
