package collector

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docutrack/internal/models"
)

type fakeTransport struct {
	mu      sync.Mutex
	batches [][]models.TrackingEvent
	failing bool
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, _ := io.ReadAll(req.Body)
	var payload struct {
		Events []models.TrackingEvent `json:"events"`
	}
	json.Unmarshal(body, &payload)

	f.mu.Lock()
	failing := f.failing
	if !failing {
		f.batches = append(f.batches, payload.Events)
	}
	f.mu.Unlock()

	if failing {
		return nil, errors.New("network down")
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(nil)),
	}, nil
}

func (f *fakeTransport) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func testCollector(transport http.RoundTripper, mutate func(*Config)) *Collector {
	cfg := Config{
		Endpoint:   "http://tracker.test/api/tracking",
		BatchSize:  10,
		SampleRate: 1,
		Enabled:    true,
		HTTPClient: &http.Client{Transport: transport},
		Now:        func() time.Time { return time.UnixMilli(1700000000000) },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

func TestTrack_StampsTimestampAndSession(t *testing.T) {
	transport := &fakeTransport{}
	c := testCollector(transport, func(cfg *Config) { cfg.BatchSize = 1 })

	c.Track("button_click", models.EventTypeUserAction, nil, nil)

	if transport.batchCount() != 1 {
		t.Fatalf("Expected 1 batch, got %d", transport.batchCount())
	}
	event := transport.batches[0][0]
	if event.Timestamp != 1700000000000 {
		t.Errorf("Expected injected clock timestamp, got %d", event.Timestamp)
	}
	if event.SessionID != c.SessionID() {
		t.Errorf("Expected session %s, got %s", c.SessionID(), event.SessionID)
	}
}

func TestTrack_SamplingBounds(t *testing.T) {
	transport := &fakeTransport{}

	dropAll := testCollector(transport, func(cfg *Config) {
		cfg.BatchSize = 1
		cfg.SampleRate = 0
		cfg.Rand = func() float64 { return 0.5 }
	})
	for i := 0; i < 20; i++ {
		dropAll.Track("button_click", models.EventTypeUserAction, nil, nil)
	}
	if transport.batchCount() != 0 {
		t.Errorf("Expected sample rate 0 to drop everything, got %d batches", transport.batchCount())
	}

	keepAll := testCollector(transport, func(cfg *Config) {
		cfg.BatchSize = 1
		cfg.SampleRate = 1
		cfg.Rand = func() float64 { return 0.999999 }
	})
	for i := 0; i < 5; i++ {
		keepAll.Track("button_click", models.EventTypeUserAction, nil, nil)
	}
	if transport.batchCount() != 5 {
		t.Errorf("Expected sample rate 1 to keep everything, got %d batches", transport.batchCount())
	}
}

func TestTrack_FlushesAtBatchSize(t *testing.T) {
	transport := &fakeTransport{}
	c := testCollector(transport, func(cfg *Config) { cfg.BatchSize = 3 })

	c.Track("e1", models.EventTypeUserAction, nil, nil)
	c.Track("e2", models.EventTypeUserAction, nil, nil)
	if transport.batchCount() != 0 {
		t.Fatal("Expected no flush below batch size")
	}

	c.Track("e3", models.EventTypeUserAction, nil, nil)
	if transport.batchCount() != 1 {
		t.Fatalf("Expected flush at batch size, got %d batches", transport.batchCount())
	}
	if len(transport.batches[0]) != 3 {
		t.Errorf("Expected 3 events in batch, got %d", len(transport.batches[0]))
	}
}

func TestFlush_RequeuesAtFront(t *testing.T) {
	transport := &fakeTransport{failing: true}
	c := testCollector(transport, func(cfg *Config) {
		cfg.BatchSize = 2
		cfg.MaxRetries = 5
	})

	c.Track("a", models.EventTypeUserAction, nil, nil)
	c.Track("b", models.EventTypeUserAction, nil, nil) // triggers failing flush
	c.Track("c", models.EventTypeUserAction, nil, nil) // triggers second failing flush of [a,b]

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) != 3 {
		t.Fatalf("Expected 3 queued events after failed flushes, got %d", len(c.queue))
	}
	if c.queue[0].event.EventName != "a" || c.queue[1].event.EventName != "b" || c.queue[2].event.EventName != "c" {
		t.Errorf("Expected failed batch re-inserted at queue front, got %s,%s,%s",
			c.queue[0].event.EventName, c.queue[1].event.EventName, c.queue[2].event.EventName)
	}
	if c.queue[0].retries != 2 {
		t.Errorf("Expected retry count 2 on twice-failed event, got %d", c.queue[0].retries)
	}
	if c.queue[2].retries != 0 {
		t.Errorf("Expected fresh event with retry count 0, got %d", c.queue[2].retries)
	}
}

func TestFlush_DropsAfterMaxRetries(t *testing.T) {
	transport := &fakeTransport{failing: true}
	c := testCollector(transport, func(cfg *Config) {
		cfg.BatchSize = 2
		cfg.MaxRetries = 1
	})

	c.Track("a", models.EventTypeUserAction, nil, nil)
	c.Track("b", models.EventTypeUserAction, nil, nil) // failed flush, retries=1

	// Second failure pushes both past MaxRetries: dropped silently
	c.Flush(false)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) != 0 {
		t.Errorf("Expected queue drained after retry exhaustion, got %d events", len(c.queue))
	}
}

func TestFlush_RecoversAfterOutage(t *testing.T) {
	transport := &fakeTransport{failing: true}
	c := testCollector(transport, func(cfg *Config) {
		cfg.BatchSize = 2
		cfg.MaxRetries = 3
	})

	c.Track("a", models.EventTypeUserAction, nil, nil)
	c.Track("b", models.EventTypeUserAction, nil, nil) // failed flush

	transport.mu.Lock()
	transport.failing = false
	transport.mu.Unlock()

	c.OnOnline()
	if transport.batchCount() != 1 {
		t.Fatalf("Expected requeued batch delivered after recovery, got %d", transport.batchCount())
	}
	if len(transport.batches[0]) != 2 {
		t.Errorf("Expected both events delivered, got %d", len(transport.batches[0]))
	}
}

func TestSetUser_NotRetroactive(t *testing.T) {
	transport := &fakeTransport{}
	c := testCollector(transport, func(cfg *Config) { cfg.BatchSize = 10 })

	c.Track("before", models.EventTypeUserAction, nil, nil)
	c.SetUser("user-1", "org-1")
	c.Track("after", models.EventTypeUserAction, nil, nil)
	c.Flush(false)

	if transport.batchCount() != 1 {
		t.Fatalf("Expected 1 batch, got %d", transport.batchCount())
	}
	events := transport.batches[0]
	if events[0].UserID != "" {
		t.Errorf("Expected pre-identify event without userId, got %q", events[0].UserID)
	}
	if events[1].UserID != "user-1" || events[1].OrganizationID != "org-1" {
		t.Errorf("Expected identity on post-identify event, got %q/%q", events[1].UserID, events[1].OrganizationID)
	}
}

type blockingTransport struct {
	entered chan struct{}
	release chan struct{}
	calls   int32
}

func (b *blockingTransport) RoundTrip(_ *http.Request) (*http.Response, error) {
	atomic.AddInt32(&b.calls, 1)
	b.entered <- struct{}{}
	<-b.release
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(nil)),
	}, nil
}

func TestFlush_InFlightGuard(t *testing.T) {
	transport := &blockingTransport{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := testCollector(transport, func(cfg *Config) { cfg.BatchSize = 10 })

	c.Track("a", models.EventTypeUserAction, nil, nil)
	c.Track("b", models.EventTypeUserAction, nil, nil)

	done := make(chan struct{})
	go func() {
		c.Flush(false)
		close(done)
	}()
	<-transport.entered

	// Second flush while the first is mid-send must be a no-op
	c.Flush(false)

	close(transport.release)
	<-done

	if got := atomic.LoadInt32(&transport.calls); got != 1 {
		t.Errorf("Expected exactly 1 send, got %d", got)
	}
}

func TestPageLeave_RecordsDuration(t *testing.T) {
	transport := &fakeTransport{}
	now := int64(1700000000000)
	c := testCollector(transport, func(cfg *Config) {
		cfg.BatchSize = 10
		cfg.Now = func() time.Time { return time.UnixMilli(now) }
	})

	c.PageEnter("/docs")
	now += 4500
	c.PageLeave("/docs")
	c.Flush(false)

	if transport.batchCount() != 1 {
		t.Fatalf("Expected 1 batch, got %d", transport.batchCount())
	}
	events := transport.batches[0]
	if events[0].EventName != models.EventPageEnter || events[1].EventName != models.EventPageLeave {
		t.Fatalf("Expected enter/leave pair, got %s/%s", events[0].EventName, events[1].EventName)
	}
	if events[1].Business == nil || events[1].Business.Duration != 4500 {
		t.Errorf("Expected leave duration 4500ms, got %+v", events[1].Business)
	}
}

func TestDisabledCollector_DropsEverything(t *testing.T) {
	transport := &fakeTransport{}
	c := testCollector(transport, func(cfg *Config) {
		cfg.BatchSize = 1
		cfg.Enabled = false
	})

	c.Track("a", models.EventTypeUserAction, nil, nil)
	c.Flush(false)
	if transport.batchCount() != 0 {
		t.Errorf("Expected disabled collector to send nothing, got %d batches", transport.batchCount())
	}
}
