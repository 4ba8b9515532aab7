// Package collector is the embeddable client-side event collector. It
// batches events in memory and delivers them to the tracking endpoint with
// bounded retry. No collector failure ever propagates to the host
// application: delivery errors are logged (in debug mode) and swallowed.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"docutrack/internal/models"
)

// Config controls collector behavior. The zero value is unusable; pass at
// least Endpoint and call New to apply defaults.
type Config struct {
	Endpoint      string
	BatchSize     int           // default 10
	FlushInterval time.Duration // default 5s
	MaxRetries    int           // default 3
	SampleRate    float64       // fraction of events kept; 1 keeps everything, 0 drops everything
	Enabled       bool
	Debug         bool

	HTTPClient *http.Client

	// Snapshot providers capture the host's current page and device state
	// at event time. Optional.
	PageProvider   func() models.PageInfo
	DeviceProvider func() models.DeviceInfo

	// Injectable for tests
	Now  func() time.Time
	Rand func() float64
}

const immediateSendTimeout = 2 * time.Second

type queuedEvent struct {
	event   models.TrackingEvent
	retries int
}

// Collector buffers events and flushes them in batches
type Collector struct {
	cfg       Config
	sessionID string

	mu     sync.Mutex
	queue  []queuedEvent
	userID string
	orgID  string
	enters map[string]int64 // page path -> enter timestamp

	flushing bool

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New creates a collector with defaults applied. Each collector instance is
// one session.
func New(cfg Config) *Collector {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SampleRate < 0 {
		cfg.SampleRate = 0
	}
	if cfg.SampleRate > 1 {
		cfg.SampleRate = 1
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}

	return &Collector{
		cfg:       cfg,
		sessionID: uuid.New().String(),
		enters:    make(map[string]int64),
		stop:      make(chan struct{}),
	}
}

// SessionID returns this collector's session identifier
func (c *Collector) SessionID() string {
	return c.sessionID
}

// SetUser attaches identity to subsequent events. Already-queued events
// keep the identity they were captured with.
func (c *Collector) SetUser(userID, orgID string) {
	c.mu.Lock()
	c.userID = userID
	c.orgID = orgID
	c.mu.Unlock()
}

// Track captures one event. Subject to the sampling draw; enqueued events
// flush automatically once the queue reaches BatchSize.
func (c *Collector) Track(name, eventType string, properties map[string]interface{}, business *models.BusinessContext) {
	if !c.cfg.Enabled {
		return
	}
	if c.cfg.SampleRate < 1 && c.cfg.Rand() >= c.cfg.SampleRate {
		return
	}

	event := models.TrackingEvent{
		EventName:  name,
		EventType:  eventType,
		Timestamp:  c.cfg.Now().UnixMilli(),
		SessionID:  c.sessionID,
		Properties: properties,
		Business:   business,
	}
	if event.Properties == nil {
		event.Properties = map[string]interface{}{}
	}
	if c.cfg.PageProvider != nil {
		event.Page = c.cfg.PageProvider()
	}
	if c.cfg.DeviceProvider != nil {
		event.Device = c.cfg.DeviceProvider()
	}

	c.mu.Lock()
	event.UserID = c.userID
	event.OrganizationID = c.orgID
	c.queue = append(c.queue, queuedEvent{event: event})
	full := len(c.queue) >= c.cfg.BatchSize
	c.mu.Unlock()

	if full {
		c.Flush(false)
	}
}

// Flush sends up to one batch. A flush while another is running is a no-op.
// In normal mode a failed send re-queues the batch at the FRONT with retry
// counts bumped; events past MaxRetries are dropped. Immediate mode sends
// detached with a short deadline and never retries - it exists for
// shutdown/page-hide paths where the host is about to go away.
func (c *Collector) Flush(immediate bool) {
	c.mu.Lock()
	if c.flushing || len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	c.flushing = true

	n := c.cfg.BatchSize
	if n > len(c.queue) {
		n = len(c.queue)
	}
	batch := make([]queuedEvent, n)
	copy(batch, c.queue[:n])
	c.queue = c.queue[n:]
	c.mu.Unlock()

	if immediate {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), immediateSendTimeout)
			defer cancel()
			if err := c.send(ctx, batch); err != nil {
				c.debugf("immediate send dropped %d events: %v", len(batch), err)
			}
			c.mu.Lock()
			c.flushing = false
			c.mu.Unlock()
		}()
		return
	}

	err := c.send(context.Background(), batch)

	c.mu.Lock()
	if err != nil {
		c.debugf("batch send failed, requeueing: %v", err)
		requeue := make([]queuedEvent, 0, len(batch))
		for _, qe := range batch {
			qe.retries++
			if qe.retries > c.cfg.MaxRetries {
				c.debugf("dropping event %s after %d retries", qe.event.EventName, qe.retries-1)
				continue
			}
			requeue = append(requeue, qe)
		}
		c.queue = append(requeue, c.queue...)
	}
	c.flushing = false
	c.mu.Unlock()
}

func (c *Collector) send(ctx context.Context, batch []queuedEvent) error {
	events := make([]models.TrackingEvent, len(batch))
	for i, qe := range batch {
		events[i] = qe.event
	}

	payload, err := json.Marshal(map[string]interface{}{"events": events})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("tracking endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// PageEnter records a page view and remembers the enter time for duration
// accounting
func (c *Collector) PageEnter(path string) {
	now := c.cfg.Now().UnixMilli()
	c.mu.Lock()
	c.enters[path] = now
	c.mu.Unlock()

	c.Track(models.EventPageEnter, models.EventTypePageView, map[string]interface{}{
		"path": path,
	}, nil)
}

// PageLeave records leaving a page with the time spent on it
func (c *Collector) PageLeave(path string) {
	now := c.cfg.Now().UnixMilli()

	c.mu.Lock()
	entered, ok := c.enters[path]
	delete(c.enters, path)
	c.mu.Unlock()

	var duration int64
	if ok {
		duration = now - entered
	}

	c.Track(models.EventPageLeave, models.EventTypePageView, map[string]interface{}{
		"path": path,
	}, &models.BusinessContext{Duration: duration})
}

// CaptureError records a runtime error
func (c *Collector) CaptureError(err error, properties map[string]interface{}) {
	if err == nil {
		return
	}
	if properties == nil {
		properties = map[string]interface{}{}
	}
	properties["message"] = err.Error()
	c.Track(models.EventErrorJS, models.EventTypeError, properties, nil)
}

// CaptureRejection records an unhandled async failure
func (c *Collector) CaptureRejection(reason string) {
	c.Track(models.EventErrorJS, models.EventTypeError, map[string]interface{}{
		"message": reason,
		"kind":    "unhandled_rejection",
	}, nil)
}

// CapturePerformance records page load timing marks. Values are
// milliseconds; zero values are skipped.
func (c *Collector) CapturePerformance(loadTime, fcp, lcp float64) {
	if loadTime > 0 {
		c.Track(models.EventPerformanceLoad, models.EventTypePerformance, map[string]interface{}{
			"metric":   "load_time",
			"value":    loadTime,
			"loadTime": loadTime,
			"fcp":      fcp,
		}, nil)
	}
	if fcp > 0 {
		c.Track(models.EventPerformanceFCP, models.EventTypePerformance, map[string]interface{}{
			"metric": "fcp",
			"value":  fcp,
			"fcp":    fcp,
		}, nil)
	}
	if lcp > 0 {
		c.Track(models.EventPerformanceLCP, models.EventTypePerformance, map[string]interface{}{
			"metric": "lcp",
			"value":  lcp,
		}, nil)
	}
}

// Start launches the interval flusher
func (c *Collector) Start() {
	if !c.cfg.Enabled {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Flush(false)
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop forces a final immediate flush and stops the interval flusher
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.Flush(true)
		c.wg.Wait()
	})
}

// OnOnline should be called when connectivity returns; it drains a batch
func (c *Collector) OnOnline() {
	c.Flush(false)
}

// OnHidden should be called when the host is about to become invisible or
// terminate; it sends what it can without blocking
func (c *Collector) OnHidden() {
	c.Flush(true)
}

func (c *Collector) debugf(format string, args ...interface{}) {
	if c.cfg.Debug {
		log.Printf("[COLLECTOR] "+format, args...)
	}
}
