package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"docutrack/internal/database"
	"docutrack/internal/models"
)

// EventSink receives a batch of validated events. Sinks are independent:
// one sink failing must not block another.
type EventSink interface {
	Name() string
	SaveEvents(ctx context.Context, events []*models.TrackingEvent) error
}

// SinkManager fans a batch out to all configured sinks. The batch counts as
// accepted when ANY sink succeeds.
type SinkManager struct {
	sinks   []EventSink
	metrics *Metrics
}

// NewSinkManager creates a sink manager over the given sinks. metrics may be
// nil.
func NewSinkManager(metrics *Metrics, sinks ...EventSink) *SinkManager {
	return &SinkManager{sinks: sinks, metrics: metrics}
}

// SaveEvents delivers the batch to every sink concurrently and reports
// whether at least one accepted it.
func (m *SinkManager) SaveEvents(ctx context.Context, events []*models.TrackingEvent) bool {
	if len(m.sinks) == 0 {
		return false
	}

	results := make([]error, len(m.sinks))
	var wg sync.WaitGroup
	for i, sink := range m.sinks {
		wg.Add(1)
		go func(i int, sink EventSink) {
			defer wg.Done()
			if err := sink.SaveEvents(ctx, events); err != nil {
				log.Printf("⚠️  [TRACKING] Sink %s rejected batch of %d: %v", sink.Name(), len(events), err)
				if m.metrics != nil {
					m.metrics.RecordSinkFailure(sink.Name())
				}
				results[i] = err
			}
		}(i, sink)
	}
	wg.Wait()

	for _, err := range results {
		if err == nil {
			return true
		}
	}
	return false
}

// MongoSink persists events to the raw event log - the primary sink
type MongoSink struct {
	mongoDB *database.MongoDB
}

// NewMongoSink creates the primary storage sink
func NewMongoSink(mongoDB *database.MongoDB) *MongoSink {
	return &MongoSink{mongoDB: mongoDB}
}

func (s *MongoSink) Name() string { return "mongodb" }

// SaveEvents bulk-inserts the batch. The whole batch succeeds or the error
// is surfaced; there is no per-event accounting inside one insert.
func (s *MongoSink) SaveEvents(ctx context.Context, events []*models.TrackingEvent) error {
	docs := make([]interface{}, len(events))
	for i, e := range events {
		docs[i] = e
	}

	_, err := s.mongoDB.Collection(database.CollectionTrackingEvents).InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("bulk insert failed: %w", err)
	}
	return nil
}

// ConsoleSink logs batches in development mode
type ConsoleSink struct {
	logger *logrus.Logger
}

// NewConsoleSink creates the development console sink
func NewConsoleSink() *ConsoleSink {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return &ConsoleSink{logger: logger}
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) SaveEvents(_ context.Context, events []*models.TrackingEvent) error {
	for _, e := range events {
		s.logger.WithFields(logrus.Fields{
			"event":   e.EventName,
			"type":    e.EventType,
			"user":    e.UserID,
			"session": e.SessionID,
			"page":    e.Page.Path,
			"ts":      time.UnixMilli(e.Timestamp).Format(time.RFC3339),
		}).Info("tracking event")
	}
	return nil
}

// ForwarderSink relays batches to an external analytics platform. Outbound
// requests are throttled so a traffic burst cannot flood the third party.
type ForwarderSink struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewForwarderSink creates a throttled forwarder to the given endpoint
func NewForwarderSink(url string, requestsPerSecond float64) *ForwarderSink {
	return &ForwarderSink{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond)+1),
	}
}

func (s *ForwarderSink) Name() string { return "forwarder" }

func (s *ForwarderSink) SaveEvents(ctx context.Context, events []*models.TrackingEvent) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]interface{}{"events": events})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("forwarder returned status %d", resp.StatusCode)
	}
	return nil
}
