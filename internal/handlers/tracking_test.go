package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"docutrack/internal/models"
	"docutrack/internal/services"
)

type captureSink struct {
	err   error
	saved [][]*models.TrackingEvent
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) SaveEvents(_ context.Context, events []*models.TrackingEvent) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, events)
	return nil
}

func newTrackingApp(sink services.EventSink, limit int) *fiber.App {
	app := fiber.New()
	handler := NewTrackingHandler(
		services.NewSinkManager(nil, sink),
		services.NewMemoryRateLimiter(limit, time.Minute),
		nil,
		nil,
		nil,
	)
	app.Post("/api/tracking", handler.Ingest)
	app.Options("/api/tracking", handler.Preflight)
	return app
}

func rawEvent(sessionID interface{}) map[string]interface{} {
	return map[string]interface{}{
		"eventName": "button_click",
		"eventType": "user_action",
		"timestamp": 1700000000000,
		"sessionId": sessionID,
		"page":      map[string]interface{}{"path": "/docs"},
		"device":    map[string]interface{}{"userAgent": "test"},
	}
}

func postBatch(app *fiber.App, events []map[string]interface{}, ip string) (map[string]interface{}, int) {
	body, _ := json.Marshal(map[string]interface{}{"events": events})
	req := httptest.NewRequest("POST", "/api/tracking", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}

	resp, _ := app.Test(req)
	var decoded map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&decoded)
	return decoded, resp.StatusCode
}

func TestIngest_FiltersInvalidEvents(t *testing.T) {
	sink := &captureSink{}
	app := newTrackingApp(sink, 100)

	events := []map[string]interface{}{
		rawEvent("s1"),
		rawEvent(nil), // missing sessionId
		rawEvent("s2"),
		rawEvent(""), // empty sessionId
		rawEvent("s3"),
	}
	body, status := postBatch(app, events, "1.2.3.4")

	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if body["success"] != true {
		t.Error("Expected success true")
	}
	if processed, _ := body["processed"].(float64); processed != 3 {
		t.Errorf("Expected processed 3, got %v", body["processed"])
	}
	if len(sink.saved) != 1 || len(sink.saved[0]) != 3 {
		t.Errorf("Expected one batch of 3 events persisted, got %v", sink.saved)
	}
}

func TestIngest_TimestampIsEpochMillis(t *testing.T) {
	app := newTrackingApp(&captureSink{}, 100)

	before := time.Now().UnixMilli()
	body, status := postBatch(app, []map[string]interface{}{rawEvent("s1")}, "1.2.3.4")
	after := time.Now().UnixMilli()

	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	ts, ok := body["timestamp"].(float64)
	if !ok {
		t.Fatalf("Expected numeric epoch-ms timestamp, got %T: %v", body["timestamp"], body["timestamp"])
	}
	if int64(ts) < before || int64(ts) > after {
		t.Errorf("Expected timestamp within [%d, %d], got %d", before, after, int64(ts))
	}
}

func TestIngest_RateLimitExceeded(t *testing.T) {
	app := newTrackingApp(&captureSink{}, 1)

	events := []map[string]interface{}{rawEvent("s1")}
	_, first := postBatch(app, events, "9.9.9.9")
	body, second := postBatch(app, events, "9.9.9.9")

	if first != fiber.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", first)
	}
	if second != fiber.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", second)
	}
	if body["error"] != "Rate limit exceeded" {
		t.Errorf("Expected rate limit error message, got %v", body["error"])
	}
}

func TestIngest_RateLimitKeyedByForwardedFor(t *testing.T) {
	app := newTrackingApp(&captureSink{}, 1)

	events := []map[string]interface{}{rawEvent("s1")}
	_, first := postBatch(app, events, "1.1.1.1, 10.0.0.1")
	_, second := postBatch(app, events, "2.2.2.2, 10.0.0.1")

	if first != fiber.StatusOK || second != fiber.StatusOK {
		t.Errorf("Expected distinct first-hop IPs to get separate windows, got %d and %d", first, second)
	}
}

func TestIngest_EmptyBatchRejected(t *testing.T) {
	app := newTrackingApp(&captureSink{}, 100)

	body, status := postBatch(app, []map[string]interface{}{}, "1.2.3.4")
	if status != fiber.StatusBadRequest {
		t.Errorf("Expected 400, got %d", status)
	}
	if body["error"] == nil {
		t.Error("Expected error message")
	}
}

func TestIngest_AllInvalidRejected(t *testing.T) {
	app := newTrackingApp(&captureSink{}, 100)

	events := []map[string]interface{}{rawEvent(nil), rawEvent("")}
	_, status := postBatch(app, events, "1.2.3.4")
	if status != fiber.StatusBadRequest {
		t.Errorf("Expected 400 when no events survive validation, got %d", status)
	}
}

func TestIngest_MalformedBodyRejected(t *testing.T) {
	app := newTrackingApp(&captureSink{}, 100)

	req := httptest.NewRequest("POST", "/api/tracking", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestIngest_AllSinksFailing(t *testing.T) {
	sink := &captureSink{err: errors.New("storage down")}
	app := newTrackingApp(sink, 100)

	events := []map[string]interface{}{rawEvent("s1")}
	body, status := postBatch(app, events, "1.2.3.4")

	if status != fiber.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", status)
	}
	if body["error"] != "Failed to process events" {
		t.Errorf("Expected processing error message, got %v", body["error"])
	}
}

func TestPreflight_CORSHeaders(t *testing.T) {
	app := newTrackingApp(&captureSink{}, 100)

	req := httptest.NewRequest("OPTIONS", "/api/tracking", nil)
	resp, _ := app.Test(req)

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if origin := resp.Header.Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("Expected wildcard origin, got %q", origin)
	}
	if methods := resp.Header.Get("Access-Control-Allow-Methods"); methods != "POST, OPTIONS" {
		t.Errorf("Expected POST, OPTIONS methods, got %q", methods)
	}
	if headers := resp.Header.Get("Access-Control-Allow-Headers"); headers != "Content-Type" {
		t.Errorf("Expected Content-Type header allowance, got %q", headers)
	}
}
