package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docutrack/internal/database"
	"docutrack/internal/models"
)

// MonitoringService answers operational status queries: subsystem health,
// coarse performance numbers derived from the event stream, and a recent
// event feed for the admin dashboard.
type MonitoringService struct {
	mongoDB   *database.MongoDB
	redis     *RedisService
	analytics *AnalyticsService
	startedAt time.Time
	now       func() time.Time
}

// NewMonitoringService creates a new monitoring service
func NewMonitoringService(mongoDB *database.MongoDB, redis *RedisService, analytics *AnalyticsService) *MonitoringService {
	return &MonitoringService{
		mongoDB:   mongoDB,
		redis:     redis,
		analytics: analytics,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// GetSystemStatus reports per-subsystem health and process uptime
func (s *MonitoringService) GetSystemStatus(ctx context.Context) map[string]interface{} {
	subsystems := map[string]string{}

	if s.mongoDB == nil {
		subsystems["mongodb"] = "disabled"
	} else if err := s.mongoDB.Ping(ctx); err != nil {
		subsystems["mongodb"] = "unhealthy"
	} else {
		subsystems["mongodb"] = "healthy"
	}

	if s.redis == nil {
		subsystems["redis"] = "disabled"
	} else if err := s.redis.Ping(ctx); err != nil {
		subsystems["redis"] = "unhealthy"
	} else {
		subsystems["redis"] = "healthy"
	}

	status := "healthy"
	for _, v := range subsystems {
		if v == "unhealthy" {
			status = "degraded"
			break
		}
	}

	return map[string]interface{}{
		"status":        status,
		"subsystems":    subsystems,
		"uptimeSeconds": int64(s.now().Sub(s.startedAt).Seconds()),
		"timestamp":     s.now().UTC().Format(time.RFC3339),
	}
}

// GetPerformanceMetrics derives coarse service-level numbers from the last
// 24 hours of events: average page load time, the error-event rate and the
// current online-user count.
func (s *MonitoringService) GetPerformanceMetrics(ctx context.Context) map[string]interface{} {
	result := map[string]interface{}{
		"avgResponseTime":   float64(0),
		"errorRate":         float64(0),
		"activeConnections": int64(0),
	}

	if s.mongoDB == nil {
		return result
	}

	now := s.now()
	since := now.Add(-24 * time.Hour).UnixMilli()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"timestamp": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{
			"_id":         nil,
			"totalEvents": bson.M{"$sum": 1},
			"errorEvents": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$eventType", models.EventTypeError}}, 1, 0},
			}},
			"avgLoadTime": bson.M{"$avg": bson.M{
				"$cond": bson.A{
					bson.M{"$eq": bson.A{"$eventName", models.EventPerformanceLoad}},
					"$properties.loadTime",
					nil,
				},
			}},
		}}},
	}

	cursor, err := s.mongoDB.Collection(database.CollectionTrackingEvents).Aggregate(ctx, pipeline)
	if err == nil {
		var rows []bson.M
		if err := cursor.All(ctx, &rows); err == nil && len(rows) > 0 {
			total := extractInt64(rows[0], "totalEvents")
			errors := extractInt64(rows[0], "errorEvents")
			result["avgResponseTime"] = extractFloat64(rows[0], "avgLoadTime")
			if total > 0 {
				result["errorRate"] = float64(errors) / float64(total)
			}
		}
	}

	if s.analytics != nil {
		realtime := s.analytics.GetRealtime(ctx)
		if online, ok := realtime["onlineUsers"].(int64); ok {
			result["activeConnections"] = online
		}
	}

	return result
}

// GetPerformanceTrend returns hourly event and error counts over the last
// 24 hours
func (s *MonitoringService) GetPerformanceTrend(ctx context.Context) []map[string]interface{} {
	if s.mongoDB == nil {
		return []map[string]interface{}{}
	}

	now := s.now()
	since := now.Add(-24 * time.Hour).UnixMilli()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"timestamp": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$dateToString": bson.M{
				"format": "%Y-%m-%dT%H:00",
				"date":   bson.M{"$toDate": "$timestamp"},
			}},
			"events": bson.M{"$sum": 1},
			"errors": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$eventType", models.EventTypeError}}, 1, 0},
			}},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}

	cursor, err := s.mongoDB.Collection(database.CollectionTrackingEvents).Aggregate(ctx, pipeline)
	if err != nil {
		return []map[string]interface{}{}
	}

	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return []map[string]interface{}{}
	}

	trend := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		hour, _ := r["_id"].(string)
		trend = append(trend, map[string]interface{}{
			"hour":   hour,
			"events": extractInt64(r, "events"),
			"errors": extractInt64(r, "errors"),
		})
	}
	return trend
}

// GetRecentEvents returns the newest events for the live feed
func (s *MonitoringService) GetRecentEvents(ctx context.Context, limit int) []map[string]interface{} {
	if s.mongoDB == nil {
		return []map[string]interface{}{}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.M{"timestamp": -1}).
		SetLimit(int64(limit))

	cursor, err := s.mongoDB.Collection(database.CollectionTrackingEvents).Find(ctx, bson.M{}, opts)
	if err != nil {
		return []map[string]interface{}{}
	}

	var events []models.TrackingEvent
	if err := cursor.All(ctx, &events); err != nil {
		return []map[string]interface{}{}
	}

	feed := make([]map[string]interface{}, 0, len(events))
	for _, e := range events {
		feed = append(feed, map[string]interface{}{
			"eventName": e.EventName,
			"eventType": e.EventType,
			"userId":    e.UserID,
			"sessionId": e.SessionID,
			"page":      e.Page.Path,
			"timestamp": e.Timestamp,
		})
	}
	return feed
}
