package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"docutrack/internal/database"
	"docutrack/internal/models"
)

// DocumentAnalyticsService answers document-centric dashboard queries:
// fleet-wide document activity, template usage and collaboration load.
type DocumentAnalyticsService struct {
	mongoDB *database.MongoDB
	metrics *Metrics
	now     func() time.Time
}

// NewDocumentAnalyticsService creates a new document analytics service
func NewDocumentAnalyticsService(mongoDB *database.MongoDB, metrics *Metrics) *DocumentAnalyticsService {
	return &DocumentAnalyticsService{
		mongoDB: mongoDB,
		metrics: metrics,
		now:     time.Now,
	}
}

// GetDashboard returns the full document analytics dashboard payload
func (s *DocumentAnalyticsService) GetDashboard(ctx context.Context, days int) map[string]interface{} {
	if s.metrics != nil {
		start := s.now()
		defer func() {
			s.metrics.RecordAggregation("documents", time.Since(start).Seconds())
		}()
	}

	if s.mongoDB == nil {
		return map[string]interface{}{
			"documentStats":    map[string]interface{}{},
			"documentTrend":    []map[string]interface{}{},
			"templateUsage":    []map[string]interface{}{},
			"collaboration":    []map[string]interface{}{},
			"popularDocuments": []map[string]interface{}{},
		}
	}

	now := s.now()
	w := currentWindow(now, days)

	return map[string]interface{}{
		"documentStats":    s.documentStats(ctx, w),
		"documentTrend":    s.documentTrend(ctx, w),
		"templateUsage":    s.templateUsage(ctx, w),
		"collaboration":    s.collaborationActivity(ctx, now),
		"popularDocuments": s.popularDocuments(ctx, w, 10),
	}
}

func (s *DocumentAnalyticsService) documentStats(ctx context.Context, w window) map[string]interface{} {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"eventType": models.EventTypeDocumentAction,
			"timestamp": bson.M{"$gte": w.Start, "$lt": w.End},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":          nil,
			"totalActions": bson.M{"$sum": 1},
			"documents":    bson.M{"$addToSet": "$business.documentId"},
			"creates": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$eventName", models.EventDocumentCreate}}, 1, 0},
			}},
			"edits": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$eventName", models.EventDocumentEdit}}, 1, 0},
			}},
			"shares": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$eventName", models.EventDocumentShare}}, 1, 0},
			}},
		}}},
		{{Key: "$project", Value: bson.M{
			"totalActions":    1,
			"uniqueDocuments": bson.M{"$size": "$documents"},
			"creates":         1,
			"edits":           1,
			"shares":          1,
		}}},
	}

	results, err := s.aggregate(ctx, pipeline)
	if err != nil || len(results) == 0 {
		return map[string]interface{}{
			"totalActions":    int64(0),
			"uniqueDocuments": int64(0),
			"creates":         int64(0),
			"edits":           int64(0),
			"shares":          int64(0),
		}
	}
	return map[string]interface{}{
		"totalActions":    extractInt64(results[0], "totalActions"),
		"uniqueDocuments": extractInt64(results[0], "uniqueDocuments"),
		"creates":         extractInt64(results[0], "creates"),
		"edits":           extractInt64(results[0], "edits"),
		"shares":          extractInt64(results[0], "shares"),
	}
}

func (s *DocumentAnalyticsService) documentTrend(ctx context.Context, w window) []map[string]interface{} {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"eventType": models.EventTypeDocumentAction,
			"timestamp": bson.M{"$gte": w.Start, "$lt": w.End},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":       dateByDay(),
			"actions":   bson.M{"$sum": 1},
			"documents": bson.M{"$addToSet": "$business.documentId"},
		}}},
		{{Key: "$project", Value: bson.M{
			"actions":   1,
			"documents": bson.M{"$size": "$documents"},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}

	results, err := s.aggregate(ctx, pipeline)
	if err != nil {
		return []map[string]interface{}{}
	}

	trend := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		date, _ := r["_id"].(string)
		trend = append(trend, map[string]interface{}{
			"date":      date,
			"actions":   extractInt64(r, "actions"),
			"documents": extractInt64(r, "documents"),
		})
	}
	return trend
}

func (s *DocumentAnalyticsService) templateUsage(ctx context.Context, w window) []map[string]interface{} {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"eventName":             models.EventDocumentCreate,
			"timestamp":             bson.M{"$gte": w.Start, "$lt": w.End},
			"properties.templateId": bson.M{"$exists": true},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$properties.templateId",
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"count": -1}}},
		{{Key: "$limit", Value: 10}},
	}

	results, err := s.aggregate(ctx, pipeline)
	if err != nil {
		return []map[string]interface{}{}
	}

	usage := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		templateID, _ := r["_id"].(string)
		usage = append(usage, map[string]interface{}{
			"templateId": templateID,
			"count":      extractInt64(r, "count"),
		})
	}
	return usage
}

// collaborationActivity buckets the last 24 hours of collaboration events
// by hour
func (s *DocumentAnalyticsService) collaborationActivity(ctx context.Context, now time.Time) []map[string]interface{} {
	since := now.Add(-24 * time.Hour).UnixMilli()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"eventType": models.EventTypeCollaboration,
			"timestamp": bson.M{"$gte": since},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$dateToString": bson.M{
				"format": "%Y-%m-%dT%H:00",
				"date":   bson.M{"$toDate": "$timestamp"},
			}},
			"events":       bson.M{"$sum": 1},
			"participants": bson.M{"$addToSet": "$userId"},
			"rooms":        bson.M{"$addToSet": "$business.roomId"},
		}}},
		{{Key: "$project", Value: bson.M{
			"events":       1,
			"participants": bson.M{"$size": "$participants"},
			"rooms":        bson.M{"$size": "$rooms"},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}

	results, err := s.aggregate(ctx, pipeline)
	if err != nil {
		return []map[string]interface{}{}
	}

	activity := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		hour, _ := r["_id"].(string)
		activity = append(activity, map[string]interface{}{
			"hour":         hour,
			"events":       extractInt64(r, "events"),
			"participants": extractInt64(r, "participants"),
			"rooms":        extractInt64(r, "rooms"),
		})
	}
	return activity
}

func (s *DocumentAnalyticsService) popularDocuments(ctx context.Context, w window, limit int) []map[string]interface{} {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"eventType":           models.EventTypeDocumentAction,
			"timestamp":           bson.M{"$gte": w.Start, "$lt": w.End},
			"business.documentId": bson.M{"$nin": bson.A{nil, ""}},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":         "$business.documentId",
			"actions":     bson.M{"$sum": 1},
			"uniqueUsers": bson.M{"$addToSet": "$userId"},
			"lastActive":  bson.M{"$max": "$timestamp"},
		}}},
		{{Key: "$project", Value: bson.M{
			"actions":     1,
			"uniqueUsers": bson.M{"$size": "$uniqueUsers"},
			"lastActive":  1,
		}}},
		{{Key: "$sort", Value: bson.M{"actions": -1}}},
		{{Key: "$limit", Value: limit}},
	}

	results, err := s.aggregate(ctx, pipeline)
	if err != nil {
		return []map[string]interface{}{}
	}

	docs := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		documentID, _ := r["_id"].(string)
		docs = append(docs, map[string]interface{}{
			"documentId":  documentID,
			"actions":     extractInt64(r, "actions"),
			"uniqueUsers": extractInt64(r, "uniqueUsers"),
			"lastActive":  extractInt64(r, "lastActive"),
		})
	}
	return docs
}

func (s *DocumentAnalyticsService) aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.M, error) {
	cursor, err := s.mongoDB.Collection(database.CollectionTrackingEvents).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var results []bson.M
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}
