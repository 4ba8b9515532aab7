package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docutrack/internal/database"
	"docutrack/internal/models"
)

// RollupService maintains the user_sessions and daily_stats rollup
// collections. Updates run on a background worker fed by a buffered channel
// so ingestion latency never pays for rollup writes. Rollups are derived
// data; RebuildDailyStats can reconstruct them from the raw event log.
type RollupService struct {
	mongoDB *database.MongoDB
	metrics *Metrics

	queue    chan []*models.TrackingEvent
	stopOnce sync.Once
	done     chan struct{}
}

const rollupQueueSize = 256

// NewRollupService creates the rollup service. Call Start to launch the
// worker.
func NewRollupService(mongoDB *database.MongoDB, metrics *Metrics) *RollupService {
	return &RollupService{
		mongoDB: mongoDB,
		metrics: metrics,
		queue:   make(chan []*models.TrackingEvent, rollupQueueSize),
		done:    make(chan struct{}),
	}
}

// Start launches the background worker
func (s *RollupService) Start(ctx context.Context) {
	go s.worker(ctx)
	log.Println("📊 Rollup worker started")
}

// Stop drains pending batches and stops the worker
func (s *RollupService) Stop() {
	s.stopOnce.Do(func() {
		close(s.queue)
		<-s.done
	})
}

// Enqueue schedules a batch for rollup processing. When the queue is full
// the batch is dropped: rollups are rebuildable, ingestion is not allowed
// to block.
func (s *RollupService) Enqueue(events []*models.TrackingEvent) {
	if s.mongoDB == nil || len(events) == 0 {
		return
	}
	select {
	case s.queue <- events:
		if s.metrics != nil {
			s.metrics.RollupQueueDepth.Set(float64(len(s.queue)))
		}
	default:
		log.Printf("⚠️  [ROLLUP] Queue full, dropping batch of %d events", len(events))
	}
}

func (s *RollupService) worker(ctx context.Context) {
	defer close(s.done)
	for batch := range s.queue {
		if s.metrics != nil {
			s.metrics.RollupQueueDepth.Set(float64(len(s.queue)))
		}
		s.apply(ctx, batch)
	}
}

func (s *RollupService) apply(ctx context.Context, events []*models.TrackingEvent) {
	opCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	s.updateSessions(opCtx, events)
	s.updateDailyStats(opCtx, events)

	if s.metrics != nil {
		s.metrics.RollupUpdates.Inc()
	}
}

// updateSessions upserts one user_sessions document per session seen in the
// batch
func (s *RollupService) updateSessions(ctx context.Context, events []*models.TrackingEvent) {
	type sessionDelta struct {
		first, last *models.TrackingEvent
		pageViews   int
		actions     int
		errors      int
	}

	deltas := make(map[string]*sessionDelta)
	for _, e := range events {
		d, ok := deltas[e.SessionID]
		if !ok {
			d = &sessionDelta{first: e, last: e}
			deltas[e.SessionID] = d
		}
		if e.Timestamp < d.first.Timestamp {
			d.first = e
		}
		if e.Timestamp >= d.last.Timestamp {
			d.last = e
		}
		switch e.EventType {
		case models.EventTypePageView:
			d.pageViews++
		case models.EventTypeError:
			d.errors++
		default:
			d.actions++
		}
	}

	coll := s.mongoDB.Collection(database.CollectionUserSessions)
	now := time.Now()
	upsert := options.Update().SetUpsert(true)

	for sessionID, d := range deltas {
		update := bson.M{
			"$setOnInsert": bson.M{
				"sessionId": sessionID,
				"startedAt": d.first.Timestamp,
				"entryPage": d.first.Page.Path,
				"device":    d.first.Device,
			},
			"$set": bson.M{
				"endedAt":   d.last.Timestamp,
				"exitPage":  d.last.Page.Path,
				"updatedAt": now,
			},
			"$inc": bson.M{
				"pageViews": d.pageViews,
				"actions":   d.actions,
				"errors":    d.errors,
			},
		}
		if d.last.UserID != "" {
			update["$set"].(bson.M)["userId"] = d.last.UserID
		}

		if _, err := coll.UpdateOne(ctx, bson.M{"sessionId": sessionID}, update, upsert); err != nil {
			log.Printf("⚠️  [ROLLUP] Session upsert failed for %s: %v", sessionID, err)
		}
	}
}

// updateDailyStats increments per-day counters for each UTC day touched by
// the batch. Distinct-count fields are approximated incrementally and made
// exact by the nightly rebuild.
func (s *RollupService) updateDailyStats(ctx context.Context, events []*models.TrackingEvent) {
	type dayDelta struct {
		total  int64
		byType map[string]int64
	}

	days := make(map[string]*dayDelta)
	for _, e := range events {
		date := time.UnixMilli(e.Timestamp).UTC().Format("2006-01-02")
		d, ok := days[date]
		if !ok {
			d = &dayDelta{byType: make(map[string]int64)}
			days[date] = d
		}
		d.total++
		d.byType[e.EventType]++
	}

	coll := s.mongoDB.Collection(database.CollectionDailyStats)
	now := time.Now()
	upsert := options.Update().SetUpsert(true)

	for date, d := range days {
		inc := bson.M{"totalEvents": d.total}
		for eventType, count := range d.byType {
			inc["countsByType."+eventType] = count
		}

		update := bson.M{
			"$setOnInsert": bson.M{"date": date},
			"$set":         bson.M{"updatedAt": now},
			"$inc":         inc,
		}

		if _, err := coll.UpdateOne(ctx, bson.M{"date": date}, update, upsert); err != nil {
			log.Printf("⚠️  [ROLLUP] Daily stats update failed for %s: %v", date, err)
		}
	}
}

// RebuildDailyStats recomputes daily_stats for the given number of past days
// from the raw event log, replacing the incremental approximations with
// exact distinct counts and top pages.
func (s *RollupService) RebuildDailyStats(ctx context.Context, days int) error {
	if s.mongoDB == nil {
		return fmt.Errorf("mongodb not available")
	}

	now := time.Now().UTC()
	since := now.Add(-time.Duration(days) * 24 * time.Hour).Truncate(24 * time.Hour)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"timestamp": bson.M{"$gte": since.UnixMilli()},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"date": bson.M{"$dateToString": bson.M{
					"format": "%Y-%m-%d",
					"date":   bson.M{"$toDate": "$timestamp"},
				}},
				"type": "$eventType",
			},
			"count":    bson.M{"$sum": 1},
			"users":    bson.M{"$addToSet": "$userId"},
			"sessions": bson.M{"$addToSet": "$sessionId"},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":         "$_id.date",
			"totalEvents": bson.M{"$sum": "$count"},
			"byType": bson.M{"$push": bson.M{
				"type":  "$_id.type",
				"count": "$count",
			}},
			"users":    bson.M{"$push": "$users"},
			"sessions": bson.M{"$push": "$sessions"},
		}}},
		{{Key: "$project", Value: bson.M{
			"totalEvents": 1,
			"byType":      1,
			"uniqueUsers": bson.M{"$size": bson.M{"$setDifference": bson.A{
				bson.M{"$reduce": bson.M{
					"input":        "$users",
					"initialValue": bson.A{},
					"in":           bson.M{"$setUnion": bson.A{"$$value", "$$this"}},
				}},
				bson.A{nil, ""},
			}}},
			"uniqueSessions": bson.M{"$size": bson.M{"$reduce": bson.M{
				"input":        "$sessions",
				"initialValue": bson.A{},
				"in":           bson.M{"$setUnion": bson.A{"$$value", "$$this"}},
			}}},
		}}},
	}

	cursor, err := s.mongoDB.Collection(database.CollectionTrackingEvents).Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("rebuild aggregation failed: %w", err)
	}

	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return fmt.Errorf("rebuild cursor failed: %w", err)
	}

	coll := s.mongoDB.Collection(database.CollectionDailyStats)
	upsert := options.Update().SetUpsert(true)

	for _, row := range rows {
		date, _ := row["_id"].(string)
		if date == "" {
			continue
		}

		countsByType := map[string]int64{}
		if byType, ok := row["byType"].(bson.A); ok {
			for _, entry := range byType {
				if m, ok := entry.(bson.M); ok {
					if t, ok := m["type"].(string); ok {
						countsByType[t] = extractInt64(m, "count")
					}
				}
			}
		}

		topPages, err := s.topPagesForDay(ctx, date)
		if err != nil {
			log.Printf("⚠️  [ROLLUP] Top pages rebuild failed for %s: %v", date, err)
		}

		update := bson.M{
			"$set": bson.M{
				"totalEvents":    extractInt64(row, "totalEvents"),
				"countsByType":   countsByType,
				"uniqueUsers":    extractInt64(row, "uniqueUsers"),
				"uniqueSessions": extractInt64(row, "uniqueSessions"),
				"topPages":       topPages,
				"updatedAt":      time.Now(),
			},
			"$setOnInsert": bson.M{"date": date},
		}

		if _, err := coll.UpdateOne(ctx, bson.M{"date": date}, update, upsert); err != nil {
			return fmt.Errorf("rebuild upsert failed for %s: %w", date, err)
		}
	}

	log.Printf("✅ [ROLLUP] Rebuilt daily stats for %d days (%d touched)", days, len(rows))
	return nil
}

func (s *RollupService) topPagesForDay(ctx context.Context, date string) ([]models.PageCount, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, err
	}
	start := day.UnixMilli()
	end := day.Add(24 * time.Hour).UnixMilli()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"eventType": models.EventTypePageView,
			"timestamp": bson.M{"$gte": start, "$lt": end},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$page.path",
			"views": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"views": -1}}},
		{{Key: "$limit", Value: 10}},
	}

	cursor, err := s.mongoDB.Collection(database.CollectionTrackingEvents).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	pages := make([]models.PageCount, 0, len(rows))
	for _, r := range rows {
		path, _ := r["_id"].(string)
		pages = append(pages, models.PageCount{
			Path:  path,
			Views: extractInt64(r, "views"),
		})
	}
	return pages, nil
}
