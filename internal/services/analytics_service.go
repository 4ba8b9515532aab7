package services

import (
	"context"
	"fmt"
	"log"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"docutrack/internal/database"
	"docutrack/internal/models"
)

// AnalyticsService answers read-only analytical queries over the raw event
// store. Every sub-aggregate catches its own failure and degrades to a
// zeroed default - a dashboard with partial numbers beats a hard 500.
type AnalyticsService struct {
	mongoDB *database.MongoDB
	cache   *gocache.Cache
	metrics *Metrics
	now     func() time.Time // injectable for tests
}

// NewAnalyticsService creates a new analytics service. Aggregation results
// are cached for cacheTTL so dashboard refreshes do not hammer the store.
func NewAnalyticsService(mongoDB *database.MongoDB, metrics *Metrics, cacheTTL time.Duration) *AnalyticsService {
	return &AnalyticsService{
		mongoDB: mongoDB,
		cache:   gocache.New(cacheTTL, 2*cacheTTL),
		metrics: metrics,
		now:     time.Now,
	}
}

// collection returns the raw event collection
func (s *AnalyticsService) collection() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionTrackingEvents)
}

// cached runs fn once per cache TTL for a given key
func (s *AnalyticsService) cached(key string, fn func() map[string]interface{}) map[string]interface{} {
	if v, ok := s.cache.Get(key); ok {
		return v.(map[string]interface{})
	}
	result := fn()
	s.cache.Set(key, result, gocache.DefaultExpiration)
	return result
}

// observe records aggregation latency
func (s *AnalyticsService) observe(queryType string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordAggregation(queryType, time.Since(start).Seconds())
	}
}

// GetOverview returns the dashboard overview: basic counters with
// period-over-period changes, event type distribution, daily trend, top
// pages, hour-of-day activity and AI interaction volume.
func (s *AnalyticsService) GetOverview(ctx context.Context, days int) map[string]interface{} {
	defer s.observe("overview", s.now())

	if s.mongoDB == nil {
		return emptyOverview()
	}

	return s.cached(cacheKey("overview", days), func() map[string]interface{} {
		now := s.now()
		cur := currentWindow(now, days)
		prev := previousWindow(now, days)

		basicStats := s.basicStats(ctx, cur)
		prevStats := s.basicStats(ctx, prev)

		changes := map[string]Change{
			"totalEvents":    PercentChange(basicStats.TotalEvents, prevStats.TotalEvents),
			"uniqueUsers":    PercentChange(basicStats.UniqueUsers, prevStats.UniqueUsers),
			"uniqueSessions": PercentChange(basicStats.UniqueSessions, prevStats.UniqueSessions),
		}

		return map[string]interface{}{
			"basicStats": map[string]interface{}{
				"totalEvents":    basicStats.TotalEvents,
				"uniqueUsers":    basicStats.UniqueUsers,
				"uniqueSessions": basicStats.UniqueSessions,
			},
			"changes":               changes,
			"eventTypeDistribution": s.eventTypeDistribution(ctx, cur),
			"dailyTrend":            s.dailyTrend(ctx, now, days),
			"topPages":              s.topPages(ctx, cur, 10),
			"userActivity":          s.hourlyActivity(ctx, cur),
			"aiInteractions":        s.aiInteractionTrend(ctx, cur),
		}
	})
}

type basicStats struct {
	TotalEvents    int64
	UniqueUsers    int64
	UniqueSessions int64
}

func (s *AnalyticsService) basicStats(ctx context.Context, w window) basicStats {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: matchWindow(w)}},
		{{Key: "$group", Value: bson.M{
			"_id":            nil,
			"totalEvents":    bson.M{"$sum": 1},
			"uniqueUsers":    bson.M{"$addToSet": "$userId"},
			"uniqueSessions": bson.M{"$addToSet": "$sessionId"},
		}}},
		{{Key: "$project", Value: bson.M{
			"totalEvents":    1,
			"uniqueUsers":    bson.M{"$size": "$uniqueUsers"},
			"uniqueSessions": bson.M{"$size": "$uniqueSessions"},
		}}},
	}

	results, err := s.aggregate(ctx, pipeline)
	if err != nil || len(results) == 0 {
		return basicStats{}
	}
	return basicStats{
		TotalEvents:    extractInt64(results[0], "totalEvents"),
		UniqueUsers:    extractInt64(results[0], "uniqueUsers"),
		UniqueSessions: extractInt64(results[0], "uniqueSessions"),
	}
}

func (s *AnalyticsService) eventTypeDistribution(ctx context.Context, w window) []map[string]interface{} {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: matchWindow(w)}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$eventType",
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"count": -1}}},
	}

	results, err := s.aggregate(ctx, pipeline)
	if err != nil {
		return []map[string]interface{}{}
	}

	distribution := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		eventType, _ := r["_id"].(string)
		distribution = append(distribution, map[string]interface{}{
			"type":  eventType,
			"count": extractInt64(r, "count"),
		})
	}
	return distribution
}

func (s *AnalyticsService) dailyTrend(ctx context.Context, now time.Time, days int) []map[string]interface{} {
	w := currentWindow(now, days)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: matchWindow(w)}},
		{{Key: "$group", Value: bson.M{
			"_id":      dateByDay(),
			"events":   bson.M{"$sum": 1},
			"users":    bson.M{"$addToSet": "$userId"},
			"sessions": bson.M{"$addToSet": "$sessionId"},
		}}},
		{{Key: "$project", Value: bson.M{
			"events":   1,
			"users":    bson.M{"$size": "$users"},
			"sessions": bson.M{"$size": "$sessions"},
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
			"date":     date,
			"events":   extractInt64(r, "events"),
			"users":    extractInt64(r, "users"),
			"sessions": extractInt64(r, "sessions"),
		})
	}

	startDate := now.UTC().Add(-time.Duration(days) * 24 * time.Hour).Truncate(24 * time.Hour)
	return fillMissingDates(trend, startDate, days, map[string]interface{}{
		"events": int64(0), "users": int64(0), "sessions": int64(0),
	})
}

func (s *AnalyticsService) topPages(ctx context.Context, w window, limit int) []map[string]interface{} {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"timestamp": bson.M{"$gte": w.Start, "$lt": w.End},
			"eventType": models.EventTypePageView,
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":         "$page.path",
			"views":       bson.M{"$sum": 1},
			"uniqueUsers": bson.M{"$addToSet": "$userId"},
		}}},
		{{Key: "$project", Value: bson.M{
			"views":       1,
			"uniqueUsers": bson.M{"$size": "$uniqueUsers"},
		}}},
		{{Key: "$sort", Value: bson.M{"views": -1}}},
		{{Key: "$limit", Value: limit}},
	}

	results, err := s.aggregate(ctx, pipeline)
	if err != nil {
		return []map[string]interface{}{}
	}

	pages := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		path, _ := r["_id"].(string)
		pages = append(pages, map[string]interface{}{
			"path":        path,
			"views":       extractInt64(r, "views"),
			"uniqueUsers": extractInt64(r, "uniqueUsers"),
		})
	}
	return pages
}

func (s *AnalyticsService) hourlyActivity(ctx context.Context, w window) []map[string]interface{} {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: matchWindow(w)}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"$hour": bson.M{"$toDate": "$timestamp"}},
			"users": bson.M{"$addToSet": "$userId"},
		}}},
		{{Key: "$project", Value: bson.M{
			"users": bson.M{"$size": "$users"},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}

	results, err := s.aggregate(ctx, pipeline)
	if err != nil {
		return hourBuckets(nil)
	}

	byHour := make(map[int]int64)
	for _, r := range results {
		hour := int(extractInt64(r, "_id"))
		byHour[hour] = extractInt64(r, "users")
	}
	return hourBuckets(func(hour int) map[string]interface{} {
		return map[string]interface{}{"users": byHour[hour]}
	})
}

func (s *AnalyticsService) aiInteractionTrend(ctx context.Context, w window) []map[string]interface{} {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"eventType": models.EventTypeAIInteraction,
			"timestamp": bson.M{"$gte": w.Start, "$lt": w.End},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":           dateByDay(),
			"conversations": bson.M{"$addToSet": "$sessionId"},
			"messages":      bson.M{"$sum": 1},
		}}},
		{{Key: "$project", Value: bson.M{
			"conversations": bson.M{"$size": "$conversations"},
			"messages":      1,
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
			"date":          date,
			"conversations": extractInt64(r, "conversations"),
			"messages":      extractInt64(r, "messages"),
		})
	}
	return trend
}

// GetUserAnalytics returns one user's behavior summary
func (s *AnalyticsService) GetUserAnalytics(ctx context.Context, userID string, days int) map[string]interface{} {
	defer s.observe("user", s.now())

	if s.mongoDB == nil {
		return map[string]interface{}{
			"userStats":        map[string]interface{}{},
			"behaviorPattern":  []map[string]interface{}{},
			"timeDistribution": []map[string]interface{}{},
		}
	}

	now := s.now()
	cur := currentWindow(now, days)

	userStats := map[string]interface{}{}
	statsPipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"userId":    userID,
			"timestamp": bson.M{"$gte": cur.Start, "$lt": cur.End},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":         nil,
			"totalEvents": bson.M{"$sum": 1},
			"sessions":    bson.M{"$addToSet": "$sessionId"},
			"pages":       bson.M{"$addToSet": "$page.path"},
			"documents":   bson.M{"$addToSet": "$business.documentId"},
		}}},
		{{Key: "$project", Value: bson.M{
			"totalEvents":       1,
			"totalSessions":     bson.M{"$size": "$sessions"},
			"uniquePages":       bson.M{"$size": "$pages"},
			"documentsAccessed": bson.M{"$size": "$documents"},
		}}},
	}
	if results, err := s.aggregate(ctx, statsPipeline); err == nil && len(results) > 0 {
		userStats = map[string]interface{}{
			"totalEvents":       extractInt64(results[0], "totalEvents"),
			"totalSessions":     extractInt64(results[0], "totalSessions"),
			"uniquePages":       extractInt64(results[0], "uniquePages"),
			"documentsAccessed": extractInt64(results[0], "documentsAccessed"),
		}
	}

	behaviorPattern := []map[string]interface{}{}
	patternPipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"userId":    userID,
			"timestamp": bson.M{"$gte": cur.Start, "$lt": cur.End},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":         "$eventType",
			"count":       bson.M{"$sum": 1},
			"avgDuration": bson.M{"$avg": "$business.duration"},
		}}},
		{{Key: "$sort", Value: bson.M{"count": -1}}},
	}
	if results, err := s.aggregate(ctx, patternPipeline); err == nil {
		for _, r := range results {
			eventType, _ := r["_id"].(string)
			behaviorPattern = append(behaviorPattern, map[string]interface{}{
				"type":        eventType,
				"count":       extractInt64(r, "count"),
				"avgDuration": extractFloat64(r, "avgDuration"),
			})
		}
	}

	timeDistribution := []map[string]interface{}{}
	timePipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"userId":    userID,
			"timestamp": bson.M{"$gte": cur.Start, "$lt": cur.End},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"$hour": bson.M{"$toDate": "$timestamp"}},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	if results, err := s.aggregate(ctx, timePipeline); err == nil {
		for _, r := range results {
			timeDistribution = append(timeDistribution, map[string]interface{}{
				"hour":  extractInt64(r, "_id"),
				"count": extractInt64(r, "count"),
			})
		}
	}

	return map[string]interface{}{
		"userStats":        userStats,
		"behaviorPattern":  behaviorPattern,
		"timeDistribution": timeDistribution,
	}
}

// GetPageAnalytics returns view statistics for a single page path
func (s *AnalyticsService) GetPageAnalytics(ctx context.Context, path string, days int) map[string]interface{} {
	defer s.observe("page", s.now())

	if s.mongoDB == nil {
		return map[string]interface{}{
			"totalViews":  int64(0),
			"uniqueUsers": int64(0),
			"viewTrend":   []map[string]interface{}{},
			"changes":     map[string]Change{},
		}
	}

	now := s.now()
	cur := currentWindow(now, days)
	prev := previousWindow(now, days)

	countViews := func(w window) (int64, int64) {
		pipeline := mongo.Pipeline{
			{{Key: "$match", Value: bson.M{
				"page.path": path,
				"eventType": models.EventTypePageView,
				"timestamp": bson.M{"$gte": w.Start, "$lt": w.End},
			}}},
			{{Key: "$group", Value: bson.M{
				"_id":         nil,
				"views":       bson.M{"$sum": 1},
				"uniqueUsers": bson.M{"$addToSet": "$userId"},
			}}},
			{{Key: "$project", Value: bson.M{
				"views":       1,
				"uniqueUsers": bson.M{"$size": "$uniqueUsers"},
			}}},
		}
		results, err := s.aggregate(ctx, pipeline)
		if err != nil || len(results) == 0 {
			return 0, 0
		}
		return extractInt64(results[0], "views"), extractInt64(results[0], "uniqueUsers")
	}

	views, uniqueUsers := countViews(cur)
	prevViews, prevUsers := countViews(prev)

	viewTrend := []map[string]interface{}{}
	trendPipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"page.path": path,
			"eventType": models.EventTypePageView,
			"timestamp": bson.M{"$gte": cur.Start, "$lt": cur.End},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   dateByDay(),
			"views": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	if results, err := s.aggregate(ctx, trendPipeline); err == nil {
		for _, r := range results {
			date, _ := r["_id"].(string)
			viewTrend = append(viewTrend, map[string]interface{}{
				"date":  date,
				"views": extractInt64(r, "views"),
			})
		}
	}

	return map[string]interface{}{
		"path":        path,
		"totalViews":  views,
		"uniqueUsers": uniqueUsers,
		"viewTrend":   viewTrend,
		"changes": map[string]Change{
			"totalViews":  PercentChange(views, prevViews),
			"uniqueUsers": PercentChange(uniqueUsers, prevUsers),
		},
	}
}

// GetEventBreakdown returns per-event-name counts within the window
func (s *AnalyticsService) GetEventBreakdown(ctx context.Context, days int) map[string]interface{} {
	defer s.observe("events", s.now())

	if s.mongoDB == nil {
		return map[string]interface{}{"events": []map[string]interface{}{}}
	}

	return s.cached(cacheKey("events", days), func() map[string]interface{} {
		now := s.now()
		cur := currentWindow(now, days)

		pipeline := mongo.Pipeline{
			{{Key: "$match", Value: matchWindow(cur)}},
			{{Key: "$group", Value: bson.M{
				"_id":         bson.M{"name": "$eventName", "type": "$eventType"},
				"count":       bson.M{"$sum": 1},
				"uniqueUsers": bson.M{"$addToSet": "$userId"},
				"lastSeen":    bson.M{"$max": "$timestamp"},
			}}},
			{{Key: "$project", Value: bson.M{
				"count":       1,
				"uniqueUsers": bson.M{"$size": "$uniqueUsers"},
				"lastSeen":    1,
			}}},
			{{Key: "$sort", Value: bson.M{"count": -1}}},
		}

		results, err := s.aggregate(ctx, pipeline)
		if err != nil {
			return map[string]interface{}{"events": []map[string]interface{}{}}
		}

		events := make([]map[string]interface{}, 0, len(results))
		for _, r := range results {
			id, _ := r["_id"].(bson.M)
			name, _ := id["name"].(string)
			eventType, _ := id["type"].(string)
			events = append(events, map[string]interface{}{
				"name":        name,
				"type":        eventType,
				"count":       extractInt64(r, "count"),
				"uniqueUsers": extractInt64(r, "uniqueUsers"),
				"lastSeen":    extractInt64(r, "lastSeen"),
			})
		}
		return map[string]interface{}{"events": events}
	})
}

// GetActiveUsers returns the active-user trend and total with comparison
func (s *AnalyticsService) GetActiveUsers(ctx context.Context, days int) map[string]interface{} {
	defer s.observe("users", s.now())

	if s.mongoDB == nil {
		return map[string]interface{}{
			"activeUsers": int64(0),
			"trend":       []map[string]interface{}{},
			"changes":     map[string]Change{},
		}
	}

	now := s.now()
	cur := currentWindow(now, days)
	prev := previousWindow(now, days)

	countActive := func(w window) int64 {
		pipeline := mongo.Pipeline{
			{{Key: "$match", Value: bson.M{
				"timestamp": bson.M{"$gte": w.Start, "$lt": w.End},
				"userId":    bson.M{"$nin": bson.A{nil, ""}},
			}}},
			{{Key: "$group", Value: bson.M{"_id": "$userId"}}},
			{{Key: "$count", Value: "activeUsers"}},
		}
		results, err := s.aggregate(ctx, pipeline)
		if err != nil || len(results) == 0 {
			return 0
		}
		return extractInt64(results[0], "activeUsers")
	}

	active := countActive(cur)
	prevActive := countActive(prev)

	trend := []map[string]interface{}{}
	trendPipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"timestamp": bson.M{"$gte": cur.Start, "$lt": cur.End},
			"userId":    bson.M{"$nin": bson.A{nil, ""}},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   dateByDay(),
			"users": bson.M{"$addToSet": "$userId"},
		}}},
		{{Key: "$project", Value: bson.M{
			"users": bson.M{"$size": "$users"},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	if results, err := s.aggregate(ctx, trendPipeline); err == nil {
		for _, r := range results {
			date, _ := r["_id"].(string)
			trend = append(trend, map[string]interface{}{
				"date":  date,
				"users": extractInt64(r, "users"),
			})
		}
	}

	return map[string]interface{}{
		"activeUsers": active,
		"trend":       trend,
		"changes": map[string]Change{
			"activeUsers": PercentChange(active, prevActive),
		},
	}
}

// GetRealtime returns the online-user count (events within the last 5
// minutes) and 5-minute event buckets over the last hour. Never cached.
func (s *AnalyticsService) GetRealtime(ctx context.Context) map[string]interface{} {
	defer s.observe("realtime", s.now())

	if s.mongoDB == nil {
		return map[string]interface{}{
			"onlineUsers":    int64(0),
			"realtimeEvents": []map[string]interface{}{},
		}
	}

	now := s.now()
	nowMs := now.UnixMilli()
	lastHour, onlineSince := realtimeBounds(now)

	var onlineUsers int64
	onlinePipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"timestamp": bson.M{"$gte": lastHour},
			"userId":    bson.M{"$nin": bson.A{nil, ""}},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":          "$userId",
			"lastActivity": bson.M{"$max": "$timestamp"},
		}}},
		{{Key: "$match", Value: bson.M{
			"lastActivity": bson.M{"$gte": onlineSince},
		}}},
		{{Key: "$count", Value: "onlineUsers"}},
	}
	if results, err := s.aggregate(ctx, onlinePipeline); err == nil && len(results) > 0 {
		onlineUsers = extractInt64(results[0], "onlineUsers")
	}

	realtimeEvents := []map[string]interface{}{}
	bucketsPipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"timestamp": bson.M{"$gte": lastHour, "$lt": nowMs},
		}}},
		{{Key: "$group", Value: bson.M{
			// 5-minute buckets over client timestamps
			"_id":      bson.M{"$floor": bson.M{"$divide": bson.A{"$timestamp", 300000}}},
			"count":    bson.M{"$sum": 1},
			"timeSlot": bson.M{"$min": "$timestamp"},
		}}},
		{{Key: "$sort", Value: bson.M{"timeSlot": 1}}},
		{{Key: "$limit", Value: 12}},
	}
	if results, err := s.aggregate(ctx, bucketsPipeline); err == nil {
		for _, r := range results {
			realtimeEvents = append(realtimeEvents, map[string]interface{}{
				"timeSlot": extractInt64(r, "timeSlot"),
				"count":    extractInt64(r, "count"),
			})
		}
	}

	return map[string]interface{}{
		"onlineUsers":    onlineUsers,
		"realtimeEvents": realtimeEvents,
	}
}

// GetPerformance returns per-metric statistics, the page-load-time
// distribution and a daily performance trend
func (s *AnalyticsService) GetPerformance(ctx context.Context, days int) map[string]interface{} {
	defer s.observe("performance", s.now())

	if s.mongoDB == nil {
		return map[string]interface{}{
			"performanceStats":     []map[string]interface{}{},
			"loadTimeDistribution": []map[string]interface{}{},
			"performanceTrend":     []map[string]interface{}{},
		}
	}

	return s.cached(cacheKey("performance", days), func() map[string]interface{} {
		now := s.now()
		cur := currentWindow(now, days)

		performanceStats := []map[string]interface{}{}
		statsPipeline := mongo.Pipeline{
			{{Key: "$match", Value: bson.M{
				"eventType": models.EventTypePerformance,
				"timestamp": bson.M{"$gte": cur.Start, "$lt": cur.End},
			}}},
			{{Key: "$group", Value: bson.M{
				"_id":      "$properties.metric",
				"avgValue": bson.M{"$avg": "$properties.value"},
				"minValue": bson.M{"$min": "$properties.value"},
				"maxValue": bson.M{"$max": "$properties.value"},
				"count":    bson.M{"$sum": 1},
			}}},
		}
		if results, err := s.aggregate(ctx, statsPipeline); err == nil {
			for _, r := range results {
				metric, _ := r["_id"].(string)
				performanceStats = append(performanceStats, map[string]interface{}{
					"metric":   metric,
					"avgValue": extractFloat64(r, "avgValue"),
					"minValue": extractFloat64(r, "minValue"),
					"maxValue": extractFloat64(r, "maxValue"),
					"count":    extractInt64(r, "count"),
				})
			}
		}

		loadTimeDistribution := []map[string]interface{}{}
		bucketPipeline := mongo.Pipeline{
			{{Key: "$match", Value: bson.M{
				"eventName": models.EventPerformanceLoad,
				"timestamp": bson.M{"$gte": cur.Start, "$lt": cur.End},
			}}},
			{{Key: "$bucket", Value: bson.M{
				"groupBy":    "$properties.loadTime",
				"boundaries": bson.A{0, 1000, 2000, 3000, 5000, 10000},
				"default":    "other",
				"output": bson.M{
					"count":       bson.M{"$sum": 1},
					"avgLoadTime": bson.M{"$avg": "$properties.loadTime"},
				},
			}}},
		}
		if results, err := s.aggregate(ctx, bucketPipeline); err == nil {
			for _, r := range results {
				loadTimeDistribution = append(loadTimeDistribution, map[string]interface{}{
					"bucket":      r["_id"],
					"count":       extractInt64(r, "count"),
					"avgLoadTime": extractFloat64(r, "avgLoadTime"),
				})
			}
		}

		performanceTrend := []map[string]interface{}{}
		trendPipeline := mongo.Pipeline{
			{{Key: "$match", Value: bson.M{
				"eventType": models.EventTypePerformance,
				"timestamp": bson.M{"$gte": cur.Start, "$lt": cur.End},
			}}},
			{{Key: "$group", Value: bson.M{
				"_id":      dateByDay(),
				"loadTime": bson.M{"$avg": "$properties.loadTime"},
				"fcp":      bson.M{"$avg": "$properties.fcp"},
			}}},
			{{Key: "$sort", Value: bson.M{"_id": 1}}},
		}
		if results, err := s.aggregate(ctx, trendPipeline); err == nil {
			for _, r := range results {
				date, _ := r["_id"].(string)
				performanceTrend = append(performanceTrend, map[string]interface{}{
					"date":     date,
					"loadTime": extractFloat64(r, "loadTime"),
					"fcp":      extractFloat64(r, "fcp"),
				})
			}
		}

		return map[string]interface{}{
			"performanceStats":     performanceStats,
			"loadTimeDistribution": loadTimeDistribution,
			"performanceTrend":     performanceTrend,
		}
	})
}

// GetDocumentAnalytics returns one document's activity summary
func (s *AnalyticsService) GetDocumentAnalytics(ctx context.Context, documentID string, days int) map[string]interface{} {
	defer s.observe("document", s.now())

	if s.mongoDB == nil {
		return map[string]interface{}{
			"documentStats":         map[string]interface{}{},
			"collaborationActivity": []map[string]interface{}{},
		}
	}

	now := s.now()
	cur := currentWindow(now, days)

	documentStats := map[string]interface{}{}
	statsPipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"business.documentId": documentID,
			"timestamp":           bson.M{"$gte": cur.Start, "$lt": cur.End},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":          nil,
			"totalActions": bson.M{"$sum": 1},
			"uniqueUsers":  bson.M{"$addToSet": "$userId"},
			"editActions": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$eventName", models.EventDocumentEdit}}, 1, 0},
			}},
			"viewActions": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$eventName", models.EventDocumentOpen}}, 1, 0},
			}},
		}}},
		{{Key: "$project", Value: bson.M{
			"totalActions": 1,
			"uniqueUsers":  bson.M{"$size": "$uniqueUsers"},
			"editActions":  1,
			"viewActions":  1,
		}}},
	}
	if results, err := s.aggregate(ctx, statsPipeline); err == nil && len(results) > 0 {
		documentStats = map[string]interface{}{
			"totalActions": extractInt64(results[0], "totalActions"),
			"uniqueUsers":  extractInt64(results[0], "uniqueUsers"),
			"editActions":  extractInt64(results[0], "editActions"),
			"viewActions":  extractInt64(results[0], "viewActions"),
		}
	}

	collaborationActivity := []map[string]interface{}{}
	collabPipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"business.documentId": documentID,
			"eventType":           models.EventTypeCollaboration,
			"timestamp":           bson.M{"$gte": cur.Start, "$lt": cur.End},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$eventName",
			"count": bson.M{"$sum": 1},
			"users": bson.M{"$addToSet": "$userId"},
		}}},
		{{Key: "$project", Value: bson.M{
			"count":       1,
			"uniqueUsers": bson.M{"$size": "$users"},
		}}},
	}
	if results, err := s.aggregate(ctx, collabPipeline); err == nil {
		for _, r := range results {
			action, _ := r["_id"].(string)
			collaborationActivity = append(collaborationActivity, map[string]interface{}{
				"action":      action,
				"count":       extractInt64(r, "count"),
				"uniqueUsers": extractInt64(r, "uniqueUsers"),
			})
		}
	}

	return map[string]interface{}{
		"documentStats":         documentStats,
		"collaborationActivity": collaborationActivity,
	}
}

// aggregate runs one pipeline and decodes all results
func (s *AnalyticsService) aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.M, error) {
	cursor, err := s.collection().Aggregate(ctx, pipeline)
	if err != nil {
		log.Printf("⚠️  [ANALYTICS] Aggregation failed: %v", err)
		return nil, err
	}

	var results []bson.M
	if err := cursor.All(ctx, &results); err != nil {
		log.Printf("⚠️  [ANALYTICS] Cursor decode failed: %v", err)
		return nil, err
	}
	return results, nil
}

func matchWindow(w window) bson.M {
	return bson.M{"timestamp": bson.M{"$gte": w.Start, "$lt": w.End}}
}

// realtimeBounds returns the bucket window (last hour) and the online cutoff
// (last 5 minutes, inclusive) as epoch milliseconds
func realtimeBounds(now time.Time) (lastHour, onlineSince int64) {
	return now.Add(-1 * time.Hour).UnixMilli(), now.Add(-onlineThreshold).UnixMilli()
}

// dateByDay buckets client timestamps into UTC calendar days
func dateByDay() bson.M {
	return bson.M{
		"$dateToString": bson.M{
			"format": "%Y-%m-%d",
			"date":   bson.M{"$toDate": "$timestamp"},
		},
	}
}

func cacheKey(queryType string, days int) string {
	return fmt.Sprintf("%s:%d", queryType, days)
}

func emptyOverview() map[string]interface{} {
	return map[string]interface{}{
		"basicStats": map[string]interface{}{
			"totalEvents":    int64(0),
			"uniqueUsers":    int64(0),
			"uniqueSessions": int64(0),
		},
		"changes":               map[string]Change{},
		"eventTypeDistribution": []map[string]interface{}{},
		"dailyTrend":            []map[string]interface{}{},
		"topPages":              []map[string]interface{}{},
		"userActivity":          hourBuckets(nil),
		"aiInteractions":        []map[string]interface{}{},
	}
}

// hourBuckets produces 24 hour-of-day entries, filling from fn when given
func hourBuckets(fn func(hour int) map[string]interface{}) []map[string]interface{} {
	buckets := make([]map[string]interface{}, 0, 24)
	for hour := 0; hour < 24; hour++ {
		entry := map[string]interface{}{"hour": hourLabel(hour)}
		if fn != nil {
			for k, v := range fn(hour) {
				entry[k] = v
			}
		} else {
			entry["users"] = int64(0)
		}
		buckets = append(buckets, entry)
	}
	return buckets
}

func hourLabel(hour int) string {
	return time.Date(2000, 1, 1, hour, 0, 0, 0, time.UTC).Format("15:00")
}

// fillMissingDates ensures all dates in the range have entries (zeros if no data)
func fillMissingDates(data []map[string]interface{}, startDate time.Time, days int, zero map[string]interface{}) []map[string]interface{} {
	dataMap := make(map[string]map[string]interface{})
	for _, entry := range data {
		if date, ok := entry["date"].(string); ok {
			dataMap[date] = entry
		}
	}

	result := make([]map[string]interface{}, 0, days)
	for i := 0; i <= days; i++ {
		date := startDate.Add(time.Duration(i) * 24 * time.Hour)
		dateStr := date.Format("2006-01-02")

		if entry, exists := dataMap[dateStr]; exists {
			result = append(result, entry)
		} else {
			filled := map[string]interface{}{"date": dateStr}
			for k, v := range zero {
				filled[k] = v
			}
			result = append(result, filled)
		}
	}

	return result
}

// extractInt64 safely extracts an int64 value from a bson.M result
func extractInt64(result bson.M, key string) int64 {
	switch v := result[key].(type) {
	case int32:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case primitive.DateTime:
		return int64(v)
	default:
		return 0
	}
}

// extractFloat64 safely extracts a float64 value from a bson.M result
func extractFloat64(result bson.M, key string) float64 {
	switch v := result[key].(type) {
	case float64:
		return v
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
