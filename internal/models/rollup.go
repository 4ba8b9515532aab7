package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserSession is a per-session rollup derived from raw events. It is a
// rebuildable cache, never the source of truth; the raw event log is.
// Expired by a 30-day TTL index on updatedAt.
type UserSession struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"sessionId" json:"sessionId"`
	UserID    string             `bson:"userId,omitempty" json:"userId,omitempty"`

	StartedAt int64 `bson:"startedAt" json:"startedAt"` // epoch ms, client time
	EndedAt   int64 `bson:"endedAt" json:"endedAt"`

	PageViews int `bson:"pageViews" json:"pageViews"`
	Actions   int `bson:"actions" json:"actions"`
	Errors    int `bson:"errors" json:"errors"`

	EntryPage string     `bson:"entryPage,omitempty" json:"entryPage,omitempty"`
	ExitPage  string     `bson:"exitPage,omitempty" json:"exitPage,omitempty"`
	Device    DeviceInfo `bson:"device" json:"device"`

	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// DailyStats is a per-day rollup of event counts. Kept indefinitely.
type DailyStats struct {
	ID   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Date string             `bson:"date" json:"date"` // YYYY-MM-DD, UTC

	TotalEvents    int64            `bson:"totalEvents" json:"totalEvents"`
	CountsByType   map[string]int64 `bson:"countsByType" json:"countsByType"`
	UniqueUsers    int64            `bson:"uniqueUsers" json:"uniqueUsers"`
	UniqueSessions int64            `bson:"uniqueSessions" json:"uniqueSessions"`
	TopPages       []PageCount      `bson:"topPages" json:"topPages"`

	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// PageCount pairs a page path with its view count
type PageCount struct {
	Path  string `bson:"path" json:"path"`
	Views int64  `bson:"views" json:"views"`
}
