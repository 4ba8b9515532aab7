package models

import (
	"time"
)

// Event type constants - the fixed event taxonomy
const (
	EventTypePageView       = "page_view"
	EventTypeUserAction     = "user_action"
	EventTypeDocumentAction = "document_action"
	EventTypeAIInteraction  = "ai_interaction"
	EventTypeCollaboration  = "collaboration"
	EventTypeSearch         = "search"
	EventTypeError          = "error"
	EventTypePerformance    = "performance"
)

// Canonical event names
const (
	// Page events
	EventPageEnter  = "page_enter"
	EventPageLeave  = "page_leave"
	EventPageScroll = "page_scroll"

	// User actions
	EventUserLogin   = "user_login"
	EventUserLogout  = "user_logout"
	EventButtonClick = "button_click"

	// Document operations
	EventDocumentCreate = "document_create"
	EventDocumentOpen   = "document_open"
	EventDocumentEdit   = "document_edit"
	EventDocumentSave   = "document_save"
	EventDocumentDelete = "document_delete"
	EventDocumentShare  = "document_share"

	// AI interactions
	EventAIChatStart   = "ai_chat_start"
	EventAIChatSend    = "ai_chat_send"
	EventAIChatReceive = "ai_chat_receive"
	EventAIChatEnd     = "ai_chat_end"

	// Collaboration
	EventRoomJoin     = "room_join"
	EventRoomLeave    = "room_leave"
	EventRealTimeEdit = "real_time_edit"
	EventCommentAdd   = "comment_add"
	EventMentionUser  = "mention_user"

	// Search
	EventSearchQuery       = "search_query"
	EventSearchResultClick = "search_result_click"

	// Errors
	EventErrorJS      = "error_js"
	EventErrorAPI     = "error_api"
	EventErrorNetwork = "error_network"

	// Performance
	EventPerformanceLoad = "performance_load"
	EventPerformanceFCP  = "performance_fcp"
	EventPerformanceLCP  = "performance_lcp"
)

// MaxUserAgentLength caps the stored user-agent string
const MaxUserAgentLength = 200

// PageInfo is a snapshot of the client location at capture time
type PageInfo struct {
	Path     string `bson:"path" json:"path"`
	Title    string `bson:"title" json:"title"`
	Referrer string `bson:"referrer" json:"referrer"`
}

// Viewport holds the client viewport dimensions
type Viewport struct {
	Width  int `bson:"width" json:"width"`
	Height int `bson:"height" json:"height"`
}

// DeviceInfo is a snapshot of the client environment at capture time
type DeviceInfo struct {
	UserAgent string   `bson:"userAgent" json:"userAgent"`
	Viewport  Viewport `bson:"viewport" json:"viewport"`
	Language  string   `bson:"language" json:"language"`
	Timezone  string   `bson:"timezone" json:"timezone"`
}

// BusinessContext carries optional correlation fields joining events to
// documents, rooms or UI targets
type BusinessContext struct {
	DocumentID   string      `bson:"documentId,omitempty" json:"documentId,omitempty"`
	RoomID       string      `bson:"roomId,omitempty" json:"roomId,omitempty"`
	ActionTarget string      `bson:"actionTarget,omitempty" json:"actionTarget,omitempty"`
	ActionValue  interface{} `bson:"actionValue,omitempty" json:"actionValue,omitempty"`
	Duration     int64       `bson:"duration,omitempty" json:"duration,omitempty"`
}

// TrackingEvent is one immutable record of a user/system occurrence.
// Timestamp is client capture time (epoch ms) and is authoritative for all
// windowing; CreatedAt is server receipt time used only for the TTL index.
type TrackingEvent struct {
	EventName      string                 `bson:"eventName" json:"eventName"`
	EventType      string                 `bson:"eventType" json:"eventType"`
	Timestamp      int64                  `bson:"timestamp" json:"timestamp"`
	SessionID      string                 `bson:"sessionId" json:"sessionId"`
	UserID         string                 `bson:"userId,omitempty" json:"userId,omitempty"`
	OrganizationID string                 `bson:"organizationId,omitempty" json:"organizationId,omitempty"`
	Page           PageInfo               `bson:"page" json:"page"`
	Device         DeviceInfo             `bson:"device" json:"device"`
	Properties     map[string]interface{} `bson:"properties" json:"properties"`
	Business       *BusinessContext       `bson:"business,omitempty" json:"business,omitempty"`
	CreatedAt      time.Time              `bson:"createdAt,omitempty" json:"-"`
}

// TrackingBatch is the ingestion request payload
type TrackingBatch struct {
	Events []RawEvent `json:"events"`
}

// RawEvent is an untrusted event as received from the wire. Fields are
// interface{} so one malformed event can be filtered without failing the
// whole batch decode.
type RawEvent struct {
	EventName      interface{}            `json:"eventName"`
	EventType      interface{}            `json:"eventType"`
	Timestamp      interface{}            `json:"timestamp"`
	SessionID      interface{}            `json:"sessionId"`
	UserID         string                 `json:"userId,omitempty"`
	OrganizationID string                 `json:"organizationId,omitempty"`
	Page           map[string]interface{} `json:"page"`
	Device         map[string]interface{} `json:"device"`
	Properties     map[string]interface{} `json:"properties"`
	Business       *BusinessContext       `json:"business,omitempty"`
}

// Validate checks required-field presence and basic type correctness.
// It returns the typed event when the raw shape is acceptable.
func (r *RawEvent) Validate() (*TrackingEvent, bool) {
	name, ok := r.EventName.(string)
	if !ok || name == "" {
		return nil, false
	}
	eventType, ok := r.EventType.(string)
	if !ok || eventType == "" {
		return nil, false
	}
	ts, ok := toInt64(r.Timestamp)
	if !ok || ts <= 0 {
		return nil, false
	}
	sessionID, ok := r.SessionID.(string)
	if !ok || sessionID == "" {
		return nil, false
	}
	if r.Page == nil || r.Device == nil {
		return nil, false
	}

	event := &TrackingEvent{
		EventName:      name,
		EventType:      eventType,
		Timestamp:      ts,
		SessionID:      sessionID,
		UserID:         r.UserID,
		OrganizationID: r.OrganizationID,
		Page: PageInfo{
			Path:     stringField(r.Page, "path"),
			Title:    stringField(r.Page, "title"),
			Referrer: stringField(r.Page, "referrer"),
		},
		Device: DeviceInfo{
			UserAgent: stringField(r.Device, "userAgent"),
			Language:  stringField(r.Device, "language"),
			Timezone:  stringField(r.Device, "timezone"),
		},
		Properties: r.Properties,
		Business:   r.Business,
		CreatedAt:  time.Now(),
	}
	if event.Properties == nil {
		event.Properties = map[string]interface{}{}
	}
	if vp, ok := r.Device["viewport"].(map[string]interface{}); ok {
		w, _ := toInt64(vp["width"])
		h, _ := toInt64(vp["height"])
		event.Device.Viewport = Viewport{Width: int(w), Height: int(h)}
	}

	event.Sanitize()
	return event, true
}

// Sanitize bounds stored payload size (currently the user-agent string)
func (e *TrackingEvent) Sanitize() {
	if len(e.Device.UserAgent) > MaxUserAgentLength {
		e.Device.UserAgent = e.Device.UserAgent[:MaxUserAgentLength]
	}
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// toInt64 accepts the numeric types JSON decoding and BSON decoding produce
func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
