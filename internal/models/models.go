package models

// TrackRequest is the POST /track payload. Only event_type is required;
// everything else is correlation context.
type TrackRequest struct {
	EventType  string         `json:"event_type"`
	SessionID  string         `json:"session_id,omitempty"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SessionResolveResponse is returned by POST /sessions/resolve. SessionID is
// empty when session bookkeeping failed; callers must tolerate that.
type SessionResolveResponse struct {
	SessionID string `json:"session_id"`
}

// AttachUserRequest is the POST /sessions/:id/user payload.
type AttachUserRequest struct {
	UserID string `json:"user_id"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}
