package telemetry

import (
	"encoding/json"
	"time"
)

// Event is one buffered usage event. Instances live only in the tracker's
// buffer; once a flush succeeds they exist solely as rows in the store.
type Event struct {
	// ID is assigned at enqueue time and carried into the store, where it
	// backs idempotent batch retries (ON CONFLICT DO NOTHING).
	ID string

	// EventType is dot-namespaced by convention ("recipe.view",
	// "user.login"). Free-form; not validated against a closed set.
	EventType string

	// ClientApp is the authenticated calling app (web, admin, the native
	// apps), not something producers choose per event.
	ClientApp string

	UserID     string
	SessionID  string
	EntityType string
	EntityID   string

	// Metadata is pre-marshaled at enqueue so a value that cannot be
	// serialized degrades to null here instead of poisoning a whole
	// batch at flush time.
	Metadata json.RawMessage

	// CreatedAt is the enqueue timestamp, not the flush timestamp. It is
	// the event's logical occurrence time.
	CreatedAt time.Time
}
