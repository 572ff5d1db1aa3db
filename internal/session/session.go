package session

import (
	"time"

	"github.com/kitchen48/telemetry-service/internal/device"
)

// ActivityWindow is the maximum gap between two requests for them to belong
// to the same session.
const ActivityWindow = 30 * time.Minute

// Session groups a visitor's activity on one device. UserID is empty for
// anonymous sessions and may be attached later once the visitor logs in.
// UserAgent and IPAddress are captured at creation and never updated.
type Session struct {
	ID           string
	UserID       string
	DeviceType   device.Type
	UserAgent    string
	IPAddress    string
	StartedAt    time.Time
	LastActiveAt time.Time
}

// Live reports whether the session is still within the activity window at
// the given instant.
func (s Session) Live(now time.Time) bool {
	return now.Sub(s.LastActiveAt) < ActivityWindow
}
