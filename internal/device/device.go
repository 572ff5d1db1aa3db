package device

import (
	"strings"
)

// Type is the coarse device category a session is attributed to.
// Values are stored as-is in the sessions table, so they must stay stable.
type Type string

const (
	Browser   Type = "browser"
	MobileApp Type = "mobile_app"
	Tablet    Type = "tablet"
)

// mobileAppMarker is the token the Kitchen48 native apps put in their
// User-Agent (e.g. "Kitchen48-Mobile/2.4.1 (iOS 17.2)").
const mobileAppMarker = "Kitchen48-Mobile"

// Classify maps a raw User-Agent to a device category. Rules apply in order,
// first match wins; anything unrecognized is a browser, which covers both
// desktop and mobile web.
func Classify(userAgent string) Type {
	if userAgent == "" {
		return Browser
	}
	if strings.Contains(userAgent, mobileAppMarker) {
		return MobileApp
	}
	if isTablet(userAgent) {
		return Tablet
	}
	return Browser
}

// isTablet covers the common tablet families. Android tablets ship a UA
// without the "Mobile" token, which is what the Android branch keys on.
func isTablet(userAgent string) bool {
	switch {
	case strings.Contains(userAgent, "iPad"),
		strings.Contains(userAgent, "Kindle"),
		strings.Contains(userAgent, "Silk"),
		strings.Contains(userAgent, "PlayBook"),
		strings.Contains(userAgent, "Tablet"):
		return true
	case strings.Contains(userAgent, "Android") && !strings.Contains(userAgent, "Mobile"):
		return true
	}
	return false
}
