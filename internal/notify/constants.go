// Package notify fans delivery and fallback events out to the configured
// collaborator channels: webhook, JSONL log file, and Graph email.
package notify

import "time"

// AppName is the application name used in notifications.
const AppName = "TalkForm Voice Notes"

// timestampUTC returns the current UTC time in RFC3339 format.
func timestampUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
