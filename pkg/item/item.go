// Package item defines the only contract the merger requires of the
// payloads it ships between producers and sinks.
package item

import "time"

// Timestamped is the single observable property the merger needs from a
// queued payload. The merger never inspects or copies anything else about
// the value; ownership passes from producer to queue to sink untouched.
type Timestamped interface {
	Time() time.Time
}
