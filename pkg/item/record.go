package item

import (
	"encoding/json"
	"time"
)

// Record is a concrete Timestamped used by internal/ingest to deserialize
// one line of a stream's recording: a Unix-epoch nanosecond timestamp
// plus an opaque JSON payload carried straight through to the sink.
type Record struct {
	TimestampNanos int64           `json:"ts"`
	Payload        json.RawMessage `json:"payload"`
}

// Time implements Timestamped.
func (r Record) Time() time.Time {
	return time.Unix(0, r.TimestampNanos)
}
