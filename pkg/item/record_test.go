package item

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRecord_RoundTripsThroughJSON(t *testing.T) {
	t.Parallel()

	want := Record{TimestampNanos: 42, Payload: json.RawMessage(`{"x":1}`)}

	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got Record
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRecord_Time(t *testing.T) {
	t.Parallel()

	r := Record{TimestampNanos: time.Second.Nanoseconds()}
	want := time.Unix(0, time.Second.Nanoseconds())
	if !r.Time().Equal(want) {
		t.Errorf("Time() = %v, want %v", r.Time(), want)
	}
}
