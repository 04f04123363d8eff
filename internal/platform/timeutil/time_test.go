package timeutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func TestTimeJSONUsesMillisecondPrecision(t *testing.T) {
	ts := NewTime(time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC))

	data, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"2024-01-15T10:30:00.123Z"` {
		t.Fatalf("unexpected json: %s", data)
	}

	var back Time
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(time.Date(2024, 1, 15, 10, 30, 0, 123000000, time.UTC)) {
		t.Fatalf("unexpected round trip: %v", back)
	}
}

func TestTimeJSONNullPreservesValue(t *testing.T) {
	orig := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	ts := NewTime(orig)
	if err := json.Unmarshal([]byte("null"), &ts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !ts.Equal(orig) {
		t.Fatalf("expected value preserved, got %v", ts)
	}
}

func TestTimeCBOREncodesText(t *testing.T) {
	ts := NewTime(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))

	data, err := cbor.Marshal(ts)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		t.Fatalf("expected text string, got error: %v", err)
	}
	if s != "2024-01-15T10:30:00.000Z" {
		t.Fatalf("unexpected cbor text: %s", s)
	}

	var back Time
	if err := cbor.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(ts.Time) {
		t.Fatalf("unexpected round trip: %v", back)
	}
}
