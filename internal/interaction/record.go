package interaction

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Actions recorded by the pond page.
const (
	ActionRun        = "Run"
	ActionReset      = "Reset"
	ActionDocsOpened = "Documentation_Opened"
	ActionDocsClosed = "Documentation_Closed"
	ActionHelp       = "Help"
	// ActionDocsLegacy appears in logs written before open and close were told apart.
	ActionDocsLegacy = "Documentation"
)

// NullPayload is shown for records that carry no workspace snapshot.
const NullPayload = "NULL"

// TimestampLayout is the human-readable capture time stored with each record.
const TimestampLayout = "Mon Jan 02 2006 15:04:05 GMT-0700"

// CounterKey holds the next unused sequence number.
const CounterKey = "currentIndex"

const (
	recordKeyPrefix    = "timestamp"
	legacyDelimiter    = "::"
	schemaVersion      = 2
	timestampZoneStart = " ("
)

// RecordKey returns the storage key of sequence n.
func RecordKey(n int) string {
	return recordKeyPrefix + strconv.Itoa(n)
}

// Kind tags the two record variants.
type Kind string

const (
	KindSimple    Kind = "simple"
	KindWorkspace Kind = "workspace"
)

// Format names the schema a stored value was decoded from.
type Format string

const (
	FormatStructured Format = "v2"
	FormatDelimited  Format = "delimited"
)

// Record is one immutable interaction log entry.
type Record struct {
	Sequence  int       `json:"sequence"`
	Kind      Kind      `json:"kind"`
	Timestamp string    `json:"timestamp"`
	At        time.Time `json:"at"`
	Action    string    `json:"action"`
	Payload   string    `json:"payload,omitempty"`
	Level     string    `json:"level,omitempty"`
	Format    Format    `json:"format"`
}

// WorkspaceState returns the payload, or NULL for records without one.
func (r Record) WorkspaceState() string {
	if r.Kind != KindWorkspace || r.Payload == "" {
		return NullPayload
	}
	return r.Payload
}

// MalformedRecord is a stored value that matched no known schema.
type MalformedRecord struct {
	Sequence int    `json:"sequence"`
	Raw      string `json:"raw"`
	Reason   string `json:"reason"`
}

// Enumeration is the ordered content of a log.
type Enumeration struct {
	Records   []Record          `json:"records"`
	Malformed []MalformedRecord `json:"malformed,omitempty"`
}

// storedRecord is the v2 wire shape.
type storedRecord struct {
	V         int    `json:"v"`
	Kind      Kind   `json:"kind"`
	Timestamp string `json:"ts"`
	At        string `json:"at"`
	Action    string `json:"action"`
	Payload   string `json:"payload,omitempty"`
	Level     string `json:"level"`
}

// FormatTimestamp renders t the way the page has always shown it.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// parseTimestamp understands FormatTimestamp output, including the
// " (Zone Name)" suffix browsers append.
func parseTimestamp(s string) time.Time {
	if i := strings.Index(s, timestampZoneStart); i > 0 {
		s = s[:i]
	}
	t, err := time.Parse(TimestampLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Encode serializes a record in the current structured schema.
func Encode(r Record) (string, error) {
	if r.Action == "" {
		return "", fmt.Errorf("record %d has no action", r.Sequence)
	}
	sr := storedRecord{
		V:         schemaVersion,
		Kind:      r.Kind,
		Timestamp: r.Timestamp,
		Action:    r.Action,
		Level:     r.Level,
	}
	if !r.At.IsZero() {
		sr.At = r.At.Format(time.RFC3339Nano)
	}
	if r.Kind == KindWorkspace {
		sr.Payload = r.Payload
	}
	b, err := json.Marshal(sr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode parses a stored value. It accepts the structured schema and the
// legacy "::"-delimited strings of two, three or four fields.
func Decode(seq int, val any) (Record, error) {
	switch v := val.(type) {
	case string:
		if strings.HasPrefix(strings.TrimSpace(v), "{") {
			return decodeStructured(seq, []byte(v))
		}
		return decodeDelimited(seq, v)
	case map[string]any:
		// Remote stores hand back JSON objects as maps.
		b, err := json.Marshal(v)
		if err != nil {
			return Record{}, err
		}
		return decodeStructured(seq, b)
	default:
		return Record{}, fmt.Errorf("unsupported value type %T", val)
	}
}

func decodeStructured(seq int, b []byte) (Record, error) {
	var sr storedRecord
	if err := json.Unmarshal(b, &sr); err != nil {
		return Record{}, fmt.Errorf("decode structured record: %w", err)
	}
	if sr.V != schemaVersion {
		return Record{}, fmt.Errorf("unknown schema version %d", sr.V)
	}
	if sr.Kind != KindSimple && sr.Kind != KindWorkspace {
		return Record{}, fmt.Errorf("unknown record kind %q", sr.Kind)
	}
	if sr.Action == "" {
		return Record{}, fmt.Errorf("record has no action")
	}

	r := Record{
		Sequence:  seq,
		Kind:      sr.Kind,
		Timestamp: sr.Timestamp,
		Action:    sr.Action,
		Level:     sr.Level,
		Format:    FormatStructured,
	}
	if sr.Kind == KindWorkspace {
		r.Payload = sr.Payload
	}
	if at, err := time.Parse(time.RFC3339Nano, sr.At); err == nil {
		r.At = at
	} else {
		r.At = parseTimestamp(sr.Timestamp)
	}
	return r, nil
}

func decodeDelimited(seq int, s string) (Record, error) {
	fields := strings.Split(s, legacyDelimiter)
	r := Record{
		Sequence: seq,
		Kind:     KindSimple,
		Format:   FormatDelimited,
	}

	switch len(fields) {
	case 2:
		r.Timestamp, r.Action = fields[0], fields[1]
	case 3:
		r.Timestamp, r.Action = fields[0], fields[1]
		// Early Run records carried the workspace XML where later ones carry the level.
		if strings.HasPrefix(strings.TrimSpace(fields[2]), "<") {
			r.Kind = KindWorkspace
			r.Payload = fields[2]
		} else {
			r.Level = fields[2]
		}
	case 4:
		r.Kind = KindWorkspace
		r.Timestamp, r.Action, r.Payload, r.Level = fields[0], fields[1], fields[2], fields[3]
	default:
		return Record{}, fmt.Errorf("unexpected field count %d", len(fields))
	}

	if r.Action == "" {
		return Record{}, fmt.Errorf("record has no action")
	}
	r.At = parseTimestamp(r.Timestamp)
	return r, nil
}
