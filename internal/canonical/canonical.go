// Package canonical renders documents into the byte-stable forms used as
// input for content-addressed identifiers and signature digests.
//
// A document is a JSON object built as a map. Rendering is compact JSON with
// object keys in byte-wise sorted order at every depth, no HTML escaping and
// no trailing newline. Timestamps are rendered with millisecond precision in
// UTC ("2006-01-02T15:04:05.000Z").
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TimeLayout is the timestamp format used inside canonical documents.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Document is a JSON object under construction or freshly parsed.
type Document map[string]any

// Marshal renders v as canonical JSON.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical encoding failed: %w", err)
	}

	// json.Encoder.Encode terminates every value with a newline
	out := buf.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	return out, nil
}

// Without returns a shallow copy of doc with the given top-level keys removed.
func Without(doc Document, keys ...string) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// FormatTime renders t in the canonical timestamp format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a canonical timestamp. RFC 3339 input is accepted as well
// and normalized to UTC.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Truncate reduces t to the precision kept by canonical timestamps, so that a
// value survives a render/parse round trip unchanged.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
