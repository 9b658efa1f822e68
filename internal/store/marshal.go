package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/runcache/internal/run"
)

// timestampLayout is the on-disk form of run timestamps. Always UTC, so the
// (node_id, run_timestamp) key is unique per instant regardless of the
// reporting node's zone.
const timestampLayout = time.RFC3339Nano

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse run timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullVersion(v *run.ConfigVersion) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*v), Valid: true}
}

// marshalDocument converts an expected-config document to canonical JSON TEXT.
func marshalDocument(doc map[string]any) (string, error) {
	normalized, err := run.NormalizeDocument(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	data, err := run.MarshalCanonical(normalized)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	return string(data), nil
}

// unmarshalDocument parses canonical JSON TEXT back into a document.
// Uses json.Number so integers above 2^53 survive the round trip.
func unmarshalDocument(data string) (map[string]any, error) {
	if data == "" || data == "{}" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	normalized, err := run.NormalizeDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return normalized, nil
}
