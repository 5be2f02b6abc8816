package services

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/lotusmap/backend/internal/storage"
)

// Page sizes.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page requests one page of a newest-first listing. Cursor is the
// NextCursor of the previous page, or empty for the first page.
type Page struct {
	Cursor string
	Limit  int
}

// clampLimit applies the default for non-positive limits and the cap.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func encodeCursor(createdAt time.Time, id string) string {
	raw := createdAt.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (*storage.Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, invalidField("cursor", "Invalid cursor")
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, invalidField("cursor", "Invalid cursor")
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, invalidField("cursor", "Invalid cursor")
	}
	return &storage.Cursor{CreatedAt: t, ID: id}, nil
}

// now returns the current time at millisecond precision, the finest every
// backend stores.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
