// Package pagination provides opaque cursor helpers for list endpoints.
//
// A cursor names the last item the client has seen, by creation time and
// id. List queries fetch one row past the requested limit; Page trims the
// overflow and hands back the cursor for the next call.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidCursor = errors.New("malformed pagination cursor")

// Cursor is a position in a result set ordered newest first.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode returns the opaque form of a cursor.
func Encode(createdAt time.Time, id string) string {
	raw := strconv.FormatInt(createdAt.UnixNano(), 10) + "|" + id
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor. An empty string decodes to nil,
// meaning "start from the top".
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanosStr, id, found := strings.Cut(string(raw), "|")
	if !found {
		return nil, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(nanosStr, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{
		CreatedAt: time.Unix(0, nanos).UTC(),
		ID:        id,
	}, nil
}

// Page trims a slice fetched with limit+1 rows down to limit and returns
// the cursor for the following page. An empty cursor means the result set
// is exhausted. key extracts (createdAt, id) from an item.
func Page[T any](items []T, limit int, key func(T) (time.Time, string)) ([]T, string) {
	if len(items) <= limit {
		return items, ""
	}
	items = items[:limit]
	createdAt, id := key(items[len(items)-1])
	return items, Encode(createdAt, id)
}

// Before reports whether an item at (createdAt, id) comes after the
// cursor position in a newest-first ordering, i.e. whether it belongs on
// the page the cursor opens.
func (c *Cursor) Before(createdAt time.Time, id string) bool {
	if c == nil {
		return true
	}
	if createdAt.Before(c.CreatedAt) {
		return true
	}
	return createdAt.Equal(c.CreatedAt) && id < c.ID
}
