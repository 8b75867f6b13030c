package pagination

import (
	"encoding/base64"
	"time"

	apperrors "github.com/hangouthub/server/internal/shared/errors"
)

// cursorLayout is the wire format of a decoded cursor: the ISO-8601 string
// form of the row's created_at, millisecond precision, UTC.
const cursorLayout = "2006-01-02T15:04:05.000Z07:00"

// EncodeCursor encodes a creation timestamp as an opaque cursor.
func EncodeCursor(t time.Time) string {
	return base64.StdEncoding.EncodeToString([]byte(t.UTC().Format(cursorLayout)))
}

// DecodeCursor decodes an opaque cursor back into a timestamp.
func DecodeCursor(cursor string) (time.Time, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, apperrors.ValidationError("Invalid cursor")
	}
	t, err := time.Parse(cursorLayout, string(raw))
	if err != nil {
		return time.Time{}, apperrors.ValidationError("Invalid cursor")
	}
	return t, nil
}

// Args are relay-style pagination arguments. Exactly one of First/Last may
// be provided.
type Args struct {
	First  *int    `form:"first"`
	After  *string `form:"after"`
	Last   *int    `form:"last"`
	Before *string `form:"before"`
}

// Window is a validated fetch window derived from Args. Repositories fetch
// Limit+1 rows ordered by created_at (ascending forward, descending
// backward); the extra row becomes the has-more flag.
type Window struct {
	Limit    int
	Backward bool
	After    *time.Time
	Before   *time.Time
}

// Window validates the arguments against the component's page-size policy.
// A zero maxSize means no clamp; sizes above maxSize are clamped, not
// rejected.
func (a Args) Window(defaultSize, maxSize int) (*Window, error) {
	if a.First != nil && a.Last != nil {
		return nil, apperrors.ValidationError("Cannot provide both first and last")
	}

	w := &Window{Limit: defaultSize}

	switch {
	case a.Last != nil:
		if *a.Last < 0 {
			return nil, apperrors.ValidationError("last must be non-negative")
		}
		w.Limit = *a.Last
		w.Backward = true
	case a.First != nil:
		if *a.First < 0 {
			return nil, apperrors.ValidationError("first must be non-negative")
		}
		w.Limit = *a.First
	}

	if maxSize > 0 && w.Limit > maxSize {
		w.Limit = maxSize
	}

	if a.After != nil {
		t, err := DecodeCursor(*a.After)
		if err != nil {
			return nil, err
		}
		w.After = &t
	}
	if a.Before != nil {
		t, err := DecodeCursor(*a.Before)
		if err != nil {
			return nil, err
		}
		w.Before = &t
	}

	return w, nil
}

// Edge pairs a node with its cursor.
type Edge[T any] struct {
	Node   T      `json:"node"`
	Cursor string `json:"cursor"`
}

// PageInfo describes the page's position in the full result set.
type PageInfo struct {
	HasNextPage     bool    `json:"hasNextPage"`
	HasPreviousPage bool    `json:"hasPreviousPage"`
	StartCursor     *string `json:"startCursor"`
	EndCursor       *string `json:"endCursor"`
}

// Connection is the generic pagination envelope.
type Connection[T any] struct {
	Edges      []Edge[T] `json:"edges"`
	PageInfo   PageInfo  `json:"pageInfo"`
	TotalCount int64     `json:"totalCount"`
}

// Build assembles a Connection from up-to-Limit+1 rows fetched for the given
// window. Rows must be in fetch order: ascending created_at for forward
// windows, descending for backward ones. Backward pages are reversed back
// into ascending order before edges are built.
func Build[T any](items []T, w *Window, total int64, createdAt func(T) time.Time) *Connection[T] {
	hasMore := len(items) > w.Limit
	if hasMore {
		items = items[:w.Limit]
	}

	conn := &Connection[T]{
		Edges:      make([]Edge[T], 0, len(items)),
		TotalCount: total,
	}

	if w.Backward {
		conn.PageInfo.HasPreviousPage = hasMore
		// Restore ascending order
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	} else {
		conn.PageInfo.HasNextPage = hasMore
	}

	for _, item := range items {
		conn.Edges = append(conn.Edges, Edge[T]{
			Node:   item,
			Cursor: EncodeCursor(createdAt(item)),
		})
	}

	if len(conn.Edges) > 0 {
		start := conn.Edges[0].Cursor
		end := conn.Edges[len(conn.Edges)-1].Cursor
		conn.PageInfo.StartCursor = &start
		conn.PageInfo.EndCursor = &end
	}

	return conn
}
