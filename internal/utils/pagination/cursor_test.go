package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	cursor := EncodeCursor(ts)

	decoded, err := base64.StdEncoding.DecodeString(cursor)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T10:00:00.000Z", string(decoded))

	parsed, err := DecodeCursor(cursor)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(ts))
}

func TestDecodeCursorInvalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"not a timestamp", base64.StdEncoding.EncodeToString([]byte("hello"))},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCursor(tt.cursor)
			assert.Error(t, err)
		})
	}
}

func TestArgsWindow(t *testing.T) {
	intPtr := func(v int) *int { return &v }

	t.Run("defaults", func(t *testing.T) {
		w, err := Args{}.Window(20, 0)
		require.NoError(t, err)
		assert.Equal(t, 20, w.Limit)
		assert.False(t, w.Backward)
	})

	t.Run("first", func(t *testing.T) {
		w, err := Args{First: intPtr(5)}.Window(20, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, w.Limit)
		assert.False(t, w.Backward)
	})

	t.Run("last", func(t *testing.T) {
		w, err := Args{Last: intPtr(7)}.Window(20, 0)
		require.NoError(t, err)
		assert.Equal(t, 7, w.Limit)
		assert.True(t, w.Backward)
	})

	t.Run("both first and last rejected", func(t *testing.T) {
		_, err := Args{First: intPtr(5), Last: intPtr(5)}.Window(20, 0)
		assert.ErrorContains(t, err, "Cannot provide both first and last")
	})

	t.Run("negative first rejected", func(t *testing.T) {
		_, err := Args{First: intPtr(-1)}.Window(20, 0)
		assert.Error(t, err)
	})

	t.Run("negative last rejected", func(t *testing.T) {
		_, err := Args{Last: intPtr(-1)}.Window(20, 0)
		assert.Error(t, err)
	})

	t.Run("clamped to max", func(t *testing.T) {
		w, err := Args{First: intPtr(500)}.Window(20, 100)
		require.NoError(t, err)
		assert.Equal(t, 100, w.Limit)
	})

	t.Run("no clamp when max is zero", func(t *testing.T) {
		w, err := Args{First: intPtr(500)}.Window(20, 0)
		require.NoError(t, err)
		assert.Equal(t, 500, w.Limit)
	})

	t.Run("invalid after cursor", func(t *testing.T) {
		bad := "???"
		_, err := Args{After: &bad}.Window(20, 0)
		assert.Error(t, err)
	})
}

type row struct {
	name      string
	createdAt time.Time
}

func rows(n int, start time.Time) []row {
	out := make([]row, n)
	for i := range out {
		out[i] = row{
			name:      string(rune('a' + i)),
			createdAt: start.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestBuildForward(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w := &Window{Limit: 3}

	t.Run("has next page when extra row present", func(t *testing.T) {
		conn := Build(rows(4, start), w, 10, func(r row) time.Time { return r.createdAt })

		assert.Len(t, conn.Edges, 3)
		assert.True(t, conn.PageInfo.HasNextPage)
		assert.False(t, conn.PageInfo.HasPreviousPage)
		assert.Equal(t, int64(10), conn.TotalCount)
		require.NotNil(t, conn.PageInfo.StartCursor)
		assert.Equal(t, EncodeCursor(start), *conn.PageInfo.StartCursor)
	})

	t.Run("no next page on short fetch", func(t *testing.T) {
		conn := Build(rows(2, start), w, 2, func(r row) time.Time { return r.createdAt })

		assert.Len(t, conn.Edges, 2)
		assert.False(t, conn.PageInfo.HasNextPage)
	})

	t.Run("empty result", func(t *testing.T) {
		conn := Build([]row{}, w, 0, func(r row) time.Time { return r.createdAt })

		assert.Empty(t, conn.Edges)
		assert.False(t, conn.PageInfo.HasNextPage)
		assert.False(t, conn.PageInfo.HasPreviousPage)
		assert.Nil(t, conn.PageInfo.StartCursor)
		assert.Nil(t, conn.PageInfo.EndCursor)
	})
}

func TestBuildBackward(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w := &Window{Limit: 3, Backward: true}

	// Backward fetches arrive descending; edges come out ascending.
	fetched := rows(4, start)
	for i, j := 0, len(fetched)-1; i < j; i, j = i+1, j-1 {
		fetched[i], fetched[j] = fetched[j], fetched[i]
	}

	conn := Build(fetched, w, 10, func(r row) time.Time { return r.createdAt })

	assert.Len(t, conn.Edges, 3)
	assert.True(t, conn.PageInfo.HasPreviousPage)
	assert.False(t, conn.PageInfo.HasNextPage)

	for i := 1; i < len(conn.Edges); i++ {
		assert.True(t, conn.Edges[i-1].Node.createdAt.Before(conn.Edges[i].Node.createdAt),
			"edges must be ascending")
	}
}

func TestFromToken(t *testing.T) {
	t.Run("empty token", func(t *testing.T) {
		p, err := FromToken("", 0)
		require.NoError(t, err)
		assert.Equal(t, 0, p.Offset)
		assert.Equal(t, DefaultPageSize, p.PageSize)
	})

	t.Run("numeric token", func(t *testing.T) {
		p, err := FromToken("40", 20)
		require.NoError(t, err)
		assert.Equal(t, 40, p.Offset)
	})

	t.Run("non-numeric token rejected", func(t *testing.T) {
		_, err := FromToken("abc", 20)
		assert.ErrorContains(t, err, "Invalid nextToken")
	})

	t.Run("negative token rejected", func(t *testing.T) {
		_, err := FromToken("-5", 20)
		assert.Error(t, err)
	})

	t.Run("page size clamped", func(t *testing.T) {
		p, err := FromToken("", 500)
		require.NoError(t, err)
		assert.Equal(t, MaxPageSize, p.PageSize)
	})
}

func TestNextToken(t *testing.T) {
	p := &Pagination{Offset: 20, PageSize: 20}

	t.Run("more rows remain", func(t *testing.T) {
		token := p.NextToken(20, 100)
		require.NotNil(t, token)
		assert.Equal(t, "40", *token)
	})

	t.Run("exhausted", func(t *testing.T) {
		assert.Nil(t, p.NextToken(20, 40))
	})
}
