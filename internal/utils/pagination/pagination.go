package pagination

import (
	"strconv"

	apperrors "github.com/hangouthub/server/internal/shared/errors"
)

// Default values.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination represents offset-style pagination parameters used by list
// endpoints that page with an opaque next token.
type Pagination struct {
	Offset   int
	PageSize int
}

// New creates pagination with default values.
func New() *Pagination {
	return &Pagination{PageSize: DefaultPageSize}
}

// FromToken builds pagination from an optional next token (the offset as a
// decimal string) and a requested page size.
func FromToken(token string, pageSize int) (*Pagination, error) {
	p := &Pagination{PageSize: pageSize}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}

	if token != "" {
		offset, err := strconv.Atoi(token)
		if err != nil || offset < 0 {
			return nil, apperrors.ValidationError("Invalid nextToken")
		}
		p.Offset = offset
	}

	return p, nil
}

// Limit returns the limit for database queries.
func (p *Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NextToken returns the token for the following page, or nil when the
// current page exhausted the result set.
func (p *Pagination) NextToken(returned int, total int64) *string {
	next := p.Offset + returned
	if int64(next) >= total {
		return nil
	}
	token := strconv.Itoa(next)
	return &token
}
