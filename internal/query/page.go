package query

import (
	"net/url"
	"strconv"

	"tabula/internal/errs"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 1000
)

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads "page" and "perPage". A malformed page number is reported
// as not found; a malformed size falls back to the default.
func ParsePage(params url.Values) (Page, error) {
	p := Page{Number: 1, Size: DefaultPageSize}
	if raw := params.Get(ParamPage); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, errs.NotFound("invalid page")
		}
		p.Number = n
	}
	if raw := params.Get(ParamPerPage); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			p.Size = min(n, MaxPageSize)
		}
	}
	return p, nil
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// TotalPages is never less than one, so an empty result still has page 1.
func (p Page) TotalPages(count int64) int {
	if count <= 0 {
		return 1
	}
	return int((count + int64(p.Size) - 1) / int64(p.Size))
}

// Check rejects page numbers beyond the last page.
func (p Page) Check(count int64) error {
	if p.Number > p.TotalPages(count) {
		return errs.NotFound("invalid page")
	}
	return nil
}
