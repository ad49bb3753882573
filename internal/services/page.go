package services

import "tabula/internal/query"

// Page is one page of results together with the total count.
type Page[T any] struct {
	Page    query.Page
	Count   int64
	Results []T
}

func (p *Page[T]) TotalPages() int {
	return p.Page.TotalPages(p.Count)
}
