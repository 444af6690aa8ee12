// Package paging holds the page request and response metadata shared by
// listing endpoints.
package paging

// Page requests a slice of a listing. Page is 1-based.
type Page struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}

// Skip is the number of rows before the page.
func (p Page) Skip() int {
	return (p.Page - 1) * p.Limit
}

// Meta describes a returned page.
type Meta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewMeta builds the metadata for a page of total rows.
func NewMeta(p Page, total int) Meta {
	p = p.Normalize()
	pages := 0
	if total > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Meta{Page: p.Page, Limit: p.Limit, Total: total, Pages: pages}
}

// Slice applies p to an in-memory listing.
func Slice[T any](items []T, p Page) []T {
	p = p.Normalize()
	start := p.Skip()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
