package core

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Pagination is one page of a find, returned by Session.FindPaginated.
// The snapshot is immutable; Prev and Next fetch a new one.
type Pagination struct {
	session *Session

	// Collection the page was read from.
	Collection string
	// Page is the current page number (1 indexed).
	Page int
	// PerPage is the number of items per page, 0 for unlimited.
	PerPage int
	// MaxPerPage is the cap that applied when the page was fetched.
	MaxPerPage int
	// Total is the number of documents matching Filter.
	Total int64
	// Items are the documents of the current page.
	Items []M

	Filter     M
	Projection map[string]bool
	Sort       bson.D
}

// Pages returns the total number of pages, 0 when PerPage is 0.
func (p *Pagination) Pages() int {
	if p.PerPage == 0 {
		return 0
	}
	return int((p.Total + int64(p.PerPage) - 1) / int64(p.PerPage))
}

// HasPrev reports whether a previous page exists.
func (p *Pagination) HasPrev() bool {
	return p.Page > 1
}

// HasNext reports whether a next page exists.
func (p *Pagination) HasNext() bool {
	return p.Page < p.Pages()
}

// PrevNum returns the number of the previous page.
func (p *Pagination) PrevNum() (int, bool) {
	if !p.HasPrev() {
		return 0, false
	}
	return p.Page - 1, true
}

// NextNum returns the number of the next page.
func (p *Pagination) NextNum() (int, bool) {
	if !p.HasNext() {
		return 0, false
	}
	return p.Page + 1, true
}

// Prev fetches the previous page. It does not check HasPrev; callers must.
func (p *Pagination) Prev(ctx context.Context) (*Pagination, error) {
	return p.fetch(ctx, p.Page-1)
}

// Next fetches the next page. It does not check HasNext; callers must.
func (p *Pagination) Next(ctx context.Context) (*Pagination, error) {
	return p.fetch(ctx, p.Page+1)
}

func (p *Pagination) fetch(ctx context.Context, page int) (*Pagination, error) {
	if p.session == nil {
		return nil, invalidArgument("pagination is not bound to a session")
	}
	return p.session.findPage(ctx, pageRequest{
		collection: p.Collection,
		filter:     p.Filter,
		projection: p.Projection,
		sort:       p.Sort,
		page:       page,
		perPage:    p.PerPage,
		maxPerPage: p.MaxPerPage,
	})
}
