package models

import (
	"math"

	"github.com/gristips/gristips/api"
)

// Pagination is the page requested by a list operation. The zero value
// disables pagination.
type Pagination struct {
	Page       int
	Limit      int
	TotalCount int
	PageCount  int
}

func RequestToPagination(pr api.PaginationRequest) Pagination {
	if pr.Limit == 0 && pr.Page == 0 {
		return Pagination{}
	}
	page, limit := 1, 100

	if pr.Limit != 0 {
		limit = pr.Limit
	}

	if pr.Page != 0 {
		page = pr.Page
	}

	return Pagination{
		Page:  page,
		Limit: limit,
	}
}

func PaginationToResponse(p Pagination) api.PaginationResponse {
	return api.PaginationResponse{
		Page:       p.Page,
		Limit:      p.Limit,
		TotalCount: p.TotalCount,
		TotalPages: p.PageCount,
	}
}

func (p *Pagination) SetTotalCount(count int) {
	p.TotalCount = count
	if p.Limit > 0 {
		p.PageCount = int(math.Ceil(float64(count) / float64(p.Limit)))
	}
}
