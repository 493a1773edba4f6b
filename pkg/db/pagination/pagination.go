package pagination

// Pagination carries page-number style paging parameters from the API.
type Pagination struct {
	Page  int `form:"page,default=1" validate:"gte=1"`
	Limit int `form:"limit,default=25" validate:"gte=1,lte=250"`
}

// PageInfo describes the slice of results returned.
type PageInfo struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalItems int64 `json:"total_items"`
	HasMore    bool  `json:"has_more"`
}

func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 25
	}
	if p.Limit > 250 {
		p.Limit = 250
	}
	return p
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// BuildPageInfo computes paging metadata for a total row count.
func BuildPageInfo(p Pagination, total int64) PageInfo {
	return PageInfo{
		Page:       p.Page,
		Limit:      p.Limit,
		TotalItems: total,
		HasMore:    int64(p.Offset()+p.Limit) < total,
	}
}
