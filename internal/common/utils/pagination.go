package utils

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Pagination 分页参数，page 从 1 开始
type Pagination struct {
	Page     int   `json:"page" form:"page"`
	PageSize int   `json:"page_size" form:"page_size"`
	Total    int64 `json:"total"`
}

// Normalize 页码至少为 1，页大小限制在 1-100，缺省 20
func (p *Pagination) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.PageSize < 1:
		p.PageSize = defaultPageSize
	case p.PageSize > maxPageSize:
		p.PageSize = maxPageSize
	}
}

func (p *Pagination) GetOffset() int { return (p.Page - 1) * p.PageSize }

func (p *Pagination) GetLimit() int { return p.PageSize }
