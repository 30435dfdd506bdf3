package pagination

import (
	"memory-lane-backend/services/apperr"
)

// Params - номер страницы (с 1) и размер страницы
type Params struct {
	Page    int
	PerPage int
}

// Meta - блок pagination в ответах
type Meta struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
	Pages   int   `json:"pages"`
	HasNext bool  `json:"has_next"`
	HasPrev bool  `json:"has_prev"`
}

// Normalize подставляет значения по умолчанию и ограничивает per_page сверху.
// Нулевые значения означают "не задано".
func (p Params) Normalize(defaultPerPage, maxPerPage int) (Params, error) {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Page < 1 {
		return p, apperr.Validation("page", "must be >= 1")
	}
	if p.PerPage == 0 {
		p.PerPage = defaultPerPage
	}
	if p.PerPage < 1 {
		return p, apperr.Validation("per_page", "must be >= 1")
	}
	if maxPerPage > 0 && p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p, nil
}

func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

func NewMeta(p Params, total int64) Meta {
	pages := 0
	if p.PerPage > 0 {
		pages = int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	}
	return Meta{
		Page:    p.Page,
		PerPage: p.PerPage,
		Total:   total,
		Pages:   pages,
		HasNext: p.Page < pages,
		HasPrev: p.Page > 1,
	}
}
