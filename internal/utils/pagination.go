package utils

import (
	"github.com/gofiber/fiber/v2"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is the window a list endpoint was asked for. Total and HasMore are
// filled in by Paged once the query has run.
type Page struct {
	Number  int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	Pages   int   `json:"pages"`
	HasMore bool  `json:"has_more"`
}

// ParsePage reads ?page and ?limit. Junk values fall back to the first page
// of DefaultPageSize and limit is capped at MaxPageSize.
func ParsePage(c *fiber.Ctx) Page {
	p := Page{Number: c.QueryInt("page", 1), Limit: c.QueryInt("limit", DefaultPageSize)}
	if p.Number < 1 {
		p.Number = 1
	}
	switch {
	case p.Limit < 1:
		p.Limit = DefaultPageSize
	case p.Limit > MaxPageSize:
		p.Limit = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

type PageResponse struct {
	Data interface{} `json:"data"`
	Page Page        `json:"pagination"`
}

// Paged wraps one page of results with its totals.
func Paged(data interface{}, p Page, total int64) PageResponse {
	p.Total = total
	p.Pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	p.HasMore = int64(p.Offset()+p.Limit) < total
	return PageResponse{Data: data, Page: p}
}
