// pkg/models/api.go
package models

// Respons error validasi gaya Laravel
type ValidationErrorResponse struct {
	Message string              `json:"message" example:"Validation failed"`
	Errors  map[string][]string `json:"errors"`
}

// Respons error umum (400/401/403/404/409/502/500)
type ErrorResponse struct {
	Error   bool   `json:"error" example:"true"`
	Message string `json:"message" example:"Forbidden"`
	Code    string `json:"code,omitempty" example:"FORBIDDEN"`
}

// Page is the pagination envelope for list endpoints.
type Page[T any] struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
	Pages    int   `json:"pages"`
	Items    []T   `json:"items"`
}

// NewPage computes the page count for total rows split by size.
func NewPage[T any](items []T, page, size int, total int64) Page[T] {
	pages := 0
	if size > 0 {
		pages = int((total + int64(size) - 1) / int64(size))
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{Page: page, PageSize: size, Total: total, Pages: pages, Items: items}
}
