// Package dto provides Data Transfer Objects for API requests/responses.
package dto

// SuccessResponse acknowledges an action without a payload.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
}
