package api

import (
	"strings"
	"time"

	"github.com/gristips/gristips/uid"
)

type Resource struct {
	ID uid.ID `uri:"id" validate:"required"`
}

// EmptyRequest is used by routes that take no parameters.
type EmptyRequest struct{}

type EmptyResponse struct{}

type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
	PaginationResponse
}

func NewListResponse[T, M any](items []M, pr PaginationResponse, fn func(item M) T) *ListResponse[T] {
	result := &ListResponse[T]{
		Items:              make([]T, 0, len(items)),
		Count:              len(items),
		PaginationResponse: pr,
	}

	for _, item := range items {
		result.Items = append(result.Items, fn(item))
	}

	return result
}

type PaginationRequest struct {
	Page  int `form:"page" validate:"min=0"`
	Limit int `form:"limit" validate:"min=0,max=1000"`
}

type PaginationResponse struct {
	Page       int `json:"page,omitempty"`
	Limit      int `json:"limit,omitempty"`
	TotalPages int `json:"totalPages,omitempty"`
	TotalCount int `json:"totalCount,omitempty"`
}

// Time is a time.Time that encodes as RFC3339 in UTC, and as null when zero.
type Time time.Time

func (t Time) MarshalJSON() ([]byte, error) {
	if time.Time(t).IsZero() {
		return []byte("null"), nil
	}
	s := time.Time(t).UTC().Format(time.RFC3339)
	return []byte(`"` + s + `"`), nil
}

func (t *Time) UnmarshalJSON(data []byte) error {
	if string(data) == "null" || string(data) == `""` {
		return nil
	}
	s := strings.Trim(string(data), `"`)
	tmp, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	*t = Time(tmp.UTC())
	return nil
}

func (t Time) String() string {
	return time.Time(t).Format(time.RFC3339)
}
