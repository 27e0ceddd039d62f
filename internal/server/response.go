package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/testforge/portalsuite/internal/domain"
)

// Response represents a standard API response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// Error represents an API error
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta contains pagination metadata
type Meta struct {
	Page    int `json:"page,omitempty"`
	PerPage int `json:"per_page,omitempty"`
	Total   int `json:"total"`
}

// JSON writes a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: status >= 200 && status < 300, Data: data})
}

// JSONWithMeta writes a JSON response with pagination metadata
func JSONWithMeta(w http.ResponseWriter, status int, data any, meta *Meta) {
	writeJSON(w, status, Response{Success: true, Data: data, Meta: meta})
}

// JSONError writes a JSON error response
func JSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Response{Error: &Error{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// ErrorFromDomain converts a suite error to an HTTP response
func ErrorFromDomain(w http.ResponseWriter, err error) {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		JSONError(w, statusFor(appErr.Code), appErr.Code, appErr.Message)
		return
	}
	JSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}

func statusFor(code string) int {
	switch code {
	case domain.ErrCodeResultsParse:
		return http.StatusUnprocessableEntity
	case domain.ErrCodeConfig:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Pagination holds page parameters of a list request
type Pagination struct {
	Page    int
	PerPage int
	Offset  int
}

// GetPagination extracts pagination from query params
func GetPagination(r *http.Request, defaultPerPage, maxPerPage int) Pagination {
	page := 1
	perPage := defaultPerPage

	if n, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && n > 0 {
		page = n
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil && n > 0 {
		perPage = n
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	return Pagination{
		Page:    page,
		PerPage: perPage,
		Offset:  (page - 1) * perPage,
	}
}

// Window returns the bounds of the page within n items
func (p Pagination) Window(n int) (start, end int) {
	start = p.Offset
	if start > n {
		start = n
	}
	end = start + p.PerPage
	if end > n {
		end = n
	}
	return start, end
}
