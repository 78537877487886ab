package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pagination listing metadata
type Pagination struct {
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	Total      int64  `json:"total"`
	TotalPages int64  `json:"total_pages"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// NewPagination builds pagination metadata with computed total_pages
func NewPagination(page, limit int, total int64) *Pagination {
	p := &Pagination{Page: page, Limit: limit, Total: total}
	if limit > 0 {
		p.TotalPages = total / int64(limit)
		if total%int64(limit) > 0 {
			p.TotalPages++
		}
	}
	return p
}

// ErrorResponse writes err using the v2 envelope. Business errors keep their
// message; anything else is reported as a generic internal error.
func ErrorResponse(c *gin.Context, err error) {
	status := StatusOf(err)
	message := "internal server error"
	if IsAppError(err) && KindOf(err) != KindInternal {
		message = err.Error()
	}
	V2ErrorResponse(c, status, message, nil)
}

// getErrorCode generates error code from HTTP status
func getErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case http.StatusInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	default:
		return "ERROR"
	}
}
