package handler

import (
	"net/http"
	"strconv"

	"github.com/carelink/clinic-chat-go/internal/config"
)

type PaginationParams struct {
	Page  int
	Limit int
}

// ParsePagination reads page/limit query parameters, newest-first page 1.
func ParsePagination(r *http.Request) PaginationParams {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if page < 1 {
		page = 1
	}

	if limit <= 0 || limit > config.MaxHistoryLimit {
		limit = config.DefaultHistoryLimit
	}

	return PaginationParams{
		Page:  page,
		Limit: limit,
	}
}
