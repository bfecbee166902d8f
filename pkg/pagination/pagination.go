package pagination

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const MaxPageSize = 100

// Sorting maps public sort keys to columns. Keys outside the allow-list fall
// back to the default.
type Sorting struct {
	Allowed          map[string]string
	DefaultField     string
	DefaultDirection string
}

type Params struct {
	Page      int
	Size      int
	Sort      string
	Direction string
}

type Page[T any] struct {
	Page          int   `json:"page"`
	PageSize      int   `json:"pageSize"`
	TotalElements int64 `json:"totalElements"`
	Items         []T   `json:"items"`
}

// FromQuery reads page, size, sort and direction query parameters.
func FromQuery(c *gin.Context, defaultSize int) Params {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(defaultSize)))
	if err != nil || size < 1 || size > MaxPageSize {
		size = defaultSize
	}

	return Params{
		Page:      page,
		Size:      size,
		Sort:      c.Query("sort"),
		Direction: c.Query("direction"),
	}
}

func (p Params) Offset() int {
	return (p.Page - 1) * p.Size
}

func (p Params) order(s Sorting) clause.OrderByColumn {
	column, ok := s.Allowed[p.Sort]
	if !ok {
		column = s.Allowed[s.DefaultField]
	}
	direction := strings.ToLower(p.Direction)
	if direction != "asc" && direction != "desc" {
		direction = s.DefaultDirection
	}
	return clause.OrderByColumn{
		Column: clause.Column{Name: column},
		Desc:   direction == "desc",
	}
}

// Paginate counts the query, then loads one page of it ordered per s.
// Associations are preloaded on the page query only.
func Paginate[T any](query *gorm.DB, p Params, s Sorting, preloads ...string) (Page[T], error) {
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Page[T]{}, fmt.Errorf("count: %w", err)
	}

	pageQuery := query.Session(&gorm.Session{})
	for _, assoc := range preloads {
		pageQuery = pageQuery.Preload(assoc)
	}

	items := make([]T, 0, p.Size)
	err := pageQuery.
		Order(p.order(s)).
		Offset(p.Offset()).
		Limit(p.Size).
		Find(&items).Error
	if err != nil {
		return Page[T]{}, fmt.Errorf("find page: %w", err)
	}

	return Page[T]{
		Page:          p.Page,
		PageSize:      p.Size,
		TotalElements: total,
		Items:         items,
	}, nil
}

// Map converts the items of a page, keeping its counters.
func Map[T, U any](in Page[T], fn func(T) U) Page[U] {
	out := Page[U]{
		Page:          in.Page,
		PageSize:      in.PageSize,
		TotalElements: in.TotalElements,
		Items:         make([]U, len(in.Items)),
	}
	for i, item := range in.Items {
		out.Items[i] = fn(item)
	}
	return out
}
