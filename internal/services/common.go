package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bidyaasp/project-management/internal/authz"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/pkg/response"
	"gorm.io/gorm"
)

// PageRequest is embedded by list requests.
type PageRequest struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

func (r *PageRequest) normalize() {
	if r.Page <= 0 {
		r.Page = 1
	}
	if r.PageSize <= 0 {
		r.PageSize = 20
	}
}

func (r *PageRequest) offset() int {
	return (r.Page - 1) * r.PageSize
}

// ListResponse is the paginated envelope shared by list endpoints.
type ListResponse[T any] struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Items    []T   `json:"items"`
}

func paginate[T any](query *gorm.DB, req *PageRequest, order string, preloads ...string) (*ListResponse[T], error) {
	req.normalize()

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}

	find := query.Order(order).Offset(req.offset()).Limit(req.PageSize)
	for _, name := range preloads {
		find = find.Preload(name)
	}
	items := make([]T, 0, req.PageSize)
	if err := find.Find(&items).Error; err != nil {
		return nil, err
	}

	return &ListResponse[T]{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    items,
	}, nil
}

// notFound maps a missing row to a NotFound AppError and wraps anything else.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return response.NewNotFound(what + " not found")
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func actorID(p authz.Principal) *uint {
	id := p.ID
	return &id
}

// actorName resolves the display name used in history descriptions.
func actorName(tx *gorm.DB, p authz.Principal) (string, error) {
	var user models.User
	if err := tx.Select("id", "name").First(&user, p.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Sprintf("user #%d", p.ID), nil
		}
		return "", err
	}
	return user.Name, nil
}

// validateUserIDs rejects the whole operation when any id has no user row.
func validateUserIDs(tx *gorm.DB, ids []uint) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}

	var found []uint
	if err := tx.Model(&models.User{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return err
	}

	foundSet := make(map[uint]struct{}, len(found))
	for _, id := range found {
		foundSet[id] = struct{}{}
	}
	var invalid []uint
	for _, id := range ids {
		if _, ok := foundSet[id]; !ok {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return response.NewValidationFailed(
			fmt.Sprintf("invalid member ids: %s", joinIDs(invalid)),
			map[string][]uint{"invalid_ids": invalid},
		)
	}
	return nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}

func userNames(tx *gorm.DB, ids []uint) (string, error) {
	var names []string
	if err := tx.Model(&models.User{}).Where("id IN ?", ids).Order("id").Pluck("name", &names).Error; err != nil {
		return "", err
	}
	return strings.Join(names, ", "), nil
}

func quoted(s *string) string {
	if s == nil {
		return "none"
	}
	return "'" + *s + "'"
}

const dateLayout = "2006-01-02"

// parseDay reads a YYYY-MM-DD value in the local zone. An empty value is
// the zero time.
func parseDay(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, value, time.Local)
	if err != nil {
		return time.Time{}, response.NewValidationFailed(field+" must be YYYY-MM-DD", map[string]string{field: value})
	}
	return t, nil
}

// dayRange limits column to the whole days from start through end. Either
// bound may be empty.
func dayRange(query *gorm.DB, column, start, end string) (*gorm.DB, error) {
	from, err := parseDay("start_date", start)
	if err != nil {
		return nil, err
	}
	to, err := parseDay("end_date", end)
	if err != nil {
		return nil, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, response.NewValidationFailed("end_date is before start_date", map[string]string{"start_date": start, "end_date": end})
	}
	if !from.IsZero() {
		query = query.Where(column+" >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where(column+" < ?", to.AddDate(0, 0, 1))
	}
	return query, nil
}
