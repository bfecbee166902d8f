package reservation

import (
	"fmt"

	"item-rental/pkg/models"
	"item-rental/pkg/pagination"

	"gorm.io/gorm"
)

const overdueCondition = "reservations.expiration_date < ? AND (" +
	"(reservations.status = ? AND reservations.return_date IS NULL) OR " +
	"(reservations.status = ? AND reservations.return_date > reservations.expiration_date))"

var adminSorting = pagination.Sorting{
	Allowed: map[string]string{
		"id":             "reservations.id",
		"createdAt":      "reservations.created_at",
		"loanDate":       "reservations.loan_date",
		"status":         "reservations.status",
		"email":          "reservations.email",
		"nickname":       "reservations.nickname",
		"expirationDate": "reservations.expiration_date",
		"itemTitle":      "items.title",
	},
	DefaultField:     "createdAt",
	DefaultDirection: "desc",
}

var userSorting = pagination.Sorting{
	Allowed: map[string]string{
		"createdAt": "reservations.created_at",
		"status":    "reservations.status",
	},
	DefaultField:     "createdAt",
	DefaultDirection: "desc",
}

var overdueSorting = pagination.Sorting{
	Allowed: map[string]string{
		"expirationDate": "reservations.expiration_date",
		"createdAt":      "reservations.created_at",
		"returnDate":     "reservations.return_date",
		"email":          "reservations.email",
		"itemTitle":      "items.title",
	},
	DefaultField:     "expirationDate",
	DefaultDirection: "desc",
}

func (s *Service) withItems() *gorm.DB {
	return s.db.Model(&models.Reservation{}).
		Joins("LEFT JOIN items ON items.id = reservations.item_id")
}

// List returns every reservation, for administrators.
func (s *Service) List(p pagination.Params) (pagination.Page[models.Reservation], error) {
	return pagination.Paginate[models.Reservation](s.withItems(), p, adminSorting, "Item", "User")
}

func (s *Service) ListForUser(p pagination.Params, userID uint) (pagination.Page[models.Reservation], error) {
	query := s.withItems().Where("reservations.user_id = ?", userID)
	return pagination.Paginate[models.Reservation](query, p, userSorting, "Item")
}

// ListOverdue returns loans still out past expiration and loans that came
// back late.
func (s *Service) ListOverdue(p pagination.Params) (pagination.Page[models.Reservation], error) {
	query := s.withItems().Where(overdueCondition, s.clock.Now(), models.StatusApproved, models.StatusReturned)
	return pagination.Paginate[models.Reservation](query, p, overdueSorting, "Item", "User")
}

// HasOverdue reports whether the user holds an expired loan.
func (s *Service) HasOverdue(userID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.Reservation{}).
		Where(overdueCondition, s.clock.Now(), models.StatusApproved, models.StatusReturned).
		Where("reservations.user_id = ? AND reservations.status = ?", userID, models.StatusApproved).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count overdue reservations: %w", err)
	}
	return count > 0, nil
}
