package rating

import (
	"errors"
	"fmt"
	"math"

	"item-rental/pkg/models"

	"gorm.io/gorm"
)

const (
	MinValue = 1
	MaxValue = 5
)

var ErrInvalidValue = errors.New("rating must be between 1 and 5")

func Valid(value int) bool {
	return value >= MinValue && value <= MaxValue
}

// Mean is the average of values rounded to two decimals, or nil when there
// is nothing to average.
func Mean(values []int) *float64 {
	if len(values) == 0 {
		return nil
	}
	total := 0
	for _, v := range values {
		total += v
	}
	mean := math.Round(float64(total)/float64(len(values))*100) / 100
	return &mean
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Add stores value as user's rating of item, replacing any earlier one.
// Pass a transaction handle to take part in the caller's transaction.
func (s *Service) Add(tx *gorm.DB, itemID, userID uint, value int) error {
	if !Valid(value) {
		return ErrInvalidValue
	}
	if tx == nil {
		tx = s.db
	}

	var existing models.ItemRating
	found := tx.Where("item_id = ? AND user_id = ?", itemID, userID).Limit(1).Find(&existing)
	if found.Error != nil {
		return fmt.Errorf("find rating: %w", found.Error)
	}
	if found.RowsAffected == 0 {
		r := models.ItemRating{ItemID: itemID, UserID: userID, Value: value}
		if err := tx.Create(&r).Error; err != nil {
			return fmt.Errorf("create rating: %w", err)
		}
		return nil
	}

	existing.Value = value
	if err := tx.Save(&existing).Error; err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	return nil
}

func (s *Service) ForItem(tx *gorm.DB, itemID uint) ([]models.ItemRating, error) {
	if tx == nil {
		tx = s.db
	}
	var ratings []models.ItemRating
	if err := tx.Where("item_id = ?", itemID).Order("id").Find(&ratings).Error; err != nil {
		return nil, fmt.Errorf("find ratings: %w", err)
	}
	return ratings, nil
}

// Recompute stores the current mean of item's ratings on the item row.
func (s *Service) Recompute(tx *gorm.DB, itemID uint) (*float64, error) {
	ratings, err := s.ForItem(tx, itemID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		tx = s.db
	}
	values := make([]int, len(ratings))
	for i, r := range ratings {
		values[i] = r.Value
	}
	mean := Mean(values)

	res := tx.Model(&models.Item{}).Where("id = ?", itemID).Update("rating", mean)
	if res.Error != nil {
		return nil, fmt.Errorf("update item rating: %w", res.Error)
	}
	return mean, nil
}

func (s *Service) DeleteForItem(tx *gorm.DB, itemID uint) error {
	if tx == nil {
		tx = s.db
	}
	if err := tx.Where("item_id = ?", itemID).Delete(&models.ItemRating{}).Error; err != nil {
		return fmt.Errorf("delete ratings: %w", err)
	}
	return nil
}
