package catalog

import (
	"errors"
	"fmt"
	"strings"

	"item-rental/pkg/models"
	"item-rental/pkg/pagination"
	"item-rental/pkg/rating"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrItemNotFound     = errors.New("item not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryExists   = errors.New("category already exists")
	ErrItemInUse        = errors.New("item has reservations")
	ErrInvalidItem      = errors.New("invalid item")
)

var listSorting = pagination.Sorting{
	Allowed: map[string]string{
		"id":        "items.id",
		"createdAt": "items.created_at",
		"updatedAt": "items.updated_at",
		"title":     "items.title",
		"rating":    "items.rating",
		"quantity":  "items.quantity",
	},
	DefaultField:     "updatedAt",
	DefaultDirection: "desc",
}

var searchSorting = pagination.Sorting{
	Allowed: map[string]string{
		"id":        "items.id",
		"createdAt": "items.created_at",
		"updatedAt": "items.updated_at",
		"title":     "items.title",
		"rating":    "items.rating",
	},
	DefaultField:     "title",
	DefaultDirection: "asc",
}

type Service struct {
	db      *gorm.DB
	ratings *rating.Service
	log     *zap.Logger
}

func NewService(db *gorm.DB, ratings *rating.Service, log *zap.Logger) *Service {
	return &Service{db: db, ratings: ratings, log: log}
}

type SearchFilters struct {
	Title      string
	MinRating  *int
	CategoryID *uint
}

type ItemInput struct {
	Title         string
	Description   string
	Quantity      int
	CategoryID    uint
	ImageFilename *string
}

func (in ItemInput) validate() error {
	title := strings.TrimSpace(in.Title)
	if len(title) < 3 || len(title) > 64 {
		return fmt.Errorf("%w: title must be 3 to 64 characters", ErrInvalidItem)
	}
	if len(in.Description) > 255 {
		return fmt.Errorf("%w: description is too long", ErrInvalidItem)
	}
	if in.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidItem)
	}
	return nil
}

// List returns available items, optionally limited to one category.
func (s *Service) List(p pagination.Params, categoryID *uint) (pagination.Page[models.Item], error) {
	query := s.db.Model(&models.Item{}).Where("items.quantity > 0")
	if categoryID != nil {
		query = query.Where("items.category_id = ?", *categoryID)
	}
	return pagination.Paginate[models.Item](query, p, listSorting, "Category")
}

// Search matches all items, including ones currently out of stock.
func (s *Service) Search(p pagination.Params, f SearchFilters) (pagination.Page[models.Item], error) {
	query := s.db.Model(&models.Item{})
	if title := strings.TrimSpace(f.Title); title != "" {
		query = query.Where("LOWER(items.title) LIKE ?", "%"+strings.ToLower(title)+"%")
	}
	if f.MinRating != nil {
		query = query.Where("items.rating >= ?", *f.MinRating)
	}
	if f.CategoryID != nil {
		query = query.Where("items.category_id = ?", *f.CategoryID)
	}
	return pagination.Paginate[models.Item](query, p, searchSorting, "Category")
}

func (s *Service) TopRated(limit int) ([]models.Item, error) {
	if limit <= 0 {
		limit = 10
	}
	var items []models.Item
	err := s.db.Preload("Category").
		Where("rating IS NOT NULL").
		Order("rating DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("top rated items: %w", err)
	}
	return items, nil
}

func (s *Service) Get(itemUid string) (models.Item, error) {
	if _, err := uuid.Parse(itemUid); err != nil {
		return models.Item{}, ErrItemNotFound
	}
	var item models.Item
	err := s.db.Preload("Category").Where("item_uid = ?", itemUid).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Item{}, ErrItemNotFound
	}
	if err != nil {
		return models.Item{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func (s *Service) Create(in ItemInput) (models.Item, error) {
	if err := in.validate(); err != nil {
		return models.Item{}, err
	}
	if err := s.categoryExists(in.CategoryID); err != nil {
		return models.Item{}, err
	}

	item := models.Item{
		ItemUid:       uuid.New().String(),
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		Quantity:      in.Quantity,
		CategoryID:    in.CategoryID,
		ImageFilename: in.ImageFilename,
	}
	if err := s.db.Create(&item).Error; err != nil {
		return models.Item{}, fmt.Errorf("create item: %w", err)
	}
	s.log.Info("item created", zap.String("item_uid", item.ItemUid), zap.Int("quantity", item.Quantity))
	return s.Get(item.ItemUid)
}

func (s *Service) Update(itemUid string, in ItemInput) (models.Item, error) {
	if err := in.validate(); err != nil {
		return models.Item{}, err
	}
	item, err := s.Get(itemUid)
	if err != nil {
		return models.Item{}, err
	}
	if err := s.categoryExists(in.CategoryID); err != nil {
		return models.Item{}, err
	}

	err = s.db.Model(&models.Item{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
		"title":          strings.TrimSpace(in.Title),
		"description":    in.Description,
		"quantity":       in.Quantity,
		"category_id":    in.CategoryID,
		"image_filename": in.ImageFilename,
	}).Error
	if err != nil {
		return models.Item{}, fmt.Errorf("update item: %w", err)
	}
	return s.Get(itemUid)
}

// CanBeDeleted reports whether no reservation references the item.
func (s *Service) CanBeDeleted(item models.Item) (bool, error) {
	count, err := countReservations(s.db, item.ID)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// Delete removes an unreserved item together with its ratings. The item row
// stays locked from the reservation check to the delete.
func (s *Service) Delete(itemUid string) error {
	if _, err := uuid.Parse(itemUid); err != nil {
		return ErrItemNotFound
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var item models.Item
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("item_uid = ?", itemUid).
			First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrItemNotFound
		}
		if err != nil {
			return fmt.Errorf("lock item: %w", err)
		}

		count, err := countReservations(tx, item.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrItemInUse
		}
		if err := s.ratings.DeleteForItem(tx, item.ID); err != nil {
			return err
		}
		if err := tx.Delete(&models.Item{}, item.ID).Error; err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("item deleted", zap.String("item_uid", itemUid))
	return nil
}

func countReservations(tx *gorm.DB, itemID uint) (int64, error) {
	var count int64
	if err := tx.Model(&models.Reservation{}).Where("item_id = ?", itemID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count reservations: %w", err)
	}
	return count, nil
}

func (s *Service) ListCategories() ([]models.Category, error) {
	var categories []models.Category
	if err := s.db.Order("title").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (s *Service) CreateCategory(title string) (models.Category, error) {
	title = strings.TrimSpace(title)
	if len(title) < 3 || len(title) > 64 {
		return models.Category{}, fmt.Errorf("%w: title must be 3 to 64 characters", ErrInvalidItem)
	}
	category := models.Category{Title: title}
	err := s.db.Create(&category).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.Category{}, ErrCategoryExists
	}
	if err != nil {
		return models.Category{}, fmt.Errorf("create category: %w", err)
	}
	return category, nil
}

func (s *Service) categoryExists(id uint) error {
	var count int64
	if err := s.db.Model(&models.Category{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("find category: %w", err)
	}
	if count == 0 {
		return ErrCategoryNotFound
	}
	return nil
}
