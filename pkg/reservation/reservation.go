// Package reservation runs the loan lifecycle of catalog items:
//
//	pending -> approved | rejected
//	approved -> return_pending -> returned
//
// Every transition executes in one database transaction. The reservation row
// is locked, the status change is a compare-and-set on the expected source
// status, and stock moves through conditional updates, so a failed guard
// leaves both the reservation and the item untouched.
package reservation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"item-rental/pkg/clock"
	"item-rental/pkg/models"
	"item-rental/pkg/rating"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultLoanPeriod = 7 * 24 * time.Hour

var (
	ErrNotFound           = errors.New("reservation not found")
	ErrItemNotFound       = errors.New("item not found")
	ErrItemUnavailable    = errors.New("item not available")
	ErrInvalidTransition  = errors.New("action not allowed in current reservation status")
	ErrInvalidDecision    = errors.New("invalid decision")
	ErrNotBorrower        = errors.New("reservation belongs to another user")
	ErrInvalidReservation = errors.New("invalid reservation")
	ErrInvalidRating      = rating.ErrInvalidValue
)

// IsGuardFailure reports whether err is a refused transition rather than a
// lookup or storage failure.
func IsGuardFailure(err error) bool {
	return errors.Is(err, ErrItemUnavailable) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidDecision) ||
		errors.Is(err, ErrNotBorrower) ||
		errors.Is(err, ErrInvalidRating)
}

type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionReturned Decision = "returned"
)

type Service struct {
	db         *gorm.DB
	ratings    *rating.Service
	clock      clock.Clock
	log        *zap.Logger
	loanPeriod time.Duration
}

type Option func(*Service)

// WithLoanPeriod overrides the default seven day loan.
func WithLoanPeriod(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.loanPeriod = d
		}
	}
}

func NewService(db *gorm.DB, ratings *rating.Service, clk clock.Clock, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		db:         db,
		ratings:    ratings,
		clock:      clk,
		log:        log,
		loanPeriod: DefaultLoanPeriod,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type GuestRequest struct {
	Email    string
	Nickname string
	Comment  string
}

// validate returns the normalized guest email.
func (r GuestRequest) validate() (string, error) {
	email, err := models.NormalizeEmail(r.Email, 150)
	if err != nil {
		return "", fmt.Errorf("%w: a valid email is required", ErrInvalidReservation)
	}
	if n := len(strings.TrimSpace(r.Nickname)); n != 0 && (n < 2 || n > 50) {
		return "", fmt.Errorf("%w: nickname must be 2 to 50 characters", ErrInvalidReservation)
	}
	if len(r.Comment) > 255 {
		return "", fmt.Errorf("%w: comment is too long", ErrInvalidReservation)
	}
	return email, nil
}

// Create records a guest's pending reservation for an item in stock. Stock is
// only taken when the reservation is approved.
func (s *Service) Create(itemUid string, req GuestRequest) (models.Reservation, error) {
	email, err := req.validate()
	if err != nil {
		return models.Reservation{}, err
	}

	var result models.Reservation
	err = s.db.Transaction(func(tx *gorm.DB) error {
		item, err := findItem(tx, itemUid)
		if err != nil {
			return err
		}
		if item.Quantity <= 0 {
			return ErrItemUnavailable
		}

		result = models.Reservation{
			ReservationUid: uuid.New().String(),
			ItemID:         item.ID,
			Email:          email,
			Nickname:       optional(req.Nickname),
			Comment:        optional(req.Comment),
			Status:         models.StatusPending,
			CreatedAt:      s.clock.Now(),
		}
		if err := tx.Create(&result).Error; err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}
		result.Item = item
		return nil
	})
	if err != nil {
		return models.Reservation{}, err
	}

	s.log.Info("reservation requested",
		zap.String("reservation_uid", result.ReservationUid),
		zap.Uint("item_id", result.ItemID))
	return result, nil
}

// Decide approves or rejects a pending reservation. Approval takes one unit
// of stock and starts the loan.
func (s *Service) Decide(reservationUid string, decision Decision) (models.Reservation, error) {
	if decision != DecisionApproved && decision != DecisionRejected {
		return models.Reservation{}, ErrInvalidDecision
	}

	now := s.clock.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		r, err := lockReservation(tx, reservationUid)
		if err != nil {
			return err
		}
		if r.Status != models.StatusPending {
			return ErrInvalidTransition
		}

		if decision == DecisionRejected {
			return transition(tx, r.ID, models.StatusPending, map[string]interface{}{
				"status": models.StatusRejected,
			})
		}
		if err := takeStock(tx, r.ItemID); err != nil {
			return err
		}
		return transition(tx, r.ID, models.StatusPending, map[string]interface{}{
			"status":          models.StatusApproved,
			"loan_date":       now,
			"expiration_date": now.Add(s.loanPeriod),
		})
	})
	if err != nil {
		return models.Reservation{}, err
	}

	s.log.Info("reservation decided",
		zap.String("reservation_uid", reservationUid),
		zap.String("decision", string(decision)))
	return s.Get(reservationUid)
}

// Rent lends an item to a registered user straight away, skipping the
// pending state.
func (s *Service) Rent(itemUid string, user *models.User, comment string) (models.Reservation, error) {
	if user == nil {
		return models.Reservation{}, ErrNotBorrower
	}
	if len(comment) > 255 {
		return models.Reservation{}, fmt.Errorf("%w: comment is too long", ErrInvalidReservation)
	}

	now := s.clock.Now()
	var result models.Reservation
	err := s.db.Transaction(func(tx *gorm.DB) error {
		item, err := findItem(tx, itemUid)
		if err != nil {
			return err
		}
		if err := takeStock(tx, item.ID); err != nil {
			return err
		}

		loanDate := now
		expires := now.Add(s.loanPeriod)
		userID := user.ID
		result = models.Reservation{
			ReservationUid: uuid.New().String(),
			ItemID:         item.ID,
			UserID:         &userID,
			Email:          user.Email,
			Nickname:       user.Nickname,
			Comment:        optional(comment),
			Status:         models.StatusApproved,
			LoanDate:       &loanDate,
			ExpirationDate: &expires,
			CreatedAt:      now,
		}
		if err := tx.Create(&result).Error; err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Reservation{}, err
	}

	s.log.Info("item rented",
		zap.String("reservation_uid", result.ReservationUid),
		zap.Uint("item_id", result.ItemID),
		zap.Uint("user_id", user.ID))
	return s.Get(result.ReservationUid)
}

// InitializeReturn loads a reservation the requester may hand back.
func (s *Service) InitializeReturn(reservationUid string, requester *models.User) (models.Reservation, error) {
	r, err := s.Get(reservationUid)
	if err != nil {
		return models.Reservation{}, err
	}
	if !r.BorrowedBy(requester) {
		return models.Reservation{}, ErrNotBorrower
	}
	if r.Status != models.StatusApproved || r.ReturnDate != nil {
		return models.Reservation{}, ErrInvalidTransition
	}
	return r, nil
}

// InitiateReturn is the borrower announcing a return. The optional rating is
// held on the reservation until an administrator confirms the return.
func (s *Service) InitiateReturn(reservationUid string, requester *models.User, tempRating *int) (models.Reservation, error) {
	if tempRating != nil && !rating.Valid(*tempRating) {
		return models.Reservation{}, ErrInvalidRating
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		r, err := lockReservation(tx, reservationUid)
		if err != nil {
			return err
		}
		if !r.BorrowedBy(requester) {
			return ErrNotBorrower
		}
		if r.Status != models.StatusApproved || r.ReturnDate != nil {
			return ErrInvalidTransition
		}
		return transition(tx, r.ID, models.StatusApproved, map[string]interface{}{
			"status":      models.StatusReturnPending,
			"temp_rating": tempRating,
		})
	})
	if err != nil {
		return models.Reservation{}, err
	}

	s.log.Info("return requested",
		zap.String("reservation_uid", reservationUid),
		zap.Bool("rated", tempRating != nil))
	return s.Get(reservationUid)
}

// DecideReturn confirms a pending return: stock goes back and a held rating
// is committed for the borrower.
func (s *Service) DecideReturn(reservationUid string, decision Decision) (models.Reservation, error) {
	if decision != DecisionReturned {
		return models.Reservation{}, ErrInvalidDecision
	}

	now := s.clock.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		r, err := lockReservation(tx, reservationUid)
		if err != nil {
			return err
		}
		if r.Status != models.StatusReturnPending {
			return ErrInvalidTransition
		}

		err = transition(tx, r.ID, models.StatusReturnPending, map[string]interface{}{
			"status":      models.StatusReturned,
			"return_date": now,
			"temp_rating": nil,
		})
		if err != nil {
			return err
		}
		if err := returnStock(tx, r.ItemID); err != nil {
			return err
		}

		if r.TempRating != nil && rating.Valid(*r.TempRating) && r.UserID != nil {
			if err := s.ratings.Add(tx, r.ItemID, *r.UserID, *r.TempRating); err != nil {
				return err
			}
			if _, err := s.ratings.Recompute(tx, r.ItemID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Reservation{}, err
	}

	s.log.Info("return confirmed", zap.String("reservation_uid", reservationUid))
	return s.Get(reservationUid)
}

func (s *Service) Get(reservationUid string) (models.Reservation, error) {
	if _, err := uuid.Parse(reservationUid); err != nil {
		return models.Reservation{}, ErrNotFound
	}
	var r models.Reservation
	err := s.db.Preload("Item").Preload("User").
		Where("reservation_uid = ?", reservationUid).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Reservation{}, ErrNotFound
	}
	if err != nil {
		return models.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

// Delete hard-deletes a reservation in any status. Stock is not adjusted.
func (s *Service) Delete(reservationUid string) error {
	r, err := s.Get(reservationUid)
	if err != nil {
		return err
	}
	if err := s.db.Delete(&models.Reservation{}, r.ID).Error; err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	s.log.Info("reservation deleted",
		zap.String("reservation_uid", reservationUid),
		zap.String("status", string(r.Status)))
	return nil
}

func findItem(tx *gorm.DB, itemUid string) (models.Item, error) {
	if _, err := uuid.Parse(itemUid); err != nil {
		return models.Item{}, ErrItemNotFound
	}
	var item models.Item
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_uid = ?", itemUid).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Item{}, ErrItemNotFound
	}
	if err != nil {
		return models.Item{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func lockReservation(tx *gorm.DB, reservationUid string) (models.Reservation, error) {
	if _, err := uuid.Parse(reservationUid); err != nil {
		return models.Reservation{}, ErrNotFound
	}
	var r models.Reservation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reservation_uid = ?", reservationUid).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Reservation{}, ErrNotFound
	}
	if err != nil {
		return models.Reservation{}, fmt.Errorf("lock reservation: %w", err)
	}
	return r, nil
}

// transition applies changes only while the reservation is still in status
// from.
func transition(tx *gorm.DB, id uint, from models.ReservationStatus, changes map[string]interface{}) error {
	res := tx.Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(changes)
	if res.Error != nil {
		return fmt.Errorf("update reservation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func takeStock(tx *gorm.DB, itemID uint) error {
	res := tx.Model(&models.Item{}).
		Where("id = ? AND quantity > 0", itemID).
		Update("quantity", gorm.Expr("quantity - 1"))
	if res.Error != nil {
		return fmt.Errorf("decrease quantity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrItemUnavailable
	}
	return nil
}

func returnStock(tx *gorm.DB, itemID uint) error {
	res := tx.Model(&models.Item{}).
		Where("id = ?", itemID).
		Update("quantity", gorm.Expr("quantity + 1"))
	if res.Error != nil {
		return fmt.Errorf("increase quantity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
