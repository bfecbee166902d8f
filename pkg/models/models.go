package models

import (
	"time"
)

type Category struct {
	ID        uint   `gorm:"primaryKey"`
	Title     string `gorm:"size:64;not null;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Item struct {
	ID            uint     `gorm:"primaryKey"`
	ItemUid       string   `gorm:"type:uuid;uniqueIndex;not null"`
	Title         string   `gorm:"size:64;not null"`
	Description   string   `gorm:"size:255"`
	Quantity      int      `gorm:"not null;check:quantity >= 0"`
	Rating        *float64 // nil until the first rating is committed
	ImageFilename *string  `gorm:"size:191"`
	CategoryID    uint     `gorm:"not null;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Category Category `gorm:"foreignKey:CategoryID"`
}

type ItemRating struct {
	ID        uint `gorm:"primaryKey"`
	ItemID    uint `gorm:"not null;uniqueIndex:idx_item_user"`
	UserID    uint `gorm:"not null;uniqueIndex:idx_item_user"`
	Value     int  `gorm:"type:smallint;not null;check:value >= 1 AND value <= 5"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	ID        uint    `gorm:"primaryKey"`
	Email     string  `gorm:"size:180;uniqueIndex;not null"`
	Roles     Roles   `gorm:"type:varchar(255);not null"`
	Password  string  `gorm:"not null"`
	Blocked   bool    `gorm:"not null;default:false"`
	Nickname  *string `gorm:"size:50"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) HasRole(role Role) bool {
	if u == nil {
		return false
	}
	return u.Roles.Has(role)
}

func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

type Reservation struct {
	ID             uint              `gorm:"primaryKey"`
	ReservationUid string            `gorm:"type:uuid;uniqueIndex;not null"`
	ItemID         uint              `gorm:"not null;index"`
	UserID         *uint             `gorm:"index"` // nil for guest reservations
	Email          string            `gorm:"size:150;not null"`
	Nickname       *string           `gorm:"size:50"`
	Comment        *string           `gorm:"size:255"`
	Status         ReservationStatus `gorm:"size:50;not null;index"`
	LoanDate       *time.Time
	ExpirationDate *time.Time
	TempRating     *int
	ReturnDate     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Item Item  `gorm:"foreignKey:ItemID"`
	User *User `gorm:"foreignKey:UserID"`
}

// IsOverdue reports whether the loan ran past its expiration date, either
// still out or returned late.
func (r *Reservation) IsOverdue(now time.Time) bool {
	if r.ExpirationDate == nil || !r.ExpirationDate.Before(now) {
		return false
	}
	switch r.Status {
	case StatusApproved:
		return r.ReturnDate == nil
	case StatusReturned:
		return r.ReturnDate != nil && r.ReturnDate.After(*r.ExpirationDate)
	case StatusPending, StatusRejected, StatusReturnPending:
		return false
	}
	return false
}

func (r *Reservation) BorrowedBy(user *User) bool {
	return user != nil && r.UserID != nil && *r.UserID == user.ID
}
