package reservation

import (
	"testing"
	"time"

	"item-rental/pkg/clock"
	"item-rental/pkg/database"
	"item-rental/pkg/models"
	"item-rental/pkg/pagination"
	"item-rental/pkg/rating"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	svc      *Service
	category models.Category
	borrower models.User
	other    models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		svc:      NewService(db, rating.NewService(db), clock.NewFixed(now), zap.NewNop()),
		category: models.Category{Title: "Tools"},
		borrower: models.User{Email: "anna@example.com", Roles: models.Roles{models.RoleUser}, Password: "x"},
		other:    models.User{Email: "olaf@example.com", Roles: models.Roles{models.RoleUser}, Password: "x"},
	}
	require.NoError(t, db.Create(&f.category).Error)
	require.NoError(t, db.Create(&f.borrower).Error)
	require.NoError(t, db.Create(&f.other).Error)
	return f
}

func (f *fixture) item(t *testing.T, quantity int) models.Item {
	t.Helper()
	item := models.Item{ItemUid: uuid.New().String(), Title: "Drill", Quantity: quantity, CategoryID: f.category.ID}
	require.NoError(t, f.db.Create(&item).Error)
	return item
}

func (f *fixture) quantity(t *testing.T, item models.Item) int {
	t.Helper()
	var stored models.Item
	require.NoError(t, f.db.First(&stored, item.ID).Error)
	return stored.Quantity
}

func (f *fixture) pending(t *testing.T, item models.Item) models.Reservation {
	t.Helper()
	r := models.Reservation{
		ReservationUid: uuid.New().String(),
		ItemID:         item.ID,
		Email:          "guest@example.com",
		Status:         models.StatusPending,
	}
	require.NoError(t, f.db.Create(&r).Error)
	return r
}

func (f *fixture) returnPending(t *testing.T, item models.Item, user models.User, tempRating *int) models.Reservation {
	t.Helper()
	r, err := f.svc.Rent(item.ItemUid, &user, "")
	require.NoError(t, err)
	r, err = f.svc.InitiateReturn(r.ReservationUid, &user, tempRating)
	require.NoError(t, err)
	return r
}

func intPtr(i int) *int { return &i }

func TestCreateReservation(t *testing.T) {
	f := setup(t)

	t.Run("creates pending reservation without taking stock", func(t *testing.T) {
		item := f.item(t, 2)
		r, err := f.svc.Create(item.ItemUid, GuestRequest{Email: "guest@example.com", Nickname: "gg", Comment: "please"})
		require.NoError(t, err)

		assert.Equal(t, models.StatusPending, r.Status)
		assert.Equal(t, item.ID, r.ItemID)
		assert.Nil(t, r.UserID)
		assert.Nil(t, r.LoanDate)
		assert.Nil(t, r.ExpirationDate)
		assert.Nil(t, r.ReturnDate)
		assert.Equal(t, 2, f.quantity(t, item))
	})

	t.Run("fails without persisting when out of stock", func(t *testing.T) {
		item := f.item(t, 0)
		_, err := f.svc.Create(item.ItemUid, GuestRequest{Email: "guest@example.com"})
		assert.ErrorIs(t, err, ErrItemUnavailable)
		assert.True(t, IsGuardFailure(err))

		var count int64
		f.db.Model(&models.Reservation{}).Where("item_id = ?", item.ID).Count(&count)
		assert.Equal(t, int64(0), count)
	})

	t.Run("unknown item", func(t *testing.T) {
		_, err := f.svc.Create(uuid.New().String(), GuestRequest{Email: "guest@example.com"})
		assert.ErrorIs(t, err, ErrItemNotFound)
		_, err = f.svc.Create("42", GuestRequest{Email: "guest@example.com"})
		assert.ErrorIs(t, err, ErrItemNotFound)
	})

	t.Run("invalid guest data", func(t *testing.T) {
		item := f.item(t, 1)
		_, err := f.svc.Create(item.ItemUid, GuestRequest{Email: "nope"})
		assert.ErrorIs(t, err, ErrInvalidReservation)
		_, err = f.svc.Create(item.ItemUid, GuestRequest{Email: "a@b.c", Nickname: "x"})
		assert.ErrorIs(t, err, ErrInvalidReservation)
		for _, email := range []string{"a@", "@example.com", "two@@example.com", "Guest <guest@example.com>"} {
			_, err = f.svc.Create(item.ItemUid, GuestRequest{Email: email})
			assert.ErrorIs(t, err, ErrInvalidReservation, email)
		}
	})

	t.Run("guest email is normalized", func(t *testing.T) {
		item := f.item(t, 1)
		r, err := f.svc.Create(item.ItemUid, GuestRequest{Email: "  Guest@Example.COM "})
		require.NoError(t, err)
		assert.Equal(t, "guest@example.com", r.Email)
	})
}

func TestDecide(t *testing.T) {
	f := setup(t)

	t.Run("approval takes stock and starts the loan", func(t *testing.T) {
		item := f.item(t, 3)
		r := f.pending(t, item)

		approved, err := f.svc.Decide(r.ReservationUid, DecisionApproved)
		require.NoError(t, err)

		assert.Equal(t, models.StatusApproved, approved.Status)
		assert.Equal(t, 2, f.quantity(t, item))
		require.NotNil(t, approved.LoanDate)
		require.NotNil(t, approved.ExpirationDate)
		assert.True(t, approved.LoanDate.Equal(now))
		assert.True(t, approved.ExpirationDate.Equal(approved.LoanDate.Add(7*24*time.Hour)))
	})

	t.Run("approval without stock leaves everything unchanged", func(t *testing.T) {
		item := f.item(t, 0)
		r := f.pending(t, item)

		_, err := f.svc.Decide(r.ReservationUid, DecisionApproved)
		assert.ErrorIs(t, err, ErrItemUnavailable)

		got, err := f.svc.Get(r.ReservationUid)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.Nil(t, got.LoanDate)
		assert.Equal(t, 0, f.quantity(t, item))
	})

	t.Run("second decision is refused without a double decrement", func(t *testing.T) {
		item := f.item(t, 3)
		r := f.pending(t, item)

		_, err := f.svc.Decide(r.ReservationUid, DecisionApproved)
		require.NoError(t, err)
		_, err = f.svc.Decide(r.ReservationUid, DecisionApproved)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = f.svc.Decide(r.ReservationUid, DecisionRejected)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		assert.Equal(t, 2, f.quantity(t, item))
	})

	t.Run("rejection is terminal and keeps stock", func(t *testing.T) {
		item := f.item(t, 1)
		r := f.pending(t, item)

		rejected, err := f.svc.Decide(r.ReservationUid, DecisionRejected)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, rejected.Status)
		assert.Nil(t, rejected.LoanDate)
		assert.Equal(t, 1, f.quantity(t, item))

		_, err = f.svc.Decide(r.ReservationUid, DecisionApproved)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("unknown decision", func(t *testing.T) {
		item := f.item(t, 1)
		r := f.pending(t, item)

		_, err := f.svc.Decide(r.ReservationUid, DecisionReturned)
		assert.ErrorIs(t, err, ErrInvalidDecision)
		_, err = f.svc.Decide(r.ReservationUid, Decision("maybe"))
		assert.ErrorIs(t, err, ErrInvalidDecision)
	})

	t.Run("unknown reservation", func(t *testing.T) {
		_, err := f.svc.Decide(uuid.New().String(), DecisionApproved)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.False(t, IsGuardFailure(err))
	})
}

func TestRent(t *testing.T) {
	f := setup(t)

	t.Run("lends directly", func(t *testing.T) {
		nick := "anna"
		f.borrower.Nickname = &nick
		item := f.item(t, 1)

		r, err := f.svc.Rent(item.ItemUid, &f.borrower, "for the weekend")
		require.NoError(t, err)

		assert.Equal(t, models.StatusApproved, r.Status)
		require.NotNil(t, r.UserID)
		assert.Equal(t, f.borrower.ID, *r.UserID)
		assert.Equal(t, f.borrower.Email, r.Email)
		require.NotNil(t, r.Nickname)
		assert.Equal(t, "anna", *r.Nickname)
		require.NotNil(t, r.Comment)
		assert.Equal(t, "for the weekend", *r.Comment)
		assert.True(t, r.ExpirationDate.Equal(now.Add(DefaultLoanPeriod)))
		assert.Equal(t, 0, f.quantity(t, item))
		assert.Equal(t, "Drill", r.Item.Title)
	})

	t.Run("fails when out of stock", func(t *testing.T) {
		item := f.item(t, 0)
		_, err := f.svc.Rent(item.ItemUid, &f.borrower, "")
		assert.ErrorIs(t, err, ErrItemUnavailable)

		var count int64
		f.db.Model(&models.Reservation{}).Where("item_id = ?", item.ID).Count(&count)
		assert.Equal(t, int64(0), count)
		assert.Equal(t, 0, f.quantity(t, item))
	})

	t.Run("custom loan period", func(t *testing.T) {
		svc := NewService(f.db, rating.NewService(f.db), clock.NewFixed(now), zap.NewNop(), WithLoanPeriod(14*24*time.Hour))
		item := f.item(t, 1)
		r, err := svc.Rent(item.ItemUid, &f.borrower, "")
		require.NoError(t, err)
		assert.True(t, r.ExpirationDate.Equal(now.Add(14*24*time.Hour)))
	})
}

func TestInitiateReturn(t *testing.T) {
	f := setup(t)

	t.Run("borrower requests return with rating", func(t *testing.T) {
		item := f.item(t, 1)
		rented, err := f.svc.Rent(item.ItemUid, &f.borrower, "")
		require.NoError(t, err)

		loaded, err := f.svc.InitializeReturn(rented.ReservationUid, &f.borrower)
		require.NoError(t, err)
		assert.Equal(t, rented.ID, loaded.ID)

		r, err := f.svc.InitiateReturn(rented.ReservationUid, &f.borrower, intPtr(4))
		require.NoError(t, err)
		assert.Equal(t, models.StatusReturnPending, r.Status)
		require.NotNil(t, r.TempRating)
		assert.Equal(t, 4, *r.TempRating)
		assert.Equal(t, 0, f.quantity(t, item))
	})

	t.Run("rating is optional", func(t *testing.T) {
		item := f.item(t, 1)
		r := f.returnPending(t, item, f.borrower, nil)
		assert.Nil(t, r.TempRating)
	})

	t.Run("other users cannot return", func(t *testing.T) {
		item := f.item(t, 1)
		rented, err := f.svc.Rent(item.ItemUid, &f.borrower, "")
		require.NoError(t, err)

		_, err = f.svc.InitializeReturn(rented.ReservationUid, &f.other)
		assert.ErrorIs(t, err, ErrNotBorrower)
		_, err = f.svc.InitiateReturn(rented.ReservationUid, &f.other, nil)
		assert.ErrorIs(t, err, ErrNotBorrower)
		_, err = f.svc.InitiateReturn(rented.ReservationUid, nil, nil)
		assert.ErrorIs(t, err, ErrNotBorrower)
	})

	t.Run("only approved loans", func(t *testing.T) {
		item := f.item(t, 1)
		r := f.returnPending(t, item, f.borrower, nil)
		_, err := f.svc.InitiateReturn(r.ReservationUid, &f.borrower, nil)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = f.svc.InitializeReturn(r.ReservationUid, &f.borrower)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("out of range rating", func(t *testing.T) {
		item := f.item(t, 1)
		rented, err := f.svc.Rent(item.ItemUid, &f.borrower, "")
		require.NoError(t, err)

		_, err = f.svc.InitiateReturn(rented.ReservationUid, &f.borrower, intPtr(6))
		assert.ErrorIs(t, err, ErrInvalidRating)
		_, err = f.svc.InitiateReturn(rented.ReservationUid, &f.borrower, intPtr(0))
		assert.ErrorIs(t, err, ErrInvalidRating)

		got, err := f.svc.Get(rented.ReservationUid)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, got.Status)
	})
}

func TestDecideReturn(t *testing.T) {
	f := setup(t)

	t.Run("commits held rating and recomputes the mean", func(t *testing.T) {
		item := f.item(t, 1)
		require.NoError(t, f.db.Create(&models.ItemRating{ItemID: item.ID, UserID: f.other.ID, Value: 5}).Error)
		r := f.returnPending(t, item, f.borrower, intPtr(4))
		assert.Equal(t, 0, f.quantity(t, item))

		returned, err := f.svc.DecideReturn(r.ReservationUid, DecisionReturned)
		require.NoError(t, err)

		assert.Equal(t, models.StatusReturned, returned.Status)
		require.NotNil(t, returned.ReturnDate)
		assert.True(t, returned.ReturnDate.Equal(now))
		assert.Nil(t, returned.TempRating)
		assert.Equal(t, 1, f.quantity(t, item))

		var ratings []models.ItemRating
		require.NoError(t, f.db.Where("item_id = ? AND user_id = ?", item.ID, f.borrower.ID).Find(&ratings).Error)
		require.Equal(t, 1, len(ratings))
		assert.Equal(t, 4, ratings[0].Value)

		require.NotNil(t, returned.Item.Rating)
		assert.Equal(t, 4.5, *returned.Item.Rating)
	})

	t.Run("a second loan replaces the borrower's rating", func(t *testing.T) {
		item := f.item(t, 1)
		r := f.returnPending(t, item, f.borrower, intPtr(2))
		_, err := f.svc.DecideReturn(r.ReservationUid, DecisionReturned)
		require.NoError(t, err)

		r = f.returnPending(t, item, f.borrower, intPtr(5))
		returned, err := f.svc.DecideReturn(r.ReservationUid, DecisionReturned)
		require.NoError(t, err)

		var count int64
		f.db.Model(&models.ItemRating{}).Where("item_id = ?", item.ID).Count(&count)
		assert.Equal(t, int64(1), count)
		require.NotNil(t, returned.Item.Rating)
		assert.Equal(t, 5.0, *returned.Item.Rating)
	})

	t.Run("without rating the mean stays undefined", func(t *testing.T) {
		item := f.item(t, 2)
		r := f.returnPending(t, item, f.borrower, nil)

		returned, err := f.svc.DecideReturn(r.ReservationUid, DecisionReturned)
		require.NoError(t, err)
		assert.Equal(t, 2, f.quantity(t, item))
		assert.Nil(t, returned.Item.Rating)
	})

	t.Run("only pending returns", func(t *testing.T) {
		item := f.item(t, 1)
		rented, err := f.svc.Rent(item.ItemUid, &f.borrower, "")
		require.NoError(t, err)

		_, err = f.svc.DecideReturn(rented.ReservationUid, DecisionReturned)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, 0, f.quantity(t, item))
	})

	t.Run("wrong decision literal", func(t *testing.T) {
		item := f.item(t, 1)
		r := f.returnPending(t, item, f.borrower, nil)

		_, err := f.svc.DecideReturn(r.ReservationUid, DecisionApproved)
		assert.ErrorIs(t, err, ErrInvalidDecision)

		got, err := f.svc.Get(r.ReservationUid)
		require.NoError(t, err)
		assert.Equal(t, models.StatusReturnPending, got.Status)
	})

	t.Run("confirming twice returns stock once", func(t *testing.T) {
		item := f.item(t, 1)
		r := f.returnPending(t, item, f.borrower, nil)

		_, err := f.svc.DecideReturn(r.ReservationUid, DecisionReturned)
		require.NoError(t, err)
		_, err = f.svc.DecideReturn(r.ReservationUid, DecisionReturned)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, 1, f.quantity(t, item))
	})
}

func TestOverdue(t *testing.T) {
	f := setup(t)
	item := f.item(t, 5)

	expired := now.AddDate(0, 0, -1)
	lateReturn := now.Add(-time.Hour)
	earlyReturn := expired.AddDate(0, 0, -1)
	later := now.AddDate(0, 0, 3)
	userID := f.borrower.ID

	rows := []models.Reservation{
		{Status: models.StatusApproved, ExpirationDate: &expired, UserID: &userID},
		{Status: models.StatusReturned, ExpirationDate: &expired, ReturnDate: &lateReturn},
		{Status: models.StatusReturned, ExpirationDate: &expired, ReturnDate: &earlyReturn},
		{Status: models.StatusApproved, ExpirationDate: &later, UserID: &userID},
		{Status: models.StatusPending},
	}
	for i := range rows {
		rows[i].ReservationUid = uuid.New().String()
		rows[i].ItemID = item.ID
		rows[i].Email = "x@example.com"
		require.NoError(t, f.db.Create(&rows[i]).Error)
	}

	for i, expected := range []bool{true, true, false, false, false} {
		assert.Equal(t, expected, rows[i].IsOverdue(now), "row %d", i)
	}

	page, err := f.svc.ListOverdue(pagination.Params{Page: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.TotalElements)
	for _, r := range page.Items {
		assert.True(t, r.IsOverdue(now))
		assert.Equal(t, "Drill", r.Item.Title)
	}

	has, err := f.svc.HasOverdue(f.borrower.ID)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = f.svc.HasOverdue(f.other.ID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestListings(t *testing.T) {
	f := setup(t)
	item := f.item(t, 5)

	_, err := f.svc.Rent(item.ItemUid, &f.borrower, "")
	require.NoError(t, err)
	_, err = f.svc.Rent(item.ItemUid, &f.other, "")
	require.NoError(t, err)
	f.pending(t, item)

	all, err := f.svc.List(pagination.Params{Page: 1, Size: 10, Sort: "itemTitle", Direction: "asc"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.TotalElements)
	for _, r := range all.Items {
		assert.Equal(t, "Drill", r.Item.Title)
		assert.NotZero(t, r.ID)
		assert.Equal(t, item.ID, r.ItemID)
	}

	mine, err := f.svc.ListForUser(pagination.Params{Page: 1, Size: 10}, f.borrower.ID)
	require.NoError(t, err)
	require.Equal(t, 1, len(mine.Items))
	assert.Equal(t, f.borrower.ID, *mine.Items[0].UserID)
}

func TestDelete(t *testing.T) {
	f := setup(t)
	item := f.item(t, 1)
	r := f.returnPending(t, item, f.borrower, nil)

	require.NoError(t, f.svc.Delete(r.ReservationUid))
	_, err := f.svc.Get(r.ReservationUid)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(r.ReservationUid), ErrNotFound)
}
