package main

import (
	"errors"
	"net/http"

	"item-rental/pkg/access"
	"item-rental/pkg/models"
	"item-rental/pkg/reservation"
	"item-rental/pkg/users"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// resolvePrincipal loads the user named by X-User-Name. Requests without the
// header continue anonymously.
func resolvePrincipal(c *gin.Context) {
	email := c.GetHeader("X-User-Name")
	if email == "" {
		c.Next()
		return
	}

	user, err := accounts.FindByEmail(email)
	if errors.Is(err, users.ErrNotFound) {
		abortWithError(c, http.StatusUnauthorized, "unknown_user", "unknown user")
		return
	}
	if err != nil {
		respondError(c, err)
		c.Abort()
		return
	}
	if user.Blocked {
		respondError(c, users.ErrBlocked)
		c.Abort()
		return
	}
	c.Set(principalKey, &user)
	c.Next()
}

func principal(c *gin.Context) *models.User {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

func requireUser(c *gin.Context) {
	if !principal(c).HasRole(models.RoleUser) {
		abortWithError(c, http.StatusUnauthorized, "unauthenticated", "X-User-Name header is required")
		return
	}
	c.Next()
}

func requireAdmin(c *gin.Context) {
	user := principal(c)
	if user == nil {
		abortWithError(c, http.StatusUnauthorized, "unauthenticated", "X-User-Name header is required")
		return
	}
	if !access.HasCapability(user, access.UserManage, nil) {
		abortWithError(c, http.StatusForbidden, "forbidden", "administrator role required")
		return
	}
	c.Next()
}

// authorize writes a 403 and returns false when the principal lacks the
// capability.
func authorize(c *gin.Context, action access.Action, subject any) bool {
	if access.HasCapability(principal(c), action, subject) {
		return true
	}
	abortWithError(c, http.StatusForbidden, "forbidden", "not allowed")
	return false
}

// authorizeReservation checks a lifecycle capability on r. A principal with
// the right role but the wrong reservation status gets a 409, a borrower
// mismatch keeps its own code.
func authorizeReservation(c *gin.Context, action access.Action, r *models.Reservation) bool {
	user := principal(c)
	if access.HasCapability(user, action, r) {
		return true
	}
	switch {
	case action == access.ReservationReturn && !r.BorrowedBy(user):
		respondError(c, reservation.ErrNotBorrower)
	case action != access.ReservationReturn && !user.IsAdmin():
		abortWithError(c, http.StatusForbidden, "forbidden", "not allowed")
	default:
		respondError(c, reservation.ErrInvalidTransition)
	}
	return false
}
