package main

import (
	"net/http"
	"time"

	"item-rental/pkg/access"
	"item-rental/pkg/models"
	"item-rental/pkg/pagination"
	"item-rental/pkg/reservation"

	"github.com/gin-gonic/gin"
)

func reservationResponse(r models.Reservation) gin.H {
	response := gin.H{
		"reservationUid": r.ReservationUid,
		"status":         r.Status,
		"email":          r.Email,
		"nickname":       r.Nickname,
		"comment":        r.Comment,
		"loanDate":       formatTime(r.LoanDate),
		"expirationDate": formatTime(r.ExpirationDate),
		"returnDate":     formatTime(r.ReturnDate),
		"tempRating":     r.TempRating,
		"overdue":        r.IsOverdue(clk.Now()),
		"guest":          r.UserID == nil,
		"closed":         r.Status.Terminal(),
		"createdAt":      r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.Item.ID != 0 {
		response["item"] = gin.H{
			"itemUid": r.Item.ItemUid,
			"title":   r.Item.Title,
		}
	}
	return response
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func getReservations(c *gin.Context) {
	if !authorize(c, access.ReservationList, nil) {
		return
	}
	page, err := reservations.List(pagination.FromQuery(c, cfg.PageSize))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.Map(page, reservationResponse))
}

func getMyReservations(c *gin.Context) {
	user := principal(c)
	page, err := reservations.ListForUser(pagination.FromQuery(c, cfg.PageSize), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	hasOverdue, err := reservations.HasOverdue(user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reservations": pagination.Map(page, reservationResponse),
		"hasOverdue":   hasOverdue,
	})
}

func getOverdueReservations(c *gin.Context) {
	page, err := reservations.ListOverdue(pagination.FromQuery(c, cfg.PageSize))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.Map(page, reservationResponse))
}

func getReservation(c *gin.Context) {
	r, err := reservations.Get(c.Param("reservationUid"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !authorize(c, access.ReservationView, &r) {
		return
	}
	c.JSON(http.StatusOK, reservationResponse(r))
}

// decisionAction maps a decision to the capability it needs. Unknown
// decisions fall through to the service, which rejects them.
func decisionAction(d reservation.Decision) access.Action {
	switch d {
	case reservation.DecisionApproved:
		return access.ReservationApprove
	case reservation.DecisionRejected:
		return access.ReservationReject
	}
	return access.ReservationManage
}

func decideReservation(c *gin.Context) {
	var request struct {
		Decision string `json:"decision" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}
	decision := reservation.Decision(request.Decision)

	current, err := reservations.Get(c.Param("reservationUid"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !authorizeReservation(c, decisionAction(decision), &current) {
		return
	}

	r, err := reservations.Decide(current.ReservationUid, decision)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservationResponse(r))
}

// getReturnForm returns the loan a borrower is about to hand back.
func getReturnForm(c *gin.Context) {
	current, err := reservations.Get(c.Param("reservationUid"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !authorizeReservation(c, access.ReservationReturn, &current) {
		return
	}

	r, err := reservations.InitializeReturn(current.ReservationUid, principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservationResponse(r))
}

func returnReservation(c *gin.Context) {
	var request struct {
		TempRating *int `json:"tempRating" binding:"omitempty,min=1,max=5"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			badRequest(c, err)
			return
		}
	}

	current, err := reservations.Get(c.Param("reservationUid"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !authorizeReservation(c, access.ReservationReturn, &current) {
		return
	}

	r, err := reservations.InitiateReturn(current.ReservationUid, principal(c), request.TempRating)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservationResponse(r))
}

func decideReturn(c *gin.Context) {
	var request struct {
		Decision string `json:"decision" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	current, err := reservations.Get(c.Param("reservationUid"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !authorizeReservation(c, access.ReservationManageReturn, &current) {
		return
	}

	r, err := reservations.DecideReturn(current.ReservationUid, reservation.Decision(request.Decision))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservationResponse(r))
}

func deleteReservation(c *gin.Context) {
	if err := reservations.Delete(c.Param("reservationUid")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
