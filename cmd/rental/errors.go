package main

import (
	"errors"
	"net/http"

	"item-rental/pkg/catalog"
	"item-rental/pkg/reservation"
	"item-rental/pkg/users"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{catalog.ErrItemNotFound, http.StatusNotFound, "item_not_found"},
	{reservation.ErrItemNotFound, http.StatusNotFound, "item_not_found"},
	{reservation.ErrNotFound, http.StatusNotFound, "reservation_not_found"},
	{users.ErrNotFound, http.StatusNotFound, "user_not_found"},

	{reservation.ErrItemUnavailable, http.StatusConflict, "item_unavailable"},
	{reservation.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{catalog.ErrItemInUse, http.StatusConflict, "item_in_use"},
	{catalog.ErrCategoryExists, http.StatusConflict, "category_exists"},
	{users.ErrEmailTaken, http.StatusConflict, "email_taken"},

	{reservation.ErrInvalidDecision, http.StatusUnprocessableEntity, "invalid_decision"},
	{reservation.ErrInvalidRating, http.StatusUnprocessableEntity, "invalid_rating"},
	{reservation.ErrInvalidReservation, http.StatusUnprocessableEntity, "validation_failed"},
	{catalog.ErrInvalidItem, http.StatusUnprocessableEntity, "validation_failed"},
	{catalog.ErrCategoryNotFound, http.StatusUnprocessableEntity, "category_not_found"},
	{users.ErrInvalidUser, http.StatusUnprocessableEntity, "validation_failed"},

	{reservation.ErrNotBorrower, http.StatusForbidden, "not_borrower"},
	{users.ErrForbidden, http.StatusForbidden, "forbidden"},
	{users.ErrSelfModification, http.StatusForbidden, "self_modification"},
	{users.ErrBlocked, http.StatusForbidden, "blocked"},
	{users.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
}

func respondError(c *gin.Context, err error) {
	if reservation.IsGuardFailure(err) {
		logger.Info("transition refused", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			c.JSON(m.status, gin.H{"error": err.Error(), "code": m.code})
			return
		}
	}
	_ = c.Error(err)
	logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "internal"})
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request",
		"code":    "bad_request",
		"details": err.Error(),
	})
}
