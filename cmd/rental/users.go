package main

import (
	"net/http"
	"strconv"

	"item-rental/pkg/access"
	"item-rental/pkg/models"
	"item-rental/pkg/pagination"
	"item-rental/pkg/users"

	"github.com/gin-gonic/gin"
)

func userResponse(user models.User) gin.H {
	return gin.H{
		"id":       user.ID,
		"email":    user.Email,
		"nickname": user.Nickname,
		"roles":    user.Roles,
		"blocked":  user.Blocked,
	}
}

func registerUser(c *gin.Context) {
	var request struct {
		Email    string `json:"email" binding:"required,email"`
		Nickname string `json:"nickname"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}
	user, err := accounts.Register(request.Email, request.Nickname, request.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, userResponse(user))
}

func updateProfile(c *gin.Context) {
	var request struct {
		Email    string `json:"email" binding:"required,email"`
		Nickname string `json:"nickname"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}
	user := principal(c)
	if err := accounts.UpdateProfile(user, request.Email, request.Nickname); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, userResponse(*user))
}

func changePassword(c *gin.Context) {
	var request struct {
		CurrentPassword string `json:"currentPassword" binding:"required"`
		NewPassword     string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}
	user := principal(c)
	if _, err := accounts.Authenticate(user.Email, request.CurrentPassword); err != nil {
		respondError(c, err)
		return
	}
	if err := accounts.ChangePassword(user, request.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func getUsers(c *gin.Context) {
	page, err := accounts.List(pagination.FromQuery(c, cfg.PageSize))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.Map(page, userResponse))
}

func updateUserRole(c *gin.Context) {
	target, ok := targetUser(c)
	if !ok {
		return
	}
	var request struct {
		Admin *bool `json:"admin" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}
	if err := accounts.UpdateRole(&target, principal(c), *request.Admin); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, userResponse(target))
}

func toggleUserBlock(c *gin.Context) {
	target, ok := targetUser(c)
	if !ok {
		return
	}
	if err := accounts.ToggleBlock(&target, principal(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, userResponse(target))
}

func deleteUser(c *gin.Context) {
	target, ok := targetUser(c)
	if !ok {
		return
	}
	if err := accounts.Delete(&target, principal(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// targetUser loads the account named by the :id path parameter.
func targetUser(c *gin.Context) (models.User, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, users.ErrNotFound)
		return models.User{}, false
	}
	user, err := accounts.Get(uint(id))
	if err != nil {
		respondError(c, err)
		return models.User{}, false
	}
	if !authorize(c, access.UserManage, &user) {
		return models.User{}, false
	}
	return user, true
}
