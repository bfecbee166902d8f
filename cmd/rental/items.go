package main

import (
	"net/http"
	"strconv"

	"item-rental/pkg/access"
	"item-rental/pkg/catalog"
	"item-rental/pkg/models"
	"item-rental/pkg/pagination"
	"item-rental/pkg/reservation"

	"github.com/gin-gonic/gin"
)

type itemRequest struct {
	Title         string  `json:"title" binding:"required"`
	Description   string  `json:"description"`
	Quantity      *int    `json:"quantity" binding:"required,min=0"`
	CategoryID    uint    `json:"categoryId" binding:"required"`
	ImageFilename *string `json:"imageFilename"`
}

func (r itemRequest) input() catalog.ItemInput {
	return catalog.ItemInput{
		Title:         r.Title,
		Description:   r.Description,
		Quantity:      *r.Quantity,
		CategoryID:    r.CategoryID,
		ImageFilename: r.ImageFilename,
	}
}

func itemResponse(item models.Item) gin.H {
	return gin.H{
		"itemUid":       item.ItemUid,
		"title":         item.Title,
		"description":   item.Description,
		"quantity":      item.Quantity,
		"available":     item.Quantity > 0,
		"rating":        item.Rating,
		"imageFilename": item.ImageFilename,
		"category":      categoryResponse(item.Category),
	}
}

func categoryResponse(category models.Category) gin.H {
	return gin.H{
		"id":    category.ID,
		"title": category.Title,
	}
}

func getCategories(c *gin.Context) {
	categories, err := items.ListCategories()
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, len(categories))
	for i, category := range categories {
		out[i] = categoryResponse(category)
	}
	c.JSON(http.StatusOK, out)
}

func createCategory(c *gin.Context) {
	var request struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}
	category, err := items.CreateCategory(request.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, categoryResponse(category))
}

func getItems(c *gin.Context) {
	categoryID, ok := optionalUint(c, "categoryId")
	if !ok {
		return
	}
	page, err := items.List(pagination.FromQuery(c, cfg.PageSize), categoryID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.Map(page, itemResponse))
}

func searchItems(c *gin.Context) {
	categoryID, ok := optionalUint(c, "categoryId")
	if !ok {
		return
	}
	filters := catalog.SearchFilters{Title: c.Query("title"), CategoryID: categoryID}
	if raw := c.Query("rating"); raw != "" {
		minRating, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		filters.MinRating = &minRating
	}

	page, err := items.Search(pagination.FromQuery(c, cfg.PageSize), filters)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.Map(page, itemResponse))
}

func getTopRatedItems(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 || limit > pagination.MaxPageSize {
		limit = 10
	}
	top, err := items.TopRated(limit)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, len(top))
	for i, item := range top {
		out[i] = itemResponse(item)
	}
	c.JSON(http.StatusOK, out)
}

func getItem(c *gin.Context) {
	item, err := items.Get(c.Param("itemUid"))
	if err != nil {
		respondError(c, err)
		return
	}
	user := principal(c)
	response := itemResponse(item)
	response["canRent"] = access.HasCapability(user, access.ItemRent, &item)
	response["canReserve"] = access.HasCapability(user, access.ItemReserve, &item)
	if access.HasCapability(user, access.ItemDelete, &item) {
		deletable, err := items.CanBeDeleted(item)
		if err != nil {
			respondError(c, err)
			return
		}
		response["canBeDeleted"] = deletable
	}
	c.JSON(http.StatusOK, response)
}

func createItem(c *gin.Context) {
	if !authorize(c, access.ItemCreate, nil) {
		return
	}
	var request itemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}
	item, err := items.Create(request.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, itemResponse(item))
}

func updateItem(c *gin.Context) {
	var request itemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}
	current, err := items.Get(c.Param("itemUid"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !authorize(c, access.ItemEdit, &current) {
		return
	}
	item, err := items.Update(current.ItemUid, request.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, itemResponse(item))
}

func deleteItem(c *gin.Context) {
	item, err := items.Get(c.Param("itemUid"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !authorize(c, access.ItemDelete, &item) {
		return
	}
	if err := items.Delete(item.ItemUid); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// reserveItem records a guest reservation. Signed-in users rent instead.
func reserveItem(c *gin.Context) {
	item, err := items.Get(c.Param("itemUid"))
	if err != nil {
		respondError(c, err)
		return
	}
	if principal(c) != nil {
		abortWithError(c, http.StatusForbidden, "forbidden", "signed-in users rent items directly")
		return
	}
	if !access.HasCapability(nil, access.ItemReserve, &item) {
		respondError(c, reservation.ErrItemUnavailable)
		return
	}

	var request struct {
		Email    string `json:"email" binding:"required,email"`
		Nickname string `json:"nickname"`
		Comment  string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	r, err := reservations.Create(item.ItemUid, reservation.GuestRequest{
		Email:    request.Email,
		Nickname: request.Nickname,
		Comment:  request.Comment,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reservationResponse(r))
}

func rentItem(c *gin.Context) {
	item, err := items.Get(c.Param("itemUid"))
	if err != nil {
		respondError(c, err)
		return
	}
	user := principal(c)
	if !access.HasCapability(user, access.ItemRent, &item) {
		respondError(c, reservation.ErrItemUnavailable)
		return
	}

	var request struct {
		Comment string `json:"comment"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			badRequest(c, err)
			return
		}
	}

	r, err := reservations.Rent(item.ItemUid, user, request.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reservationResponse(r))
}

// optionalUint parses an optional numeric query parameter, writing a 400 on
// malformed input.
func optionalUint(c *gin.Context, key string) (*uint, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		badRequest(c, err)
		return nil, false
	}
	v := uint(n)
	return &v, true
}
