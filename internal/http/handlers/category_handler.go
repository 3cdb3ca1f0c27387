// Category (course) handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/http/middleware"
	"github.com/tbourn/course-platform-backend/internal/services"
)

// CreateCategoryRequest is the admin payload for a new course.
type CreateCategoryRequest struct {
	Name        string  `json:"name"        binding:"required,max=255" example:"Pastelería inicial"`
	Slug        string  `json:"slug"        binding:"omitempty,max=100" example:"pasteleria-inicial"`
	Description string  `json:"description" binding:"max=5000"`
	Image       string  `json:"image"       binding:"omitempty,url,max=512"`
	PriceARS    float64 `json:"price_ars"   binding:"min=0" example:"45000"`
	PriceUSD    float64 `json:"price_usd"   binding:"min=0" example:"45"`
	IsFree      bool    `json:"is_free"`
	IsActive    *bool   `json:"is_active"`
}

// UpdateCategoryRequest is a partial admin update; omitted fields keep
// their value.
type UpdateCategoryRequest struct {
	Name        *string  `json:"name"        binding:"omitempty,max=255"`
	Slug        *string  `json:"slug"        binding:"omitempty,max=100"`
	Description *string  `json:"description" binding:"omitempty,max=5000"`
	Image       *string  `json:"image"       binding:"omitempty,max=512"`
	PriceARS    *float64 `json:"price_ars"   binding:"omitempty,min=0"`
	PriceUSD    *float64 `json:"price_usd"   binding:"omitempty,min=0"`
	IsFree      *bool    `json:"is_free"`
	IsActive    *bool    `json:"is_active"`
}

// ListCategories godoc
// @ID          listCategories
// @Summary     List active categories
// @Tags        Categories
// @Produce     json
// @Success     200  {array}  domain.Category
// @Router      /categories [get]
func (h *Handlers) ListCategories(c *gin.Context) {
	rows, err := h.svc.Categories.ListActive(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rows)
}

// GetCategory godoc
// @ID          getCategory
// @Summary     Get a category by id or slug
// @Tags        Categories
// @Produce     json
// @Param       id   path  string  true  "Category ID or slug"
// @Success     200  {object}  domain.Category
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /categories/{id} [get]
func (h *Handlers) GetCategory(c *gin.Context) {
	cat, err := h.svc.Categories.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cat)
}

// CreateCategory godoc
// @ID          createCategory
// @Summary     Create a category (admin)
// @Description The slug is derived from the name when omitted.
// @Tags        Categories
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.CreateCategoryRequest  true  "Category"
// @Success     201  {object}  domain.Category
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Slug taken"
// @Router      /categories [post]
func (h *Handlers) CreateCategory(c *gin.Context) {
	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	cat, err := h.svc.Categories.Create(c.Request.Context(), services.CategoryInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Image:       req.Image,
		PriceARS:    req.PriceARS,
		PriceUSD:    req.PriceUSD,
		IsFree:      req.IsFree,
		IsActive:    req.IsActive,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.SetAuditTarget(c, cat.ID, cat)
	ok(c, http.StatusCreated, cat)
}

// ListAllCategories godoc
// @ID          listAllCategories
// @Summary     List every category, inactive ones included (admin)
// @Tags        Categories
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.Category
// @Router      /categories/all [get]
func (h *Handlers) ListAllCategories(c *gin.Context) {
	rows, err := h.svc.Categories.ListAll(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	if rows == nil {
		rows = []domain.Category{}
	}
	ok(c, http.StatusOK, rows)
}

// UpdateCategory godoc
// @ID          updateCategory
// @Summary     Update a category (admin)
// @Description Prices already in carts and entitlements keep their snapshot.
// @Tags        Categories
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                          true  "Category ID"
// @Param       body  body  handlers.UpdateCategoryRequest  true  "Fields to change"
// @Success     200  {object}  domain.Category
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Slug taken"
// @Router      /categories/{id} [patch]
func (h *Handlers) UpdateCategory(c *gin.Context) {
	var req UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	cat, err := h.svc.Categories.Update(c.Request.Context(), c.Param("id"), services.CategoryPatch{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Image:       req.Image,
		PriceARS:    req.PriceARS,
		PriceUSD:    req.PriceUSD,
		IsFree:      req.IsFree,
		IsActive:    req.IsActive,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.SetAuditTarget(c, cat.ID, req)
	ok(c, http.StatusOK, cat)
}

// DeleteCategory godoc
// @ID          deleteCategory
// @Summary     Delete a category (admin)
// @Description Only categories without videos can be deleted.
// @Tags        Categories
// @Security    BearerAuth
// @Param       id   path  string  true  "Category ID"
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Category still has videos"
// @Router      /categories/{id} [delete]
func (h *Handlers) DeleteCategory(c *gin.Context) {
	if err := h.svc.Categories.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
