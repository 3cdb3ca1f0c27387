// Cart HTTP handlers. Every route requires authentication and acts on the
// caller's own cart.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AddToCartRequest adds one category to the cart.
type AddToCartRequest struct {
	CategoryID string `json:"category_id" binding:"required" format:"uuid"`
}

// GetCart godoc
// @ID          getCart
// @Summary     Get the caller's cart
// @Description Creates an empty cart on first access.
// @Tags        Cart
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.CartView
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /cart [get]
func (h *Handlers) GetCart(c *gin.Context) {
	cart, err := h.svc.Carts.Get(c.Request.Context(), viewerFrom(c).UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cart)
}

// AddToCart godoc
// @ID          addToCart
// @Summary     Add a category to the cart
// @Tags        Cart
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.AddToCartRequest  true  "Category"
// @Success     200  {object}  services.CartView
// @Failure     400  {object}  handlers.ErrorResponse  "Inactive category"
// @Failure     404  {object}  handlers.ErrorResponse  "Category not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already purchased or already in cart"
// @Router      /cart/add [post]
func (h *Handlers) AddToCart(c *gin.Context) {
	var req AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.CategoryID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "category_id is required")
		return
	}
	cart, err := h.svc.Carts.Add(c.Request.Context(), viewerFrom(c).UserID, strings.TrimSpace(req.CategoryID))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cart)
}

// RemoveCartItem godoc
// @ID          removeCartItem
// @Summary     Remove an item from the cart
// @Tags        Cart
// @Produce     json
// @Security    BearerAuth
// @Param       itemId  path  string  true  "Cart item ID"
// @Success     200  {object}  services.CartView
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /cart/items/{itemId} [delete]
func (h *Handlers) RemoveCartItem(c *gin.Context) {
	cart, err := h.svc.Carts.Remove(c.Request.Context(), viewerFrom(c).UserID, c.Param("itemId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cart)
}

// ClearCart godoc
// @ID          clearCart
// @Summary     Empty the cart
// @Tags        Cart
// @Security    BearerAuth
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /cart [delete]
func (h *Handlers) ClearCart(c *gin.Context) {
	if err := h.svc.Carts.Clear(c.Request.Context(), viewerFrom(c).UserID); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// CartSummary godoc
// @ID          cartSummary
// @Summary     Checkout summary
// @Tags        Cart
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.CartSummary
// @Router      /cart/summary [get]
func (h *Handlers) CartSummary(c *gin.Context) {
	sum, err := h.svc.Carts.Summary(c.Request.Context(), viewerFrom(c).UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sum)
}
