// Package services – CartService
//
// CartService manages the single shopping cart of each user. Items snapshot
// category prices when added; the cart is emptied by the grant pipeline once
// a payment for it is approved.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/repo"
)

// CartView is a cart with computed totals.
type CartView struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Items     []domain.CartItem `json:"items"`
	ItemCount int               `json:"item_count"`
	TotalARS  float64           `json:"total_ars"`
	TotalUSD  float64           `json:"total_usd"`
}

// CartSummaryItem is one checkout line.
type CartSummaryItem struct {
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name"`
	PriceARS     float64 `json:"price_ars"`
	PriceUSD     float64 `json:"price_usd"`
}

// CartSummary is the checkout view of a cart.
type CartSummary struct {
	ItemCount int               `json:"item_count"`
	TotalARS  float64           `json:"total_ars"`
	TotalUSD  float64           `json:"total_usd"`
	Items     []CartSummaryItem `json:"items"`
}

// CartService implements cart operations.
type CartService struct {
	DB *gorm.DB
}

// NewCartService constructs a CartService.
func NewCartService(db *gorm.DB) *CartService {
	return &CartService{DB: db}
}

func newCartView(c *domain.Cart) *CartView {
	v := &CartView{ID: c.ID, UserID: c.UserID, Items: c.Items, ItemCount: len(c.Items)}
	if v.Items == nil {
		v.Items = []domain.CartItem{}
	}
	for _, it := range c.Items {
		v.TotalARS += it.PriceARS
		v.TotalUSD += it.PriceUSD
	}
	return v
}

// Get returns the user's cart, creating it on first access.
func (s *CartService) Get(ctx context.Context, userID string) (*CartView, error) {
	tr := otel.Tracer("services/CartService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	c, err := repo.GetOrCreateCart(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	return newCartView(c), nil
}

// Add puts categoryID in the user's cart at current prices.
func (s *CartService) Add(ctx context.Context, userID, categoryID string) (*CartView, error) {
	tr := otel.Tracer("services/CartService")
	ctx, span := tr.Start(ctx, "Add",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("category.id", categoryID),
		),
	)
	defer span.End()

	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return nil, ErrInvalidInput
	}

	cat, err := repo.GetCategory(ctx, s.DB, categoryID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	if !cat.IsActive {
		return nil, ErrCategoryInactive
	}

	// Any existing row counts, active or not.
	if _, err := repo.FindEntitlement(ctx, s.DB, userID, categoryID); err == nil {
		return nil, ErrAlreadyPurchased
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	c, err := repo.GetOrCreateCart(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if in, err := repo.CartHasCategory(ctx, s.DB, c.ID, categoryID); err != nil {
		return nil, err
	} else if in {
		return nil, ErrAlreadyInCart
	}

	item := &domain.CartItem{CartID: c.ID, CategoryID: categoryID, PriceARS: cat.PriceARS, PriceUSD: cat.PriceUSD}
	if err := repo.AddCartItem(ctx, s.DB, item); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrAlreadyInCart
		}
		return nil, err
	}
	return s.Get(ctx, userID)
}

// Remove deletes one item from the user's cart.
func (s *CartService) Remove(ctx context.Context, userID, itemID string) (*CartView, error) {
	tr := otel.Tracer("services/CartService")
	ctx, span := tr.Start(ctx, "Remove",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("item.id", itemID),
		),
	)
	defer span.End()

	c, err := repo.GetCart(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	if err := repo.DeleteCartItem(ctx, s.DB, c.ID, itemID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCartItemNotFound
		}
		return nil, err
	}
	return s.Get(ctx, userID)
}

// Clear empties the user's cart. It returns ErrCartNotFound when the user
// never had one.
func (s *CartService) Clear(ctx context.Context, userID string) error {
	tr := otel.Tracer("services/CartService")
	ctx, span := tr.Start(ctx, "Clear", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if _, err := repo.ClearCart(ctx, s.DB, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrCartNotFound
		}
		return err
	}
	return nil
}

// Summary returns the checkout view. A missing cart is an empty summary.
func (s *CartService) Summary(ctx context.Context, userID string) (*CartSummary, error) {
	out := &CartSummary{Items: []CartSummaryItem{}}
	c, err := repo.GetCart(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return out, nil
		}
		return nil, err
	}
	for _, it := range c.Items {
		out.Items = append(out.Items, CartSummaryItem{
			CategoryID:   it.CategoryID,
			CategoryName: it.Category.Name,
			PriceARS:     it.PriceARS,
			PriceUSD:     it.PriceUSD,
		})
		out.TotalARS += it.PriceARS
		out.TotalUSD += it.PriceUSD
	}
	out.ItemCount = len(out.Items)
	return out, nil
}
