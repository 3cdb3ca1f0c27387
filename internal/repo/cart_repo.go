package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/course-platform-backend/internal/domain"
)

// GetCart returns the user's cart with items and their categories, or ErrNotFound.
func GetCart(ctx context.Context, db *gorm.DB, userID string) (*domain.Cart, error) {
	var c domain.Cart
	err := db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at asc") }).
		Preload("Items.Category").
		Where("user_id = ?", userID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetOrCreateCart returns the user's cart, creating an empty one on first use.
// A concurrent creation losing the unique race re-reads the winner's row.
func GetOrCreateCart(ctx context.Context, db *gorm.DB, userID string) (*domain.Cart, error) {
	c, err := GetCart(ctx, db, userID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	c = &domain.Cart{ID: uuid.NewString(), UserID: userID}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isDuplicate(err) {
			return GetCart(ctx, db, userID)
		}
		return nil, err
	}
	return c, nil
}

// AddCartItem inserts item. A category already in the cart yields ErrDuplicate.
func AddCartItem(ctx context.Context, db *gorm.DB, item *domain.CartItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if err := db.WithContext(ctx).Create(item).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// CartHasCategory reports whether categoryID is already in cartID.
func CartHasCategory(ctx context.Context, db *gorm.DB, cartID, categoryID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.CartItem{}).
		Where("cart_id = ? AND category_id = ?", cartID, categoryID).
		Count(&n).Error
	return n > 0, err
}

// DeleteCartItem removes one item from cartID, or returns ErrNotFound.
func DeleteCartItem(ctx context.Context, db *gorm.DB, cartID, itemID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		Delete(&domain.CartItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearCart removes every item of the user's cart. It returns ErrNotFound
// when the user has no cart.
func ClearCart(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var c domain.Cart
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&c).Error; err != nil {
		return 0, err
	}
	res := db.WithContext(ctx).Where("cart_id = ?", c.ID).Delete(&domain.CartItem{})
	return res.RowsAffected, res.Error
}
