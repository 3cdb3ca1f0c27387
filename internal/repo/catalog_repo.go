package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/course-platform-backend/internal/domain"
)

// CreateCategory inserts c. A taken slug yields ErrDuplicate.
func CreateCategory(ctx context.Context, db *gorm.DB, c *domain.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetCategory fetches a non-deleted category by ID.
func GetCategory(ctx context.Context, db *gorm.DB, id string) (*domain.Category, error) {
	var c domain.Category
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCategoryBySlug fetches a non-deleted category by slug.
func GetCategoryBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Category, error) {
	var c domain.Category
	if err := db.WithContext(ctx).Where("slug = ?", slug).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListActiveCategories returns active categories ordered by name.
func ListActiveCategories(ctx context.Context, db *gorm.DB) ([]domain.Category, error) {
	var out []domain.Category
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name asc").
		Find(&out).Error
	return out, err
}

// ListAllCategories returns every non-deleted category, inactive ones
// included, ordered by name.
func ListAllCategories(ctx context.Context, db *gorm.DB) ([]domain.Category, error) {
	var out []domain.Category
	err := db.WithContext(ctx).Order("name asc").Find(&out).Error
	return out, err
}

// UpdateCategory applies fields to the category with id. A taken slug yields
// ErrDuplicate.
func UpdateCategory(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Category{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountCategoryVideos counts the non-deleted videos of a category,
// unpublished ones included.
func CountCategoryVideos(ctx context.Context, db *gorm.DB, categoryID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Video{}).
		Where("category_id = ?", categoryID).
		Count(&n).Error
	return n, err
}

// DeleteCategory soft-deletes the category with id.
func DeleteCategory(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Category{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindCategories loads the non-deleted categories among ids. Missing IDs are
// silently absent from the result.
func FindCategories(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Category, error) {
	var out []domain.Category
	if len(ids) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

// AnyFreeCategory reports whether one of ids is a free category.
func AnyFreeCategory(ctx context.Context, db *gorm.DB, ids []string) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Category{}).
		Where("id IN ? AND is_free = ?", ids, true).
		Count(&n).Error
	return n > 0, err
}

// GetUser fetches a non-deleted user by ID.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a non-deleted user by email (case-insensitive).
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts u. A taken email yields ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}
