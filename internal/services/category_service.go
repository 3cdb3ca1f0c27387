// Package services – CategoryService
//
// CategoryService manages purchasable courses. Slugs are derived from names
// when not supplied: accents are stripped, text is lowercased and every run
// of non-alphanumeric characters becomes a single hyphen.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/repo"
)

const (
	maxCategoryName = 255
	maxSlugLen      = 100
)

// CategoryInput is the admin payload for a new category.
type CategoryInput struct {
	Name        string
	Slug        string
	Description string
	Image       string
	PriceARS    float64
	PriceUSD    float64
	IsFree      bool
	IsActive    *bool
}

// CategoryPatch is a partial admin update. Nil fields are left unchanged.
type CategoryPatch struct {
	Name        *string
	Slug        *string
	Description *string
	Image       *string
	PriceARS    *float64
	PriceUSD    *float64
	IsFree      *bool
	IsActive    *bool
}

// CategoryService implements category operations.
type CategoryService struct {
	DB *gorm.DB
}

// NewCategoryService constructs a CategoryService.
func NewCategoryService(db *gorm.DB) *CategoryService {
	return &CategoryService{DB: db}
}

var slugLower = cases.Lower(language.Spanish)

// Slugify turns free text into [a-z0-9-]. It returns "" when nothing usable
// remains.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, s)
	if err != nil {
		plain = s
	}
	plain = slugLower.String(plain)

	var b strings.Builder
	dash := false
	for _, r := range plain {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > maxSlugLen {
		out = strings.TrimRight(out[:maxSlugLen], "-")
	}
	return out
}

// Create validates in and inserts the category.
func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (*domain.Category, error) {
	tr := otel.Tracer("services/CategoryService")
	ctx, span := tr.Start(ctx, "Create", trace.WithAttributes(attribute.String("category.name", in.Name)))
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > maxCategoryName {
		return nil, ErrInvalidInput
	}
	if in.PriceARS < 0 || in.PriceUSD < 0 {
		return nil, ErrInvalidInput
	}
	slug := Slugify(in.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return nil, ErrInvalidInput
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	c := &domain.Category{
		Name:        name,
		Slug:        slug,
		Description: strings.TrimSpace(in.Description),
		Image:       strings.TrimSpace(in.Image),
		PriceARS:    in.PriceARS,
		PriceUSD:    in.PriceUSD,
		IsFree:      in.IsFree,
		IsActive:    active,
	}
	if err := repo.CreateCategory(ctx, s.DB, c); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrSlugTaken
		}
		return nil, err
	}
	return c, nil
}

// Get looks a category up by ID, then by slug.
func (s *CategoryService) Get(ctx context.Context, idOrSlug string) (*domain.Category, error) {
	c, err := repo.GetCategory(ctx, s.DB, idOrSlug)
	if errors.Is(err, repo.ErrNotFound) {
		c, err = repo.GetCategoryBySlug(ctx, s.DB, idOrSlug)
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListActive returns purchasable categories.
func (s *CategoryService) ListActive(ctx context.Context) ([]domain.Category, error) {
	return repo.ListActiveCategories(ctx, s.DB)
}

// ListAll returns every category, inactive ones included, for admin screens.
func (s *CategoryService) ListAll(ctx context.Context) ([]domain.Category, error) {
	return repo.ListAllCategories(ctx, s.DB)
}

// Update applies p to the category with id. A renamed category keeps its
// slug unless a new one is supplied.
func (s *CategoryService) Update(ctx context.Context, id string, p CategoryPatch) (*domain.Category, error) {
	tr := otel.Tracer("services/CategoryService")
	ctx, span := tr.Start(ctx, "Update", trace.WithAttributes(attribute.String("category.id", id)))
	defer span.End()

	fields := map[string]any{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" || utf8.RuneCountInString(name) > maxCategoryName {
			return nil, ErrInvalidInput
		}
		fields["name"] = name
	}
	if p.Slug != nil {
		slug := Slugify(*p.Slug)
		if slug == "" {
			return nil, ErrInvalidInput
		}
		fields["slug"] = slug
	}
	if p.Description != nil {
		fields["description"] = strings.TrimSpace(*p.Description)
	}
	if p.Image != nil {
		fields["image"] = strings.TrimSpace(*p.Image)
	}
	if p.PriceARS != nil {
		if *p.PriceARS < 0 {
			return nil, ErrInvalidInput
		}
		fields["price_ars"] = *p.PriceARS
	}
	if p.PriceUSD != nil {
		if *p.PriceUSD < 0 {
			return nil, ErrInvalidInput
		}
		fields["price_usd"] = *p.PriceUSD
	}
	if p.IsFree != nil {
		fields["is_free"] = *p.IsFree
	}
	if p.IsActive != nil {
		fields["is_active"] = *p.IsActive
	}

	if len(fields) > 0 {
		if err := repo.UpdateCategory(ctx, s.DB, id, fields); err != nil {
			switch {
			case errors.Is(err, repo.ErrDuplicate):
				return nil, ErrSlugTaken
			case errors.Is(err, repo.ErrNotFound):
				return nil, ErrCategoryNotFound
			}
			return nil, err
		}
	}
	c, err := repo.GetCategory(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return c, nil
}

// Delete soft-deletes a category that no longer owns videos. Entitlements
// and past purchases keep referencing it.
func (s *CategoryService) Delete(ctx context.Context, id string) error {
	tr := otel.Tracer("services/CategoryService")
	ctx, span := tr.Start(ctx, "Delete", trace.WithAttributes(attribute.String("category.id", id)))
	defer span.End()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetCategory(ctx, tx, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrCategoryNotFound
			}
			return err
		}
		n, err := repo.CountCategoryVideos(ctx, tx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrCategoryHasVideos
		}
		return repo.DeleteCategory(ctx, tx, id)
	})
}
