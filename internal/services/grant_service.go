// Package services – GrantService
//
// GrantService turns a confirmed payment into entitlement rows. The whole
// batch for one payment is written in a single database transaction: either
// every new row is created or none is. The transaction id is checked before
// the transaction (fast path) and again inside it, so concurrent deliveries of
// the same payment cannot both grant. Clearing the buyer's cart happens after
// commit and is best effort.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/mercadopago"
	"github.com/tbourn/course-platform-backend/internal/repo"
)

// DefaultEntitlementDuration is how long a purchased entitlement lasts.
const DefaultEntitlementDuration = 365 * 24 * time.Hour

// CartClearer empties a user's cart.
type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

// ConfirmedPayment is an approved payment reduced to what granting needs.
type ConfirmedPayment struct {
	PaymentID   string
	UserID      string
	CategoryIDs []string
	Amount      float64
	Currency    string
	Method      string
}

// ConfirmedFromPayment extracts the grant inputs from a provider payment.
// It fails with ErrMissingUser or ErrMissingCategories.
func ConfirmedFromPayment(p *mercadopago.Payment) (ConfirmedPayment, error) {
	cp := ConfirmedPayment{
		PaymentID: p.TransactionID(),
		UserID:    p.UserID(),
		Amount:    p.TransactionAmount,
		Currency:  p.CurrencyID,
		Method:    p.PaymentMethodID,
	}
	if cp.UserID == "" {
		return cp, ErrMissingUser
	}
	ids, err := p.CategoryIDs()
	if err != nil {
		return cp, fmt.Errorf("%w: %v", ErrMissingCategories, err)
	}
	cp.CategoryIDs = ids
	return cp, nil
}

// GrantResult lists the rows created by a grant and the pre-existing rows it
// left untouched.
type GrantResult struct {
	Created []domain.Entitlement
	Reused  []domain.Entitlement
}

// GrantService writes entitlements.
type GrantService struct {
	DB       *gorm.DB
	Duration time.Duration
	Now      func() time.Time
	Carts    CartClearer
	Log      zerolog.Logger
}

// NewGrantService returns a service with the default duration and clock.
func NewGrantService(db *gorm.DB, duration time.Duration, carts CartClearer) *GrantService {
	if duration <= 0 {
		duration = DefaultEntitlementDuration
	}
	return &GrantService{
		DB:       db,
		Duration: duration,
		Now:      func() time.Time { return time.Now().UTC() },
		Carts:    carts,
		Log:      log.Logger,
	}
}

func (s *GrantService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Grant creates one entitlement per paid category.
func (s *GrantService) Grant(ctx context.Context, p ConfirmedPayment) (*GrantResult, error) {
	tr := otel.Tracer("services/GrantService")
	ctx, span := tr.Start(ctx, "Grant",
		trace.WithAttributes(
			attribute.String("payment.id", p.PaymentID),
			attribute.String("user.id", p.UserID),
			attribute.Int("categories", len(p.CategoryIDs)),
		),
	)
	defer span.End()

	lg := s.Log.With().Str("payment_id", p.PaymentID).Str("user_id", p.UserID).Logger()

	if p.UserID == "" {
		return nil, ErrMissingUser
	}
	if len(p.CategoryIDs) == 0 {
		return nil, ErrMissingCategories
	}

	if done, err := repo.TransactionProcessed(ctx, s.DB, p.PaymentID); err != nil {
		return nil, err
	} else if done {
		return nil, ErrAlreadyProcessed
	}

	now := s.now()
	expires := now.Add(s.Duration)
	res := &GrantResult{}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if done, err := repo.TransactionProcessed(ctx, tx, p.PaymentID); err != nil {
			return err
		} else if done {
			return ErrAlreadyProcessed
		}

		if _, err := repo.GetUser(ctx, tx, p.UserID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		cats, err := repo.FindCategories(ctx, tx, p.CategoryIDs)
		if err != nil {
			return err
		}
		if missing := missingIDs(p.CategoryIDs, cats); len(missing) > 0 {
			lg.Warn().Strs("missing_category_ids", missing).Msg("some paid categories no longer exist")
		}
		if len(cats) == 0 {
			return ErrNoCategories
		}

		share := p.Amount / float64(len(cats))
		txID := p.PaymentID
		for _, c := range cats {
			existing, err := repo.FindEntitlement(ctx, tx, p.UserID, c.ID)
			if err == nil {
				lg.Info().Str("category_id", c.ID).Str("category", c.Name).Msg("user already holds this category")
				res.Reused = append(res.Reused, *existing)
				continue
			}
			if !errors.Is(err, repo.ErrNotFound) {
				return err
			}

			e := domain.Entitlement{
				ID:            uuid.NewString(),
				UserID:        p.UserID,
				CategoryID:    c.ID,
				Amount:        share,
				Currency:      p.Currency,
				PaymentMethod: p.Method,
				TransactionID: &txID,
				PaymentStatus: domain.PaymentStatusCompleted,
				IsActive:      true,
				ExpiresAt:     &expires,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := repo.CreateEntitlement(ctx, tx, &e); err != nil {
				lg.Error().Err(err).Str("category_id", c.ID).Str("category", c.Name).
					Msg("granting category failed, rolling back payment batch")
				return err
			}
			res.Created = append(res.Created, e)
		}
		return nil
	})
	if err != nil {
		// A concurrent delivery may have won the unique index race.
		if errors.Is(err, repo.ErrDuplicate) {
			if done, cerr := repo.TransactionProcessed(ctx, s.DB, p.PaymentID); cerr == nil && done {
				return nil, ErrAlreadyProcessed
			}
		}
		return nil, err
	}

	entitlementsGranted.Add(float64(len(res.Created)))
	lg.Info().Int("created", len(res.Created)).Int("reused", len(res.Reused)).Msg("payment granted")

	if s.Carts != nil {
		if err := s.Carts.Clear(ctx, p.UserID); err != nil && !errors.Is(err, ErrCartNotFound) {
			lg.Warn().Err(err).Msg("clearing cart after purchase failed")
		}
	}
	return res, nil
}

func missingIDs(want []string, found []domain.Category) []string {
	have := make(map[string]struct{}, len(found))
	for _, c := range found {
		have[c.ID] = struct{}{}
	}
	var out []string
	for _, id := range want {
		if _, ok := have[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// ManualGrant is an admin grant outside the payment flow.
type ManualGrant struct {
	UserID     string
	CategoryID string
	Amount     float64
	Currency   string
	Method     string
}

// GrantManual creates a permanent entitlement with no transaction id, or
// reactivates the existing (user, category) row as permanent.
func (s *GrantService) GrantManual(ctx context.Context, in ManualGrant) (*domain.Entitlement, error) {
	tr := otel.Tracer("services/GrantService")
	ctx, span := tr.Start(ctx, "GrantManual",
		trace.WithAttributes(
			attribute.String("user.id", in.UserID),
			attribute.String("category.id", in.CategoryID),
		),
	)
	defer span.End()

	if in.Currency == "" {
		in.Currency = "ARS"
	}
	if in.Method == "" {
		in.Method = "manual"
	}

	var out *domain.Entitlement
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetUser(ctx, tx, in.UserID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if _, err := repo.GetCategory(ctx, tx, in.CategoryID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrCategoryNotFound
			}
			return err
		}

		existing, err := repo.FindEntitlement(ctx, tx, in.UserID, in.CategoryID)
		switch {
		case err == nil:
			existing.IsActive = true
			existing.ExpiresAt = nil
			existing.PaymentStatus = domain.PaymentStatusManual
			existing.UpdatedAt = s.now()
			if err := repo.SaveEntitlement(ctx, tx, existing); err != nil {
				return err
			}
			out = existing
			return nil
		case errors.Is(err, repo.ErrNotFound):
			e := &domain.Entitlement{
				UserID:        in.UserID,
				CategoryID:    in.CategoryID,
				Amount:        in.Amount,
				Currency:      in.Currency,
				PaymentMethod: in.Method,
				PaymentStatus: domain.PaymentStatusManual,
				IsActive:      true,
			}
			if err := repo.CreateEntitlement(ctx, tx, e); err != nil {
				return err
			}
			out = e
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info().Str("user_id", in.UserID).Str("category_id", in.CategoryID).Msg("manual entitlement granted")
	return out, nil
}

// Revoke deletes the (user, category) entitlement.
func (s *GrantService) Revoke(ctx context.Context, userID, categoryID string) error {
	tr := otel.Tracer("services/GrantService")
	ctx, span := tr.Start(ctx, "Revoke",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("category.id", categoryID),
		),
	)
	defer span.End()

	if err := repo.DeleteEntitlement(ctx, s.DB, userID, categoryID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrEntitlementNotFound
		}
		return err
	}
	s.Log.Info().Str("user_id", userID).Str("category_id", categoryID).Msg("entitlement revoked")
	return nil
}

// RevokeTransaction deactivates every entitlement bought with transactionID,
// recording status (refunded or charged_back).
func (s *GrantService) RevokeTransaction(ctx context.Context, transactionID, status string) (int64, error) {
	tr := otel.Tracer("services/GrantService")
	ctx, span := tr.Start(ctx, "RevokeTransaction",
		trace.WithAttributes(attribute.String("payment.id", transactionID)),
	)
	defer span.End()

	return repo.DeactivateByTransaction(ctx, s.DB, transactionID, status, s.now())
}

// ListForUser returns the user's entitlements with categories.
func (s *GrantService) ListForUser(ctx context.Context, userID string) ([]domain.Entitlement, error) {
	return repo.ListUserEntitlements(ctx, s.DB, userID)
}
