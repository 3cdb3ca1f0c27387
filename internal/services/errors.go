// Package services defines the business logic of the course platform: the
// payment notification pipeline, entitlement granting, the content access
// gate, carts, videos, categories, polls and accounts.
//
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
// Translation into HTTP status codes happens in the handler layer.
package services

import "errors"

// Access gate errors.
var (
	// ErrVideoNotFound indicates the video does not exist or was deleted.
	ErrVideoNotFound = errors.New("video not found")

	// ErrVideoUnavailable is returned to non-admins for unpublished videos.
	ErrVideoUnavailable = errors.New("video not available")

	// ErrSignInRequired is returned to anonymous viewers of gated videos.
	ErrSignInRequired = errors.New("sign in required")

	// ErrPurchaseRequired is returned when the viewer holds no active
	// entitlement to the video's category.
	ErrPurchaseRequired = errors.New("purchase required")
)

// Catalog and cart errors.
var (
	ErrCategoryNotFound  = errors.New("category not found")
	ErrCategoryInactive  = errors.New("category is not available for purchase")
	ErrSlugTaken         = errors.New("slug already in use")
	ErrCategoryHasVideos = errors.New("category still has videos")
	ErrAlreadyPurchased  = errors.New("category already purchased")
	ErrAlreadyInCart     = errors.New("category already in cart")
	ErrCartNotFound      = errors.New("cart not found")
	ErrCartItemNotFound  = errors.New("cart item not found")
	ErrInvalidInput      = errors.New("invalid input")
)

// Granting errors. Apart from store failures, none of these are retried:
// the notification pipeline logs them and drops the notification.
var (
	// ErrMissingUser means the payment carries no resolvable user id.
	ErrMissingUser = errors.New("payment has no user id")

	// ErrMissingCategories means metadata.category_ids is absent or unparseable.
	ErrMissingCategories = errors.New("payment has no category ids")

	// ErrAlreadyProcessed means an entitlement already carries the
	// transaction id. It is a no-op, not a failure.
	ErrAlreadyProcessed = errors.New("transaction already processed")

	// ErrUserNotFound means the paying user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrNoCategories means none of the paid categories exist anymore.
	ErrNoCategories = errors.New("no valid categories")

	// ErrEntitlementNotFound is returned by admin revocation.
	ErrEntitlementNotFound = errors.New("entitlement not found")
)

// Video management errors.
var (
	ErrUploadFailed = errors.New("video processing failed at provider")
)

// Poll errors.
var (
	ErrPollNotFound      = errors.New("poll not found")
	ErrPollClosed        = errors.New("poll is closed")
	ErrNotEligible       = errors.New("user is not eligible for this poll")
	ErrInvalidPollOption = errors.New("invalid poll option")
)

// Account errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
)
