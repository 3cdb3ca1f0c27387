// Package handlers implements the HTTP endpoints of the course platform.
//
// This file lists the machine-readable error codes returned in the `code`
// field of ErrorResponse. Generic codes mirror HTTP semantics; the access
// codes tell a player UI which call to action to show (sign in, buy, or
// nothing because the lesson is gone).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "purchase_required",
//	  "message": "purchase required"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUpstream         = "upstream_error"

	// Access gate:
	ErrCodeSignInRequired   = "sign_in_required"
	ErrCodePurchaseRequired = "purchase_required"
	ErrCodeVideoUnavailable = "video_unavailable"

	// Webhooks:
	ErrCodeInvalidSignature = "invalid_signature"
)
