package controllers

import "github.com/amaumene/privatecinema/internal/apperr"

// Sentinel errors returned by the controllers. The HTTP layer matches
// them with errors.Is where an endpoint needs a specific status.
var (
	ErrUnauthenticated   = apperr.New(apperr.Unauthenticated, "The function must be called while authenticated.")
	ErrSigningKeyMissing = apperr.New(apperr.FailedPrecondition, "Server signing key is not configured.")
	ErrClaimRateLimited  = apperr.New(apperr.ResourceExhausted, "Please wait before creating another claim token.")
	ErrInvalidClaim      = apperr.New(apperr.PermissionDenied, "Invalid or already used claim token.")
	ErrClaimExpired      = apperr.New(apperr.FailedPrecondition, "Claim token has expired.")
	ErrClaimUsed         = apperr.New(apperr.AlreadyExists, "Claim token has already been used.")
	ErrMissingAPIKey     = apperr.New(apperr.Unauthenticated, "An agent API key is required.")
	ErrInvalidAPIKey     = apperr.New(apperr.PermissionDenied, "Invalid or unauthorized API key provided.")
	ErrMediaNotFound     = apperr.New(apperr.FailedPrecondition, "Media not found.")
	ErrTMDBNotConfigured = apperr.New(apperr.FailedPrecondition, "TMDB integration is not configured.")
	ErrEnrichRateLimited = apperr.New(apperr.ResourceExhausted, "Please wait before enriching again.")
)
