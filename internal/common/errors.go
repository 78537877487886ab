package common

import (
	"errors"
	"net/http"
)

// ErrorKind error taxonomy shared by services and handlers
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindValidation   ErrorKind = "validation"
	KindInternal     ErrorKind = "internal"
)

// AppError business error carrying its kind and the HTTP status it maps to
type AppError struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches any AppError of the same kind, so errors.Is(err, ErrConflict)
// holds for every conflict sentinel
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

func newError(kind ErrorKind, status int, message string) *AppError {
	return &AppError{Kind: kind, Status: status, Message: message}
}

// Kind sentinels, usable as errors.Is targets
var (
	ErrUnauthorized = &AppError{Kind: KindUnauthorized, Status: http.StatusUnauthorized}
	ErrForbidden    = &AppError{Kind: KindForbidden, Status: http.StatusForbidden}
	ErrNotFound     = &AppError{Kind: KindNotFound, Status: http.StatusNotFound}
	ErrConflict     = &AppError{Kind: KindConflict, Status: http.StatusConflict}
	ErrValidation   = &AppError{Kind: KindValidation, Status: http.StatusBadRequest}
	ErrInternal     = &AppError{Kind: KindInternal, Status: http.StatusInternalServerError}
)

// Business logic errors
var (
	// Auth errors
	ErrMissingCaller = newError(KindUnauthorized, http.StatusUnauthorized, "authentication required")
	ErrInvalidToken  = newError(KindUnauthorized, http.StatusUnauthorized, "invalid token")
	ErrExpiredToken  = newError(KindUnauthorized, http.StatusUnauthorized, "expired token")

	// Permission errors
	ErrNotMember        = newError(KindForbidden, http.StatusForbidden, "not a member of this forum")
	ErrNotManager       = newError(KindForbidden, http.StatusForbidden, "manager role required")
	ErrNotOwner         = newError(KindForbidden, http.StatusForbidden, "only the creator or a manager may do this")
	ErrPrivateRule      = newError(KindForbidden, http.StatusForbidden, "rule is not public")
	ErrArchivedRule     = newError(KindForbidden, http.StatusForbidden, "rule is archived")
	ErrProposalsHidden  = newError(KindForbidden, http.StatusForbidden, "proposals are visible to managers only")
	ErrForumMembersOnly = newError(KindForbidden, http.StatusForbidden, "listing requires forum membership")

	// Not found errors
	ErrRuleNotFound        = newError(KindNotFound, http.StatusNotFound, "rule not found")
	ErrAdoptionNotFound    = newError(KindNotFound, http.StatusNotFound, "adoption not found")
	ErrChapterRuleNotFound = newError(KindNotFound, http.StatusNotFound, "chapter rule not found")
	ErrDraftNotFound       = newError(KindNotFound, http.StatusNotFound, "draft not found")

	// Conflict errors
	ErrAlreadyAdopted    = newError(KindConflict, http.StatusConflict, "rule already adopted by this forum")
	ErrPublicRuleDelete  = newError(KindConflict, http.StatusBadRequest, "public rules cannot be deleted, make it private first")
	ErrInvalidTransition = newError(KindConflict, http.StatusConflict, "status transition not allowed")
	ErrNotProposed       = newError(KindConflict, http.StatusConflict, "rule is not a pending proposal")

	// Validation errors
	ErrInvalidInput       = newError(KindValidation, http.StatusBadRequest, "invalid input")
	ErrInvalidForum       = newError(KindValidation, http.StatusBadRequest, "exactly one of club or node must be given")
	ErrNotAdoptable       = newError(KindValidation, http.StatusBadRequest, "only public published rules can be adopted")
	ErrSelfAdoption       = newError(KindValidation, http.StatusBadRequest, "a forum cannot adopt its own rule")
	ErrMessageRequired    = newError(KindValidation, http.StatusBadRequest, "a justification message is required")
	ErrTooManyAttachments = newError(KindValidation, http.StatusBadRequest, "too many attachments")
	ErrInvalidAction      = newError(KindValidation, http.StatusBadRequest, "unknown action")
	ErrInvalidFilter      = newError(KindValidation, http.StatusBadRequest, "unknown filter type")
	ErrInvalidCursor      = newError(KindValidation, http.StatusBadRequest, "invalid cursor")

	// Quota
	ErrQuotaExceeded = newError(KindForbidden, http.StatusTooManyRequests, "creation quota exceeded")
	ErrRateLimited   = newError(KindForbidden, http.StatusTooManyRequests, "too many requests, try again later")
)

// Invalid returns a validation error with a custom message
func Invalid(message string) *AppError {
	return newError(KindValidation, http.StatusBadRequest, message)
}

// KindOf returns the kind of err, KindInternal for anything that is not an AppError
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// StatusOf returns the HTTP status err maps to
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// IsAppError reports whether err carries a business error that may be shown to callers
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}
