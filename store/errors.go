package store

import (
	"context"
	"errors"
	"net/http"

	"go.mongodb.org/mongo-driver/mongo"
)

// FanOutLimit is the backing store's cap on values accepted by a single
// "value in list" query filter. Batched reads must chunk id lists to it.
const FanOutLimit = 10

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrPermissionDenied = errors.New("permission denied")
	ErrRateLimited      = errors.New("rate limited, try again later")
	ErrTransient        = errors.New("temporarily unavailable")
)

// Classify folds a raw driver error into the taxonomy so callers can
// branch on errors.Is instead of string matching.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrTransient):
		return err
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrAlreadyExists
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTransient
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return ErrStoreUnavailable
	}

	var cmd mongo.CommandError
	if errors.As(err, &cmd) {
		// 13 Unauthorized, 18 AuthenticationFailed
		if cmd.Code == 13 || cmd.Code == 18 {
			return ErrPermissionDenied
		}
	}

	return err
}

// CodeOf maps taxonomy errors to the HTTP status the RPC envelope carries.
func CodeOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrTransient):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Message renders the human readable text returned to callers;
// PermissionDenied is special-cased to suggest re-authentication.
func Message(err error) string {
	if errors.Is(err, ErrPermissionDenied) {
		return "permission denied, please sign in again"
	}
	return err.Error()
}
