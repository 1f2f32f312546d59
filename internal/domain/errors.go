package domain

import "errors"

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrOwnerNotFound         = errors.New("user does not exist")
	ErrItemNotFound          = errors.New("item not found")
	ErrInvalidStatus         = errors.New("invalid status")
	ErrForbidden             = errors.New("access denied")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrInvalidTransition     = errors.New("invalid status transition") // wrapped with ErrInvalidStatus
	ErrInvalidInput          = errors.New("invalid input")
)
