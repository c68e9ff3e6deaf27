package group

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("group request not found")
	ErrConflict   = errors.New("group request not claimable")
	ErrForbidden  = errors.New("actor not permitted")
)
