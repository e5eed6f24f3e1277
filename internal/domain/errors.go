package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidPrice    = errors.New("price must be strictly between $0 and $1")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrOrderNotOpen    = errors.New("order is filled or already cancelled")
	ErrConnClosed      = errors.New("connection closed")
	ErrUnavailable     = errors.New("collaborator unavailable")
)
