package domain

import "errors"

var (
	ErrItemNotFound     = errors.New("item not found")
	ErrDuplicateItem    = errors.New("duplicate item")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidPerson    = errors.New("invalid person")
	ErrInvalidAction    = errors.New("invalid access action")
	ErrInvalidEvent     = errors.New("invalid event")
	ErrDuplicateEvent   = errors.New("duplicate event id")
	ErrScopeRequired    = errors.New("scope is required")
	ErrStoreUnavailable = errors.New("event store unavailable")
)
