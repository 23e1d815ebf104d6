package service

import "github.com/rl1809/warehouse-ledger/internal/core/domain"

// Error kinds callers can match with errors.Is.
var (
	ErrItemNotFound     = domain.ErrItemNotFound
	ErrDuplicateItem    = domain.ErrDuplicateItem
	ErrInvalidQuantity  = domain.ErrInvalidQuantity
	ErrInvalidPerson    = domain.ErrInvalidPerson
	ErrInvalidAction    = domain.ErrInvalidAction
	ErrInvalidEvent     = domain.ErrInvalidEvent
	ErrDuplicateEvent   = domain.ErrDuplicateEvent
	ErrScopeRequired    = domain.ErrScopeRequired
	ErrStoreUnavailable = domain.ErrStoreUnavailable
)
