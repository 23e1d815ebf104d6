package handler

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/core/service"
)

type GRPCHandler struct {
	ledger   *service.InventoryLedger
	presence *service.PresenceProjector
	logger   zerolog.Logger
}

var _ LedgerServer = (*GRPCHandler)(nil)

func NewGRPCHandler(ledger *service.InventoryLedger, presence *service.PresenceProjector, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{ledger: ledger, presence: presence, logger: logger}
}

func (h *GRPCHandler) ApplyInventoryEvent(ctx context.Context, req *ApplyInventoryEventRequest) (*ApplyInventoryEventResponse, error) {
	item, err := h.ledger.Apply(ctx, req.Event)
	if err != nil {
		return nil, h.grpcError(err)
	}
	return &ApplyInventoryEventResponse{Item: item}, nil
}

func (h *GRPCHandler) ListItems(ctx context.Context, req *ListItemsRequest) (*ListItemsResponse, error) {
	items, err := h.ledger.CurrentItems(ctx, req.Scope, req.StorageUnitID)
	if err != nil {
		return nil, h.grpcError(err)
	}
	return &ListItemsResponse{Items: items}, nil
}

func (h *GRPCHandler) InventoryHistory(ctx context.Context, req *InventoryHistoryRequest) (*InventoryHistoryResponse, error) {
	events, err := h.ledger.History(ctx, req.Scope, req.StorageUnitID)
	if err != nil {
		return nil, h.grpcError(err)
	}
	return &InventoryHistoryResponse{Events: events}, nil
}

func (h *GRPCHandler) RegisterAccessEvent(ctx context.Context, req *RegisterAccessEventRequest) (*RegisterAccessEventResponse, error) {
	rec, err := h.presence.RegisterEvent(ctx, req.CompanyID, req.PersonID, req.PersonName, req.Action)
	if err != nil {
		return nil, h.grpcError(err)
	}
	return &RegisterAccessEventResponse{Record: rec}, nil
}

func (h *GRPCHandler) CurrentlyPresent(ctx context.Context, req *CurrentlyPresentRequest) (*CurrentlyPresentResponse, error) {
	var (
		records []domain.PresenceRecord
		err     error
	)
	if req.At != nil {
		records, err = h.presence.PresentAt(ctx, req.Scope, *req.At)
	} else {
		records, err = h.presence.CurrentlyPresent(ctx, req.Scope)
	}
	if err != nil {
		return nil, h.grpcError(err)
	}
	return &CurrentlyPresentResponse{Records: records}, nil
}

func (h *GRPCHandler) AccessHistory(ctx context.Context, req *AccessHistoryRequest) (*AccessHistoryResponse, error) {
	events, err := h.presence.History(ctx, req.Scope)
	if err != nil {
		return nil, h.grpcError(err)
	}
	return &AccessHistoryResponse{Events: events}, nil
}

func (h *GRPCHandler) grpcError(err error) error {
	code := grpcCode(err)
	if code == codes.Internal || code == codes.Unavailable {
		h.logger.Error().Err(err).Msg("rpc failed")
	}
	return status.Error(code, err.Error())
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, service.ErrItemNotFound):
		return codes.NotFound
	case errors.Is(err, service.ErrDuplicateItem), errors.Is(err, service.ErrDuplicateEvent):
		return codes.AlreadyExists
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidPerson),
		errors.Is(err, service.ErrInvalidAction),
		errors.Is(err, service.ErrInvalidEvent),
		errors.Is(err, service.ErrScopeRequired):
		return codes.InvalidArgument
	case errors.Is(err, service.ErrStoreUnavailable):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}
