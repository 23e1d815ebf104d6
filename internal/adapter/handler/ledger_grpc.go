package handler

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
)

const LedgerServiceName = "warehouse.v1.LedgerService"

// jsonCodec carries messages as JSON under the "json" content subtype.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type ApplyInventoryEventRequest struct {
	Event domain.InventoryEvent `json:"event"`
}

type ApplyInventoryEventResponse struct {
	Item *domain.InventoryItem `json:"item"`
}

type ListItemsRequest struct {
	Scope         string `json:"scope"`
	StorageUnitID string `json:"storageUnitId,omitempty"`
}

type ListItemsResponse struct {
	Items []domain.InventoryItem `json:"items"`
}

type InventoryHistoryRequest struct {
	Scope         string `json:"scope"`
	StorageUnitID string `json:"storageUnitId,omitempty"`
}

type InventoryHistoryResponse struct {
	Events []domain.InventoryEvent `json:"events"`
}

type RegisterAccessEventRequest struct {
	CompanyID  string `json:"companyId"`
	PersonID   string `json:"personId"`
	PersonName string `json:"personName"`
	Action     string `json:"action"`
}

type RegisterAccessEventResponse struct {
	Record *domain.PresenceRecord `json:"record"`
}

type CurrentlyPresentRequest struct {
	Scope string     `json:"scope"`
	At    *time.Time `json:"at,omitempty"`
}

type CurrentlyPresentResponse struct {
	Records []domain.PresenceRecord `json:"records"`
}

type AccessHistoryRequest struct {
	Scope string `json:"scope"`
}

type AccessHistoryResponse struct {
	Events []domain.AccessEvent `json:"events"`
}

type LedgerServer interface {
	ApplyInventoryEvent(context.Context, *ApplyInventoryEventRequest) (*ApplyInventoryEventResponse, error)
	ListItems(context.Context, *ListItemsRequest) (*ListItemsResponse, error)
	InventoryHistory(context.Context, *InventoryHistoryRequest) (*InventoryHistoryResponse, error)
	RegisterAccessEvent(context.Context, *RegisterAccessEventRequest) (*RegisterAccessEventResponse, error)
	CurrentlyPresent(context.Context, *CurrentlyPresentRequest) (*CurrentlyPresentResponse, error)
	AccessHistory(context.Context, *AccessHistoryRequest) (*AccessHistoryResponse, error)
}

var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: LedgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ApplyInventoryEvent", LedgerServer.ApplyInventoryEvent),
		unary("ListItems", LedgerServer.ListItems),
		unary("InventoryHistory", LedgerServer.InventoryHistory),
		unary("RegisterAccessEvent", LedgerServer.RegisterAccessEvent),
		unary("CurrentlyPresent", LedgerServer.CurrentlyPresent),
		unary("AccessHistory", LedgerServer.AccessHistory),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

func unary[Req, Resp any](name string, call func(LedgerServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + LedgerServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// LedgerClient calls LedgerServer over a connection, always with the JSON
// codec.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func (c *LedgerClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodec{}.Name())}, opts...)
	return c.cc.Invoke(ctx, "/"+LedgerServiceName+"/"+method, in, out, opts...)
}

func (c *LedgerClient) ApplyInventoryEvent(ctx context.Context, in *ApplyInventoryEventRequest, opts ...grpc.CallOption) (*ApplyInventoryEventResponse, error) {
	out := new(ApplyInventoryEventResponse)
	if err := c.invoke(ctx, "ApplyInventoryEvent", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) ListItems(ctx context.Context, in *ListItemsRequest, opts ...grpc.CallOption) (*ListItemsResponse, error) {
	out := new(ListItemsResponse)
	if err := c.invoke(ctx, "ListItems", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) InventoryHistory(ctx context.Context, in *InventoryHistoryRequest, opts ...grpc.CallOption) (*InventoryHistoryResponse, error) {
	out := new(InventoryHistoryResponse)
	if err := c.invoke(ctx, "InventoryHistory", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) RegisterAccessEvent(ctx context.Context, in *RegisterAccessEventRequest, opts ...grpc.CallOption) (*RegisterAccessEventResponse, error) {
	out := new(RegisterAccessEventResponse)
	if err := c.invoke(ctx, "RegisterAccessEvent", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) CurrentlyPresent(ctx context.Context, in *CurrentlyPresentRequest, opts ...grpc.CallOption) (*CurrentlyPresentResponse, error) {
	out := new(CurrentlyPresentResponse)
	if err := c.invoke(ctx, "CurrentlyPresent", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) AccessHistory(ctx context.Context, in *AccessHistoryRequest, opts ...grpc.CallOption) (*AccessHistoryResponse, error) {
	out := new(AccessHistoryResponse)
	if err := c.invoke(ctx, "AccessHistory", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
