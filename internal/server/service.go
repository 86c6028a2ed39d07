package server

import (
	"VaultLedger/internal/query"
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "vaultledger.v1.VaultService"

// VaultServiceServer is the server API for VaultService.
type VaultServiceServer interface {
	CreateAccount(context.Context, *AccountRequest) (*AccountResponse, error)
	CloseAccount(context.Context, *AccountRequest) (*AccountResponse, error)
	Deposit(context.Context, *AmountRequest) (*AccountResponse, error)
	Withdraw(context.Context, *AmountRequest) (*AccountResponse, error)
	Lock(context.Context, *AmountRequest) (*AccountResponse, error)
	Unlock(context.Context, *AmountRequest) (*AccountResponse, error)
	Transfer(context.Context, *TransferRequest) (*TransferResponse, error)

	InitializeAuthority(context.Context, *InitializeAuthorityRequest) (*RegistryResponse, error)
	AddCaller(context.Context, *CallerRequest) (*RegistryResponse, error)
	RemoveCaller(context.Context, *CallerRequest) (*RegistryResponse, error)

	GetAccount(context.Context, *AccountRequest) (*AccountResponse, error)
	ListAccounts(context.Context, *ListAccountsRequest) (*ListAccountsResponse, error)
	GetRegistry(context.Context, *Empty) (*RegistryResponse, error)
	ListEvents(context.Context, *ListEventsRequest) (*query.EventPage, error)
	VerifyChain(context.Context, *Empty) (*query.IntegrityReport, error)
}

// RegisterVaultServiceServer registers srv on s.
func RegisterVaultServiceServer(s grpc.ServiceRegistrar, srv VaultServiceServer) {
	s.RegisterService(&VaultServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unaryHandler[Req, Resp any](name string, call func(VaultServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	method := fullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(VaultServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(VaultServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// VaultServiceDesc is the grpc.ServiceDesc for VaultService.
var VaultServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VaultServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CreateAccount", VaultServiceServer.CreateAccount),
		unaryHandler("CloseAccount", VaultServiceServer.CloseAccount),
		unaryHandler("Deposit", VaultServiceServer.Deposit),
		unaryHandler("Withdraw", VaultServiceServer.Withdraw),
		unaryHandler("Lock", VaultServiceServer.Lock),
		unaryHandler("Unlock", VaultServiceServer.Unlock),
		unaryHandler("Transfer", VaultServiceServer.Transfer),
		unaryHandler("InitializeAuthority", VaultServiceServer.InitializeAuthority),
		unaryHandler("AddCaller", VaultServiceServer.AddCaller),
		unaryHandler("RemoveCaller", VaultServiceServer.RemoveCaller),
		unaryHandler("GetAccount", VaultServiceServer.GetAccount),
		unaryHandler("ListAccounts", VaultServiceServer.ListAccounts),
		unaryHandler("GetRegistry", VaultServiceServer.GetRegistry),
		unaryHandler("ListEvents", VaultServiceServer.ListEvents),
		unaryHandler("VerifyChain", VaultServiceServer.VerifyChain),
	},
	Streams: []grpc.StreamDesc{},
}

// VaultClient calls VaultService with the JSON codec.
type VaultClient struct {
	cc grpc.ClientConnInterface
}

func NewVaultClient(cc grpc.ClientConnInterface) *VaultClient {
	return &VaultClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *VaultClient, name string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, fullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *VaultClient) CreateAccount(ctx context.Context, in *AccountRequest, opts ...grpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c, "CreateAccount", in, opts...)
}

func (c *VaultClient) CloseAccount(ctx context.Context, in *AccountRequest, opts ...grpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c, "CloseAccount", in, opts...)
}

func (c *VaultClient) Deposit(ctx context.Context, in *AmountRequest, opts ...grpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c, "Deposit", in, opts...)
}

func (c *VaultClient) Withdraw(ctx context.Context, in *AmountRequest, opts ...grpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c, "Withdraw", in, opts...)
}

func (c *VaultClient) Lock(ctx context.Context, in *AmountRequest, opts ...grpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c, "Lock", in, opts...)
}

func (c *VaultClient) Unlock(ctx context.Context, in *AmountRequest, opts ...grpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c, "Unlock", in, opts...)
}

func (c *VaultClient) Transfer(ctx context.Context, in *TransferRequest, opts ...grpc.CallOption) (*TransferResponse, error) {
	return invoke[TransferResponse](ctx, c, "Transfer", in, opts...)
}

func (c *VaultClient) InitializeAuthority(ctx context.Context, in *InitializeAuthorityRequest, opts ...grpc.CallOption) (*RegistryResponse, error) {
	return invoke[RegistryResponse](ctx, c, "InitializeAuthority", in, opts...)
}

func (c *VaultClient) AddCaller(ctx context.Context, in *CallerRequest, opts ...grpc.CallOption) (*RegistryResponse, error) {
	return invoke[RegistryResponse](ctx, c, "AddCaller", in, opts...)
}

func (c *VaultClient) RemoveCaller(ctx context.Context, in *CallerRequest, opts ...grpc.CallOption) (*RegistryResponse, error) {
	return invoke[RegistryResponse](ctx, c, "RemoveCaller", in, opts...)
}

func (c *VaultClient) GetAccount(ctx context.Context, in *AccountRequest, opts ...grpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c, "GetAccount", in, opts...)
}

func (c *VaultClient) ListAccounts(ctx context.Context, in *ListAccountsRequest, opts ...grpc.CallOption) (*ListAccountsResponse, error) {
	return invoke[ListAccountsResponse](ctx, c, "ListAccounts", in, opts...)
}

func (c *VaultClient) GetRegistry(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*RegistryResponse, error) {
	return invoke[RegistryResponse](ctx, c, "GetRegistry", in, opts...)
}

func (c *VaultClient) ListEvents(ctx context.Context, in *ListEventsRequest, opts ...grpc.CallOption) (*query.EventPage, error) {
	return invoke[query.EventPage](ctx, c, "ListEvents", in, opts...)
}

func (c *VaultClient) VerifyChain(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*query.IntegrityReport, error) {
	return invoke[query.IntegrityReport](ctx, c, "VerifyChain", in, opts...)
}
