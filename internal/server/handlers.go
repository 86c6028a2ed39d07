package server

import (
	"VaultLedger/internal/auth"
	"VaultLedger/internal/core"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/query"
	"VaultLedger/internal/registry"
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Engine is the state machine behind the mutating RPCs.
type Engine interface {
	CreateAccount(ctx context.Context, caller auth.Principal, key ledger.AccountKey) (*ledger.Account, error)
	CloseAccount(ctx context.Context, caller auth.Principal, key ledger.AccountKey) (*ledger.Account, error)
	Deposit(ctx context.Context, caller auth.Principal, key ledger.AccountKey, amount uint64) (*ledger.Account, error)
	Withdraw(ctx context.Context, caller auth.Principal, key ledger.AccountKey, amount uint64) (*ledger.Account, error)
	Lock(ctx context.Context, caller auth.Principal, key ledger.AccountKey, amount uint64) (*ledger.Account, error)
	Unlock(ctx context.Context, caller auth.Principal, key ledger.AccountKey, amount uint64) (*ledger.Account, error)
	Transfer(ctx context.Context, caller auth.Principal, from, to ledger.AccountKey, amount uint64) (src, dst *ledger.Account, err error)

	InitializeAuthority(ctx context.Context, admin auth.Principal, callers []ledger.Identity) (*registry.Registry, error)
	AddCaller(ctx context.Context, admin auth.Principal, caller ledger.Identity) (*registry.Registry, error)
	RemoveCaller(ctx context.Context, admin auth.Principal, caller ledger.Identity) (*registry.Registry, error)
}

// vaultService implements VaultServiceServer over the engine and the
// read-only query service. The caller is always taken from the context,
// never from the request body.
type vaultService struct {
	engine  Engine
	queries *query.QueryService
}

var _ VaultServiceServer = (*vaultService)(nil)

func NewVaultService(engine Engine, queries *query.QueryService) VaultServiceServer {
	return &vaultService{engine: engine, queries: queries}
}

func caller(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return auth.Principal{}, status.Error(codes.Unauthenticated, "missing caller identity")
	}
	return p, nil
}

func withKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return core.WithIdempotencyKey(ctx, key)
}

func requireAsset(asset string) error {
	if asset == "" {
		return status.Error(codes.InvalidArgument, "asset is required")
	}
	return nil
}

func (s *vaultService) accountResponse(acct *ledger.Account, err error) (*AccountResponse, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return &AccountResponse{Account: s.queries.ViewAccount(acct)}, nil
}

func registryResponse(reg *registry.Registry, err error) (*RegistryResponse, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return &RegistryResponse{Registry: query.ViewRegistry(reg)}, nil
}

// --- account lifecycle ---

func (s *vaultService) CreateAccount(ctx context.Context, req *AccountRequest) (*AccountResponse, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireAsset(req.Asset); err != nil {
		return nil, err
	}
	return s.accountResponse(s.engine.CreateAccount(ctx, p, req.key(p.ID)))
}

func (s *vaultService) CloseAccount(ctx context.Context, req *AccountRequest) (*AccountResponse, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireAsset(req.Asset); err != nil {
		return nil, err
	}
	return s.accountResponse(s.engine.CloseAccount(ctx, p, req.key(p.ID)))
}

// --- balance movements ---

type amountOp func(ctx context.Context, caller auth.Principal, key ledger.AccountKey, amount uint64) (*ledger.Account, error)

func (s *vaultService) applyAmount(ctx context.Context, req *AmountRequest, op amountOp) (*AccountResponse, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireAsset(req.Asset); err != nil {
		return nil, err
	}
	return s.accountResponse(op(withKey(ctx, req.IdempotencyKey), p, req.key(p.ID), req.Amount))
}

func (s *vaultService) Deposit(ctx context.Context, req *AmountRequest) (*AccountResponse, error) {
	return s.applyAmount(ctx, req, s.engine.Deposit)
}

func (s *vaultService) Withdraw(ctx context.Context, req *AmountRequest) (*AccountResponse, error) {
	return s.applyAmount(ctx, req, s.engine.Withdraw)
}

func (s *vaultService) Lock(ctx context.Context, req *AmountRequest) (*AccountResponse, error) {
	return s.applyAmount(ctx, req, s.engine.Lock)
}

func (s *vaultService) Unlock(ctx context.Context, req *AmountRequest) (*AccountResponse, error) {
	return s.applyAmount(ctx, req, s.engine.Unlock)
}

func (s *vaultService) Transfer(ctx context.Context, req *TransferRequest) (*TransferResponse, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if req.FromOwner == "" || req.ToOwner == "" {
		return nil, status.Error(codes.InvalidArgument, "from_owner and to_owner are required")
	}
	if err := requireAsset(req.Asset); err != nil {
		return nil, err
	}
	asset := ledger.AssetKind(req.Asset)
	from := ledger.AccountKey{Owner: ledger.Identity(req.FromOwner), Asset: asset}
	to := ledger.AccountKey{Owner: ledger.Identity(req.ToOwner), Asset: asset}

	src, dst, err := s.engine.Transfer(withKey(ctx, req.IdempotencyKey), p, from, to, req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return &TransferResponse{
		Source:      s.queries.ViewAccount(src),
		Destination: s.queries.ViewAccount(dst),
	}, nil
}

// --- registry administration ---

func (s *vaultService) InitializeAuthority(ctx context.Context, req *InitializeAuthorityRequest) (*RegistryResponse, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	callers := make([]ledger.Identity, 0, len(req.Callers))
	for _, c := range req.Callers {
		callers = append(callers, ledger.Identity(c))
	}
	return registryResponse(s.engine.InitializeAuthority(ctx, p, callers))
}

func (s *vaultService) AddCaller(ctx context.Context, req *CallerRequest) (*RegistryResponse, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	return registryResponse(s.engine.AddCaller(ctx, p, ledger.Identity(req.Caller)))
}

func (s *vaultService) RemoveCaller(ctx context.Context, req *CallerRequest) (*RegistryResponse, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	return registryResponse(s.engine.RemoveCaller(ctx, p, ledger.Identity(req.Caller)))
}

// --- reads ---

// Reads are open to every authenticated caller; only writes are owner or
// registry gated.

func (s *vaultService) GetAccount(ctx context.Context, req *AccountRequest) (*AccountResponse, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireAsset(req.Asset); err != nil {
		return nil, err
	}
	view, err := s.queries.GetAccount(ctx, req.key(p.ID))
	if err != nil {
		return nil, toStatus(err)
	}
	return &AccountResponse{Account: *view}, nil
}

func (s *vaultService) ListAccounts(ctx context.Context, req *ListAccountsRequest) (*ListAccountsResponse, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	owner := ledger.Identity(req.Owner)
	if owner == "" {
		owner = p.ID
	}
	views, err := s.queries.ListAccounts(ctx, owner)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListAccountsResponse{Accounts: views}, nil
}

func (s *vaultService) GetRegistry(ctx context.Context, _ *Empty) (*RegistryResponse, error) {
	view, err := s.queries.GetRegistry(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RegistryResponse{Registry: *view}, nil
}

func (s *vaultService) ListEvents(ctx context.Context, req *ListEventsRequest) (*query.EventPage, error) {
	page, err := s.queries.ListEvents(ctx, req.After, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return page, nil
}

func (s *vaultService) VerifyChain(ctx context.Context, _ *Empty) (*query.IntegrityReport, error) {
	report, err := s.queries.VerifyChain(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return report, nil
}
