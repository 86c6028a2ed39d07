package core_test

import (
	"VaultLedger/internal/auth"
	"VaultLedger/internal/core"
	"VaultLedger/internal/custody"
	"VaultLedger/internal/event"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/registry"
	"VaultLedger/internal/store"
	"VaultLedger/internal/testutil"
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

// --- Test helpers ---

var testSecret = bytes.Repeat([]byte{0x42}, 32)

type harness struct {
	engine    *core.Engine
	store     *store.Memory
	custodian *custody.MemoryCustodian
	deriver   *custody.Deriver
}

func newHarness(t *testing.T, opts ...core.Option) *harness {
	t.Helper()
	deriver, err := custody.NewDeriver(testSecret)
	if err != nil {
		t.Fatalf("NewDeriver: %v", err)
	}
	st := store.NewMemory()
	cust := custody.NewMemoryCustodian(nil)
	base := []core.Option{core.WithClock(func() time.Time { return time.UnixMicro(1_700_000_000_000_000).UTC() })}
	return &harness{
		engine:    core.NewEngine(st, cust, deriver, append(base, opts...)...),
		store:     st,
		custodian: cust,
		deriver:   deriver,
	}
}

func principal(id string) auth.Principal {
	return auth.Principal{ID: ledger.Identity(id)}
}

func usdt(owner string) ledger.AccountKey {
	return ledger.AccountKey{Owner: ledger.Identity(owner), Asset: "USDT"}
}

// open creates the owner's account and funds their wallet holding.
func (h *harness) open(t *testing.T, owner string, wallet uint64) ledger.AccountKey {
	t.Helper()
	key := usdt(owner)
	if _, err := h.engine.CreateAccount(context.Background(), principal(owner), key); err != nil {
		t.Fatalf("CreateAccount(%s): %v", owner, err)
	}
	if wallet > 0 {
		h.custodian.Fund(custody.OwnerHolding(key.Owner, key.Asset), key.Asset, wallet)
	}
	return key
}

func (h *harness) initAuthority(t *testing.T, callers ...ledger.Identity) {
	t.Helper()
	if _, err := h.engine.InitializeAuthority(context.Background(), principal("admin"), callers); err != nil {
		t.Fatalf("InitializeAuthority: %v", err)
	}
}

func (h *harness) events(t *testing.T) []*event.EventEnvelope {
	t.Helper()
	envs, err := h.store.ListEvents(context.Background(), 0, 1000)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	return envs
}

func assertBalances(t *testing.T, acct *ledger.Account, total, available, locked uint64) {
	t.Helper()
	if acct.Total != total || acct.Available != available || acct.Locked != locked {
		t.Errorf("balances: got total=%d available=%d locked=%d, want %d/%d/%d",
			acct.Total, acct.Available, acct.Locked, total, available, locked)
	}
}

// ============================================================================
// Test: Account lifecycle
// ============================================================================

func TestCreateAccount_OpensCustodialHolding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	acct, err := h.engine.CreateAccount(ctx, principal("alice"), usdt("alice"))
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	assertBalances(t, acct, 0, 0, 0)

	want := custody.CustodialHolding(usdt("alice"))
	if acct.AssetLocation != string(want) {
		t.Errorf("asset location: got %s, want %s", acct.AssetLocation, want)
	}
	if !h.custodian.IsOpen(want) {
		t.Error("custodial holding not opened")
	}

	envs := h.events(t)
	if len(envs) != 1 || envs[0].EventType != event.EventTypeAccountInitialized {
		t.Fatalf("events: got %d, want 1 AccountInitialized", len(envs))
	}
	if envs[0].Subject != "vault:alice:USDT" {
		t.Errorf("subject: got %s", envs[0].Subject)
	}
}

func TestCreateAccount_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.open(t, "alice", 0)

	if _, err := h.engine.CreateAccount(ctx, principal("alice"), usdt("alice")); !errors.Is(err, ledger.ErrAccountExists) {
		t.Errorf("duplicate: got %v, want ErrAccountExists", err)
	}
	if _, err := h.engine.CreateAccount(ctx, principal("mallory"), usdt("bob")); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("foreign owner: got %v, want ErrUnauthorized", err)
	}
	bad := ledger.AccountKey{Owner: "alice", Asset: "US DT"}
	if _, err := h.engine.CreateAccount(ctx, principal("alice"), bad); !errors.Is(err, ledger.ErrInvalidAssetKind) {
		t.Errorf("bad asset: got %v, want ErrInvalidAssetKind", err)
	}
	if got := len(h.events(t)); got != 1 {
		t.Errorf("rejections must not append events, got %d", got)
	}
}

func TestCreateAccount_CustodyFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.custodian.FailNext(errors.New("custodian offline"))

	_, err := h.engine.CreateAccount(ctx, principal("alice"), usdt("alice"))
	if !errors.Is(err, ledger.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}
	if _, err := h.engine.GetAccount(ctx, usdt("alice")); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("account persisted after failed open: %v", err)
	}

	// The retry succeeds because nothing was committed.
	if _, err := h.engine.CreateAccount(ctx, principal("alice"), usdt("alice")); err != nil {
		t.Errorf("retry: %v", err)
	}
}

func TestCloseAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := h.open(t, "alice", 100)

	if _, err := h.engine.Deposit(ctx, principal("alice"), key, 100); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if _, err := h.engine.CloseAccount(ctx, principal("alice"), key); !errors.Is(err, ledger.ErrAccountNotEmpty) {
		t.Fatalf("non-empty close: got %v, want ErrAccountNotEmpty", err)
	}
	if _, err := h.engine.Withdraw(ctx, principal("alice"), key, 100); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if _, err := h.engine.CloseAccount(ctx, principal("bob"), key); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("foreign close: got %v, want ErrUnauthorized", err)
	}

	closed, err := h.engine.CloseAccount(ctx, principal("alice"), key)
	if err != nil {
		t.Fatalf("CloseAccount: %v", err)
	}
	if _, err := h.engine.GetAccount(ctx, key); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("closed account still readable: %v", err)
	}
	holding := custody.Holding(closed.AssetLocation)
	if to, ok := h.custodian.ReleasedTo(holding); !ok || to != "alice" {
		t.Errorf("holding not released to owner: %v %v", to, ok)
	}

	// Re-initialization after close yields a fresh record.
	again, err := h.engine.CreateAccount(ctx, principal("alice"), key)
	if err != nil {
		t.Fatalf("re-create: %v", err)
	}
	if again.ID == closed.ID {
		t.Error("re-created account reused the closed account id")
	}
	if again.LifetimeDeposited != 0 {
		t.Errorf("re-created account carried lifetime counters: %d", again.LifetimeDeposited)
	}
}

// ============================================================================
// Test: Deposit / Withdraw
// ============================================================================

func TestDepositWithdraw_MovesCustodyFunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := h.open(t, "alice", 1_000)
	wallet := custody.OwnerHolding(key.Owner, key.Asset)
	vault := custody.CustodialHolding(key)

	acct, err := h.engine.Deposit(ctx, principal("alice"), key, 1_000)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	assertBalances(t, acct, 1_000, 1_000, 0)
	if h.custodian.Balance(vault) != 1_000 || h.custodian.Balance(wallet) != 0 {
		t.Errorf("custody after deposit: vault=%d wallet=%d", h.custodian.Balance(vault), h.custodian.Balance(wallet))
	}

	acct, err = h.engine.Withdraw(ctx, principal("alice"), key, 250)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	assertBalances(t, acct, 750, 750, 0)
	if acct.LifetimeDeposited != 1_000 || acct.LifetimeWithdrawn != 250 {
		t.Errorf("lifetime: deposited=%d withdrawn=%d", acct.LifetimeDeposited, acct.LifetimeWithdrawn)
	}
	if h.custodian.Balance(vault) != 750 || h.custodian.Balance(wallet) != 250 {
		t.Errorf("custody after withdraw: vault=%d wallet=%d", h.custodian.Balance(vault), h.custodian.Balance(wallet))
	}
}

func TestDeposit_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := h.open(t, "alice", 10)

	if _, err := h.engine.Deposit(ctx, principal("alice"), key, 0); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("zero: got %v, want ErrInvalidAmount", err)
	}
	if _, err := h.engine.Deposit(ctx, principal("bob"), key, 5); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("non-owner: got %v, want ErrUnauthorized", err)
	}
	if _, err := h.engine.Deposit(ctx, principal("bob"), usdt("bob"), 5); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("missing account: got %v, want ErrAccountNotFound", err)
	}
}

func TestDeposit_CustodyFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := h.open(t, "alice", 100)
	before := len(h.events(t))

	// Wallet only holds 100: the custodian refuses and the ledger must not
	// have credited anything.
	_, err := h.engine.Deposit(ctx, principal("alice"), key, 500)
	if !errors.Is(err, ledger.ErrTransferFailed) || !errors.Is(err, custody.ErrInsufficientFunds) {
		t.Fatalf("got %v, want TransferFailed wrapping ErrInsufficientFunds", err)
	}
	if ledger.IsRejection(err) {
		t.Error("custody failure must not classify as a rejection")
	}

	acct, _ := h.engine.GetAccount(ctx, key)
	assertBalances(t, acct, 0, 0, 0)
	if acct.LifetimeDeposited != 0 {
		t.Errorf("lifetime deposited leaked: %d", acct.LifetimeDeposited)
	}
	if got := len(h.events(t)); got != before {
		t.Errorf("events appended on failure: %d -> %d", before, got)
	}
}

func TestDeposit_OverflowRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := h.open(t, "alice", 0)
	h.custodian.Fund(custody.OwnerHolding(key.Owner, key.Asset), key.Asset, 10)

	// Seed a near-max balance directly through the store.
	err := h.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.GetAccount(ctx, key)
		if err != nil {
			return err
		}
		acct.Total, acct.Available = math.MaxUint64-5, math.MaxUint64-5
		return tx.UpdateAccount(ctx, acct)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := h.engine.Deposit(ctx, principal("alice"), key, 10); !errors.Is(err, ledger.ErrOverflow) {
		t.Fatalf("got %v, want ErrOverflow", err)
	}
	if bal := h.custodian.Balance(custody.OwnerHolding(key.Owner, key.Asset)); bal != 10 {
		t.Errorf("custody moved on overflow: wallet=%d", bal)
	}
}

func TestWithdraw_LockedFundsUnavailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initAuthority(t, "perps")
	key := h.open(t, "alice", 1_000)
	h.engine.Deposit(ctx, principal("alice"), key, 1_000)

	if _, err := h.engine.Lock(ctx, principal("perps"), key, 600); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := h.engine.Withdraw(ctx, principal("alice"), key, 500); !errors.Is(err, ledger.ErrInsufficientAvailable) {
		t.Errorf("got %v, want ErrInsufficientAvailable", err)
	}
	acct, _ := h.engine.GetAccount(ctx, key)
	assertBalances(t, acct, 1_000, 400, 600)
}

// TestEndToEnd_CollateralLifecycle runs one account through deposit, lock,
// partial withdraw, a rejected overdraw, unlock, full withdraw and close,
// on every store implementation.
func TestEndToEnd_CollateralLifecycle(t *testing.T) {
	stores := map[string]func(t *testing.T) store.Store{
		"memory": func(*testing.T) store.Store { return store.NewMemory() },
		"sqlite": func(t *testing.T) store.Store { return testutil.OpenSQLiteStore(t) },
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			deriver, err := custody.NewDeriver(testSecret)
			if err != nil {
				t.Fatalf("NewDeriver: %v", err)
			}
			cust := custody.NewMemoryCustodian(nil)
			engine := core.NewEngine(open(t), cust, deriver)
			ctx := context.Background()
			alice, risk := principal("alice"), principal("risk-engine")
			key := usdt("alice")
			wallet := custody.OwnerHolding(key.Owner, key.Asset)

			if _, err := engine.InitializeAuthority(ctx, principal("admin"), []ledger.Identity{"risk-engine"}); err != nil {
				t.Fatalf("InitializeAuthority: %v", err)
			}
			if _, err := engine.CreateAccount(ctx, alice, key); err != nil {
				t.Fatalf("CreateAccount: %v", err)
			}
			cust.Fund(wallet, key.Asset, 100)

			steps := []struct {
				name                     string
				run                      func() (*ledger.Account, error)
				total, available, locked uint64
			}{
				{"deposit 100", func() (*ledger.Account, error) { return engine.Deposit(ctx, alice, key, 100) }, 100, 100, 0},
				{"lock 40", func() (*ledger.Account, error) { return engine.Lock(ctx, risk, key, 40) }, 100, 60, 40},
				{"withdraw 50", func() (*ledger.Account, error) { return engine.Withdraw(ctx, alice, key, 50) }, 50, 10, 40},
			}
			for _, step := range steps {
				acct, err := step.run()
				if err != nil {
					t.Fatalf("%s: %v", step.name, err)
				}
				assertBalances(t, acct, step.total, step.available, step.locked)
			}

			if _, err := engine.Withdraw(ctx, alice, key, 20); !errors.Is(err, ledger.ErrInsufficientAvailable) {
				t.Fatalf("withdraw 20: got %v, want ErrInsufficientAvailable", err)
			}
			acct, err := engine.GetAccount(ctx, key)
			if err != nil {
				t.Fatalf("GetAccount: %v", err)
			}
			assertBalances(t, acct, 50, 10, 40)
			if acct.LifetimeWithdrawn != 50 {
				t.Errorf("lifetime withdrawn after rejection: got %d, want 50", acct.LifetimeWithdrawn)
			}
			if bal := cust.Balance(wallet); bal != 50 {
				t.Errorf("wallet after rejection: got %d, want 50", bal)
			}

			steps = []struct {
				name                     string
				run                      func() (*ledger.Account, error)
				total, available, locked uint64
			}{
				{"unlock 40", func() (*ledger.Account, error) { return engine.Unlock(ctx, risk, key, 40) }, 50, 50, 0},
				{"withdraw 50", func() (*ledger.Account, error) { return engine.Withdraw(ctx, alice, key, 50) }, 0, 0, 0},
			}
			for _, step := range steps {
				acct, err := step.run()
				if err != nil {
					t.Fatalf("%s: %v", step.name, err)
				}
				assertBalances(t, acct, step.total, step.available, step.locked)
			}

			closed, err := engine.CloseAccount(ctx, alice, key)
			if err != nil {
				t.Fatalf("CloseAccount: %v", err)
			}
			if closed.LifetimeDeposited != 100 || closed.LifetimeWithdrawn != 100 {
				t.Errorf("lifetime: got deposited=%d withdrawn=%d, want 100/100",
					closed.LifetimeDeposited, closed.LifetimeWithdrawn)
			}
			if _, err := engine.GetAccount(ctx, key); !errors.Is(err, ledger.ErrAccountNotFound) {
				t.Errorf("closed account still readable: %v", err)
			}
			if bal := cust.Balance(wallet); bal != 100 {
				t.Errorf("wallet after close: got %d, want 100", bal)
			}
		})
	}
}

// ============================================================================
// Test: Privileged operations
// ============================================================================

func TestLockUnlock_RequiresAuthorizedCaller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := h.open(t, "alice", 100)
	h.engine.Deposit(ctx, principal("alice"), key, 100)

	// No registry yet: nobody is privileged.
	if _, err := h.engine.Lock(ctx, principal("perps"), key, 10); !errors.Is(err, ledger.ErrUnauthorizedCaller) {
		t.Fatalf("no registry: got %v, want ErrUnauthorizedCaller", err)
	}

	h.initAuthority(t, "perps")
	if _, err := h.engine.Lock(ctx, principal("alice"), key, 10); !errors.Is(err, ledger.ErrUnauthorizedCaller) {
		t.Errorf("owner as caller: got %v, want ErrUnauthorizedCaller", err)
	}

	acct, err := h.engine.Lock(ctx, principal("perps"), key, 60)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	assertBalances(t, acct, 100, 40, 60)

	if _, err := h.engine.Unlock(ctx, principal("perps"), key, 61); !errors.Is(err, ledger.ErrInsufficientLocked) {
		t.Errorf("over-unlock: got %v, want ErrInsufficientLocked", err)
	}
	if _, err := h.engine.Lock(ctx, principal("perps"), key, 0); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("zero lock: got %v, want ErrInvalidAmount", err)
	}

	acct, err = h.engine.Unlock(ctx, principal("perps"), key, 60)
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	assertBalances(t, acct, 100, 100, 0)

	envs := h.events(t)
	last, err := envs[len(envs)-1].Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	unlock, ok := last.(*event.Unlock)
	if !ok {
		t.Fatalf("last event: got %T, want *event.Unlock", last)
	}
	if unlock.Caller != "perps" || unlock.Available != 100 || unlock.Locked != 0 {
		t.Errorf("unlock event: %+v", unlock)
	}
}

func TestLock_FixedAuthorizer(t *testing.T) {
	h := newHarness(t, core.WithAuthorizer(registry.Static("risk")))
	ctx := context.Background()
	key := h.open(t, "alice", 50)
	h.engine.Deposit(ctx, principal("alice"), key, 50)

	if _, err := h.engine.Lock(ctx, principal("risk"), key, 50); err != nil {
		t.Errorf("static caller: %v", err)
	}
}

func TestTransfer_MovesBetweenAccounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initAuthority(t, "perps")
	alice := h.open(t, "alice", 1_000)
	bob := h.open(t, "bob", 0)
	h.engine.Deposit(ctx, principal("alice"), alice, 1_000)

	src, dst, err := h.engine.Transfer(ctx, principal("perps"), alice, bob, 300)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	assertBalances(t, src, 700, 700, 0)
	assertBalances(t, dst, 300, 300, 0)
	if src.LifetimeWithdrawn != 0 || dst.LifetimeDeposited != 0 {
		t.Error("transfers must not touch lifetime counters")
	}
	if got := h.custodian.Balance(custody.CustodialHolding(bob)); got != 300 {
		t.Errorf("custody: bob holding=%d", got)
	}

	// Reverse direction locks rows in the same order and must also succeed.
	if _, _, err := h.engine.Transfer(ctx, principal("perps"), bob, alice, 100); err != nil {
		t.Fatalf("reverse Transfer: %v", err)
	}
	a, _ := h.engine.GetAccount(ctx, alice)
	b, _ := h.engine.GetAccount(ctx, bob)
	assertBalances(t, a, 800, 800, 0)
	assertBalances(t, b, 200, 200, 0)
}

func TestTransfer_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initAuthority(t, "perps")
	alice := h.open(t, "alice", 100)
	bob := h.open(t, "bob", 0)
	h.engine.Deposit(ctx, principal("alice"), alice, 100)
	h.engine.Lock(ctx, principal("perps"), alice, 80)

	btc := ledger.AccountKey{Owner: "bob", Asset: "BTC"}
	if _, err := h.engine.CreateAccount(ctx, principal("bob"), btc); err != nil {
		t.Fatalf("CreateAccount BTC: %v", err)
	}

	tests := []struct {
		name   string
		caller string
		from   ledger.AccountKey
		to     ledger.AccountKey
		amount uint64
		want   error
	}{
		{"unauthorized", "alice", alice, bob, 10, ledger.ErrUnauthorizedCaller},
		{"zero", "perps", alice, bob, 0, ledger.ErrInvalidAmount},
		{"same account", "perps", alice, alice, 10, ledger.ErrSameAccount},
		{"asset mismatch", "perps", alice, btc, 10, ledger.ErrInvalidAssetKind},
		{"locked funds", "perps", alice, bob, 30, ledger.ErrInsufficientAvailable},
		{"missing destination", "perps", alice, usdt("carol"), 10, ledger.ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := h.engine.Transfer(ctx, principal(tt.caller), tt.from, tt.to, tt.amount)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	a, _ := h.engine.GetAccount(ctx, alice)
	assertBalances(t, a, 100, 20, 80)
}

func TestTransfer_CustodyFailureRollsBackBothSides(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initAuthority(t, "perps")
	alice := h.open(t, "alice", 100)
	bob := h.open(t, "bob", 0)
	h.engine.Deposit(ctx, principal("alice"), alice, 100)

	h.custodian.FailNext(errors.New("network partition"))
	if _, _, err := h.engine.Transfer(ctx, principal("perps"), alice, bob, 40); !errors.Is(err, ledger.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}

	a, _ := h.engine.GetAccount(ctx, alice)
	b, _ := h.engine.GetAccount(ctx, bob)
	assertBalances(t, a, 100, 100, 0)
	assertBalances(t, b, 0, 0, 0)
}

// ============================================================================
// Test: Authority registry
// ============================================================================

func TestInitializeAuthority(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	reg, err := h.engine.InitializeAuthority(ctx, principal("admin"), []ledger.Identity{"perps", "lending"})
	if err != nil {
		t.Fatalf("InitializeAuthority: %v", err)
	}
	if reg.Admin != "admin" || len(reg.Callers) != 2 {
		t.Errorf("registry: %+v", reg)
	}
	if _, err := h.engine.InitializeAuthority(ctx, principal("admin"), nil); !errors.Is(err, ledger.ErrAuthorityInitialized) {
		t.Errorf("second init: got %v, want ErrAuthorityInitialized", err)
	}

	ok, err := h.engine.IsAuthorized(ctx, "lending")
	if err != nil || !ok {
		t.Errorf("IsAuthorized(lending): %v %v", ok, err)
	}
}

func TestInitializeAuthority_TooManyCallers(t *testing.T) {
	h := newHarness(t)
	callers := make([]ledger.Identity, registry.MaxAuthorizedCallers+1)
	for i := range callers {
		callers[i] = ledger.Identity(string(rune('a' + i)))
	}
	if _, err := h.engine.InitializeAuthority(context.Background(), principal("admin"), callers); !errors.Is(err, ledger.ErrTooManyCallers) {
		t.Errorf("got %v, want ErrTooManyCallers", err)
	}
	if _, err := h.engine.GetRegistry(context.Background()); !errors.Is(err, ledger.ErrAuthorityNotInitialized) {
		t.Errorf("registry persisted after rejection: %v", err)
	}
}

func TestAddRemoveCaller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.engine.AddCaller(ctx, principal("admin"), "perps"); !errors.Is(err, ledger.ErrAuthorityNotInitialized) {
		t.Fatalf("before init: got %v, want ErrAuthorityNotInitialized", err)
	}
	h.initAuthority(t)

	if _, err := h.engine.AddCaller(ctx, principal("eve"), "perps"); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("non-admin add: got %v, want ErrUnauthorized", err)
	}
	if _, err := h.engine.AddCaller(ctx, principal("admin"), "perps"); err != nil {
		t.Fatalf("AddCaller: %v", err)
	}
	if _, err := h.engine.AddCaller(ctx, principal("admin"), "perps"); !errors.Is(err, ledger.ErrAlreadyAuthorized) {
		t.Errorf("re-add: got %v, want ErrAlreadyAuthorized", err)
	}

	reg, err := h.engine.RemoveCaller(ctx, principal("admin"), "perps")
	if err != nil {
		t.Fatalf("RemoveCaller: %v", err)
	}
	if reg.IsAuthorized("perps") {
		t.Error("perps still authorized after removal")
	}

	// Removing a non-member is a no-op that is still recorded.
	if _, err := h.engine.RemoveCaller(ctx, principal("admin"), "ghost"); err != nil {
		t.Fatalf("RemoveCaller(ghost): %v", err)
	}
	envs := h.events(t)
	last, _ := envs[len(envs)-1].Decode()
	removed, ok := last.(*event.CallerDeauthorized)
	if !ok || removed.WasMember || removed.Caller != "ghost" {
		t.Errorf("last event: %+v", last)
	}
}

func TestRemovedCallerLosesAccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initAuthority(t, "perps")
	key := h.open(t, "alice", 10)
	h.engine.Deposit(ctx, principal("alice"), key, 10)

	if _, err := h.engine.RemoveCaller(ctx, principal("admin"), "perps"); err != nil {
		t.Fatalf("RemoveCaller: %v", err)
	}
	if _, err := h.engine.Lock(ctx, principal("perps"), key, 5); !errors.Is(err, ledger.ErrUnauthorizedCaller) {
		t.Errorf("got %v, want ErrUnauthorizedCaller", err)
	}
}

// ============================================================================
// Test: Idempotency and event chain
// ============================================================================

func TestIdempotency_ReplayedKeyIgnored(t *testing.T) {
	h := newHarness(t)
	key := h.open(t, "alice", 200)
	ctx := core.WithIdempotencyKey(context.Background(), "dep-1")

	if _, err := h.engine.Deposit(ctx, principal("alice"), key, 100); err != nil {
		t.Fatalf("first deposit: %v", err)
	}
	if _, err := h.engine.Deposit(ctx, principal("alice"), key, 100); !errors.Is(err, core.ErrDuplicate) {
		t.Fatalf("replay: got %v, want ErrDuplicate", err)
	}
	acct, _ := h.engine.GetAccount(context.Background(), key)
	assertBalances(t, acct, 100, 100, 0)
}

func TestIdempotency_StoreTierAfterRestart(t *testing.T) {
	h := newHarness(t)
	key := h.open(t, "alice", 200)
	ctx := core.WithIdempotencyKey(context.Background(), "dep-1")
	if _, err := h.engine.Deposit(ctx, principal("alice"), key, 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// A fresh engine over the same store has a cold LRU.
	restarted := core.NewEngine(h.store, h.custodian, h.deriver)
	if _, err := restarted.Deposit(ctx, principal("alice"), key, 100); !errors.Is(err, core.ErrDuplicate) {
		t.Errorf("replay after restart: got %v, want ErrDuplicate", err)
	}
	if err := restarted.WarmIdempotency(context.Background()); err != nil {
		t.Errorf("WarmIdempotency: %v", err)
	}
}

func TestEventChain_Verifies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initAuthority(t, "perps")
	alice := h.open(t, "alice", 500)
	bob := h.open(t, "bob", 0)
	h.engine.Deposit(ctx, principal("alice"), alice, 500)
	h.engine.Lock(ctx, principal("perps"), alice, 100)
	h.engine.Transfer(ctx, principal("perps"), alice, bob, 50)

	envs := h.events(t)
	if len(envs) != 6 {
		t.Fatalf("events: got %d, want 6", len(envs))
	}
	if envs[0].PrevHash != core.GenesisHash {
		t.Error("first event must link to genesis")
	}
	if broken := core.VerifyChain(core.GenesisHash, 0, envs); broken != 0 {
		t.Fatalf("chain broken at %d", broken)
	}

	envs[3].Payload = append([]byte(nil), envs[3].Payload...)
	envs[3].Payload[0] ^= 0xff
	if broken := core.VerifyChain(core.GenesisHash, 0, envs); broken != envs[3].Sequence {
		t.Errorf("tamper: got brokenAt=%d, want %d", broken, envs[3].Sequence)
	}
}

func TestChainHash_Deterministic(t *testing.T) {
	payload := []byte(`{"amount":"10"}`)
	a := core.ChainHash(core.GenesisHash, 1, event.EventTypeDeposit, payload)
	b := core.ChainHash(core.GenesisHash, 1, event.EventTypeDeposit, payload)
	if a != b {
		t.Fatal("same input produced different hashes")
	}
	if a == core.ChainHash(core.GenesisHash, 2, event.EventTypeDeposit, payload) {
		t.Error("sequence not bound into hash")
	}
	if a == core.ChainHash(core.GenesisHash, 1, event.EventTypeWithdraw, payload) {
		t.Error("event type not bound into hash")
	}
}
