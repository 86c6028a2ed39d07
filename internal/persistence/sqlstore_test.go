package persistence_test

import (
	"VaultLedger/internal/auth"
	"VaultLedger/internal/core"
	"VaultLedger/internal/custody"
	"VaultLedger/internal/event"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/persistence"
	"VaultLedger/internal/registry"
	"VaultLedger/internal/store"
	"VaultLedger/internal/testutil"
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var aliceUSDT = ledger.AccountKey{Owner: "alice", Asset: "USDT"}

func testNow() time.Time {
	return time.UnixMicro(1_700_000_000_123_456).UTC()
}

// runStoreSuite exercises the store contract against any backend.
func runStoreSuite(t *testing.T, st store.Store) {
	ctx := context.Background()

	t.Run("account round trip keeps full uint64 range", func(t *testing.T) {
		acct := ledger.NewAccount(uuid.New(), aliceUSDT, "custody:vault:alice:USDT", testNow())
		acct.Total, acct.Available = math.MaxUint64, math.MaxUint64-7
		acct.Locked = 7
		acct.LifetimeDeposited = math.MaxUint64

		err := st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertAccount(ctx, acct)
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}

		got, err := st.GetAccount(ctx, aliceUSDT)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if *got != *acct {
			t.Errorf("round trip:\n got %+v\nwant %+v", got, acct)
		}
	})

	t.Run("duplicate insert conflicts", func(t *testing.T) {
		err := st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertAccount(ctx, ledger.NewAccount(uuid.New(), aliceUSDT, "x", testNow()))
		})
		if !errors.Is(err, store.ErrConflict) {
			t.Errorf("got %v, want ErrConflict", err)
		}
	})

	t.Run("rollback discards writes", func(t *testing.T) {
		boom := errors.New("boom")
		err := st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			acct, err := tx.GetAccount(ctx, aliceUSDT)
			if err != nil {
				return err
			}
			acct.Locked, acct.Available = 0, acct.Total
			if err := tx.UpdateAccount(ctx, acct); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("got %v, want boom", err)
		}
		got, _ := st.GetAccount(ctx, aliceUSDT)
		if got.Locked != 7 {
			t.Errorf("rolled back update leaked: locked=%d", got.Locked)
		}
	})

	t.Run("registry upsert", func(t *testing.T) {
		reg, err := registry.New("admin", []ledger.Identity{"perps"}, testNow())
		if err != nil {
			t.Fatal(err)
		}
		save := func() error {
			return st.InTx(ctx, func(ctx context.Context, tx store.Tx) error { return tx.SaveRegistry(ctx, reg) })
		}
		if err := save(); err != nil {
			t.Fatalf("save: %v", err)
		}
		reg.Add("lending")
		if err := save(); err != nil {
			t.Fatalf("update: %v", err)
		}

		got, err := st.GetRegistry(ctx)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Admin != "admin" || len(got.Callers) != 2 || got.Callers[1] != "lending" {
			t.Errorf("registry: %+v", got)
		}
	})

	t.Run("event log and outbox", func(t *testing.T) {
		var prev [32]byte
		err := st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			head, err := tx.ChainHead(ctx)
			if err != nil {
				return err
			}
			if head.Sequence != 0 {
				t.Errorf("fresh head: got %d", head.Sequence)
			}
			prev = core.GenesisHash
			for i, key := range []string{"k1", "k2"} {
				payload := []byte(`{"n":` + string(rune('1'+i)) + `}`)
				seq := int64(i + 1)
				env := &event.EventEnvelope{
					Sequence:       seq,
					EventID:        uuid.New(),
					IdempotencyKey: key,
					EventType:      event.EventTypeDeposit,
					Subject:        aliceUSDT.AccountPath(),
					Timestamp:      testNow(),
					Payload:        payload,
					PrevHash:       prev,
					StateHash:      core.ChainHash(prev, seq, event.EventTypeDeposit, payload),
				}
				if err := tx.AppendEvent(ctx, env); err != nil {
					return err
				}
				prev = env.StateHash
			}
			dup, err := tx.HasIdempotencyKey(ctx, "k2")
			if err != nil || !dup {
				t.Errorf("in-tx key lookup: %v %v", dup, err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}

		envs, err := st.ListEvents(ctx, 0, 10)
		if err != nil || len(envs) != 2 {
			t.Fatalf("ListEvents: %d %v", len(envs), err)
		}
		if broken := core.VerifyChain(core.GenesisHash, 0, envs); broken != 0 {
			t.Errorf("chain broken at %d", broken)
		}
		if !envs[0].Timestamp.Equal(testNow()) {
			t.Errorf("timestamp: got %v", envs[0].Timestamp)
		}

		err = st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			head, err := tx.ChainHead(ctx)
			if err != nil {
				return err
			}
			if head.Sequence != 2 || head.Hash != prev {
				t.Errorf("head: got %d %x", head.Sequence, head.Hash)
			}
			return tx.AppendEvent(ctx, &event.EventEnvelope{
				Sequence: 3, EventID: uuid.New(), IdempotencyKey: "k1",
				EventType: event.EventTypeDeposit, Payload: []byte("{}"), Timestamp: testNow(),
			})
		})
		if !errors.Is(err, store.ErrConflict) {
			t.Errorf("reused key: got %v, want ErrConflict", err)
		}

		pending, _ := st.UnpublishedEvents(ctx, 10)
		if len(pending) != 2 {
			t.Fatalf("unpublished: got %d", len(pending))
		}
		if err := st.MarkPublished(ctx, []int64{1}, testNow()); err != nil {
			t.Fatalf("MarkPublished: %v", err)
		}
		pending, _ = st.UnpublishedEvents(ctx, 10)
		if len(pending) != 1 || pending[0].Sequence != 2 {
			t.Errorf("after mark: %+v", pending)
		}

		if dup, _ := st.HasIdempotencyKey(ctx, "k1"); !dup {
			t.Error("committed key not found")
		}
		if dup, _ := st.HasIdempotencyKey(ctx, "nope"); dup {
			t.Error("unknown key reported as duplicate")
		}
	})

	t.Run("delete", func(t *testing.T) {
		err := st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.DeleteAccount(ctx, aliceUSDT)
		})
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := st.GetAccount(ctx, aliceUSDT); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, testutil.OpenSQLiteStore(t))
}

func TestPostgresStore(t *testing.T) {
	runStoreSuite(t, testutil.OpenPostgresStore(t))
}

func TestMigrator_DownThenUp(t *testing.T) {
	st := testutil.OpenSQLiteStore(t)
	m, err := persistence.NewMigrator(st.DB(), persistence.DialectSQLite, testLogger(t))
	if err != nil {
		t.Fatalf("NewMigrator: %v", err)
	}

	version, dirty, ok, err := m.Version()
	if err != nil || !ok || dirty || version != 1 {
		t.Fatalf("version: %d dirty=%v ok=%v err=%v", version, dirty, ok, err)
	}
	if err := m.Down(); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if _, _, ok, _ := m.Version(); ok {
		t.Error("version still set after rolling back the only migration")
	}
	if err := m.Up(); err != nil {
		t.Fatalf("Up: %v", err)
	}
}

// TestEngineOnSQLite runs a full lifecycle through the durable store.
func TestEngineOnSQLite(t *testing.T) {
	st := testutil.OpenSQLiteStore(t)
	deriver, err := custody.NewDeriver(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatal(err)
	}
	cust := custody.NewMemoryCustodian(nil)
	engine := core.NewEngine(st, cust, deriver)
	ctx := context.Background()
	alice := auth.Principal{ID: "alice"}
	perps := auth.Principal{ID: "perps"}

	if _, err := engine.InitializeAuthority(ctx, auth.Principal{ID: "admin"}, []ledger.Identity{"perps"}); err != nil {
		t.Fatalf("InitializeAuthority: %v", err)
	}
	if _, err := engine.CreateAccount(ctx, alice, aliceUSDT); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	cust.Fund(custody.OwnerHolding("alice", "USDT"), "USDT", 1_000)
	if _, err := engine.Deposit(core.WithIdempotencyKey(ctx, "dep-1"), alice, aliceUSDT, 1_000); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if _, err := engine.Lock(ctx, perps, aliceUSDT, 400); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	cust.FailNext(errors.New("custodian down"))
	if _, err := engine.Withdraw(ctx, alice, aliceUSDT, 100); !errors.Is(err, ledger.ErrTransferFailed) {
		t.Fatalf("Withdraw: got %v, want ErrTransferFailed", err)
	}

	acct, err := engine.GetAccount(ctx, aliceUSDT)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acct.Total != 1_000 || acct.Locked != 400 || acct.Available != 600 || acct.LifetimeWithdrawn != 0 {
		t.Errorf("account after failed withdraw: %+v", acct)
	}

	if _, err := engine.Deposit(core.WithIdempotencyKey(ctx, "dep-1"), alice, aliceUSDT, 1_000); !errors.Is(err, core.ErrDuplicate) {
		t.Errorf("replay: got %v, want ErrDuplicate", err)
	}

	envs, err := st.ListEvents(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(envs) != 4 {
		t.Fatalf("events: got %d, want 4", len(envs))
	}
	if broken := core.VerifyChain(core.GenesisHash, 0, envs); broken != 0 {
		t.Errorf("chain broken at %d", broken)
	}
}

func testLogger(t *testing.T) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t))
}
