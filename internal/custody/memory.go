package custody

import (
	"VaultLedger/internal/auth"
	"VaultLedger/internal/ledger"
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"
	"sync"
)

// CredentialVerifier resolves an owner credential to its identity.
type CredentialVerifier func(ctx context.Context, credential string) (auth.Principal, error)

type holdingState struct {
	asset      ledger.AssetKind
	balance    uint64
	controller ed25519.PublicKey
}

// MemoryCustodian is an in-process custodian used for local runs and tests.
// Wallet holdings are created on first funding; custodial holdings must be
// opened with a controller key.
type MemoryCustodian struct {
	mu       sync.Mutex
	holdings map[Holding]*holdingState
	verify   CredentialVerifier
	failNext []error
	released map[Holding]ledger.Identity
}

// NewMemoryCustodian returns an empty custodian. When verify is nil owner
// credentials are trusted at face value.
func NewMemoryCustodian(verify CredentialVerifier) *MemoryCustodian {
	return &MemoryCustodian{
		holdings: make(map[Holding]*holdingState),
		verify:   verify,
		released: make(map[Holding]ledger.Identity),
	}
}

// Fund credits an external wallet holding.
func (m *MemoryCustodian) Fund(holding Holding, asset ledger.AssetKind, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.holdings[holding]
	if h == nil {
		h = &holdingState{asset: asset}
		m.holdings[holding] = h
	}
	h.balance += amount
}

// Balance returns the balance of holding, or 0 if it does not exist.
func (m *MemoryCustodian) Balance(holding Holding) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h := m.holdings[holding]; h != nil {
		return h.balance
	}
	return 0
}

// IsOpen reports whether holding exists.
func (m *MemoryCustodian) IsOpen(holding Holding) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.holdings[holding]
	return ok
}

// ReleasedTo returns who received the reservation of a released holding.
func (m *MemoryCustodian) ReleasedTo(holding Holding) (ledger.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.released[holding]
	return id, ok
}

// FailNext makes the next custody call return err without effect.
func (m *MemoryCustodian) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = append(m.failNext, err)
}

func (m *MemoryCustodian) injected() error {
	if len(m.failNext) == 0 {
		return nil
	}
	err := m.failNext[0]
	m.failNext = m.failNext[1:]
	return err
}

func (m *MemoryCustodian) Open(_ context.Context, holding Holding, asset ledger.AssetKind, controller ed25519.PublicKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(); err != nil {
		return err
	}
	if _, ok := m.holdings[holding]; ok {
		return fmt.Errorf("%w: %s", ErrHoldingExists, holding)
	}
	m.holdings[holding] = &holdingState{
		asset:      asset,
		controller: bytes.Clone(controller),
	}
	delete(m.released, holding)
	return nil
}

func (m *MemoryCustodian) Transfer(ctx context.Context, order TransferOrder, proof Proof) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(); err != nil {
		return err
	}

	from, ok := m.holdings[order.From]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHolding, order.From)
	}
	if err := m.authorize(ctx, order, from, proof); err != nil {
		return err
	}
	if from.asset != order.Asset {
		return fmt.Errorf("%w: %s holds %s", ErrAssetMismatch, order.From, from.asset)
	}
	if from.balance < order.Amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, order.From, from.balance, order.Amount)
	}

	to, ok := m.holdings[order.To]
	if !ok {
		if isCustodial(order.To) {
			return fmt.Errorf("%w: %s", ErrUnknownHolding, order.To)
		}
		to = &holdingState{asset: order.Asset}
		m.holdings[order.To] = to
	}
	if to.asset != order.Asset {
		return fmt.Errorf("%w: %s holds %s", ErrAssetMismatch, order.To, to.asset)
	}

	from.balance -= order.Amount
	to.balance += order.Amount
	return nil
}

func (m *MemoryCustodian) Release(_ context.Context, holding Holding, beneficiary ledger.Identity, proof Proof) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(); err != nil {
		return err
	}

	h, ok := m.holdings[holding]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHolding, holding)
	}
	if err := checkController(h, holding, proof, ReleaseBytes(holding, beneficiary)); err != nil {
		return err
	}
	if h.balance != 0 {
		return fmt.Errorf("%w: %s has %d", ErrHoldingNotEmpty, holding, h.balance)
	}
	delete(m.holdings, holding)
	m.released[holding] = beneficiary
	return nil
}

func (m *MemoryCustodian) authorize(ctx context.Context, order TransferOrder, from *holdingState, proof Proof) error {
	switch proof.Kind {
	case ProofOwnerCredential:
		signer := proof.Signer
		if m.verify != nil {
			p, err := m.verify(ctx, proof.Credential)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrBadProof, err)
			}
			signer = p.ID
		}
		if order.From != OwnerHolding(signer, order.Asset) {
			return fmt.Errorf("%w: %s does not own %s", ErrBadProof, signer, order.From)
		}
		return nil
	case ProofAuthoritySignature:
		return checkController(from, order.From, proof, order.SigningBytes())
	default:
		return fmt.Errorf("%w: unknown proof kind %d", ErrBadProof, proof.Kind)
	}
}

func checkController(h *holdingState, holding Holding, proof Proof, msg []byte) error {
	if h.controller == nil || !bytes.Equal(h.controller, proof.PublicKey) {
		return fmt.Errorf("%w: key does not control %s", ErrBadProof, holding)
	}
	return proof.VerifySignature(msg)
}

func isCustodial(h Holding) bool {
	return strings.HasPrefix(string(h), "custody:")
}
