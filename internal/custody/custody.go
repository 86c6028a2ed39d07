package custody

import (
	"VaultLedger/internal/auth"
	"VaultLedger/internal/ledger"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInsufficientFunds = errors.New("custody: insufficient funds in holding")
	ErrUnknownHolding    = errors.New("custody: unknown holding")
	ErrHoldingExists     = errors.New("custody: holding already open")
	ErrHoldingNotEmpty   = errors.New("custody: holding is not empty")
	ErrAssetMismatch     = errors.New("custody: asset does not match holding")
	ErrBadProof          = errors.New("custody: proof does not authorize order")
)

// Holding names a location at the custodian that holds one asset kind.
type Holding string

// OwnerHolding returns the owner's external holding for asset.
func OwnerHolding(owner ledger.Identity, asset ledger.AssetKind) Holding {
	return Holding(fmt.Sprintf("wallet:%s:%s", owner, asset))
}

// CustodialHolding returns the holding controlled by the account's derived
// authority.
func CustodialHolding(key ledger.AccountKey) Holding {
	return Holding("custody:" + key.AccountPath())
}

// TransferOrder moves Amount minor units of Asset between two holdings.
// Decimals is carried so the custodian can reject orders built against the
// wrong precision.
type TransferOrder struct {
	OrderID  uuid.UUID        `json:"order_id"`
	From     Holding          `json:"from"`
	To       Holding          `json:"to"`
	Asset    ledger.AssetKind `json:"asset"`
	Decimals int32            `json:"decimals"`
	Amount   uint64           `json:"amount,string"`
}

// SigningBytes is the canonical message an authority signs for the order.
func (o TransferOrder) SigningBytes() []byte {
	return []byte(strings.Join([]string{
		"vaultledger:transfer:v1",
		o.OrderID.String(),
		string(o.From),
		string(o.To),
		string(o.Asset),
		strconv.FormatInt(int64(o.Decimals), 10),
		strconv.FormatUint(o.Amount, 10),
	}, "|"))
}

// ReleaseBytes is the canonical message an authority signs to release its
// holding back to the beneficiary.
func ReleaseBytes(holding Holding, beneficiary ledger.Identity) []byte {
	return []byte("vaultledger:release:v1|" + string(holding) + "|" + string(beneficiary))
}

// ProofKind selects how a Proof authorizes an order.
type ProofKind uint8

const (
	ProofOwnerCredential ProofKind = iota + 1
	ProofAuthoritySignature
)

func (k ProofKind) String() string {
	switch k {
	case ProofOwnerCredential:
		return "owner_credential"
	case ProofAuthoritySignature:
		return "authority_signature"
	default:
		return "unknown"
	}
}

// Proof authorizes a custody operation either with the owner's credential
// or with a signature from the holding's derived authority.
type Proof struct {
	Kind       ProofKind         `json:"kind"`
	Signer     ledger.Identity   `json:"signer,omitempty"`
	Credential string            `json:"credential,omitempty"`
	Holding    Holding           `json:"holding,omitempty"`
	PublicKey  ed25519.PublicKey `json:"public_key,omitempty"`
	Signature  []byte            `json:"signature,omitempty"`
}

// OwnerProof authorizes a transfer out of the principal's own holding.
func OwnerProof(p auth.Principal) Proof {
	return Proof{
		Kind:       ProofOwnerCredential,
		Signer:     p.ID,
		Credential: p.Credential,
	}
}

// VerifySignature checks an authority proof against msg. It does not check
// that the key controls any particular holding.
func (p Proof) VerifySignature(msg []byte) error {
	if p.Kind != ProofAuthoritySignature {
		return fmt.Errorf("%w: expected %s, got %s", ErrBadProof, ProofAuthoritySignature, p.Kind)
	}
	if len(p.PublicKey) != ed25519.PublicKeySize || !ed25519.Verify(p.PublicKey, msg, p.Signature) {
		return fmt.Errorf("%w: signature invalid", ErrBadProof)
	}
	return nil
}

// Custodian is the external asset-transfer collaborator. Every call either
// fully succeeds or returns an error with no effect.
type Custodian interface {
	// Open creates a holding for asset controlled by the given key.
	Open(ctx context.Context, holding Holding, asset ledger.AssetKind, controller ed25519.PublicKey) error

	// Transfer executes order if proof authorizes it.
	Transfer(ctx context.Context, order TransferOrder, proof Proof) error

	// Release closes an empty holding and returns its reservation to the
	// beneficiary.
	Release(ctx context.Context, holding Holding, beneficiary ledger.Identity, proof Proof) error
}
