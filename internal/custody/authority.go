package custody

import (
	"VaultLedger/internal/ledger"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const authoritySalt = "vaultledger:authority:v1"

// MinSecretLen is the minimum master secret length accepted by NewDeriver.
const MinSecretLen = 32

// Authority is the signing handle bound 1:1 to an account record. It can
// sign for its own holding only and never exposes its private key.
type Authority struct {
	holding Holding
	key     ed25519.PrivateKey
}

// Holding returns the custodial holding this authority controls.
func (a *Authority) Holding() Holding {
	return a.holding
}

// PublicKey returns the verification key registered with the custodian.
func (a *Authority) PublicKey() ed25519.PublicKey {
	return a.key.Public().(ed25519.PublicKey)
}

// SignTransfer authorizes an order moving funds out of the authority's
// holding.
func (a *Authority) SignTransfer(order TransferOrder) (Proof, error) {
	if order.From != a.holding {
		return Proof{}, fmt.Errorf("%w: authority for %s cannot sign from %s", ErrBadProof, a.holding, order.From)
	}
	return a.sign(order.SigningBytes()), nil
}

// SignRelease authorizes closing the authority's holding.
func (a *Authority) SignRelease(beneficiary ledger.Identity) Proof {
	return a.sign(ReleaseBytes(a.holding, beneficiary))
}

func (a *Authority) sign(msg []byte) Proof {
	return Proof{
		Kind:      ProofAuthoritySignature,
		Holding:   a.holding,
		PublicKey: a.PublicKey(),
		Signature: ed25519.Sign(a.key, msg),
	}
}

// Deriver derives account authorities from a master secret. The same
// account key always yields the same authority.
type Deriver struct {
	secret []byte
}

func NewDeriver(secret []byte) (*Deriver, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("authority secret must be at least %d bytes", MinSecretLen)
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Deriver{secret: s}, nil
}

// Derive returns the authority for key.
func (d *Deriver) Derive(key ledger.AccountKey) (*Authority, error) {
	if key.Owner == "" {
		return nil, errors.New("derive authority: empty owner")
	}
	r := hkdf.New(sha256.New, d.secret, []byte(authoritySalt), []byte(key.AccountPath()))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("derive authority: %w", err)
	}
	return &Authority{
		holding: CustodialHolding(key),
		key:     ed25519.NewKeyFromSeed(seed),
	}, nil
}
