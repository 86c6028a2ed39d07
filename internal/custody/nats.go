package custody

import (
	"VaultLedger/internal/ledger"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects served by a remote custodian.
const (
	SubjectOpen     = "custody.holdings.open"
	SubjectTransfer = "custody.transfers.execute"
	SubjectRelease  = "custody.holdings.release"
)

// ErrRemote wraps an error reported by the remote custodian.
var ErrRemote = errors.New("custody: remote rejected request")

type openRequest struct {
	Holding    Holding           `json:"holding"`
	Asset      ledger.AssetKind  `json:"asset"`
	Controller ed25519.PublicKey `json:"controller"`
}

type transferRequest struct {
	Order TransferOrder `json:"order"`
	Proof Proof         `json:"proof"`
}

type releaseRequest struct {
	Holding     Holding         `json:"holding"`
	Beneficiary ledger.Identity `json:"beneficiary"`
	Proof       Proof           `json:"proof"`
}

type reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// NATSCustodian forwards custody calls to a remote custodian over NATS
// request/reply. A call that times out is reported as a failure; the remote
// side must dedupe on OrderID.
type NATSCustodian struct {
	nc      *nats.Conn
	timeout time.Duration
}

func NewNATSCustodian(nc *nats.Conn, timeout time.Duration) *NATSCustodian {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSCustodian{nc: nc, timeout: timeout}
}

func (c *NATSCustodian) Open(ctx context.Context, holding Holding, asset ledger.AssetKind, controller ed25519.PublicKey) error {
	return c.call(ctx, SubjectOpen, openRequest{Holding: holding, Asset: asset, Controller: controller})
}

func (c *NATSCustodian) Transfer(ctx context.Context, order TransferOrder, proof Proof) error {
	return c.call(ctx, SubjectTransfer, transferRequest{Order: order, Proof: proof})
}

func (c *NATSCustodian) Release(ctx context.Context, holding Holding, beneficiary ledger.Identity, proof Proof) error {
	return c.call(ctx, SubjectRelease, releaseRequest{Holding: holding, Beneficiary: beneficiary, Proof: proof})
}

func (c *NATSCustodian) call(ctx context.Context, subject string, req any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}
	return decodeReply(subject, msg.Data)
}

func decodeReply(subject string, data []byte) error {
	var r reply
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("decode %s reply: %w", subject, err)
	}
	if !r.OK {
		return fmt.Errorf("%w: %s: %s", ErrRemote, subject, r.Error)
	}
	return nil
}

// Serve exposes a Custodian on the custody subjects so peers can reach it
// through NATSCustodian.
func Serve(nc *nats.Conn, custodian Custodian) ([]*nats.Subscription, error) {
	handlers := map[string]func(context.Context, []byte) error{
		SubjectOpen: func(ctx context.Context, data []byte) error {
			var req openRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return err
			}
			return custodian.Open(ctx, req.Holding, req.Asset, req.Controller)
		},
		SubjectTransfer: func(ctx context.Context, data []byte) error {
			var req transferRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return err
			}
			return custodian.Transfer(ctx, req.Order, req.Proof)
		},
		SubjectRelease: func(ctx context.Context, data []byte) error {
			var req releaseRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return err
			}
			return custodian.Release(ctx, req.Holding, req.Beneficiary, req.Proof)
		},
	}

	subs := make([]*nats.Subscription, 0, len(handlers))
	for subject, handle := range handlers {
		sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
			r := reply{OK: true}
			if err := handle(context.Background(), msg.Data); err != nil {
				r = reply{Error: err.Error()}
			}
			out, _ := json.Marshal(r)
			msg.Respond(out)
		})
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
