package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const CommandsStream = "VAULT_COMMANDS"

// NATSSubscriber subscribes to the privileged command subjects and feeds
// raw commands to the Processor. Each subject maps to one command kind.
type NATSSubscriber struct {
	js        jetstream.JetStream
	out       chan<- RawCommand
	consumers []jetstream.ConsumeContext
	log       zerolog.Logger
}

// RawCommand is a received but unparsed command together with its
// delivery controls.
type RawCommand struct {
	Subject   string
	Kind      CommandKind
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // processed or permanently rejected
	NakFunc   func() // transient failure, redeliver
	TermFunc  func() // malformed, never redeliver
}

// SubjectConfig maps a NATS subject to a command kind.
type SubjectConfig struct {
	Subject      string
	Kind         CommandKind
	ConsumerName string
}

// DefaultSubjects returns the standard command subjects.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "vault.commands.lock", Kind: CommandLock, ConsumerName: "vault-lock"},
		{Subject: "vault.commands.unlock", Kind: CommandUnlock, ConsumerName: "vault-unlock"},
		{Subject: "vault.commands.transfer", Kind: CommandTransfer, ConsumerName: "vault-transfer"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, out chan<- RawCommand, log zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{js: js, out: out, log: log}
}

// Subscribe creates durable JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, CommandsStream, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		kind := cfg.Kind
		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawCommand{
				Subject:   msg.Subject(),
				Kind:      kind,
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
				TermFunc:  func() { msg.Term() },
			}

			select {
			case ns.out <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.log.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// EnsureCommandStream creates the command stream if it does not exist.
// Work-queue retention drops a command once it is acked.
func EnsureCommandStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      CommandsStream,
		Subjects:  []string{"vault.commands.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", CommandsStream, err)
	}
	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.log.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("vaultledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
