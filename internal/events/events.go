// Package events publishes committed trade lifecycle transitions to NATS
// JetStream and archives them into the event log.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/stonemart/internal/models"
)

const (
	StreamName    = "TRADE_EVENTS"
	SubjectPrefix = "trade.events."
)

// Event types
const (
	BidProposed     = "bid.proposed"
	BidCountered    = "bid.countered"
	BidAccepted     = "bid.accepted"
	BidRejected     = "bid.rejected"
	BidWithdrawn    = "bid.withdrawn"
	OrderCreated    = "order.created"
	OrderCompleted  = "order.completed"
	OrderCanceled   = "order.canceled"
	OrderRated      = "order.rated"
	OrderPaid       = "order.paid"
	InvoiceSent     = "invoice.sent"
	JobPosted       = "job.posted"
	JobClaimed      = "job.claimed"
	JobStatus       = "job.status"
	DisputeOpened   = "dispute.opened"
	DisputeStatus   = "dispute.status"
	LocationUpdated = "shipment.location"
)

// Publisher emits lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, e models.Event) error
}

// New builds an event stamped with a fresh id and the current time.
func New(typ, entityID, actorID string, data map[string]any) models.Event {
	return models.Event{
		ID:       uuid.NewString(),
		Type:     typ,
		EntityID: entityID,
		ActorID:  actorID,
		At:       time.Now().UTC(),
		Data:     data,
	}
}

func Subject(typ string) string {
	return SubjectPrefix + typ
}

// Noop drops every event. It stands in when NATS_URL is empty.
type Noop struct{}

func (Noop) Publish(context.Context, models.Event) error { return nil }

// JetStream publishes events on trade.events.<type> and waits for the
// server ack.
type JetStream struct {
	conn *nats.Conn
	js   jetstream.JetStream
	log  logrus.FieldLogger
}

// Connect dials NATS and makes sure the TRADE_EVENTS stream exists.
func Connect(ctx context.Context, url string, log logrus.FieldLogger) (*JetStream, error) {
	conn, err := nats.Connect(url, nats.Name("stonemart"))
	if err != nil {
		return nil, fmt.Errorf("events.Connect: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events.Connect: jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Trade lifecycle events",
		Subjects:    []string{SubjectPrefix + ">"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events.Connect: stream: %w", err)
	}
	log.WithField("stream", StreamName).Info("[JETSTREAM] stream ready")
	return &JetStream{conn: conn, js: js, log: log}, nil
}

func (p *JetStream) Publish(ctx context.Context, e models.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events.Publish: marshal: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ack, err := p.js.Publish(ctx, Subject(e.Type), data, jetstream.WithMsgID(e.ID))
	if err != nil {
		return fmt.Errorf("events.Publish: %w", err)
	}
	p.log.WithFields(logrus.Fields{"subject": Subject(e.Type), "seq": ack.Sequence}).Debug("[JETSTREAM] published")
	return nil
}

// JetStream exposes the underlying context for consumers.
func (p *JetStream) JetStream() jetstream.JetStream { return p.js }

func (p *JetStream) Close() {
	p.conn.Close()
}
