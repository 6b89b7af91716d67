package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/stonemart/internal/models"
)

const archiverConsumer = "event-archiver"

var errMalformed = errors.New("malformed event")

// Log is where archived events land.
type Log interface {
	AppendEvent(ctx context.Context, e *models.Event) error
}

// Archiver consumes the TRADE_EVENTS stream and appends each event to the
// event log. Appends are idempotent on event id, so redelivery is safe.
type Archiver struct {
	js  jetstream.JetStream
	log Log
	lg  logrus.FieldLogger
}

func NewArchiver(js jetstream.JetStream, log Log, lg logrus.FieldLogger) *Archiver {
	return &Archiver{js: js, log: log, lg: lg}
}

// Run consumes until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	cons, err := a.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       archiverConsumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: SubjectPrefix + ">",
		MaxDeliver:    10,
	})
	if err != nil {
		return fmt.Errorf("events.Archiver: consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		a.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("events.Archiver: consume: %w", err)
	}
	defer cc.Stop()

	a.lg.WithField("subject", SubjectPrefix+">").Info("[archiver] consuming")
	<-ctx.Done()
	return nil
}

func (a *Archiver) handle(ctx context.Context, msg jetstream.Msg) {
	err := a.Archive(ctx, msg.Data())
	switch {
	case errors.Is(err, errMalformed):
		a.lg.WithError(err).WithField("subject", msg.Subject()).Warn("[archiver] dropping malformed event")
		_ = msg.Term()
		return
	case err != nil:
		a.lg.WithError(err).WithField("subject", msg.Subject()).Warn("[archiver] failed to persist event")
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

// Archive decodes one message body and stores it.
func (a *Archiver) Archive(ctx context.Context, data []byte) error {
	var e models.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if e.ID == "" || e.Type == "" {
		return fmt.Errorf("%w: missing id or type", errMalformed)
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return a.log.AppendEvent(dbCtx, &e)
}
