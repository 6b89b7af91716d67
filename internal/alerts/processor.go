package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
)

// Recipients is the slice of the store the worker needs.
type Recipients interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUserIDs(ctx context.Context, role models.Role, withPushToken bool) ([]string, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Processor handles notification tasks: it records an in-app notification
// and pushes to the user's device when a token is registered.
type Processor struct {
	store Recipients
	push  Pusher
	log   logrus.FieldLogger
}

func NewProcessor(s Recipients, push Pusher, log logrus.FieldLogger) *Processor {
	return &Processor{store: s, push: push, log: log}
}

// Mux routes every alert task type to its handler.
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskNotifyUser, p.handleNotifyUser)
	mux.HandleFunc(TaskNotifyRole, p.handleNotifyRole)
	return mux
}

// NewServer builds the asynq server with the alert queues.
func NewServer(opt asynq.RedisConnOpt, log logrus.FieldLogger) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueuePush:      10,
			QueueBroadcast: 5,
		},
		Logger: log,
	})
}

func (p *Processor) handleNotifyUser(ctx context.Context, t *asynq.Task) error {
	var pl NotifyUserPayload
	if err := json.Unmarshal(t.Payload(), &pl); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return p.deliver(ctx, pl.Notice)
}

func (p *Processor) handleNotifyRole(ctx context.Context, t *asynq.Task) error {
	var pl NotifyRolePayload
	if err := json.Unmarshal(t.Payload(), &pl); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	ids, err := p.store.ListUserIDs(ctx, pl.Role, pl.PushOnly)
	if err != nil {
		return err
	}

	var failed int
	for _, id := range ids {
		n := pl.Notice
		n.UserID = id
		if err := p.deliver(ctx, n); err != nil {
			failed++
			p.log.WithError(err).WithField("user_id", id).Warn("[notify] role fan-out delivery failed")
		}
	}
	p.log.WithFields(logrus.Fields{"role": pl.Role, "recipients": len(ids), "failed": failed}).Info("[notify] role notice sent")
	return nil
}

func (p *Processor) deliver(ctx context.Context, n Notice) error {
	u, err := p.store.GetUser(ctx, n.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("unknown user %s: %w", n.UserID, asynq.SkipRetry)
		}
		return err
	}

	rec := &models.Notification{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		Reference: n.Reference,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.store.CreateNotification(ctx, rec); err != nil {
		return err
	}

	if u.PushToken == "" {
		return nil
	}
	if err := p.push.Push(ctx, u.PushToken, n); err != nil {
		p.log.WithError(err).WithField("user_id", u.ID).Warn("[notify] push failed")
		return err
	}
	p.log.WithFields(logrus.Fields{"type": n.Type, "user_id": u.ID}).Debug("[notify] push sent")
	return nil
}
