package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/stonemart/internal/models"
)

// Notifier dispatches alerts without waiting for delivery.
type Notifier interface {
	NotifyUser(ctx context.Context, n Notice) error
	NotifyRole(ctx context.Context, role models.Role, pushOnly bool, n Notice) error
}

// Queue enqueues notification tasks for the worker.
type Queue struct {
	client *asynq.Client
}

var _ Notifier = (*Queue)(nil)

func NewQueue(opt asynq.RedisConnOpt) *Queue {
	return &Queue{client: asynq.NewClient(opt)}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// NotifyUser schedules a notice for one user
func (q *Queue) NotifyUser(ctx context.Context, n Notice) error {
	if n.UserID == "" {
		return fmt.Errorf("alerts.NotifyUser: missing user id")
	}
	b, err := json.Marshal(NotifyUserPayload{Notice: n, SentAt: time.Now()})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskNotifyUser, b, asynq.MaxRetry(5))
	_, err = q.client.EnqueueContext(ctx, task, asynq.Queue(QueuePush))
	return err
}

// NotifyRole schedules a notice for every active user holding the role
func (q *Queue) NotifyRole(ctx context.Context, role models.Role, pushOnly bool, n Notice) error {
	b, err := json.Marshal(NotifyRolePayload{Role: role, PushOnly: pushOnly, Notice: n, SentAt: time.Now()})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskNotifyRole, b, asynq.MaxRetry(3))
	_, err = q.client.EnqueueContext(ctx, task, asynq.Queue(QueueBroadcast))
	return err
}

// Discard drops every notice. Used when no redis is configured.
type Discard struct{}

func (Discard) NotifyUser(context.Context, Notice) error                    { return nil }
func (Discard) NotifyRole(context.Context, models.Role, bool, Notice) error { return nil }
