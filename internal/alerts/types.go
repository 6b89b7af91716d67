package alerts

import (
	"time"

	"github.com/sudo-init-do/stonemart/internal/models"
)

// Task type constants
const (
	TaskNotifyUser = "notify:user"
	TaskNotifyRole = "notify:role"
)

// Queues served by the worker, with their priorities.
const (
	QueuePush      = "push"
	QueueBroadcast = "broadcast"
)

// Notice types
const (
	NoticeBidReceived    = "bid:received"
	NoticeBidCountered   = "bid:countered"
	NoticeBidAccepted    = "bid:accepted"
	NoticeBidRejected    = "bid:rejected"
	NoticeInvoiceSent    = "invoice:sent"
	NoticeOrderStatus    = "order:status"
	NoticePaymentUpdate  = "payment:update"
	NoticeJobAvailable   = "job:available"
	NoticeJobClaimed     = "job:claimed"
	NoticeJobStatus      = "job:status"
	NoticeDisputeOpened  = "dispute:opened"
	NoticeDisputeUpdated = "dispute:status"
	NoticeMessageNew     = "message:new"
	NoticeKYCSubmitted   = "kyc:submitted"
	NoticeKYCReviewed    = "kyc:reviewed"
)

// Notice is one user-facing alert.
type Notice struct {
	UserID    string `json:"user_id,omitempty"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Reference string `json:"reference,omitempty"`
}

// Notify user payload
type NotifyUserPayload struct {
	Notice Notice    `json:"notice"`
	SentAt time.Time `json:"sent_at"`
}

// Notify role payload. PushOnly limits the fan-out to users with a
// registered push token.
type NotifyRolePayload struct {
	Role     models.Role `json:"role"`
	PushOnly bool        `json:"push_only"`
	Notice   Notice      `json:"notice"`
	SentAt   time.Time   `json:"sent_at"`
}
