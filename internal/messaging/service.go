// Package messaging is the local channel collaborator: direct and dispute
// channels, their messages, and live fan-out to websocket subscribers.
package messaging

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/stonemart/internal/alerts"
	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
)

const MaxMessageLen = 4000

type Service struct {
	store  store.Channels
	hubs   *Hubs
	notify alerts.Notifier
	log    logrus.FieldLogger
}

func NewService(s store.Channels, hubs *Hubs, notify alerts.Notifier, log logrus.FieldLogger) *Service {
	if hubs == nil {
		hubs = NewHubs()
	}
	return &Service{store: s, hubs: hubs, notify: notify, log: log}
}

// EnsureDirect returns the direct channel between two users, creating it on
// first use.
func (s *Service) EnsureDirect(ctx context.Context, a, b string) (*models.Channel, error) {
	if a == "" || b == "" || a == b {
		return nil, apperr.Invalid("a direct channel needs two distinct users")
	}
	ch, err := s.store.FindDirectChannel(ctx, a, b)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Fatal(err, "failed to load channel")
	}
	return s.create(ctx, "", models.ChannelDirect, []string{a, b})
}

// CreateGroup opens a channel with the given members. Duplicate and empty
// member ids are dropped.
func (s *Service) CreateGroup(ctx context.Context, name string, kind models.ChannelKind, members []string) (*models.Channel, error) {
	uniq := make([]string, 0, len(members))
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		uniq = append(uniq, m)
	}
	if len(uniq) < 2 {
		return nil, apperr.Invalid("a channel needs at least two members")
	}
	return s.create(ctx, name, kind, uniq)
}

func (s *Service) create(ctx context.Context, name string, kind models.ChannelKind, members []string) (*models.Channel, error) {
	ch := &models.Channel{
		ID:        uuid.NewString(),
		Name:      name,
		Kind:      kind,
		Members:   members,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateChannel(ctx, ch); err != nil {
		return nil, apperr.Fatal(err, "failed to create channel")
	}
	return ch, nil
}

// Post writes a message into a channel and pushes it to live subscribers.
// It performs no membership check; system and invoice messages go through
// here.
func (s *Service) Post(ctx context.Context, channelID, senderID string, kind models.MessageKind, text string, meta map[string]any) (*models.Message, error) {
	if _, err := s.channel(ctx, channelID); err != nil {
		return nil, err
	}
	m := &models.Message{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		SenderID:  senderID,
		Kind:      kind,
		Text:      text,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, m); err != nil {
		return nil, apperr.Fatal(err, "failed to post message")
	}
	s.hubs.Broadcast(channelID, EventMessageNew, m)
	return m, nil
}

// List returns a page of the channel's messages, newest first. Only
// members and admins may read.
func (s *Service) List(ctx context.Context, actor models.Actor, channelID string, page models.Page) ([]models.Message, error) {
	if _, err := s.member(ctx, actor, channelID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, channelID, page)
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load messages")
	}
	return msgs, nil
}

// Send posts a member's text message and notifies the other members.
func (s *Service) Send(ctx context.Context, actor models.Actor, channelID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Invalid("text is required")
	}
	if len(text) > MaxMessageLen {
		return nil, apperr.Invalid("text cannot exceed %d characters", MaxMessageLen)
	}
	ch, err := s.member(ctx, actor, channelID)
	if err != nil {
		return nil, err
	}
	m, err := s.Post(ctx, channelID, actor.ID, models.MessageText, text, nil)
	if err != nil {
		return nil, err
	}

	for _, to := range ch.Members {
		if to == actor.ID {
			continue
		}
		err := s.notify.NotifyUser(ctx, alerts.Notice{
			UserID:    to,
			Type:      alerts.NoticeMessageNew,
			Title:     "New message",
			Body:      text,
			Reference: channelID,
		})
		if err != nil {
			s.log.WithError(err).WithField("channel_id", channelID).Warn("message notification not queued")
		}
	}
	return m, nil
}

func (s *Service) channel(ctx context.Context, id string) (*models.Channel, error) {
	ch, err := s.store.GetChannel(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Channel not found")
	}
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load channel")
	}
	return ch, nil
}

func (s *Service) member(ctx context.Context, actor models.Actor, channelID string) (*models.Channel, error) {
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !ch.HasMember(actor.ID) && !actor.IsAdmin() {
		return nil, apperr.Forbidden("Not a member of this channel")
	}
	return ch, nil
}
