package models

import "time"

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	PushToken    string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// PublicProfile is the subset of a user shown to other parties.
type PublicProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) Public() PublicProfile {
	return PublicProfile{ID: u.ID, Name: u.Name, Role: u.Role, CreatedAt: u.CreatedAt}
}

type ChannelKind string

const (
	ChannelDirect  ChannelKind = "direct"
	ChannelDispute ChannelKind = "dispute"
)

type Channel struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Kind      ChannelKind `json:"kind"`
	Members   []string    `json:"members"`
	CreatedAt time.Time   `json:"created_at"`
}

func (c *Channel) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

type MessageKind string

const (
	MessageText    MessageKind = "text"
	MessageSystem  MessageKind = "system"
	MessageInvoice MessageKind = "invoice"
)

type Message struct {
	ID        string         `json:"id"`
	ChannelID string         `json:"channel_id"`
	SenderID  string         `json:"sender_id"`
	Kind      MessageKind    `json:"kind"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Notification is an in-app record of a delivered alert.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Reference string     `json:"reference,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}
