package models

import "time"

// Event describes a committed lifecycle transition.
type Event struct {
	ID       string         `json:"eventId"`
	Type     string         `json:"type"`
	EntityID string         `json:"entityId"`
	ActorID  string         `json:"actorId,omitempty"`
	At       time.Time      `json:"at"`
	Data     map[string]any `json:"data,omitempty"`
}
