// Package events persists the engine's audit trail: structured play events
// and the coaching exchange log. Both feeds are best-effort from their
// producers' point of view; this package just has to record what arrives.
package events

import "time"

// Entry is one recorded play event.
type Entry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id,omitempty"`
	ScenarioID string         `json:"scenario_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	NodeID     string         `json:"node_id,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// CoachingEntry is one recorded coaching exchange.
type CoachingEntry struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	NodeID         string    `json:"node_id"`
	ExchangeNumber int       `json:"exchange_number"`
	UserText       string    `json:"user_text"`
	CoachMessage   string    `json:"coach_message"`
	Fallback       bool      `json:"fallback"`
	CreatedAt      time.Time `json:"created_at"`
}
