package model

import "time"

// ActorType identifies who performed an audited action.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

// AuditLogEntry is one append-only record of a state transition. Entries are
// never updated or deleted; the trail is the sole source of truth for what
// happened when.
type AuditLogEntry struct {
	ID         int64          `json:"id"`
	ProjectID  string         `json:"project_id"`
	EventType  string         `json:"event_type"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	ActorType  ActorType      `json:"actor_type"`
	Actor      string         `json:"actor,omitempty"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Audit entity types.
const (
	EntityDeadline = "deadline"
	EntityNotice   = "notice"
	EntityClause   = "clause"
)
