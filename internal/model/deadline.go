package model

import "time"

// DeadlineStatus is the lifecycle state of a compliance deadline.
type DeadlineStatus string

const (
	DeadlineActive        DeadlineStatus = "ACTIVE"
	DeadlineNoticeDrafted DeadlineStatus = "NOTICE_DRAFTED"
	DeadlineNoticeSent    DeadlineStatus = "NOTICE_SENT"
	DeadlineCompleted     DeadlineStatus = "COMPLETED"
	DeadlineExpired       DeadlineStatus = "EXPIRED"
	DeadlineWaived        DeadlineStatus = "WAIVED"
)

// deadlineTransitions is the allowed state machine. NOTICE_DRAFTED back to ACTIVE
// covers draft-notice deletion reopening the deadline.
var deadlineTransitions = map[DeadlineStatus][]DeadlineStatus{
	DeadlineActive:        {DeadlineNoticeDrafted, DeadlineWaived, DeadlineExpired},
	DeadlineNoticeDrafted: {DeadlineNoticeSent, DeadlineActive, DeadlineWaived, DeadlineExpired},
	DeadlineNoticeSent:    {DeadlineCompleted, DeadlineWaived, DeadlineExpired},
	DeadlineCompleted:     {},
	DeadlineExpired:       {},
	DeadlineWaived:        {},
}

// Terminal reports whether the status admits no further transitions.
func (s DeadlineStatus) Terminal() bool {
	switch s {
	case DeadlineCompleted, DeadlineExpired, DeadlineWaived:
		return true
	}
	return false
}

// CanTransition reports whether the move from s to to is legal.
func (s DeadlineStatus) CanTransition(to DeadlineStatus) bool {
	for _, t := range deadlineTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Severity is the time-remaining urgency tier of a deadline.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
	SeverityExpired  Severity = "EXPIRED"
)

// ComplianceDeadline is one concrete obligation instance triggered by a real
// project event. At most one non-terminal deadline exists per
// (clause, trigger event) pair. The notice link is by id only; the notice's
// backlink is queried, not stored.
type ComplianceDeadline struct {
	ID                 string         `json:"id"`
	ProjectID          string         `json:"project_id"`
	ClauseID           string         `json:"clause_id"`
	TriggerEventType   string         `json:"trigger_event_type"`
	TriggerEventID     string         `json:"trigger_event_id,omitempty"`
	TriggerDescription string         `json:"trigger_description"`
	TriggeredAt        time.Time      `json:"triggered_at"`
	TriggeredBy        string         `json:"triggered_by,omitempty"`
	DeadlineAt         time.Time      `json:"deadline_at"`
	Severity           Severity       `json:"severity"`
	Status             DeadlineStatus `json:"status"`
	NoticeID           *string        `json:"notice_id,omitempty"`
	WaiverReason       string         `json:"waiver_reason,omitempty"`
	WaivedBy           string         `json:"waived_by,omitempty"`
	WaivedAt           *time.Time     `json:"waived_at,omitempty"`
	LastAlertAt        *time.Time     `json:"last_alert_at,omitempty"`
	// EstimatedValueUSD is the dollar value of the change event behind the
	// trigger, used for protected/at-risk exposure rollups. Zero when the
	// event source supplied no figure.
	EstimatedValueUSD float64   `json:"estimated_value_usd,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
