package model

import "time"

// NoticeType is derived from the clause kind the notice answers.
type NoticeType string

const (
	NoticeClaim         NoticeType = "claim_notice"
	NoticeChangeOrder   NoticeType = "change_order_notice"
	NoticeTermination   NoticeType = "termination_notice"
	NoticeWarrantyClaim NoticeType = "warranty_claim_notice"
	NoticeFormal        NoticeType = "formal_notice"
)

// NoticeStatus is the lifecycle state of a compliance notice.
type NoticeStatus string

const (
	NoticeDraft         NoticeStatus = "DRAFT"
	NoticePendingReview NoticeStatus = "PENDING_REVIEW"
	NoticeSent          NoticeStatus = "SENT"
	NoticeAcknowledged  NoticeStatus = "ACKNOWLEDGED"
	NoticeExpired       NoticeStatus = "EXPIRED"
	NoticeVoid          NoticeStatus = "VOID"
	NoticeFailed        NoticeStatus = "FAILED"
)

var noticeTransitions = map[NoticeStatus][]NoticeStatus{
	NoticeDraft:         {NoticePendingReview, NoticeSent, NoticeVoid},
	NoticePendingReview: {NoticeDraft, NoticeSent, NoticeVoid},
	NoticeSent:          {NoticeAcknowledged, NoticeExpired, NoticeFailed},
	NoticeAcknowledged:  {},
	NoticeExpired:       {},
	NoticeVoid:          {},
	NoticeFailed:        {},
}

// CanTransition reports whether the move from s to to is legal.
func (s NoticeStatus) CanTransition(to NoticeStatus) bool {
	for _, t := range noticeTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Editable reports whether content edits are still permitted.
func (s NoticeStatus) Editable() bool {
	return s == NoticeDraft || s == NoticePendingReview
}

// ComplianceNotice is the formal letter responding to a deadline. It is owned
// by exactly one deadline once linked, but may exist briefly unlinked while
// drafting.
type ComplianceNotice struct {
	ID             string            `json:"id"`
	ProjectID      string            `json:"project_id"`
	DeadlineID     *string           `json:"deadline_id,omitempty"`
	Type           NoticeType        `json:"type"`
	Status         NoticeStatus      `json:"status"`
	RecipientName  string            `json:"recipient_name"`
	RecipientEmail string            `json:"recipient_email"`
	Channels       []DeliveryChannel `json:"channels"`
	Content        string            `json:"content"`
	AIGenerated    bool              `json:"ai_generated"`
	DueAt          time.Time         `json:"due_at"`
	SentAt         *time.Time        `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time        `json:"delivered_at,omitempty"`
	// OnTime stays nil until every required channel confirms delivery.
	OnTime    *bool     `json:"on_time,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Channel returns the delivery channel for the given method, or nil.
func (n *ComplianceNotice) Channel(method DeliveryKind) *DeliveryChannel {
	for i := range n.Channels {
		if n.Channels[i].Method == method {
			return &n.Channels[i]
		}
	}
	return nil
}
