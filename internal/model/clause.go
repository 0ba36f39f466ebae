package model

import "time"

// ClauseKind categorizes the contractual obligation a clause encodes.
type ClauseKind string

const (
	ClauseClaimsProcedure    ClauseKind = "claims_procedure"
	ClauseChangeOrderProcess ClauseKind = "change_order_process"
	ClauseTermination        ClauseKind = "termination"
	ClauseWarranty           ClauseKind = "warranty"
	ClauseNoticeRequirements ClauseKind = "notice_requirements"
	ClauseDisputeResolution  ClauseKind = "dispute_resolution"
	ClauseOther              ClauseKind = "other"
)

// DeadlineType is the unit a clause's deadline magnitude is expressed in.
type DeadlineType string

const (
	DeadlineCalendarDays DeadlineType = "calendar_days"
	DeadlineBusinessDays DeadlineType = "business_days"
	DeadlineHours        DeadlineType = "hours"
)

// NoticeMethod is the delivery method the contract requires for a notice.
// An empty value means the contract only says "written notice".
type NoticeMethod string

const (
	MethodEmail          NoticeMethod = "email"
	MethodCertifiedMail  NoticeMethod = "certified_mail"
	MethodRegisteredMail NoticeMethod = "registered_mail"
	MethodHandDelivery   NoticeMethod = "hand_delivery"
	MethodCourier        NoticeMethod = "courier"
	MethodWritten        NoticeMethod = "written"
)

// ContractClause is a single notice/claim obligation extracted from a
// contract. Clauses arrive from the extraction collaborator (or manual entry)
// and must be confirmed by a human before they can spawn deadlines.
type ContractClause struct {
	ID                 string        `json:"id"`
	ProjectID          string        `json:"project_id"`
	Kind               ClauseKind    `json:"kind"`
	Section            string        `json:"section"`
	TriggerDescription string        `json:"trigger_description"`
	DeadlineDays       *int          `json:"deadline_days,omitempty"`
	DeadlineType       DeadlineType  `json:"deadline_type,omitempty"`
	CureDays           *int          `json:"cure_days,omitempty"`
	CureType           DeadlineType  `json:"cure_type,omitempty"`
	NoticeMethod       NoticeMethod  `json:"notice_method,omitempty"`
	RequiresReview     bool          `json:"requires_review"`
	Confirmed          bool          `json:"confirmed"`
	ConfirmedBy        string        `json:"confirmed_by,omitempty"`
	ConfirmedAt        *time.Time    `json:"confirmed_at,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// DeadlineRule extracts the clause's primary deadline parameters.
// Returns ErrInvalidClauseConfiguration when days or type is absent.
func (c *ContractClause) DeadlineRule() (int, DeadlineType, error) {
	if c.DeadlineDays == nil || c.DeadlineType == "" {
		return 0, "", ErrInvalidClauseConfiguration
	}
	return *c.DeadlineDays, c.DeadlineType, nil
}

// CureRule extracts the optional cure period. ok is false when no cure
// period is configured.
func (c *ContractClause) CureRule() (days int, dt DeadlineType, ok bool) {
	if c.CureDays == nil || *c.CureDays <= 0 {
		return 0, "", false
	}
	dt = c.CureType
	if dt == "" {
		dt = DeadlineCalendarDays
	}
	return *c.CureDays, dt, true
}

// NoticeTypeFor derives the notice type a clause kind calls for.
func NoticeTypeFor(kind ClauseKind) NoticeType {
	switch kind {
	case ClauseClaimsProcedure:
		return NoticeClaim
	case ClauseChangeOrderProcess:
		return NoticeChangeOrder
	case ClauseTermination:
		return NoticeTermination
	case ClauseWarranty:
		return NoticeWarrantyClaim
	default:
		return NoticeFormal
	}
}

// RequiredDeliveryMethods resolves the contract's notice method into the set
// of delivery channels the notice must go out on. Email always rides along
// with physical methods as a courtesy copy; an unspecified or plain "written"
// requirement defaults to email plus certified mail.
func RequiredDeliveryMethods(m NoticeMethod) []DeliveryKind {
	switch m {
	case MethodCertifiedMail:
		return []DeliveryKind{DeliveryCertifiedMail, DeliveryEmail}
	case MethodRegisteredMail:
		return []DeliveryKind{DeliveryRegisteredMail, DeliveryEmail}
	case MethodHandDelivery:
		return []DeliveryKind{DeliveryHandDelivery, DeliveryEmail}
	case MethodCourier:
		return []DeliveryKind{DeliveryCourier, DeliveryEmail}
	case MethodEmail:
		return []DeliveryKind{DeliveryEmail}
	default: // written or unspecified
		return []DeliveryKind{DeliveryEmail, DeliveryCertifiedMail}
	}
}
