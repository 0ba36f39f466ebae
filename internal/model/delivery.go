package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// DeliveryKind identifies one delivery channel variant.
type DeliveryKind string

const (
	DeliveryEmail          DeliveryKind = "email"
	DeliveryCertifiedMail  DeliveryKind = "certified_mail"
	DeliveryRegisteredMail DeliveryKind = "registered_mail"
	DeliveryHandDelivery   DeliveryKind = "hand_delivery"
	DeliveryCourier        DeliveryKind = "courier"
)

// ChannelState tracks one delivery method of a notice.
type ChannelState string

const (
	// ChannelPending: not yet dispatched, or dispatched by a method whose
	// confirmation arrives out-of-band (postal, hand, courier).
	ChannelPending   ChannelState = "pending"
	ChannelSent      ChannelState = "sent"
	ChannelDelivered ChannelState = "delivered"
	ChannelFailed    ChannelState = "failed"
)

// Confirmation is the per-method delivery confirmation payload. Each delivery
// kind carries its own required fields; there is no generic map form.
type Confirmation interface {
	Kind() DeliveryKind
	// ConfirmedAt is the delivered/received instant the confirmation attests.
	ConfirmedAt() time.Time
}

// EmailConfirmation is produced synchronously by the email transport.
type EmailConfirmation struct {
	MessageID   string    `json:"message_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

func (c EmailConfirmation) Kind() DeliveryKind     { return DeliveryEmail }
func (c EmailConfirmation) ConfirmedAt() time.Time { return c.DeliveredAt }

// CertifiedMailConfirmation records USPS certified mail receipt.
type CertifiedMailConfirmation struct {
	TrackingNumber string    `json:"tracking_number"`
	ReturnReceipt  bool      `json:"return_receipt"`
	SignedBy       string    `json:"signed_by,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

func (c CertifiedMailConfirmation) Kind() DeliveryKind     { return DeliveryCertifiedMail }
func (c CertifiedMailConfirmation) ConfirmedAt() time.Time { return c.ReceivedAt }

// RegisteredMailConfirmation records registered mail receipt.
type RegisteredMailConfirmation struct {
	TrackingNumber string    `json:"tracking_number"`
	SignedBy       string    `json:"signed_by,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

func (c RegisteredMailConfirmation) Kind() DeliveryKind     { return DeliveryRegisteredMail }
func (c RegisteredMailConfirmation) ConfirmedAt() time.Time { return c.ReceivedAt }

// HandDeliveryConfirmation records in-person delivery.
type HandDeliveryConfirmation struct {
	ReceivedBy  string    `json:"received_by"`
	WitnessName string    `json:"witness_name,omitempty"`
	DeliveredAt time.Time `json:"delivered_at"`
}

func (c HandDeliveryConfirmation) Kind() DeliveryKind     { return DeliveryHandDelivery }
func (c HandDeliveryConfirmation) ConfirmedAt() time.Time { return c.DeliveredAt }

// CourierConfirmation records commercial courier delivery.
type CourierConfirmation struct {
	Carrier        string    `json:"carrier"`
	TrackingNumber string    `json:"tracking_number"`
	SignedBy       string    `json:"signed_by,omitempty"`
	DeliveredAt    time.Time `json:"delivered_at"`
}

func (c CourierConfirmation) Kind() DeliveryKind     { return DeliveryCourier }
func (c CourierConfirmation) ConfirmedAt() time.Time { return c.DeliveredAt }

// DeliveryChannel is one required delivery method of a notice with its
// independent sent/delivered state.
type DeliveryChannel struct {
	Method       DeliveryKind `json:"method"`
	State        ChannelState `json:"state"`
	DispatchedAt *time.Time   `json:"dispatched_at,omitempty"`
	Confirmation Confirmation `json:"-"`
	Error        string       `json:"error,omitempty"`
}

// channelJSON is the wire form of DeliveryChannel; the confirmation travels
// as a tagged envelope so each variant keeps its own shape.
type channelJSON struct {
	Method       DeliveryKind    `json:"method"`
	State        ChannelState    `json:"state"`
	DispatchedAt *time.Time      `json:"dispatched_at,omitempty"`
	Confirmation json.RawMessage `json:"confirmation,omitempty"`
	Error        string          `json:"error,omitempty"`
}

func (ch DeliveryChannel) MarshalJSON() ([]byte, error) {
	out := channelJSON{
		Method:       ch.Method,
		State:        ch.State,
		DispatchedAt: ch.DispatchedAt,
		Error:        ch.Error,
	}
	if ch.Confirmation != nil {
		raw, err := json.Marshal(ch.Confirmation)
		if err != nil {
			return nil, eris.Wrap(err, "model: marshal confirmation")
		}
		out.Confirmation = raw
	}
	return json.Marshal(out)
}

func (ch *DeliveryChannel) UnmarshalJSON(data []byte) error {
	var in channelJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return eris.Wrap(err, "model: unmarshal delivery channel")
	}
	ch.Method = in.Method
	ch.State = in.State
	ch.DispatchedAt = in.DispatchedAt
	ch.Error = in.Error
	ch.Confirmation = nil
	if len(in.Confirmation) == 0 {
		return nil
	}
	conf, err := DecodeConfirmation(in.Method, in.Confirmation)
	if err != nil {
		return err
	}
	ch.Confirmation = conf
	return nil
}

// DecodeConfirmation builds the concrete confirmation variant for a method.
// The method tag is matched exhaustively; an unknown method is a data error,
// never silently tolerated.
func DecodeConfirmation(kind DeliveryKind, raw json.RawMessage) (Confirmation, error) {
	switch kind {
	case DeliveryEmail:
		var c EmailConfirmation
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, eris.Wrap(err, "model: decode email confirmation")
		}
		return c, nil
	case DeliveryCertifiedMail:
		var c CertifiedMailConfirmation
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, eris.Wrap(err, "model: decode certified mail confirmation")
		}
		return c, nil
	case DeliveryRegisteredMail:
		var c RegisteredMailConfirmation
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, eris.Wrap(err, "model: decode registered mail confirmation")
		}
		return c, nil
	case DeliveryHandDelivery:
		var c HandDeliveryConfirmation
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, eris.Wrap(err, "model: decode hand delivery confirmation")
		}
		return c, nil
	case DeliveryCourier:
		var c CourierConfirmation
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, eris.Wrap(err, "model: decode courier confirmation")
		}
		return c, nil
	default:
		return nil, eris.Errorf("model: unknown delivery method %q", kind)
	}
}

// NewChannels builds the initial channel set for the given methods.
func NewChannels(methods []DeliveryKind) []DeliveryChannel {
	channels := make([]DeliveryChannel, 0, len(methods))
	for _, m := range methods {
		channels = append(channels, DeliveryChannel{Method: m, State: ChannelPending})
	}
	return channels
}

// AllDelivered reports whether every required channel has a confirmed
// delivery. A notice cannot be acknowledged until this holds.
func AllDelivered(channels []DeliveryChannel) bool {
	if len(channels) == 0 {
		return false
	}
	for _, ch := range channels {
		if ch.State != ChannelDelivered || ch.Confirmation == nil {
			return false
		}
	}
	return true
}
