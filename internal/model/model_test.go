package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadlineStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to DeadlineStatus
		ok       bool
	}{
		{DeadlineActive, DeadlineNoticeDrafted, true},
		{DeadlineActive, DeadlineWaived, true},
		{DeadlineActive, DeadlineExpired, true},
		{DeadlineActive, DeadlineCompleted, false},
		{DeadlineNoticeDrafted, DeadlineNoticeSent, true},
		{DeadlineNoticeDrafted, DeadlineActive, true}, // draft deletion reopens
		{DeadlineNoticeSent, DeadlineCompleted, true},
		{DeadlineNoticeSent, DeadlineWaived, true},
		{DeadlineNoticeSent, DeadlineActive, false},
		{DeadlineCompleted, DeadlineActive, false},
		{DeadlineExpired, DeadlineCompleted, false},
		{DeadlineWaived, DeadlineActive, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestDeadlineStatus_Terminal(t *testing.T) {
	assert.False(t, DeadlineActive.Terminal())
	assert.False(t, DeadlineNoticeDrafted.Terminal())
	assert.False(t, DeadlineNoticeSent.Terminal())
	assert.True(t, DeadlineCompleted.Terminal())
	assert.True(t, DeadlineExpired.Terminal())
	assert.True(t, DeadlineWaived.Terminal())
}

func TestNoticeStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to NoticeStatus
		ok       bool
	}{
		{NoticeDraft, NoticePendingReview, true},
		{NoticeDraft, NoticeSent, true},
		{NoticeDraft, NoticeVoid, true},
		{NoticeDraft, NoticeAcknowledged, false},
		{NoticePendingReview, NoticeDraft, true}, // review bounce-back
		{NoticePendingReview, NoticeSent, true},
		{NoticeSent, NoticeAcknowledged, true},
		{NoticeSent, NoticeExpired, true},
		{NoticeSent, NoticeFailed, true},
		{NoticeSent, NoticeVoid, false}, // sent notices cannot be voided
		{NoticeAcknowledged, NoticeSent, false},
		{NoticeVoid, NoticeDraft, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestNoticeStatus_Editable(t *testing.T) {
	assert.True(t, NoticeDraft.Editable())
	assert.True(t, NoticePendingReview.Editable())
	assert.False(t, NoticeSent.Editable())
	assert.False(t, NoticeAcknowledged.Editable())
	assert.False(t, NoticeVoid.Editable())
}

func TestRequiredDeliveryMethods(t *testing.T) {
	assert.Equal(t,
		[]DeliveryKind{DeliveryCertifiedMail, DeliveryEmail},
		RequiredDeliveryMethods(MethodCertifiedMail))
	assert.Equal(t,
		[]DeliveryKind{DeliveryEmail},
		RequiredDeliveryMethods(MethodEmail))
	// "written" and unspecified both default to email plus certified mail.
	assert.Equal(t,
		[]DeliveryKind{DeliveryEmail, DeliveryCertifiedMail},
		RequiredDeliveryMethods(MethodWritten))
	assert.Equal(t,
		[]DeliveryKind{DeliveryEmail, DeliveryCertifiedMail},
		RequiredDeliveryMethods(""))
}

func TestClauseRules(t *testing.T) {
	days := 21
	cure := 7
	c := &ContractClause{
		DeadlineDays: &days,
		DeadlineType: DeadlineBusinessDays,
		CureDays:     &cure,
	}

	n, dt, err := c.DeadlineRule()
	require.NoError(t, err)
	assert.Equal(t, 21, n)
	assert.Equal(t, DeadlineBusinessDays, dt)

	cn, ct, ok := c.CureRule()
	require.True(t, ok)
	assert.Equal(t, 7, cn)
	assert.Equal(t, DeadlineCalendarDays, ct) // cure type defaults

	_, _, err = (&ContractClause{}).DeadlineRule()
	assert.Error(t, err)

	zero := 0
	_, _, ok = (&ContractClause{CureDays: &zero}).CureRule()
	assert.False(t, ok)
}

func TestAllDelivered(t *testing.T) {
	assert.False(t, AllDelivered(nil))

	channels := NewChannels([]DeliveryKind{DeliveryEmail, DeliveryCertifiedMail})
	assert.False(t, AllDelivered(channels))

	channels[0].State = ChannelDelivered
	channels[0].Confirmation = EmailConfirmation{MessageID: "m", DeliveredAt: time.Now()}
	assert.False(t, AllDelivered(channels))

	// Delivered state without a confirmation payload does not count.
	channels[1].State = ChannelDelivered
	assert.False(t, AllDelivered(channels))

	channels[1].Confirmation = CertifiedMailConfirmation{TrackingNumber: "9407", ReceivedAt: time.Now()}
	assert.True(t, AllDelivered(channels))
}

func TestDecodeConfirmation(t *testing.T) {
	received := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	raw, err := json.Marshal(CertifiedMailConfirmation{
		TrackingNumber: "9407 1000",
		ReturnReceipt:  true,
		SignedBy:       "J. Receiver",
		ReceivedAt:     received,
	})
	require.NoError(t, err)

	conf, err := DecodeConfirmation(DeliveryCertifiedMail, raw)
	require.NoError(t, err)
	assert.Equal(t, DeliveryCertifiedMail, conf.Kind())
	assert.Equal(t, received, conf.ConfirmedAt())

	cm, ok := conf.(CertifiedMailConfirmation)
	require.True(t, ok)
	assert.True(t, cm.ReturnReceipt)

	_, err = DecodeConfirmation("carrier_pigeon", raw)
	assert.Error(t, err)
}

func TestDeliveryChannel_JSONKeepsConfirmationShape(t *testing.T) {
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ch := DeliveryChannel{
		Method:       DeliveryCourier,
		State:        ChannelDelivered,
		DispatchedAt: &at,
		Confirmation: CourierConfirmation{
			Carrier:        "FedEx",
			TrackingNumber: "7788",
			SignedBy:       "Site Super",
			DeliveredAt:    at,
		},
	}

	data, err := json.Marshal(ch)
	require.NoError(t, err)

	var back DeliveryChannel
	require.NoError(t, json.Unmarshal(data, &back))
	require.NotNil(t, back.Confirmation)
	assert.Equal(t, DeliveryCourier, back.Confirmation.Kind())

	cc, ok := back.Confirmation.(CourierConfirmation)
	require.True(t, ok)
	assert.Equal(t, "FedEx", cc.Carrier)
	assert.Equal(t, "7788", cc.TrackingNumber)
}

func TestNoticeTypeFor(t *testing.T) {
	assert.Equal(t, NoticeClaim, NoticeTypeFor(ClauseClaimsProcedure))
	assert.Equal(t, NoticeChangeOrder, NoticeTypeFor(ClauseChangeOrderProcess))
	assert.Equal(t, NoticeTermination, NoticeTypeFor(ClauseTermination))
	assert.Equal(t, NoticeWarrantyClaim, NoticeTypeFor(ClauseWarranty))
	assert.Equal(t, NoticeFormal, NoticeTypeFor(ClauseOther))
}
