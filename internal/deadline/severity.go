package deadline

import (
	"math"
	"time"

	"github.com/sells-group/compliance-cli/internal/model"
)

// AlertChannel is one proactive notification channel.
type AlertChannel string

const (
	ChannelInApp   AlertChannel = "in_app"
	ChannelEmail   AlertChannel = "email"
	ChannelWebhook AlertChannel = "webhook"
)

func allChannels() []AlertChannel {
	return []AlertChannel{ChannelInApp, ChannelEmail, ChannelWebhook}
}

// Classification is the severity tier with its alerting policy.
type Classification struct {
	Severity      model.Severity `json:"severity"`
	Label         string         `json:"label"`
	Channels      []AlertChannel `json:"channels"`
	Escalate      bool           `json:"escalate"`
	DaysRemaining int            `json:"days_remaining"`
}

// Classify maps (deadline, now) to a severity tier. Pure and deterministic:
// the periodic sweep relies on identical inputs producing identical output.
// Thresholds are whole days remaining with inclusive upper bounds:
// <0 EXPIRED, 0–3 CRITICAL, 4–7 WARNING, 8–14 INFO, >14 LOW.
func Classify(deadlineAt, now time.Time) Classification {
	days := int(math.Floor(deadlineAt.Sub(now).Hours() / 24))

	switch {
	case days < 0:
		return Classification{
			Severity:      model.SeverityExpired,
			Label:         "Deadline expired, claim forfeiture risk",
			Channels:      allChannels(),
			Escalate:      true,
			DaysRemaining: days,
		}
	case days <= 3:
		return Classification{
			Severity:      model.SeverityCritical,
			Label:         "Due within 3 days",
			Channels:      allChannels(),
			DaysRemaining: days,
		}
	case days <= 7:
		return Classification{
			Severity:      model.SeverityWarning,
			Label:         "Due within 7 days",
			Channels:      allChannels(),
			DaysRemaining: days,
		}
	case days <= 14:
		return Classification{
			Severity:      model.SeverityInfo,
			Label:         "Due within 14 days",
			Channels:      []AlertChannel{ChannelInApp},
			DaysRemaining: days,
		}
	default:
		return Classification{
			Severity:      model.SeverityLow,
			Label:         "On track",
			DaysRemaining: days,
		}
	}
}

// ShouldAlert applies the repeat-notification suppression rule: EXPIRED
// always alerts, CRITICAL and WARNING alert only outside the cooldown since
// the last alert, INFO and LOW never proactively alert.
func ShouldAlert(sev model.Severity, lastAlertAt *time.Time, now time.Time, cooldown time.Duration) bool {
	switch sev {
	case model.SeverityExpired:
		return true
	case model.SeverityCritical, model.SeverityWarning:
		return lastAlertAt == nil || now.Sub(*lastAlertAt) >= cooldown
	default:
		return false
	}
}
