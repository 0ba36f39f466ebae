package notice

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compliance-cli/internal/config"
	"github.com/sells-group/compliance-cli/internal/model"
	"github.com/sells-group/compliance-cli/internal/resilience"
)

// Dispatch is the per-method outcome of one delivery attempt. Email is
// synchronous and authoritative; postal, hand, and courier methods only go
// "pending" here and are confirmed by a human out-of-band.
type Dispatch struct {
	Method    model.DeliveryKind `json:"method"`
	Accepted  bool               `json:"accepted"`
	MessageID string             `json:"message_id,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// Dispatcher hands notice content to the delivery transport collaborator.
type Dispatcher interface {
	Dispatch(ctx context.Context, method model.DeliveryKind, n *model.ComplianceNotice) Dispatch
}

// HTTPDispatcher sends email through an HTTP relay and records every other
// method as pending manual follow-up.
type HTTPDispatcher struct {
	endpoint string
	from     string
	client   *http.Client
	retry    resilience.Policy
}

// NewHTTPDispatcher builds a dispatcher from config.
func NewHTTPDispatcher(cfg config.DeliveryConfig) *HTTPDispatcher {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPDispatcher{
		endpoint: cfg.EmailEndpoint,
		from:     cfg.EmailFrom,
		client:   &http.Client{Timeout: timeout},
		retry:    resilience.DeliveryPolicy(),
	}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, method model.DeliveryKind, n *model.ComplianceNotice) Dispatch {
	switch method {
	case model.DeliveryEmail:
		return d.sendEmail(ctx, n)
	case model.DeliveryCertifiedMail, model.DeliveryRegisteredMail,
		model.DeliveryHandDelivery, model.DeliveryCourier:
		// Physical methods have no synchronous transport; the send is
		// recorded and a human confirms receipt later.
		zap.L().Info("delivery method queued for manual handling",
			zap.String("notice_id", n.ID),
			zap.String("method", string(method)),
		)
		return Dispatch{Method: method, Accepted: true}
	default:
		return Dispatch{Method: method, Error: "unknown delivery method"}
	}
}

func (d *HTTPDispatcher) sendEmail(ctx context.Context, n *model.ComplianceNotice) Dispatch {
	out := Dispatch{Method: model.DeliveryEmail}
	if d.endpoint == "" {
		out.Error = "email endpoint not configured"
		return out
	}

	payload, err := json.Marshal(map[string]string{
		"from":    d.from,
		"to":      n.RecipientEmail,
		"to_name": n.RecipientName,
		"subject": emailSubject(n),
		"body":    n.Content,
	})
	if err != nil {
		out.Error = eris.Wrap(err, "dispatcher: marshal email").Error()
		return out
	}

	messageID, err := resilience.DoVal(ctx, d.retry, "email-relay", func(ctx context.Context) (string, error) {
		return d.postEmail(ctx, payload)
	})
	if err != nil {
		out.Error = err.Error()
		return out
	}

	out.Accepted = true
	out.MessageID = messageID
	return out
}

func (d *HTTPDispatcher) postEmail(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "dispatcher: create email request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "dispatcher: send email")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("dispatcher: email relay returned status %d", resp.StatusCode)
		if resilience.RetryableStatus(resp.StatusCode) {
			return "", resilience.MarkTransient(err, resp.StatusCode)
		}
		return "", err
	}

	var body struct {
		MessageID string `json:"message_id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return body.MessageID, nil
}

func emailSubject(n *model.ComplianceNotice) string {
	switch n.Type {
	case model.NoticeClaim:
		return "Formal Notice of Claim"
	case model.NoticeChangeOrder:
		return "Notice of Change Order"
	case model.NoticeTermination:
		return "Notice of Termination"
	case model.NoticeWarrantyClaim:
		return "Warranty Claim Notice"
	default:
		return "Formal Contract Notice"
	}
}
