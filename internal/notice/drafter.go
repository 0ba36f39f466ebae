package notice

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/compliance-cli/internal/config"
	"github.com/sells-group/compliance-cli/internal/model"
)

// DraftContext carries everything the drafting collaborator needs to write a
// formal notice letter.
type DraftContext struct {
	Clause        model.ContractClause
	Deadline      model.ComplianceDeadline
	NoticeType    model.NoticeType
	RecipientName string
	ProjectName   string
	OrgName       string
}

// Drafter produces notice letter content. The engine works without one:
// manually supplied content is always an acceptable fallback.
type Drafter interface {
	DraftLetter(ctx context.Context, dc DraftContext) (string, error)
}

const draftSystemPrompt = `You are a construction contracts administrator drafting formal notice letters.
Write complete, professionally formatted business letters that preserve the sender's contractual rights.
Cite the contract section verbatim, state the triggering event and its date, and state the deadline date.
Never include placeholders; write the letter ready to send. Output only the letter body.`

// AnthropicDrafter drafts letters through the Anthropic API, rate limited so
// bulk drafting cannot exhaust the API quota.
type AnthropicDrafter struct {
	client    sdk.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
}

// NewAnthropicDrafter builds a drafter from config.
func NewAnthropicDrafter(cfg config.DraftingConfig) *AnthropicDrafter {
	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = 30
	}
	return &AnthropicDrafter{
		client:    sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		limiter:   rate.NewLimiter(rate.Limit(rpm/60), 1),
	}
}

// DraftLetter requests a letter from the model.
func (d *AnthropicDrafter) DraftLetter(ctx context.Context, dc DraftContext) (string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "drafter: rate limit wait")
	}

	prompt := buildDraftPrompt(dc)
	msg, err := d.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(d.model),
		MaxTokens: d.maxTokens,
		System:    []sdk.TextBlockParam{{Text: draftSystemPrompt}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		return "", eris.Wrap(err, "drafter: create message")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	letter := strings.TrimSpace(sb.String())
	if letter == "" {
		return "", eris.New("drafter: model returned no text")
	}

	zap.L().Info("notice letter drafted",
		zap.String("model", string(msg.Model)),
		zap.String("notice_type", string(dc.NoticeType)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return letter, nil
}

func buildDraftPrompt(dc DraftContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Draft a %s.\n\n", strings.ReplaceAll(string(dc.NoticeType), "_", " "))
	fmt.Fprintf(&sb, "Sender organization: %s\n", dc.OrgName)
	fmt.Fprintf(&sb, "Project: %s\n", dc.ProjectName)
	fmt.Fprintf(&sb, "Recipient: %s\n\n", dc.RecipientName)
	fmt.Fprintf(&sb, "Contract section: %s\n", dc.Clause.Section)
	fmt.Fprintf(&sb, "Obligation: %s\n", dc.Clause.TriggerDescription)
	fmt.Fprintf(&sb, "Triggering event (%s): %s\n", dc.Deadline.TriggerEventType, dc.Deadline.TriggerDescription)
	fmt.Fprintf(&sb, "Event date: %s\n", dc.Deadline.TriggeredAt.Format("January 2, 2006"))
	fmt.Fprintf(&sb, "Notice deadline: %s\n", dc.Deadline.DeadlineAt.Format("January 2, 2006"))
	return sb.String()
}
