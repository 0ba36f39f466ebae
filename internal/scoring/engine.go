package scoring

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/compliance-cli/internal/clock"
	"github.com/sells-group/compliance-cli/internal/model"
	"github.com/sells-group/compliance-cli/internal/store"
)

// DefaultFallbackClaimUSD is the flat per-notice estimate used for the
// protected-value figure when deadlines carry no measured change-event value.
const DefaultFallbackClaimUSD = 25000

// Engine computes and caches project compliance scores.
type Engine struct {
	store       store.Store
	clock       clock.Clock
	cacheTTL    time.Duration
	fallbackUSD float64
	log         *zap.Logger
}

// Options tune the scoring engine. Zero values select defaults.
type Options struct {
	CacheTTL    time.Duration
	FallbackUSD float64
}

func NewEngine(st store.Store, clk clock.Clock, opts Options) *Engine {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.FallbackUSD <= 0 {
		opts.FallbackUSD = DefaultFallbackClaimUSD
	}
	return &Engine{
		store:       st,
		clock:       clk,
		cacheTTL:    opts.CacheTTL,
		fallbackUSD: opts.FallbackUSD,
		log:         zap.L().With(zap.String("component", "scoring")),
	}
}

// Score returns the project's compliance score, serving from cache when the
// cached value is still inside the freshness window. force bypasses the cache.
func (e *Engine) Score(ctx context.Context, projectID string, force bool) (*model.ComplianceScore, error) {
	now := e.clock.Now()
	if !force {
		cached, err := e.store.GetScoreCache(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if cached != nil && now.Sub(cached.ComputedAt) < e.cacheTTL {
			return cached, nil
		}
	}

	score, err := e.compute(ctx, projectID, now)
	if err != nil {
		return nil, err
	}
	if err := e.store.SaveScoreCache(ctx, score); err != nil {
		return nil, err
	}
	return score, nil
}

// compute derives the score from resolved notices and open deadlines.
func (e *Engine) compute(ctx context.Context, projectID string, now time.Time) (*model.ComplianceScore, error) {
	notices, err := e.store.ListNotices(ctx, store.NoticeFilter{
		ProjectID: projectID,
		Statuses: []model.NoticeStatus{
			model.NoticeSent,
			model.NoticeAcknowledged,
			model.NoticeExpired,
		},
	})
	if err != nil {
		return nil, err
	}

	score := &model.ComplianceScore{
		ProjectID:  projectID,
		ComputedAt: now,
	}

	for _, n := range notices {
		score.TotalNotices++
		switch {
		case noticeOnTime(n):
			score.OnTimeCount++
		case noticeMissed(n):
			score.MissedCount++
		}
		// A SENT notice awaiting confirmation counts in the total only: it
		// drags the score until delivery resolves it one way or the other.
	}

	if score.TotalNotices == 0 {
		score.Score = 100
		score.Verdict = "no notices tracked yet"
	} else {
		pct := float64(score.OnTimeCount) / float64(score.TotalNotices) * 100
		score.Score = int(math.Round(pct))
		score.Verdict = verdict(pct)
	}

	score.CurrentStreak, score.BestStreak = streaks(notices)

	if err := e.fillValues(ctx, projectID, score); err != nil {
		return nil, err
	}

	e.log.Debug("score computed",
		zap.String("project_id", projectID),
		zap.Int("score", score.Score),
		zap.Int("total", score.TotalNotices),
	)
	return score, nil
}

// fillValues computes the protected and at-risk dollar figures from the
// change-event values attached to deadlines.
func (e *Engine) fillValues(ctx context.Context, projectID string, score *model.ComplianceScore) error {
	completed, err := e.store.ListDeadlines(ctx, store.DeadlineFilter{
		ProjectID: projectID,
		Status:    model.DeadlineCompleted,
	})
	if err != nil {
		return err
	}
	for _, d := range completed {
		score.ProtectedValueUSD += d.EstimatedValueUSD
	}
	if score.ProtectedValueUSD == 0 && score.OnTimeCount > 0 {
		// No measured values linked; fall back to a flat per-notice estimate.
		score.ProtectedValueUSD = e.fallbackUSD * float64(score.OnTimeCount)
		score.ProtectedValueEstimated = true
	}

	atRisk, err := e.store.ListDeadlines(ctx, store.DeadlineFilter{
		ProjectID: projectID,
		Severities: []model.Severity{
			model.SeverityExpired,
			model.SeverityCritical,
			model.SeverityWarning,
		},
	})
	if err != nil {
		return err
	}
	for _, d := range atRisk {
		if d.Status.Terminal() && d.Status != model.DeadlineExpired {
			continue
		}
		v := d.EstimatedValueUSD
		if v == 0 {
			v = e.fallbackUSD
		}
		score.AtRiskValueUSD += v
	}
	return nil
}

// Health exposes the score as the weighted compliance component consumed by
// the project health aggregator.
type HealthComponent struct {
	Score   int            `json:"score"`
	Weight  float64        `json:"weight"`
	Status  string         `json:"status"`
	Details map[string]any `json:"details"`
}

func (e *Engine) Health(ctx context.Context, projectID string) (*HealthComponent, error) {
	score, err := e.Score(ctx, projectID, false)
	if err != nil {
		return nil, err
	}
	return &HealthComponent{
		Score:  score.Score,
		Weight: 0.2,
		Status: healthStatus(score.Score),
		Details: map[string]any{
			"total_notices":     score.TotalNotices,
			"on_time_count":     score.OnTimeCount,
			"missed_count":      score.MissedCount,
			"current_streak":    score.CurrentStreak,
			"at_risk_value_usd": score.AtRiskValueUSD,
			"verdict":           score.Verdict,
		},
	}, nil
}

func healthStatus(score int) string {
	switch {
	case score >= 90:
		return "good"
	case score >= 75:
		return "warning"
	default:
		return "critical"
	}
}

func verdict(pct float64) string {
	switch {
	case pct >= 100:
		return "excellent"
	case pct >= 95:
		return "strong"
	case pct >= 90:
		return "good"
	case pct >= 80:
		return "fair"
	case pct >= 60:
		return "poor"
	default:
		return "critical"
	}
}

// noticeOnTime reports whether a notice counts toward the on-time tally.
func noticeOnTime(n model.ComplianceNotice) bool {
	return n.OnTime != nil && *n.OnTime
}

// noticeMissed reports a confirmed late delivery or a notice that expired
// before it was acknowledged.
func noticeMissed(n model.ComplianceNotice) bool {
	return (n.OnTime != nil && !*n.OnTime) || n.Status == model.NoticeExpired
}

// streaks computes the current streak (consecutive on-time scanning backward
// from the most recent notice) and the best streak (longest on-time run in
// chronological order).
func streaks(notices []model.ComplianceNotice) (current, best int) {
	if len(notices) == 0 {
		return 0, 0
	}
	sorted := make([]model.ComplianceNotice, len(notices))
	copy(sorted, notices)
	sort.Slice(sorted, func(i, j int) bool {
		return orderStamp(sorted[i]).Before(orderStamp(sorted[j]))
	})

	for i := len(sorted) - 1; i >= 0; i-- {
		if !noticeOnTime(sorted[i]) {
			break
		}
		current++
	}

	run := 0
	for _, n := range sorted {
		if noticeOnTime(n) {
			run++
			if run > best {
				best = run
			}
		} else {
			run = 0
		}
	}
	return current, best
}

// orderStamp is the timestamp notices are sequenced by for streak purposes.
// Notices that expired before sending have no sentAt; their due date stands in.
func orderStamp(n model.ComplianceNotice) time.Time {
	if n.SentAt != nil {
		return *n.SentAt
	}
	return n.DueAt
}
