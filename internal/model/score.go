package model

import "time"

// Granularity is the period a score snapshot covers.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// ComplianceScore is a cached rollup over a project's notices and deadlines.
// Derived, never authoritative; valid only within its freshness window.
type ComplianceScore struct {
	ProjectID    string `json:"project_id"`
	Score        int    `json:"score"`
	TotalNotices int    `json:"total_notices"`
	OnTimeCount  int    `json:"on_time_count"`
	MissedCount  int    `json:"missed_count"`

	CurrentStreak int `json:"current_streak"`
	BestStreak    int `json:"best_streak"`

	ProtectedValueUSD float64 `json:"protected_value_usd"`
	AtRiskValueUSD    float64 `json:"at_risk_value_usd"`
	// ProtectedValueEstimated marks the flat per-notice fallback; the figure
	// is an estimate, not a sum of measured change-event values.
	ProtectedValueEstimated bool `json:"protected_value_estimated"`

	Verdict    string    `json:"verdict"`
	ComputedAt time.Time `json:"computed_at"`
}

// ScoreSnapshot is an immutable point-in-time score record keyed by
// (project, date, granularity), kept for trend charts. Upsert-by-key.
type ScoreSnapshot struct {
	ID          string      `json:"id"`
	ProjectID   string      `json:"project_id"`
	Date        time.Time   `json:"date"`
	Granularity Granularity `json:"granularity"`
	Score       ComplianceScore `json:"score"`
	CreatedAt   time.Time   `json:"created_at"`
}
