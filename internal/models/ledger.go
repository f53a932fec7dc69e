package models

import "time"

// UsageLedger holds per-user AI usage counters.
// Zero anchors mean the counter has never been rolled over.
type UsageLedger struct {
	UserID             string    `json:"user_id"`
	Tier               Tier      `json:"tier"`
	DailyCount         int       `json:"daily_count"`
	DailyResetAnchor   time.Time `json:"daily_reset_anchor"`
	MonthlyCount       int       `json:"monthly_count"`
	MonthlyResetAnchor time.Time `json:"monthly_reset_anchor"`
	CumulativeCost     float64   `json:"cumulative_cost_estimate"`
}
