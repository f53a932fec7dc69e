package store

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/models"
)

// LedgerStore persists usage ledgers.
type LedgerStore interface {
	GetLedger(ctx context.Context, userID string, tier models.Tier) (*models.UsageLedger, error)
	RolloverLedger(ctx context.Context, userID string, dailyAnchor, monthlyAnchor time.Time) error
	IncrementUsage(ctx context.Context, userID string, cost float64) error
}

var _ LedgerStore = (*DB)(nil)

// GetLedger returns the ledger for userID, creating a zeroed one on first use.
// The stored tier is refreshed from the caller's current tier.
func (db *DB) GetLedger(ctx context.Context, userID string, tier models.Tier) (*models.UsageLedger, error) {
	q := db.q(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO usage_ledgers (user_id, tier) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET tier = excluded.tier
	`, userID, string(tier))
	if err != nil {
		return nil, fmt.Errorf("store: ensure ledger: %w", err)
	}

	var (
		l                     models.UsageLedger
		t                     string
		dailyAnchor, monthAnc int64
	)
	err = q.QueryRowContext(ctx, `
		SELECT user_id, tier, daily_count, daily_anchor, monthly_count, monthly_anchor, cumulative_cost
		FROM usage_ledgers WHERE user_id = ?
	`, userID).Scan(&l.UserID, &t, &l.DailyCount, &dailyAnchor, &l.MonthlyCount, &monthAnc, &l.CumulativeCost)
	if err != nil {
		return nil, fmt.Errorf("store: get ledger: %w", err)
	}
	l.Tier = models.Tier(t)
	l.DailyResetAnchor = fromUnix(dailyAnchor)
	l.MonthlyResetAnchor = fromUnix(monthAnc)
	return &l, nil
}

// RolloverLedger zeroes the counters whose stored anchor is older than the
// supplied one and advances the anchors. Anchors never move backwards, so
// concurrent rollovers for the same period reset the counter once.
func (db *DB) RolloverLedger(ctx context.Context, userID string, dailyAnchor, monthlyAnchor time.Time) error {
	d, m := dailyAnchor.Unix(), monthlyAnchor.Unix()
	_, err := db.q(ctx).ExecContext(ctx, `
		UPDATE usage_ledgers SET
			daily_count    = CASE WHEN daily_anchor < ? THEN 0 ELSE daily_count END,
			daily_anchor   = MAX(daily_anchor, ?),
			monthly_count  = CASE WHEN monthly_anchor < ? THEN 0 ELSE monthly_count END,
			monthly_anchor = MAX(monthly_anchor, ?)
		WHERE user_id = ?
	`, d, d, m, m, userID)
	if err != nil {
		return fmt.Errorf("store: rollover ledger: %w", err)
	}
	return nil
}

// IncrementUsage adds one call to both counters and cost to the running estimate.
func (db *DB) IncrementUsage(ctx context.Context, userID string, cost float64) error {
	res, err := db.q(ctx).ExecContext(ctx, `
		UPDATE usage_ledgers SET
			daily_count     = daily_count + 1,
			monthly_count   = monthly_count + 1,
			cumulative_cost = cumulative_cost + ?
		WHERE user_id = ?
	`, cost, userID)
	if err != nil {
		return fmt.Errorf("store: increment usage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: increment usage: no ledger for %q", userID)
	}
	return nil
}
