// Package ledger enforces per-user daily quotas on paid AI calls and keeps
// running usage counters with lazy day and month rollover.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// DefaultEstimatedCost is charged per call when no real cost is known.
const DefaultEstimatedCost = 0.001

// Store is the persistence the ledger needs.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetLedger(ctx context.Context, userID string, tier models.Tier) (*models.UsageLedger, error)
	RolloverLedger(ctx context.Context, userID string, dailyAnchor, monthlyAnchor time.Time) error
	IncrementUsage(ctx context.Context, userID string, cost float64) error
}

// Rollover zeroes counters whose anchor is older than the current day or
// month of now. It reports whether anything changed. Anchors are computed
// in now's location.
func Rollover(l models.UsageLedger, now time.Time) (models.UsageLedger, bool) {
	day := models.DateOf(now)
	month := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())

	changed := false
	if l.DailyResetAnchor.Before(day) {
		l.DailyCount = 0
		l.DailyResetAnchor = day
		changed = true
	}
	if l.MonthlyResetAnchor.Before(month) {
		l.MonthlyCount = 0
		l.MonthlyResetAnchor = month
		changed = true
	}
	return l, changed
}

// Allow reports whether one more metered call fits under dailyLimit.
// Unmetered accounts are always allowed.
func Allow(l models.UsageLedger, dailyLimit int) error {
	if l.Tier == models.TierUnmetered {
		return nil
	}
	if l.DailyCount >= dailyLimit {
		return fmt.Errorf("%w: daily limit of %d reached, try again later or upgrade",
			apperr.ErrQuotaExceeded, dailyLimit)
	}
	return nil
}

// Config configures a Service.
type Config struct {
	Location      *time.Location
	EstimatedCost float64
	Now           func() time.Time
}

// Service applies the ledger rules against a Store.
type Service struct {
	store         Store
	loc           *time.Location
	estimatedCost float64
	now           func() time.Time
	logger        *slog.Logger
}

// NewService creates a ledger Service.
func NewService(store Store, cfg Config, logger *slog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.EstimatedCost <= 0 {
		cfg.EstimatedCost = DefaultEstimatedCost
	}
	return &Service{
		store:         store,
		loc:           cfg.Location,
		estimatedCost: cfg.EstimatedCost,
		now:           cfg.Now,
		logger:        logger.With("service", "ledger"),
	}
}

// current loads the ledger and persists any pending rollover.
func (s *Service) current(ctx context.Context, acct models.Account) (models.UsageLedger, error) {
	l, err := s.store.GetLedger(ctx, acct.UserID, acct.Tier)
	if err != nil {
		return models.UsageLedger{}, err
	}
	rolled, changed := Rollover(*l, s.now().In(s.loc))
	if changed {
		if err := s.store.RolloverLedger(ctx, acct.UserID, rolled.DailyResetAnchor, rolled.MonthlyResetAnchor); err != nil {
			return models.UsageLedger{}, err
		}
	}
	return rolled, nil
}

// Check rolls the ledger over if needed and returns apperr.ErrQuotaExceeded
// when a metered account has used up dailyLimit. Nothing is counted.
func (s *Service) Check(ctx context.Context, acct models.Account, dailyLimit int) error {
	var l models.UsageLedger
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		l, err = s.current(ctx, acct)
		return err
	})
	if err != nil {
		return fmt.Errorf("ledger.Check: %w", err)
	}
	if err := Allow(l, dailyLimit); err != nil {
		s.logger.Info("quota exceeded",
			slog.String("user_id", acct.UserID),
			slog.Int("daily_count", l.DailyCount),
			slog.Int("limit", dailyLimit))
		return err
	}
	return nil
}

// CommitUsage records one completed paid call. A nil cost charges the
// configured estimate.
func (s *Service) CommitUsage(ctx context.Context, acct models.Account, cost *float64) error {
	charge := s.estimatedCost
	if cost != nil {
		charge = *cost
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.current(ctx, acct); err != nil {
			return err
		}
		return s.store.IncrementUsage(ctx, acct.UserID, charge)
	})
	if err != nil {
		return fmt.Errorf("ledger.CommitUsage: %w", err)
	}
	return nil
}

// Snapshot returns the caller's ledger after rollover.
func (s *Service) Snapshot(ctx context.Context, acct models.Account) (models.UsageLedger, error) {
	var l models.UsageLedger
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		l, err = s.current(ctx, acct)
		return err
	})
	if err != nil {
		return models.UsageLedger{}, fmt.Errorf("ledger.Snapshot: %w", err)
	}
	return l, nil
}

// Pricing converts token usage to a cost estimate.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Cost returns the price of u, or nil when no prices are configured.
func (p Pricing) Cost(u models.TokenUsage) *float64 {
	if p.InputPerMTok <= 0 && p.OutputPerMTok <= 0 {
		return nil
	}
	c := (float64(u.InputTokens)*p.InputPerMTok + float64(u.OutputTokens)*p.OutputPerMTok) / 1e6
	return &c
}
