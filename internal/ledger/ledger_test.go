package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/testutil"
)

func TestRollover(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	month := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		in          models.UsageLedger
		wantDaily   int
		wantMonthly int
		wantChanged bool
	}{
		{
			name:        "fresh ledger gets anchors",
			in:          models.UsageLedger{},
			wantChanged: true,
		},
		{
			name:        "same day keeps counts",
			in:          models.UsageLedger{DailyCount: 5, DailyResetAnchor: day, MonthlyCount: 9, MonthlyResetAnchor: month},
			wantDaily:   5,
			wantMonthly: 9,
		},
		{
			name:        "new day resets daily only",
			in:          models.UsageLedger{DailyCount: 5, DailyResetAnchor: day.AddDate(0, 0, -1), MonthlyCount: 9, MonthlyResetAnchor: month},
			wantMonthly: 9,
			wantChanged: true,
		},
		{
			name:        "new month resets both",
			in:          models.UsageLedger{DailyCount: 5, DailyResetAnchor: month.AddDate(0, 0, -1), MonthlyCount: 9, MonthlyResetAnchor: month.AddDate(0, -1, 0)},
			wantChanged: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, changed := Rollover(tt.in, now)

			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantDaily, got.DailyCount)
			assert.Equal(t, tt.wantMonthly, got.MonthlyCount)
			assert.True(t, got.DailyResetAnchor.Equal(day))
			assert.True(t, got.MonthlyResetAnchor.Equal(month))
		})
	}
}

func TestRollover_MidnightBoundary(t *testing.T) {
	t.Parallel()

	before := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)
	after := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	l, _ := Rollover(models.UsageLedger{}, before)
	l.DailyCount = 20

	l, changed := Rollover(l, before)
	assert.False(t, changed)
	assert.Equal(t, 20, l.DailyCount)

	l, changed = Rollover(l, after)
	assert.True(t, changed)
	assert.Equal(t, 0, l.DailyCount)
}

func TestRollover_UsesLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC-5", -5*3600)
	// 02:00 UTC on the 11th is still the 10th at UTC-5.
	now := time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC).In(loc)

	l, _ := Rollover(models.UsageLedger{}, now)
	assert.Equal(t, 10, l.DailyResetAnchor.Day())
}

func TestAllow(t *testing.T) {
	t.Parallel()

	metered := models.UsageLedger{Tier: models.TierMetered, DailyCount: 20}
	err := Allow(metered, 20)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "upgrade")

	metered.DailyCount = 19
	assert.NoError(t, Allow(metered, 20))

	unmetered := models.UsageLedger{Tier: models.TierUnmetered, DailyCount: 1000}
	assert.NoError(t, Allow(unmetered, 20))
}

func TestPricing_Cost(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Pricing{}.Cost(models.TokenUsage{InputTokens: 10}))

	c := Pricing{InputPerMTok: 1, OutputPerMTok: 5}.Cost(models.TokenUsage{InputTokens: 1_000_000, OutputTokens: 200_000})
	require.NotNil(t, c)
	assert.InDelta(t, 2.0, *c, 1e-9)
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newService(t *testing.T, c *clock) *Service {
	t.Helper()
	db := testutil.TestDB(t)
	return NewService(db, Config{Location: time.UTC, EstimatedCost: 0.01, Now: c.Now},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestService_MeteredLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	svc := newService(t, c)
	acct := models.Account{UserID: "u1", Tier: models.TierMetered}

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Check(ctx, acct, 3))
		require.NoError(t, svc.CommitUsage(ctx, acct, nil))
	}

	err := svc.Check(ctx, acct, 3)
	assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)

	snap, err := svc.Snapshot(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.DailyCount, "rejected check must not count")
	assert.InDelta(t, 0.03, snap.CumulativeCost, 1e-9)

	// Next day the quota is available again; monthly total keeps growing.
	c.t = c.t.Add(24 * time.Hour)
	require.NoError(t, svc.Check(ctx, acct, 3))
	require.NoError(t, svc.CommitUsage(ctx, acct, nil))

	snap, err = svc.Snapshot(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.DailyCount)
	assert.Equal(t, 4, snap.MonthlyCount)
}

func TestService_UnmeteredAccumulates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newService(t, &clock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)})
	acct := models.Account{UserID: "u2", Tier: models.TierUnmetered}

	cost := 0.5
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Check(ctx, acct, 2))
		require.NoError(t, svc.CommitUsage(ctx, acct, &cost))
	}

	snap, err := svc.Snapshot(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.DailyCount)
	assert.Equal(t, 5, snap.MonthlyCount)
	assert.InDelta(t, 2.5, snap.CumulativeCost, 1e-9)
	assert.Equal(t, models.TierUnmetered, snap.Tier)
}

func TestService_MonthRollover(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)}
	svc := newService(t, c)
	acct := models.Account{UserID: "u3", Tier: models.TierMetered}

	require.NoError(t, svc.CommitUsage(ctx, acct, nil))
	require.NoError(t, svc.CommitUsage(ctx, acct, nil))

	c.t = time.Date(2026, 4, 1, 0, 30, 0, 0, time.UTC)
	snap, err := svc.Snapshot(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.DailyCount)
	assert.Equal(t, 0, snap.MonthlyCount)
	assert.InDelta(t, 0.02, snap.CumulativeCost, 1e-9, "cumulative cost never resets")
}
