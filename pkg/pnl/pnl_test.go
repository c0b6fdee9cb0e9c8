package pnl

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/replicator/betfair/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func settled(at string, stake, profit string) types.ClearedOrderSummary {
	ts, err := time.Parse(time.RFC3339, at)
	if err != nil {
		panic(err)
	}
	return types.ClearedOrderSummary{SizeSettled: d(stake), Profit: d(profit), SettledDate: &ts}
}

func TestByDay(t *testing.T) {
	records := []types.ClearedOrderSummary{
		settled("2026-03-02T23:30:00Z", "10", "5"),
		settled("2026-03-01T08:00:00Z", "20", "-20"),
		settled("2026-03-02T01:00:00Z", "10", "0"),
		{SizeSettled: d("99"), Profit: d("99")},
	}

	rows := ByDay(records)
	require.Len(t, rows, 2)

	assert.Equal(t, "2026-03-01", rows[0].Label())
	assert.Equal(t, 1, rows[0].Bets)
	assert.Equal(t, 1, rows[0].Losses)
	assert.True(t, d("-100").Equal(rows[0].RoiPct))

	assert.Equal(t, "2026-03-02", rows[1].Label())
	assert.Equal(t, 2, rows[1].Bets)
	assert.Equal(t, 1, rows[1].Wins)
	assert.Equal(t, 0, rows[1].Losses)
	assert.True(t, d("20").Equal(rows[1].Stake))
	assert.True(t, d("25").Equal(rows[1].RoiPct))
}

func TestByMonth_UsesUTC(t *testing.T) {
	local := time.FixedZone("UTC+2", 2*3600)
	ts := time.Date(2026, 4, 1, 1, 0, 0, 0, local)
	records := []types.ClearedOrderSummary{
		{SizeSettled: d("3"), Profit: d("0.3"), SettledDate: &ts},
	}

	rows := ByMonth(records)
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-03", rows[0].Label())
	assert.True(t, d("10").Equal(rows[0].RoiPct))
}

func TestMonthly_ZeroFillsAndWindows(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	records := []types.ClearedOrderSummary{
		settled("2025-12-31T10:00:00Z", "5", "1"),
		settled("2026-01-10T10:00:00Z", "10", "2"),
		settled("2026-03-01T00:00:00Z", "10", "-1"),
	}

	rows := Monthly(records, now, 3)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"2026-01", "2026-02", "2026-03"}, []string{rows[0].Label(), rows[1].Label(), rows[2].Label()})
	assert.Equal(t, 1, rows[0].Bets)
	assert.Equal(t, 0, rows[1].Bets)
	assert.True(t, rows[1].Profit.IsZero())
	assert.True(t, rows[1].RoiPct.IsZero())
	assert.True(t, d("-1").Equal(rows[2].Profit))
}

func TestTotals(t *testing.T) {
	rows := []Row{
		{Period: PeriodMonth, Bets: 2, Wins: 1, Losses: 1, Stake: d("20"), Profit: d("4")},
		{Period: PeriodMonth, Bets: 1, Wins: 1, Stake: d("10"), Profit: d("2")},
	}
	total := Totals(rows)
	assert.Equal(t, 3, total.Bets)
	assert.Equal(t, 2, total.Wins)
	assert.True(t, d("30").Equal(total.Stake))
	assert.True(t, d("20").Equal(total.RoiPct))

	empty := Totals(nil)
	assert.True(t, empty.RoiPct.IsZero())
}

func TestBetCountWeighsBets(t *testing.T) {
	rec := settled("2026-03-01T00:00:00Z", "10", "1")
	rec.BetCount = 4
	rows := ByDay([]types.ClearedOrderSummary{rec})
	require.Len(t, rows, 1)
	assert.Equal(t, 4, rows[0].Bets)
}
