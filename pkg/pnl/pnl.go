// Package pnl 把已结算记录按结算日期汇总为盈亏行（纯函数，decimal 运算）。
package pnl

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/replicator/betfair/types"
)

// Period 汇总粒度
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

var hundred = decimal.NewFromInt(100)

// Row 一个周期的汇总
type Row struct {
	Period Period
	// Key 周期起点（UTC），日为当天 00:00，月为当月 1 日
	Key    time.Time
	Bets   int
	Wins   int
	Losses int
	Stake  decimal.Decimal
	Profit decimal.Decimal
	// RoiPct = Profit / Stake * 100，Stake 为 0 时为 0
	RoiPct decimal.Decimal
}

// Label 周期的展示文本
func (r Row) Label() string {
	if r.Period == PeriodMonth {
		return r.Key.Format("2006-01")
	}
	return r.Key.Format("2006-01-02")
}

func (r *Row) add(o types.ClearedOrderSummary) {
	bets := o.BetCount
	if bets <= 0 {
		bets = 1
	}
	r.Bets += bets
	switch {
	case o.Profit.IsPositive():
		r.Wins++
	case o.Profit.IsNegative():
		r.Losses++
	}
	r.Stake = r.Stake.Add(o.SizeSettled)
	r.Profit = r.Profit.Add(o.Profit)
}

func (r *Row) finish() {
	if r.Stake.IsZero() {
		r.RoiPct = decimal.Zero
		return
	}
	r.RoiPct = r.Profit.Div(r.Stake).Mul(hundred).Round(2)
}

func periodKey(t time.Time, p Period) time.Time {
	t = t.UTC()
	if p == PeriodMonth {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Rollup 按周期汇总，结果按时间升序；没有结算时间的记录被跳过
func Rollup(records []types.ClearedOrderSummary, p Period) []Row {
	byKey := make(map[time.Time]*Row)
	for _, o := range records {
		if o.SettledDate == nil {
			continue
		}
		key := periodKey(*o.SettledDate, p)
		row, ok := byKey[key]
		if !ok {
			row = &Row{Period: p, Key: key}
			byKey[key] = row
		}
		row.add(o)
	}

	rows := make([]Row, 0, len(byKey))
	for _, row := range byKey {
		row.finish()
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key.Before(rows[j].Key) })
	return rows
}

// ByDay 按结算日汇总
func ByDay(records []types.ClearedOrderSummary) []Row {
	return Rollup(records, PeriodDay)
}

// ByMonth 按结算月汇总
func ByMonth(records []types.ClearedOrderSummary) []Row {
	return Rollup(records, PeriodMonth)
}

// MonthlyStart 最近 months 个月（含当月）的起点
func MonthlyStart(now time.Time, months int) time.Time {
	if months <= 0 {
		months = 1
	}
	return periodKey(now, PeriodMonth).AddDate(0, -(months - 1), 0)
}

// Monthly 最近 months 个月（含当月）的月度汇总，没有记录的月份补零行。
// 窗口之外的记录被忽略。
func Monthly(records []types.ClearedOrderSummary, now time.Time, months int) []Row {
	if months <= 0 {
		months = 1
	}
	start := MonthlyStart(now, months)

	byKey := make(map[time.Time]Row)
	for _, row := range ByMonth(records) {
		byKey[row.Key] = row
	}

	rows := make([]Row, 0, months)
	for i := 0; i < months; i++ {
		key := start.AddDate(0, i, 0)
		row, ok := byKey[key]
		if !ok {
			row = Row{Period: PeriodMonth, Key: key}
		}
		rows = append(rows, row)
	}
	return rows
}

// Totals 汇总多行
func Totals(rows []Row) Row {
	var total Row
	for _, r := range rows {
		total.Bets += r.Bets
		total.Wins += r.Wins
		total.Losses += r.Losses
		total.Stake = total.Stake.Add(r.Stake)
		total.Profit = total.Profit.Add(r.Profit)
	}
	if len(rows) > 0 {
		total.Period = rows[0].Period
		total.Key = rows[0].Key
	}
	total.finish()
	return total
}
