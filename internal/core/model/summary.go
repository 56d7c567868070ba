package model

import (
	"github.com/shopspring/decimal"
)

// DailySummary 单日账本汇总
// 每次查询时由当日记录重新计算，不单独存储
type DailySummary struct {
	// Date 日期键 YYYYMMDD
	Date string `json:"date"`
	// TotalRecords 当日记录总数
	TotalRecords int `json:"total_records"`
	// OpenLong 开多次数
	OpenLong int `json:"open_long"`
	// OpenShort 开空次数
	OpenShort int `json:"open_short"`
	// Profitable 盈利平仓次数
	Profitable int `json:"profitable"`
	// Losing 亏损平仓次数
	Losing int `json:"losing"`
	// Ignored 被忽略的信号数
	Ignored int `json:"ignored"`
	// TotalPnLPercent 累计盈亏百分比
	TotalPnLPercent decimal.Decimal `json:"total_pnl_percent"`
}

// Summarize 汇总一组记录
func Summarize(date string, events []PositionEvent) DailySummary {
	s := DailySummary{Date: date, TotalRecords: len(events)}
	for i := range events {
		ev := &events[i]
		switch {
		case ev.Operation == OpOpenLong:
			s.OpenLong++
		case ev.Operation == OpOpenShort:
			s.OpenShort++
		case ev.Operation.IsClose():
			if ev.PnLPercent == nil {
				continue
			}
			pnl := *ev.PnLPercent
			s.TotalPnLPercent = s.TotalPnLPercent.Add(pnl)
			if pnl.IsPositive() {
				s.Profitable++
			} else if pnl.IsNegative() {
				s.Losing++
			}
		case ev.Operation == OpSignalIgnored:
			s.Ignored++
		}
	}
	return s
}
