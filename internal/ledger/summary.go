package ledger

import (
	"supertrend-flip-bot/internal/core/model"
	"supertrend-flip-bot/internal/util/timeutil"
)

// Summary 汇总某日结构化存储中的记录
// 参数 day: 日期键 YYYYMMDD
// 返回: 汇总结果；该日没有记录时返回 false
func (l *Ledger) Summary(day string) (model.DailySummary, bool) {
	l.mu.Lock()
	var events []model.PositionEvent
	var ok bool
	if timeutil.MonthOfDay(day) == l.month {
		events, ok = l.doc[day]
	} else if doc, err := readMonth(l.jsonPath(timeutil.MonthOfDay(day))); err == nil {
		events, ok = doc[day]
	}
	l.mu.Unlock()

	if !ok {
		return model.DailySummary{}, false
	}
	return model.Summarize(day, events), true
}
