package ledger

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"supertrend-flip-bot/internal/core/model"
	"supertrend-flip-bot/internal/util/timeutil"
)

// Recover 从 CSV 行存储重建仓位状态
// 从最新的日期文件开始倒序扫描，以最新一条记录为准：
//   - OPEN_X: 持有 X，入场价为该记录价格
//   - CLOSE_X: 空仓，最近信号为 ENTER_X；翻转平仓之后没有开仓记录则标记为半翻转
//   - SIGNAL_IGNORED: 持仓取 position_status，入场价取 entry_price，
//     入场时间与半翻转标记取自最近一条非忽略记录
//
// 入场时间优先使用结构化存储中的 K 线时间，与运行时一致。
// 返回: 状态、是否找到任何记录
func (l *Ledger) Recover() (model.PositionState, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	days, err := listDays(l.dir)
	if err != nil {
		return model.PositionState{}, false, err
	}

	var latest, anchor *model.PositionEvent
	var anchorDay string
scan:
	for i := len(days) - 1; i >= 0; i-- {
		rows, _, err := readDay(l.csvPath(days[i]))
		if err != nil {
			return model.PositionState{}, false, fmt.Errorf("读取 %s 失败: %w", days[i], err)
		}
		for j := len(rows) - 1; j >= 0; j-- {
			ev := rows[j]
			if latest == nil {
				latest = &ev
			}
			if ev.Operation != model.OpSignalIgnored {
				anchor, anchorDay = &ev, days[i]
				break scan
			}
		}
	}
	if latest == nil {
		return model.PositionState{}, false, nil
	}
	return l.stateFrom(*latest, anchor, anchorDay)
}

// stateFrom 由最新记录与最近一条非忽略记录构造状态
// anchor 为 nil 表示日志被截断，只剩忽略记录
func (l *Ledger) stateFrom(ev model.PositionEvent, anchor *model.PositionEvent, anchorDay string) (model.PositionState, bool, error) {
	st := model.PositionState{LastSignal: model.SignalKindFor(ev.Direction)}
	switch {
	case ev.Operation.IsOpen():
		st.Position = model.Position{
			Side:       ev.Direction,
			EntryPrice: ev.Price,
			EntryTime:  l.entryTime(anchorDay, ev),
			Size:       ev.Size,
		}
	case ev.Operation.IsClose():
		st.Position = model.Flat(ev.Size)
		st.PartialFlip = ev.IsFlipClose()
	case ev.PositionAfter == model.SideFlat:
		st.Position = model.Flat(ev.Size)
		st.PartialFlip = anchor != nil && anchor.IsFlipClose()
	default:
		if ev.EntryPrice == nil {
			return model.PositionState{}, true, fmt.Errorf("忽略记录缺少 entry_price: %s", ev.Timestamp)
		}
		st.Position = model.Position{
			Side:       ev.PositionAfter,
			EntryPrice: *ev.EntryPrice,
			EntryTime:  ev.Timestamp,
			Size:       ev.Size,
		}
		if anchor != nil && anchor.Operation.IsOpen() && anchor.Direction == ev.PositionAfter {
			st.Position.EntryTime = l.entryTime(anchorDay, *anchor)
		}
	}
	if err := st.Position.Validate(); err != nil {
		return model.PositionState{}, true, fmt.Errorf("重建的仓位无效: %w", err)
	}
	if st.PartialFlip {
		l.logger.Warn("账本最新状态为半翻转：翻转平仓之后没有开仓记录",
			zap.String("last_operation", string(ev.Operation)),
			zap.String("last_signal", string(st.LastSignal)),
		)
	}
	l.logger.Info("已从账本重建仓位",
		zap.String("last_operation", string(ev.Operation)),
		zap.String("side", string(st.Position.Side)),
		zap.String("last_signal", string(st.LastSignal)),
		zap.Bool("partial_flip", st.PartialFlip),
	)
	return st, true, nil
}

// entryTime 查找开仓记录的 K 线时间
// CSV 不保存 K 线时间，从同日的结构化记录中按匹配键查找；找不到（如回填记录）时退化为写入时间
func (l *Ledger) entryTime(day string, open model.PositionEvent) time.Time {
	doc := l.doc
	if month := timeutil.MonthOfDay(day); month != l.month {
		d, err := readMonth(l.jsonPath(month))
		if err != nil {
			return open.Timestamp
		}
		doc = d
	}
	key := recordKey(open)
	for i := len(doc[day]) - 1; i >= 0; i-- {
		rec := doc[day][i]
		if recordKey(rec) == key && !rec.BarTime.IsZero() {
			return rec.BarTime
		}
	}
	return open.Timestamp
}
