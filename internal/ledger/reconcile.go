package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"supertrend-flip-bot/internal/core/model"
	"supertrend-flip-bot/internal/util/timeutil"
)

// recordKey 行存储与结构化存储之间的匹配键
// CSV 时间戳只保留毫秒，因此两侧都按毫秒格式化
func recordKey(ev model.PositionEvent) string {
	return timeutil.UnixSeconds(ev.Timestamp) + "|" + string(ev.Operation) + "|" + ev.Price.String()
}

// Reconcile 将 CSV 中结构化存储缺失的记录回填到 JSON
// 覆盖当前月份，以及此前未能保存的历史月份。
// 只比较每日最后 maxPerDay 条记录，超出上限的旧记录本就不在结构化存储中。
// 返回: 回填的记录数
func (l *Ledger) Reconcile(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	total, err := l.backfillMonth(ctx, l.month, l.doc)
	if err != nil {
		return total, err
	}

	if total > 0 || l.stale {
		if err := l.saveMonth(); err != nil {
			l.setStale(true)
			l.logger.Error("对账后保存结构化存储失败", zap.Error(err))
			return total, nil
		}
	}
	total += l.healLagging()
	l.setStale(len(l.lagging) > 0)
	return total, nil
}

// backfillMonth 用当月 CSV 补齐 doc，不落盘
func (l *Ledger) backfillMonth(ctx context.Context, month string, doc monthDoc) (int, error) {
	days, err := listDays(l.dir)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if timeutil.MonthOfDay(day) != month {
			continue
		}
		rows, skipped, err := readDay(l.csvPath(day))
		if err != nil {
			return total, err
		}
		if skipped > 0 {
			l.logger.Warn("CSV 中存在无法解析的行", zap.String("day", day), zap.Int("skipped", skipped))
		}
		if n := l.backfillDay(doc, day, rows); n > 0 {
			l.logger.Warn("结构化存储缺失记录，已从 CSV 回填", zap.String("day", day), zap.Int("count", n))
			total += n
		}
	}
	return total, nil
}

// reconcileMonth 对非当前月份从 CSV 重新对账并保存
// 月文档无法读取时返回错误，不做 .corrupt 处理
func (l *Ledger) reconcileMonth(month string) (int, error) {
	doc, err := readMonth(l.jsonPath(month))
	if err != nil {
		return 0, err
	}
	n, err := l.backfillMonth(context.Background(), month, doc)
	if err != nil || n == 0 {
		return n, err
	}
	if err := writeMonth(l.jsonPath(month), doc); err != nil {
		return 0, fmt.Errorf("保存 %s 月文档失败: %w", month, err)
	}
	return n, nil
}

// healLagging 补齐切月时未能保存的历史月份
// 返回: 回填的记录数
func (l *Ledger) healLagging() int {
	total := 0
	for month := range l.lagging {
		n, err := l.reconcileMonth(month)
		if err != nil {
			l.logger.Warn("历史月份对账失败，下次写入重试", zap.String("month", month), zap.Error(err))
			continue
		}
		delete(l.lagging, month)
		total += n
		l.logger.Info("历史月份已从 CSV 补齐", zap.String("month", month), zap.Int("backfilled", n))
	}
	return total
}

// previousMonth 返回 t 所在月份的上一个月份键
func previousMonth(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return timeutil.MonthKey(first.AddDate(0, 0, -1), loc)
}

func (l *Ledger) backfillDay(doc monthDoc, day string, rows []model.PositionEvent) int {
	if len(rows) > l.maxPerDay {
		rows = rows[len(rows)-l.maxPerDay:]
	}
	have := make(map[string]int, len(doc[day]))
	for _, ev := range doc[day] {
		have[recordKey(ev)]++
	}

	var missing []model.PositionEvent
	for _, row := range rows {
		key := recordKey(row)
		if have[key] > 0 {
			have[key]--
			continue
		}
		row.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(l.symbol+"|"+key)).String()
		missing = append(missing, row)
	}
	if len(missing) == 0 {
		return 0
	}

	bucket := append(append([]model.PositionEvent(nil), doc[day]...), missing...)
	sort.SliceStable(bucket, func(i, j int) bool {
		return bucket[i].Timestamp.Before(bucket[j].Timestamp)
	})
	if len(bucket) > l.maxPerDay {
		bucket = bucket[len(bucket)-l.maxPerDay:]
	}
	doc[day] = bucket
	return len(missing)
}
