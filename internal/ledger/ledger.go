// Package ledger 实现交易账本：按日 CSV 行存储 + 按月 JSON 结构化存储。
//
// 写入顺序：
//  1. CSV 行存储（权威来源），失败则整个 Append 失败；
//  2. JSON 月文档（临时文件 + rename 整体替换），失败只标记过期，下次写入重试。
//
// 启动时加载当月 JSON，损坏则记录日志后从空文档恢复，并用 CSV 回填缺失记录。
package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"supertrend-flip-bot/internal/config"
	"supertrend-flip-bot/internal/core/model"
	"supertrend-flip-bot/internal/metrics"
	"supertrend-flip-bot/internal/util/timeutil"
)

// Option 账本可选项
type Option func(*Ledger)

// WithClock 替换墙钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// Ledger 单交易对的交易账本
// 并发安全：所有写入串行化在 mu 下完成。
type Ledger struct {
	mu sync.Mutex

	// dir 交易对目录 <root>/<SYMBOL>
	dir string
	// symbol 交易对
	symbol string
	// maxPerDay 结构化存储每日记录上限
	maxPerDay int
	// loc 日期分桶时区
	loc *time.Location

	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics

	// month 当前加载的月份键
	month string
	// doc 当前月份的结构化文档
	doc monthDoc
	// stale 结构化存储落后于 CSV（当前月份或 lagging 中的月份）
	stale bool
	// lagging 切月时未能保存、等待从 CSV 补齐的历史月份
	lagging map[string]struct{}
}

// Open 打开（必要时创建）交易对账本
// 参数 cfg: 账本配置
// 参数 symbol: 交易对，如 BTC/USDT
func Open(cfg config.LedgerConfig, symbol string, logger *zap.Logger, opts ...Option) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	maxPerDay := cfg.MaxRecordsPerDay
	if maxPerDay <= 0 {
		maxPerDay = 1000
	}

	l := &Ledger{
		dir:       filepath.Join(cfg.Dir, SymbolDir(symbol)),
		symbol:    symbol,
		maxPerDay: maxPerDay,
		loc:       loc,
		now:       time.Now,
		logger:    logger.Named("ledger"),
		lagging:   map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建账本目录失败: %w", err)
	}

	l.month = timeutil.MonthKey(l.now(), l.loc)
	l.doc = l.loadMonth(l.month)

	n, err := l.Reconcile(context.Background())
	if err != nil {
		return nil, fmt.Errorf("账本对账失败: %w", err)
	}
	// 进程可能恰好在切月后崩溃，上月文档补齐一次
	prev := previousMonth(l.now(), l.loc)
	if pn, err := l.reconcileMonth(prev); err != nil {
		l.logger.Warn("上月结构化存储对账失败", zap.String("month", prev), zap.Error(err))
	} else {
		n += pn
	}
	l.logger.Info("账本已打开",
		zap.String("dir", l.dir),
		zap.String("month", l.month),
		zap.Int("days", len(l.doc)),
		zap.Int("backfilled", n),
	)
	return l, nil
}

// Dir 返回交易对目录
func (l *Ledger) Dir() string {
	return l.dir
}

// Stale 结构化存储是否落后于 CSV
func (l *Ledger) Stale() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stale
}

// Append 同步追加一条记录
// 返回 nil 表示记录已 fsync 到 CSV；JSON 失败不影响返回值。
func (l *Ledger) Append(ctx context.Context, ev model.PositionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ev.Operation.Valid() {
		return fmt.Errorf("未知操作类型: %q", ev.Operation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	day := timeutil.DayKey(l.now(), l.loc)

	err := appendCSV(l.csvPath(day), encodeRow(ev, l.loc))
	l.metrics.ObserveLedgerWrite("csv", err)
	if err != nil {
		l.logger.Error("CSV 写入失败", zap.String("day", day), zap.Error(err))
		return fmt.Errorf("写入 CSV 失败: %w", err)
	}

	if month := timeutil.MonthOfDay(day); month != l.month {
		if l.stale {
			// 上个月文档未能保存，切月前最后再试一次；仍失败则之后从 CSV 补齐
			if err := l.saveMonth(); err != nil {
				l.lagging[l.month] = struct{}{}
				l.logger.Error("切月前保存上月文档失败", zap.String("month", l.month), zap.Error(err))
			}
		}
		l.logger.Info("结构化存储切换月份", zap.String("from", l.month), zap.String("to", month))
		l.month = month
		l.doc = l.loadMonth(month)
	}
	l.doc.add(day, ev, l.maxPerDay)

	err = l.saveMonth()
	l.metrics.ObserveLedgerWrite("json", err)
	if err != nil {
		l.setStale(true)
		l.logger.Error("结构化存储写入失败，已标记为过期，下次写入重试",
			zap.String("month", l.month),
			zap.String("operation", string(ev.Operation)),
			zap.Error(err),
		)
		return nil
	}
	if len(l.lagging) > 0 {
		l.healLagging()
	}
	if l.stale && len(l.lagging) == 0 {
		l.logger.Info("结构化存储已追上 CSV", zap.String("month", l.month))
	}
	l.setStale(len(l.lagging) > 0)
	return nil
}

// Events 返回某日结构化存储中的记录副本
func (l *Ledger) Events(day string) []model.PositionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if timeutil.MonthOfDay(day) == l.month {
		return append([]model.PositionEvent(nil), l.doc[day]...)
	}
	doc, err := readMonth(l.jsonPath(timeutil.MonthOfDay(day)))
	if err != nil {
		return nil
	}
	return doc[day]
}

// Today 返回当前墙钟对应的日期键
func (l *Ledger) Today() string {
	return timeutil.DayKey(l.now(), l.loc)
}

// Close 关闭账本
// 结构化存储过期时最后再保存一次，并补齐历史月份
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stale {
		return nil
	}
	if err := l.saveMonth(); err != nil {
		return fmt.Errorf("关闭时保存结构化存储失败: %w", err)
	}
	l.healLagging()
	l.setStale(len(l.lagging) > 0)
	if l.stale {
		return fmt.Errorf("关闭时仍有 %d 个历史月份未能补齐", len(l.lagging))
	}
	return nil
}

func (l *Ledger) setStale(stale bool) {
	l.stale = stale
	l.metrics.SetLedgerStale(stale)
}

func (l *Ledger) csvPath(day string) string {
	return filepath.Join(l.dir, "trades_"+day+".csv")
}

func (l *Ledger) jsonPath(month string) string {
	return filepath.Join(l.dir, "trades_"+month+".json")
}

// SymbolDir 将交易对转换为目录名，如 BTC/USDT -> BTC_USDT
func SymbolDir(symbol string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "")
	return strings.ToUpper(r.Replace(symbol))
}
