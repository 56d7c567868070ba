// Package driver 实现轮询驱动：按固定节奏拉取方向序列，检测翻转并驱动仓位状态机。
//
// 每轮流程：
//  1. 在超时内调用行情源，失败则退避后重试，永不因行情错误退出；
//  2. 最新 K 线时间未变化时只输出存活状态；
//  3. 检测到翻转时交给状态机，状态机失败则该 K 线不标记为已处理，下一轮重试；
//  4. 定期输出当日汇总与本次运行的平仓统计。
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"supertrend-flip-bot/internal/config"
	"supertrend-flip-bot/internal/core/model"
	"supertrend-flip-bot/internal/core/paper"
	"supertrend-flip-bot/internal/core/signal"
	"supertrend-flip-bot/internal/feed"
	"supertrend-flip-bot/internal/metrics"
	"supertrend-flip-bot/internal/stats/ev"
	"supertrend-flip-bot/internal/util/backoff"
	"supertrend-flip-bot/internal/util/timeutil"
)

// ErrHalted 出现不一致状态且配置了 halt_on_inconsistency
var ErrHalted = errors.New("轮询已因状态不一致停止")

// Machine 仓位状态机
type Machine interface {
	State() model.PositionState
	Apply(ctx context.Context, sig model.SignalEvent) ([]model.PositionEvent, error)
}

// Ledger 汇总所需的账本查询
type Ledger interface {
	Summary(day string) (model.DailySummary, bool)
	Today() string
	Stale() bool
}

// SnapshotWriter 状态快照输出
type SnapshotWriter interface {
	Write(v any) error
}

// Option 驱动可选项
type Option func(*Driver)

// WithClock 替换墙钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// WithSnapshotWriter 设置状态快照输出
func WithSnapshotWriter(w SnapshotWriter) Option {
	return func(d *Driver) {
		d.out = w
	}
}

// Driver 轮询驱动
// 非并发安全：Run 与 Cycle 只能由一个 goroutine 调用。
type Driver struct {
	symbol    string
	timeframe string
	lookback  int

	interval        time.Duration
	feedTimeout     time.Duration
	summaryInterval time.Duration
	halt            bool

	feed    feed.Feed
	machine Machine
	ledger  Ledger
	retry   *backoff.Backoff
	perf    *ev.Calculator

	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
	out     SnapshotWriter

	// lastBarTime 最近一次已处理的 K 线时间
	lastBarTime time.Time
	// lastPrice 最新收盘价
	lastPrice decimal.Decimal
	// lastSummaryAt 上次输出汇总的时间
	lastSummaryAt time.Time
	// cycles 已执行轮数
	cycles int64
}

// New 创建轮询驱动
// 参数 cfg: 配置（symbol / poll / feed.lookback / app.halt_on_inconsistency）
// 参数 f: 方向序列来源
// 参数 m: 仓位状态机
// 参数 l: 账本（只用于汇总查询）
func New(cfg *config.Config, f feed.Feed, m Machine, l Ledger, logger *zap.Logger, opts ...Option) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		symbol:          cfg.Symbol.Input,
		timeframe:       cfg.Symbol.Timeframe,
		lookback:        cfg.Feed.Lookback,
		interval:        time.Duration(cfg.Poll.IntervalSec) * time.Second,
		feedTimeout:     timeutil.DurationMs(cfg.Poll.FeedTimeoutMs),
		summaryInterval: time.Duration(cfg.Poll.SummaryIntervalSec) * time.Second,
		halt:            cfg.App.HaltOnInconsistency,
		feed:            f,
		machine:         m,
		ledger:          l,
		retry:           backoff.FromMillis(cfg.Poll.RetryBaseMs, cfg.Poll.RetryMaxMs, cfg.Poll.RetryJitter),
		perf:            ev.NewCalculator(1000),
		now:             time.Now,
		logger:          logger.Named("driver"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Performance 返回本次运行的平仓统计
func (d *Driver) Performance() ev.EVStats {
	return d.perf.Stats()
}

// Run 启动轮询主循环，ctx 取消后输出最终汇总并返回 nil
// 只有配置了 halt_on_inconsistency 且出现半翻转时返回错误。
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("轮询开始",
		zap.String("symbol", d.symbol),
		zap.String("timeframe", d.timeframe),
		zap.Duration("interval", d.interval),
		zap.Int("lookback", d.lookback),
	)
	d.lastSummaryAt = d.now()
	defer d.EmitSummary("shutdown")

	for {
		err := d.Cycle(ctx)
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case err == nil:
			d.retry.Reset()
		case errors.Is(err, feed.ErrFeedUnavailable):
			d.logger.Warn("获取行情失败，退避后重试",
				zap.Int("attempt", d.retry.Attempt()+1),
				zap.Error(err),
			)
			if werr := d.retry.Wait(ctx); werr != nil {
				return nil
			}
			continue
		case errors.Is(err, paper.ErrPartialFlip):
			d.logger.Error("翻转只完成了平仓，需要人工关注", zap.Error(err))
			if d.halt {
				return fmt.Errorf("%w: %w", ErrHalted, err)
			}
		default:
			d.logger.Error("处理信号失败，下一轮重试", zap.Error(err))
		}

		if d.now().Sub(d.lastSummaryAt) >= d.summaryInterval {
			d.EmitSummary("periodic")
		}

		timer := time.NewTimer(d.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Cycle 执行一轮轮询
// 返回: 行情错误包装 feed.ErrFeedUnavailable；状态机错误原样包装返回
func (d *Driver) Cycle(ctx context.Context) error {
	d.cycles++

	fctx, cancel := context.WithTimeout(ctx, d.feedTimeout)
	start := time.Now()
	samples, err := d.feed.FetchDirectionSeries(fctx, d.symbol, d.timeframe, d.lookback)
	latency := time.Since(start)
	cancel()
	if err != nil {
		d.metrics.ObservePoll("feed_error", latency)
		if !errors.Is(err, feed.ErrFeedUnavailable) {
			err = fmt.Errorf("%w: %w", feed.ErrFeedUnavailable, err)
		}
		return err
	}
	if len(samples) == 0 {
		d.metrics.ObservePoll("feed_error", latency)
		return fmt.Errorf("%w: 方向序列为空", feed.ErrFeedUnavailable)
	}

	newest := samples[len(samples)-1]
	d.lastPrice = newest.Close
	d.metrics.SetLastPrice(newest.Close.InexactFloat64())

	if !d.lastBarTime.IsZero() && !newest.Timestamp.After(d.lastBarTime) {
		d.metrics.ObservePoll("duplicate", latency)
		d.reportLiveness(newest.Timestamp)
		return nil
	}

	sig, err := signal.DetectLatest(samples)
	if err != nil {
		d.metrics.ObservePoll("feed_error", latency)
		return fmt.Errorf("%w: %w", feed.ErrFeedUnavailable, err)
	}

	if sig != nil {
		d.metrics.ObserveSignal(string(sig.Kind))
		d.logger.Info("检测到翻转信号",
			zap.String("kind", string(sig.Kind)),
			zap.String("price", sig.Price.String()),
			zap.Time("bar_time", sig.Timestamp),
		)
		events, err := d.machine.Apply(ctx, *sig)
		d.record(events)
		if err != nil {
			d.metrics.ObservePoll("machine_error", latency)
			d.reportLiveness(newest.Timestamp)
			return fmt.Errorf("处理信号 %s 失败: %w", sig.Kind, err)
		}
	}

	d.lastBarTime = newest.Timestamp
	d.metrics.ObservePoll("ok", latency)
	d.reportLiveness(newest.Timestamp)
	return nil
}

// record 将已写入账本的记录计入统计
func (d *Driver) record(events []model.PositionEvent) {
	for _, e := range events {
		d.perf.Add(e)
		if e.Operation.IsClose() && e.PnLPercent != nil {
			d.metrics.ObserveClose(e.PnLPercent.InexactFloat64())
		}
	}
}

// reportLiveness 输出存活状态
func (d *Driver) reportLiveness(barTime time.Time) {
	st := d.machine.State()
	now := d.now()
	d.metrics.SetPosition(sideValue(st.Position.Side))

	d.logger.Info("运行中",
		zap.Int64("cycle", d.cycles),
		zap.String("position", st.Position.Info(now)),
		zap.String("price", d.lastPrice.String()),
		zap.String("last_signal", signalName(st.LastSignal)),
		zap.Time("bar_time", barTime),
	)
	if st.PartialFlip {
		d.logger.Warn("上次翻转未完成开仓，等待同一信号重试")
	}

	if d.out == nil {
		return
	}
	snap := StatusSnapshot{
		Kind:        "status",
		Time:        now,
		Symbol:      d.symbol,
		Timeframe:   d.timeframe,
		Position:    st.Position.Side,
		HoldMinutes: st.Position.HoldDuration(now).Minutes(),
		LastPrice:   d.lastPrice,
		LastSignal:  st.LastSignal,
		BarTime:     barTime,
		PartialFlip: st.PartialFlip,
		LedgerStale: d.ledger.Stale(),
	}
	if !st.Position.IsFlat() {
		snap.EntryPrice = model.DecimalPtr(st.Position.EntryPrice)
	}
	if err := d.out.Write(snap); err != nil {
		d.logger.Warn("写入状态快照失败", zap.Error(err))
	}
}

// EmitSummary 输出当日汇总与本次运行统计
// 参数 reason: periodic 或 shutdown
func (d *Driver) EmitSummary(reason string) {
	d.lastSummaryAt = d.now()
	day := d.ledger.Today()
	daily, ok := d.ledger.Summary(day)
	if !ok {
		daily = model.DailySummary{Date: day}
	}
	perf := d.perf.Stats()

	d.logger.Info("每日汇总",
		zap.String("reason", reason),
		zap.String("date", daily.Date),
		zap.Int("records", daily.TotalRecords),
		zap.Int("open_long", daily.OpenLong),
		zap.Int("open_short", daily.OpenShort),
		zap.Int("profitable", daily.Profitable),
		zap.Int("losing", daily.Losing),
		zap.Int("ignored", daily.Ignored),
		zap.String("total_pnl", daily.TotalPnLPercent.StringFixed(2)+"%"),
		zap.Int64("session_closes", perf.Count),
		zap.Float64("session_win_rate", perf.WinRate),
		zap.Float64("session_ev_pct", perf.EV),
	)

	if d.out == nil {
		return
	}
	if err := d.out.Write(SummarySnapshot{
		Kind:    "summary",
		Time:    d.lastSummaryAt,
		Symbol:  d.symbol,
		Reason:  reason,
		Daily:   daily,
		Session: perf,
	}); err != nil {
		d.logger.Warn("写入汇总快照失败", zap.Error(err))
	}
}

func sideValue(s model.Side) int {
	switch s {
	case model.SideLong:
		return 1
	case model.SideShort:
		return -1
	default:
		return 0
	}
}

func signalName(k model.SignalKind) string {
	if k == model.SignalNone {
		return "无"
	}
	return string(k)
}
