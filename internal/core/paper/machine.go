// Package paper 实现模拟仓位状态机（FLAT/LONG/SHORT）。
// 重要：仅模拟持仓状态，严禁真实下单。
package paper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"supertrend-flip-bot/internal/core/model"
)

var (
	// ErrLedgerWrite 账本写入失败，状态机未推进
	ErrLedgerWrite = errors.New("账本写入失败")
	// ErrPartialFlip 翻转只完成了平仓，反向开仓失败，需要人工介入
	ErrPartialFlip = errors.New("翻转未完成")
	// ErrNoPosition 无持仓可平
	ErrNoPosition = errors.New("无持仓可平")
)

// Recorder 账本写入接口
// Append 必须同步完成持久化后才返回
type Recorder interface {
	Append(ctx context.Context, ev model.PositionEvent) error
}

// Option 状态机可选项
type Option func(*Machine)

// WithClock 替换墙钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// WithIDGenerator 替换记录 ID 生成器
func WithIDGenerator(gen func() string) Option {
	return func(m *Machine) {
		m.newID = gen
	}
}

// Machine 单交易对仓位状态机
// 每条记录先同步写入账本，写入成功后才推进内存状态。
// 非并发安全：由轮询驱动单 goroutine 调用。
type Machine struct {
	// symbol 交易对
	symbol string
	// size 每次开仓数量
	size decimal.Decimal
	// rec 账本
	rec Recorder
	// logger 日志记录器
	logger *zap.Logger

	now   func() time.Time
	newID func() string

	// state 当前状态（账本的派生缓存）
	state model.PositionState
}

// NewMachine 创建仓位状态机，初始为空仓
// 参数 symbol: 交易对
// 参数 size: 模拟仓位数量
// 参数 rec: 账本
func NewMachine(symbol string, size decimal.Decimal, rec Recorder, logger *zap.Logger, opts ...Option) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		symbol: symbol,
		size:   size,
		rec:    rec,
		logger: logger.Named("paper"),
		now:    time.Now,
		newID:  uuid.NewString,
		state:  model.PositionState{Position: model.Flat(size)},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State 返回当前状态副本
func (m *Machine) State() model.PositionState {
	return m.state
}

// Restore 安装从账本重建的状态
func (m *Machine) Restore(st model.PositionState) error {
	if err := st.Position.Validate(); err != nil {
		return fmt.Errorf("恢复状态无效: %w", err)
	}
	if st.Position.Size.IsZero() {
		st.Position.Size = m.size
	}
	m.state = st
	if st.PartialFlip {
		m.logger.Warn("账本显示上次翻转只完成了平仓，等待同一信号重试开仓",
			zap.String("last_signal", string(st.LastSignal)),
		)
	}
	m.logger.Info("仓位状态已恢复",
		zap.String("side", string(st.Position.Side)),
		zap.String("entry_price", st.Position.EntryPrice.String()),
		zap.String("last_signal", string(st.LastSignal)),
		zap.Bool("partial_flip", st.PartialFlip),
	)
	return nil
}

// Apply 处理一个翻转信号
// 返回: 本次写入账本的记录（按写入顺序）
// 写入失败时状态不推进；翻转中平仓成功而开仓失败返回 ErrPartialFlip。
func (m *Machine) Apply(ctx context.Context, sig model.SignalEvent) ([]model.PositionEvent, error) {
	target := sig.Kind.Side()
	if target == model.SideFlat {
		return nil, nil
	}
	if !sig.Price.IsPositive() {
		return nil, fmt.Errorf("信号价格无效: %s", sig.Price)
	}

	cur := m.state.Position

	// 防抖：重复信号或已持有同向仓位，只记录忽略
	if sig.Kind == m.state.LastSignal || cur.Side == target {
		ev := m.ignoredEvent(sig)
		if err := m.write(ctx, ev); err != nil {
			return nil, err
		}
		m.state.LastSignal = sig.Kind
		m.logger.Info("已有持仓或重复信号，忽略",
			zap.String("signal", string(sig.Kind)),
			zap.String("position", string(cur.Side)),
		)
		return []model.PositionEvent{ev}, nil
	}

	var events []model.PositionEvent
	flipping := !cur.IsFlat()

	if flipping {
		closeEv, err := m.closeEvent(sig.Price, sig.Timestamp, model.ReasonFlip)
		if err != nil {
			return nil, err
		}
		if err := m.write(ctx, closeEv); err != nil {
			return nil, err
		}
		events = append(events, closeEv)
		m.state.Position = model.Flat(m.size)
		m.logClose(closeEv)

		// 平仓已落盘，反向开仓不再响应取消，退出信号不能把翻转拆成两半
		ctx = context.WithoutCancel(ctx)
	}

	openEv := m.openEvent(target, sig.Price, sig.Timestamp)
	if err := m.write(ctx, openEv); err != nil {
		if flipping {
			m.state.PartialFlip = true
			m.logger.Error("翻转只完成平仓，反向开仓写入失败，需要人工介入",
				zap.String("signal", string(sig.Kind)),
				zap.Error(err),
			)
			return events, fmt.Errorf("%w: %w", ErrPartialFlip, err)
		}
		return nil, err
	}
	events = append(events, openEv)

	m.state = model.PositionState{
		Position: model.Position{
			Side:       target,
			EntryPrice: sig.Price,
			EntryTime:  sig.Timestamp,
			Size:       m.size,
		},
		LastSignal: sig.Kind,
	}
	m.logger.Info("开仓",
		zap.String("operation", string(openEv.Operation)),
		zap.String("price", sig.Price.StringFixed(2)),
		zap.Time("bar_time", sig.Timestamp),
	)
	return events, nil
}

// Close 以指定价格平掉当前仓位
// 空仓时返回 ErrNoPosition，不写账本
func (m *Machine) Close(ctx context.Context, price decimal.Decimal, ts time.Time, reason string) (*model.PositionEvent, error) {
	if m.state.Position.IsFlat() {
		m.logger.Warn("无持仓可平", zap.String("reason", reason))
		return nil, ErrNoPosition
	}
	ev, err := m.closeEvent(price, ts, reason)
	if err != nil {
		return nil, err
	}
	if err := m.write(ctx, ev); err != nil {
		return nil, err
	}
	m.state.Position = model.Flat(m.size)
	m.state.PartialFlip = false
	m.logClose(ev)
	return &ev, nil
}

func (m *Machine) write(ctx context.Context, ev model.PositionEvent) error {
	if err := m.rec.Append(ctx, ev); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrLedgerWrite, ev.Operation, err)
	}
	return nil
}

func (m *Machine) base(op model.Operation, dir model.Side, price decimal.Decimal, barTime time.Time) model.PositionEvent {
	return model.PositionEvent{
		ID:        m.newID(),
		Timestamp: m.now(),
		Operation: op,
		Symbol:    m.symbol,
		Direction: dir,
		Price:     price,
		Size:      m.size,
		BarTime:   barTime,
	}
}

func (m *Machine) openEvent(side model.Side, price decimal.Decimal, barTime time.Time) model.PositionEvent {
	ev := m.base(model.OpenOp(side), side, price, barTime)
	ev.PositionAfter = side
	ev.EntryPrice = model.DecimalPtr(price)
	if side == model.SideLong {
		ev.Note = "SuperTrend 信号开多"
	} else {
		ev.Note = "SuperTrend 信号开空"
	}
	return ev
}

func (m *Machine) closeEvent(price decimal.Decimal, barTime time.Time, reason string) (model.PositionEvent, error) {
	cur := m.state.Position
	pnl, err := PnLPercent(cur.Side, cur.EntryPrice, price)
	if err != nil {
		return model.PositionEvent{}, err
	}
	ev := m.base(model.CloseOp(cur.Side), cur.Side, price, barTime)
	ev.PositionAfter = model.SideFlat
	ev.EntryPrice = model.DecimalPtr(cur.EntryPrice)
	ev.PnLPercent = model.DecimalPtr(pnl)
	ev.Note = fmt.Sprintf("%s平%s | 盈亏: %s", reason, sideName(cur.Side), formatPnL(pnl))
	return ev, nil
}

func (m *Machine) ignoredEvent(sig model.SignalEvent) model.PositionEvent {
	cur := m.state.Position
	ev := m.base(model.OpSignalIgnored, sig.Kind.Side(), sig.Price, sig.Timestamp)
	ev.PositionAfter = cur.Side
	if !cur.IsFlat() {
		ev.EntryPrice = model.DecimalPtr(cur.EntryPrice)
		ev.Note = fmt.Sprintf("已有%s仓，忽略%s信号", sideName(cur.Side), sideName(sig.Kind.Side()))
	} else {
		ev.Note = fmt.Sprintf("重复%s信号，忽略", sideName(sig.Kind.Side()))
	}
	return ev
}

func (m *Machine) logClose(ev model.PositionEvent) {
	m.logger.Info("平仓",
		zap.String("operation", string(ev.Operation)),
		zap.String("entry_price", ev.EntryPrice.StringFixed(2)),
		zap.String("exit_price", ev.Price.StringFixed(2)),
		zap.String("pnl", formatPnL(*ev.PnLPercent)),
	)
}

func sideName(s model.Side) string {
	switch s {
	case model.SideLong:
		return "多"
	case model.SideShort:
		return "空"
	default:
		return "无"
	}
}
