// Package paper 仓位状态机测试
package paper

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"supertrend-flip-bot/internal/core/model"
)

// memRecorder 内存账本，可在第 failAt 次写入时失败（从 1 开始计数）
type memRecorder struct {
	events []model.PositionEvent
	calls  int
	failAt map[int]bool
}

func (r *memRecorder) Append(_ context.Context, ev model.PositionEvent) error {
	r.calls++
	if r.failAt[r.calls] {
		return errors.New("disk full")
	}
	r.events = append(r.events, ev)
	return nil
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestMachine(rec Recorder) *Machine {
	n := 0
	return NewMachine("BTC/USDT", decimal.RequireFromString("0.001"), rec, nil,
		WithClock(func() time.Time { return t0 }),
		WithIDGenerator(func() string { n++; return "id-" + strconv.Itoa(n) }),
	)
}

func sig(kind model.SignalKind, price string, minute int) model.SignalEvent {
	return model.SignalEvent{
		Kind:      kind,
		Price:     decimal.RequireFromString(price),
		Timestamp: t0.Add(time.Duration(minute) * time.Minute),
	}
}

func ops(events []model.PositionEvent) []model.Operation {
	out := make([]model.Operation, len(events))
	for i, ev := range events {
		out[i] = ev.Operation
	}
	return out
}

func TestPnLPercent(t *testing.T) {
	tests := []struct {
		side        model.Side
		entry, exit string
		want        string
	}{
		{model.SideLong, "100", "110", "10"},
		{model.SideShort, "100", "90", "10"},
		{model.SideLong, "100", "95", "-5"},
		{model.SideShort, "100", "105", "-5"},
		{model.SideLong, "42000", "42105", "0.25"},
		{model.SideLong, "3", "4", "33.33"},
		{model.SideLong, "3", "5", "66.67"},
	}
	for _, tt := range tests {
		got, err := PnLPercent(tt.side, decimal.RequireFromString(tt.entry), decimal.RequireFromString(tt.exit))
		if err != nil {
			t.Fatalf("PnLPercent(%s,%s,%s) err=%v", tt.side, tt.entry, tt.exit, err)
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Fatalf("PnLPercent(%s,%s,%s)=%s, want %s", tt.side, tt.entry, tt.exit, got, tt.want)
		}
	}

	if _, err := PnLPercent(model.SideLong, decimal.Zero, decimal.NewFromInt(1)); err == nil {
		t.Fatalf("入场价为零应返回错误")
	}
	if _, err := PnLPercent(model.SideFlat, decimal.NewFromInt(1), decimal.NewFromInt(1)); err == nil {
		t.Fatalf("空仓应返回错误")
	}
}

func TestMachine_OpenFromFlat(t *testing.T) {
	rec := &memRecorder{}
	m := newTestMachine(rec)

	events, err := m.Apply(context.Background(), sig(model.SignalEnterLong, "42000.5", 0))
	if err != nil {
		t.Fatalf("Apply err=%v", err)
	}
	if len(events) != 1 || events[0].Operation != model.OpOpenLong {
		t.Fatalf("events=%v, want [OPEN_LONG]", ops(events))
	}
	ev := events[0]
	if ev.PositionAfter != model.SideLong || ev.EntryPrice == nil || !ev.EntryPrice.Equal(decimal.RequireFromString("42000.5")) {
		t.Fatalf("开仓记录字段错误: %+v", ev)
	}
	if ev.PnLPercent != nil {
		t.Fatalf("开仓记录不应携带盈亏")
	}
	if ev.ID != "id-1" || !ev.Timestamp.Equal(t0) || ev.Symbol != "BTC/USDT" {
		t.Fatalf("记录元数据错误: %+v", ev)
	}

	st := m.State()
	if st.Position.Side != model.SideLong || st.LastSignal != model.SignalEnterLong {
		t.Fatalf("state=%+v", st)
	}
	if !st.Position.EntryTime.Equal(t0) {
		t.Fatalf("EntryTime=%v, want %v", st.Position.EntryTime, t0)
	}
}

func TestMachine_FlipLongToShort(t *testing.T) {
	rec := &memRecorder{}
	m := newTestMachine(rec)
	ctx := context.Background()

	if _, err := m.Apply(ctx, sig(model.SignalEnterLong, "100", 0)); err != nil {
		t.Fatalf("Apply long err=%v", err)
	}
	events, err := m.Apply(ctx, sig(model.SignalEnterShort, "110", 5))
	if err != nil {
		t.Fatalf("Apply short err=%v", err)
	}
	if len(events) != 2 || events[0].Operation != model.OpCloseLong || events[1].Operation != model.OpOpenShort {
		t.Fatalf("events=%v, want [CLOSE_LONG OPEN_SHORT]", ops(events))
	}
	closeEv := events[0]
	if closeEv.PnLPercent == nil || !closeEv.PnLPercent.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("平仓盈亏=%v, want 10.00", closeEv.PnLPercent)
	}
	if closeEv.PositionAfter != model.SideFlat || !closeEv.EntryPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("平仓记录字段错误: %+v", closeEv)
	}

	st := m.State()
	if st.Position.Side != model.SideShort || !st.Position.EntryPrice.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("state=%+v", st)
	}
	if len(rec.events) != 3 {
		t.Fatalf("账本记录数=%d, want 3", len(rec.events))
	}
}

func TestMachine_ShortCloseProfit(t *testing.T) {
	rec := &memRecorder{}
	m := newTestMachine(rec)
	ctx := context.Background()

	m.Apply(ctx, sig(model.SignalEnterShort, "100", 0))
	events, err := m.Apply(ctx, sig(model.SignalEnterLong, "90", 5))
	if err != nil {
		t.Fatalf("Apply err=%v", err)
	}
	if !events[0].PnLPercent.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("空头盈亏=%s, want 10", events[0].PnLPercent)
	}
}

func TestMachine_DebounceSameSignal(t *testing.T) {
	rec := &memRecorder{}
	m := newTestMachine(rec)
	ctx := context.Background()

	m.Apply(ctx, sig(model.SignalEnterLong, "100", 0))
	events, err := m.Apply(ctx, sig(model.SignalEnterLong, "101", 5))
	if err != nil {
		t.Fatalf("Apply err=%v", err)
	}
	if len(events) != 1 || events[0].Operation != model.OpSignalIgnored {
		t.Fatalf("events=%v, want [SIGNAL_IGNORED]", ops(events))
	}
	ign := events[0]
	if ign.PositionAfter != model.SideLong || ign.Direction != model.SideLong {
		t.Fatalf("忽略记录字段错误: %+v", ign)
	}
	if ign.EntryPrice == nil || !ign.EntryPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("忽略记录应携带持仓入场价: %v", ign.EntryPrice)
	}

	st := m.State()
	if st.Position.Side != model.SideLong || !st.Position.EntryPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("防抖不应改变仓位: %+v", st)
	}
}

func TestMachine_LedgerFailureKeepsState(t *testing.T) {
	rec := &memRecorder{failAt: map[int]bool{2: true}}
	m := newTestMachine(rec)
	ctx := context.Background()

	m.Apply(ctx, sig(model.SignalEnterLong, "100", 0))
	before := m.State()

	// 第二次写入（平仓）失败
	events, err := m.Apply(ctx, sig(model.SignalEnterShort, "105", 5))
	if !errors.Is(err, ErrLedgerWrite) {
		t.Fatalf("err=%v, want ErrLedgerWrite", err)
	}
	if errors.Is(err, ErrPartialFlip) {
		t.Fatalf("平仓失败不应是 ErrPartialFlip")
	}
	if len(events) != 0 {
		t.Fatalf("events=%v, want none", ops(events))
	}
	if m.State() != before {
		t.Fatalf("写入失败后状态被推进: %+v", m.State())
	}

	// 重试成功
	events, err = m.Apply(ctx, sig(model.SignalEnterShort, "105", 5))
	if err != nil || len(events) != 2 {
		t.Fatalf("重试失败: events=%v err=%v", ops(events), err)
	}
}

func TestMachine_OpenFailureFromFlat(t *testing.T) {
	rec := &memRecorder{failAt: map[int]bool{1: true}}
	m := newTestMachine(rec)

	_, err := m.Apply(context.Background(), sig(model.SignalEnterLong, "100", 0))
	if !errors.Is(err, ErrLedgerWrite) {
		t.Fatalf("err=%v, want ErrLedgerWrite", err)
	}
	st := m.State()
	if !st.Position.IsFlat() || st.LastSignal != model.SignalNone {
		t.Fatalf("state=%+v, want 初始空仓", st)
	}
}

func TestMachine_PartialFlip(t *testing.T) {
	rec := &memRecorder{failAt: map[int]bool{3: true}}
	m := newTestMachine(rec)
	ctx := context.Background()

	m.Apply(ctx, sig(model.SignalEnterLong, "100", 0))
	events, err := m.Apply(ctx, sig(model.SignalEnterShort, "95", 5))
	if !errors.Is(err, ErrPartialFlip) || !errors.Is(err, ErrLedgerWrite) {
		t.Fatalf("err=%v, want ErrPartialFlip wrapping ErrLedgerWrite", err)
	}
	if len(events) != 1 || events[0].Operation != model.OpCloseLong {
		t.Fatalf("events=%v, want [CLOSE_LONG]", ops(events))
	}
	if !events[0].PnLPercent.Equal(decimal.NewFromInt(-5)) {
		t.Fatalf("pnl=%s, want -5", events[0].PnLPercent)
	}

	st := m.State()
	if !st.Position.IsFlat() || !st.PartialFlip || st.LastSignal != model.SignalEnterLong {
		t.Fatalf("state=%+v, want FLAT+PartialFlip, LastSignal=ENTER_LONG", st)
	}

	// 同一翻转信号重试完成开仓
	events, err = m.Apply(ctx, sig(model.SignalEnterShort, "95", 5))
	if err != nil {
		t.Fatalf("重试 err=%v", err)
	}
	if len(events) != 1 || events[0].Operation != model.OpOpenShort {
		t.Fatalf("events=%v, want [OPEN_SHORT]", ops(events))
	}
	st = m.State()
	if st.Position.Side != model.SideShort || st.PartialFlip {
		t.Fatalf("state=%+v", st)
	}
}

func TestMachine_Close(t *testing.T) {
	rec := &memRecorder{}
	m := newTestMachine(rec)
	ctx := context.Background()

	if _, err := m.Close(ctx, decimal.NewFromInt(100), t0, "手动"); !errors.Is(err, ErrNoPosition) {
		t.Fatalf("空仓平仓 err=%v, want ErrNoPosition", err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("空仓平仓不应写账本")
	}

	m.Apply(ctx, sig(model.SignalEnterLong, "100", 0))
	ev, err := m.Close(ctx, decimal.NewFromInt(95), t0.Add(time.Minute), "手动")
	if err != nil {
		t.Fatalf("Close err=%v", err)
	}
	if ev.Operation != model.OpCloseLong || !ev.PnLPercent.Equal(decimal.NewFromInt(-5)) {
		t.Fatalf("close=%+v", ev)
	}
	st := m.State()
	if !st.Position.IsFlat() || st.LastSignal != model.SignalEnterLong {
		t.Fatalf("state=%+v", st)
	}

	// 平仓后同向信号仍被防抖
	events, _ := m.Apply(ctx, sig(model.SignalEnterLong, "96", 5))
	if len(events) != 1 || events[0].Operation != model.OpSignalIgnored || events[0].PositionAfter != model.SideFlat {
		t.Fatalf("events=%v", ops(events))
	}
}

func TestMachine_Restore(t *testing.T) {
	m := newTestMachine(&memRecorder{})

	err := m.Restore(model.PositionState{Position: model.Position{Side: model.SideLong}})
	if err == nil {
		t.Fatalf("缺少入场价的状态应被拒绝")
	}

	st := model.PositionState{
		Position: model.Position{
			Side:       model.SideShort,
			EntryPrice: decimal.NewFromInt(200),
			EntryTime:  t0,
		},
		LastSignal: model.SignalEnterShort,
	}
	if err := m.Restore(st); err != nil {
		t.Fatalf("Restore err=%v", err)
	}
	got := m.State()
	if got.Position.Side != model.SideShort || !got.Position.Size.Equal(decimal.RequireFromString("0.001")) {
		t.Fatalf("state=%+v", got)
	}

	events, err := m.Apply(context.Background(), sig(model.SignalEnterLong, "180", 5))
	if err != nil || len(events) != 2 || !events[0].PnLPercent.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("恢复后翻转错误: events=%v err=%v", ops(events), err)
	}
}

func TestMachine_NoneSignal(t *testing.T) {
	rec := &memRecorder{}
	m := newTestMachine(rec)
	events, err := m.Apply(context.Background(), model.SignalEvent{Kind: model.SignalNone})
	if err != nil || events != nil || len(rec.events) != 0 {
		t.Fatalf("无信号不应有任何动作: %v %v", events, err)
	}
}

// cancelRecorder 在第一次写入成功后取消上下文，写入前检查取消状态
type cancelRecorder struct {
	memRecorder
	cancel context.CancelFunc
}

func (r *cancelRecorder) Append(ctx context.Context, ev model.PositionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.memRecorder.Append(ctx, ev); err != nil {
		return err
	}
	if r.cancel != nil && ev.Operation.IsClose() {
		r.cancel()
	}
	return nil
}

func TestMachine_FlipCompletesAfterCancel(t *testing.T) {
	rec := &cancelRecorder{}
	m := newTestMachine(rec)

	if _, err := m.Apply(context.Background(), sig(model.SignalEnterLong, "100", 0)); err != nil {
		t.Fatalf("Apply long err=%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec.cancel = cancel

	events, err := m.Apply(ctx, sig(model.SignalEnterShort, "110", 5))
	if err != nil {
		t.Fatalf("平仓落盘后取消不应中断翻转: err=%v", err)
	}
	if ctx.Err() == nil {
		t.Fatalf("平仓写入后上下文应已取消")
	}
	if got := ops(events); len(got) != 2 || got[0] != model.OpCloseLong || got[1] != model.OpOpenShort {
		t.Fatalf("events=%v, want [CLOSE_LONG OPEN_SHORT]", got)
	}
	st := m.State()
	if st.Position.Side != model.SideShort || st.PartialFlip || st.LastSignal != model.SignalEnterShort {
		t.Fatalf("state=%+v", st)
	}

	// 已取消的上下文下，新的翻转不会写入任何记录
	before := len(rec.events)
	if _, err := m.Apply(ctx, sig(model.SignalEnterLong, "105", 10)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if len(rec.events) != before || m.State().Position.Side != model.SideShort {
		t.Fatalf("取消后不应开始新的翻转: events=%d state=%+v", len(rec.events), m.State())
	}
}

func TestMachine_FlipCloseIsMarked(t *testing.T) {
	rec := &memRecorder{}
	m := newTestMachine(rec)
	ctx := context.Background()

	m.Apply(ctx, sig(model.SignalEnterLong, "100", 0))
	events, _ := m.Apply(ctx, sig(model.SignalEnterShort, "110", 5))
	if len(events) != 2 || !events[0].IsFlipClose() || events[1].IsFlipClose() {
		t.Fatalf("翻转平仓应带标记: %+v", events)
	}

	ev, err := m.Close(ctx, decimal.NewFromInt(100), t0.Add(10*time.Minute), "手动")
	if err != nil {
		t.Fatalf("Close err=%v", err)
	}
	if ev.IsFlipClose() {
		t.Fatalf("手动平仓不应被识别为翻转平仓: %s", ev.Note)
	}
}
