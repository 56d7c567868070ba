package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side 持仓方向
type Side string

const (
	// SideFlat 无持仓
	SideFlat Side = "flat"
	// SideLong 多头
	SideLong Side = "long"
	// SideShort 空头
	SideShort Side = "short"
)

// Opposite 返回相反方向，FLAT 返回自身
func (s Side) Opposite() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	default:
		return SideFlat
	}
}

// Position 单一交易对的模拟仓位
// 不变式: Side != FLAT 当且仅当 EntryPrice 与 EntryTime 均存在
type Position struct {
	// Side 持仓方向
	Side Side
	// EntryPrice 入场价格，FLAT 时为零值
	EntryPrice decimal.Decimal
	// EntryTime 入场时间（信号 K 线时间），FLAT 时为零值
	EntryTime time.Time
	// Size 仓位数量
	Size decimal.Decimal
}

// Flat 返回指定数量的空仓
func Flat(size decimal.Decimal) Position {
	return Position{Side: SideFlat, Size: size}
}

// IsFlat 判断是否无持仓
func (p Position) IsFlat() bool {
	return p.Side == SideFlat || p.Side == ""
}

// Validate 检查入场字段与方向的一致性
func (p Position) Validate() error {
	switch p.Side {
	case SideFlat:
		if !p.EntryPrice.IsZero() || !p.EntryTime.IsZero() {
			return fmt.Errorf("空仓不应带入场信息")
		}
	case SideLong, SideShort:
		if !p.EntryPrice.IsPositive() || p.EntryTime.IsZero() {
			return fmt.Errorf("%s 仓缺少入场价或入场时间", p.Side)
		}
	default:
		return fmt.Errorf("未知持仓方向: %q", p.Side)
	}
	return nil
}

// HoldDuration 获取持仓时长
func (p Position) HoldDuration(now time.Time) time.Duration {
	if p.IsFlat() {
		return 0
	}
	return now.Sub(p.EntryTime)
}

// Info 返回持仓描述，用于存活日志
func (p Position) Info(now time.Time) string {
	if p.IsFlat() {
		return "无持仓"
	}
	return fmt.Sprintf("%s仓 @ %s (持%.1f分钟)", p.Side, p.EntryPrice.StringFixed(2), p.HoldDuration(now).Minutes())
}

// PositionState 状态机的完整状态
// LastSignal 与 Position.Side 相互独立，二者都能从账本最新记录重建
type PositionState struct {
	// Position 当前仓位
	Position Position
	// LastSignal 最近一次已处理的信号类型（防抖）
	LastSignal SignalKind
	// PartialFlip 上次翻转只完成了平仓
	PartialFlip bool
}
