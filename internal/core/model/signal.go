package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalKind 信号类型
type SignalKind string

const (
	// SignalNone 无信号（保持）
	SignalNone SignalKind = ""
	// SignalEnterLong 方向由 -1 翻转为 +1
	SignalEnterLong SignalKind = "ENTER_LONG"
	// SignalEnterShort 方向由 +1 翻转为 -1
	SignalEnterShort SignalKind = "ENTER_SHORT"
)

// Side 返回信号对应的目标持仓方向
func (k SignalKind) Side() Side {
	switch k {
	case SignalEnterLong:
		return SideLong
	case SignalEnterShort:
		return SideShort
	default:
		return SideFlat
	}
}

// SignalKindFor 返回开出指定方向仓位的信号类型
func SignalKindFor(side Side) SignalKind {
	switch side {
	case SideLong:
		return SignalEnterLong
	case SideShort:
		return SignalEnterShort
	default:
		return SignalNone
	}
}

// SignalEvent 方向翻转信号
// 每根 K 线最多产生一次，产生后立即被状态机消费
type SignalEvent struct {
	// Kind 信号类型
	Kind SignalKind
	// Price 信号价格（最新 K 线收盘价）
	Price decimal.Decimal
	// Timestamp 最新 K 线时间
	Timestamp time.Time
}
