package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Operation 账本操作类型
type Operation string

const (
	// OpOpenLong 开多
	OpOpenLong Operation = "OPEN_LONG"
	// OpOpenShort 开空
	OpOpenShort Operation = "OPEN_SHORT"
	// OpCloseLong 平多
	OpCloseLong Operation = "CLOSE_LONG"
	// OpCloseShort 平空
	OpCloseShort Operation = "CLOSE_SHORT"
	// OpSignalIgnored 信号被防抖忽略
	OpSignalIgnored Operation = "SIGNAL_IGNORED"
)

// OpenOp 返回开出指定方向的操作类型
func OpenOp(side Side) Operation {
	if side == SideShort {
		return OpOpenShort
	}
	return OpOpenLong
}

// CloseOp 返回平掉指定方向的操作类型
func CloseOp(side Side) Operation {
	if side == SideShort {
		return OpCloseShort
	}
	return OpCloseLong
}

// IsOpen 判断是否为开仓操作
func (o Operation) IsOpen() bool {
	return o == OpOpenLong || o == OpOpenShort
}

// IsClose 判断是否为平仓操作
func (o Operation) IsClose() bool {
	return o == OpCloseLong || o == OpCloseShort
}

// ReasonFlip 翻转平仓记录 note 的前缀
// 账本最新记录若是翻转平仓，说明对应的反向开仓没有落盘
const ReasonFlip = "信号反转"

// IsFlipClose 是否为翻转中的平仓记录
func (e PositionEvent) IsFlipClose() bool {
	return e.Operation.IsClose() && strings.HasPrefix(e.Note, ReasonFlip)
}

// Valid 判断操作类型是否已知
func (o Operation) Valid() bool {
	return o.IsOpen() || o.IsClose() || o == OpSignalIgnored
}

// PositionEvent 账本记录
// 写入后不可变，是审计与每日汇总的唯一事实来源
type PositionEvent struct {
	// ID 记录唯一标识
	ID string `json:"id"`
	// Timestamp 写入时的墙钟时间
	Timestamp time.Time `json:"timestamp"`
	// Operation 操作类型
	Operation Operation `json:"operation"`
	// Symbol 交易对
	Symbol string `json:"symbol"`
	// Direction 操作方向；SIGNAL_IGNORED 时为被忽略信号的方向
	Direction Side `json:"direction"`
	// Price 成交（模拟）价格
	Price decimal.Decimal `json:"price"`
	// Size 数量
	Size decimal.Decimal `json:"amount"`
	// PositionAfter 事件之后的持仓状态
	PositionAfter Side `json:"position_status"`
	// EntryPrice 入场价（开仓、平仓与忽略记录携带）
	EntryPrice *decimal.Decimal `json:"entry_price,omitempty"`
	// PnLPercent 平仓盈亏百分比（两位小数），仅平仓记录携带
	PnLPercent *decimal.Decimal `json:"pnl_percent,omitempty"`
	// Note 备注
	Note string `json:"note"`
	// BarTime 触发该事件的 K 线时间
	BarTime time.Time `json:"bar_time"`
}

// DecimalPtr 返回 decimal 的指针，便于填充可选字段
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
