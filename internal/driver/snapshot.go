package driver

import (
	"time"

	"github.com/shopspring/decimal"

	"supertrend-flip-bot/internal/core/model"
	"supertrend-flip-bot/internal/stats/ev"
)

// StatusSnapshot 每轮输出的存活状态
type StatusSnapshot struct {
	// Kind 固定为 status
	Kind string `json:"kind"`
	// Time 输出时间
	Time time.Time `json:"time"`
	// Symbol 交易对
	Symbol string `json:"symbol"`
	// Timeframe K 线周期
	Timeframe string `json:"timeframe"`
	// Position 当前持仓方向
	Position model.Side `json:"position"`
	// EntryPrice 入场价，空仓时省略
	EntryPrice *decimal.Decimal `json:"entry_price,omitempty"`
	// HoldMinutes 持仓分钟数
	HoldMinutes float64 `json:"hold_minutes"`
	// LastPrice 最新收盘价
	LastPrice decimal.Decimal `json:"last_price"`
	// LastSignal 最近一次已处理的信号
	LastSignal model.SignalKind `json:"last_signal"`
	// BarTime 最新 K 线时间
	BarTime time.Time `json:"bar_time"`
	// PartialFlip 上次翻转只完成了平仓
	PartialFlip bool `json:"partial_flip"`
	// LedgerStale 结构化存储落后于 CSV
	LedgerStale bool `json:"ledger_stale"`
}

// SummarySnapshot 定期汇总
type SummarySnapshot struct {
	// Kind 固定为 summary
	Kind string `json:"kind"`
	// Time 输出时间
	Time time.Time `json:"time"`
	// Symbol 交易对
	Symbol string `json:"symbol"`
	// Reason periodic 或 shutdown
	Reason string `json:"reason"`
	// Daily 当日账本汇总
	Daily model.DailySummary `json:"daily"`
	// Session 本次运行的平仓统计
	Session ev.EVStats `json:"session"`
}
