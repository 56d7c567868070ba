// Package model 定义翻转机器人使用的核心数据结构。
// 包含 K 线、方向样本、信号、仓位、账本事件与每日汇总。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction 趋势方向值
// 由指标对每根 K 线给出，只取 +1（上升）或 -1（下降）
type Direction int8

const (
	// DirectionDown 下降趋势
	DirectionDown Direction = -1
	// DirectionUp 上升趋势
	DirectionUp Direction = 1
)

// Valid 判断方向值是否合法
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// String 返回方向的可读形式
func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "+1"
	case DirectionDown:
		return "-1"
	default:
		return "invalid"
	}
}

// Bar OHLCV K 线
// 序列按 Timestamp 严格递增，只追加
type Bar struct {
	// Timestamp K 线开盘时间
	Timestamp time.Time
	// Open 开盘价
	Open decimal.Decimal
	// High 最高价
	High decimal.Decimal
	// Low 最低价
	Low decimal.Decimal
	// Close 收盘价（未收盘时为最新价）
	Close decimal.Decimal
	// Volume 成交量
	Volume decimal.Decimal
	// Confirmed K 线是否已收盘
	Confirmed bool
}

// DirectionSample 单根 K 线的方向样本
type DirectionSample struct {
	// Timestamp 对应 K 线时间
	Timestamp time.Time
	// Direction 趋势方向
	Direction Direction
	// Close 对应 K 线收盘价，信号价格取自最新样本
	Close decimal.Decimal
}
