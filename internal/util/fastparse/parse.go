// Package fastparse 解析交易所 K 线消息中的字符串字段。
// 价格与数量统一解析为 decimal，避免浮点误差进入账本。
package fastparse

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// ParseDecimal 解析十进制字符串
// 参数 s: 待解析的字符串，如 "42000.5"
func ParseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("无效的数值 %q: %w", s, err)
	}
	return d, nil
}

// ParseInt 解析整数字符串
// 用于毫秒时间戳
func ParseInt(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// ParseFlag 解析 "0"/"1" 标志位
// 空字符串视为 true（部分接口不返回 confirm 字段）
func ParseFlag(s string) (bool, error) {
	switch s {
	case "1", "":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("无效的标志位 %q", s)
	}
}

// ParseOHLC 依次解析开高低收四个字段
func ParseOHLC(o, h, l, c string) (open, high, low, closePx decimal.Decimal, err error) {
	if open, err = ParseDecimal(o); err != nil {
		return
	}
	if high, err = ParseDecimal(h); err != nil {
		return
	}
	if low, err = ParseDecimal(l); err != nil {
		return
	}
	closePx, err = ParseDecimal(c)
	return
}
