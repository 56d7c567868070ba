package paper

import (
	"fmt"

	"github.com/shopspring/decimal"

	"supertrend-flip-bot/internal/core/model"
)

var hundred = decimal.NewFromInt(100)

// PnLPercent 计算平仓盈亏百分比，四舍五入到两位小数
// long: (exit - entry) / entry × 100
// short: (entry - exit) / entry × 100
func PnLPercent(side model.Side, entry, exit decimal.Decimal) (decimal.Decimal, error) {
	if !entry.IsPositive() {
		return decimal.Zero, fmt.Errorf("入场价无效: %s", entry)
	}
	var diff decimal.Decimal
	switch side {
	case model.SideLong:
		diff = exit.Sub(entry)
	case model.SideShort:
		diff = entry.Sub(exit)
	default:
		return decimal.Zero, fmt.Errorf("无法为 %q 计算盈亏", side)
	}
	return diff.Div(entry).Mul(hundred).Round(2), nil
}

// formatPnL 以带符号两位小数形式输出盈亏
func formatPnL(pnl decimal.Decimal) string {
	if pnl.IsPositive() {
		return "+" + pnl.StringFixed(2) + "%"
	}
	return pnl.StringFixed(2) + "%"
}
