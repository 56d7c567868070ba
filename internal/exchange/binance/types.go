// Package binance 定义 Binance 现货 K 线接口的数据类型。
package binance

// APIError Binance 错误响应
// 形如 {"code":-1121,"msg":"Invalid symbol."}
type APIError struct {
	// Code 错误码（负数）
	Code int `json:"code"`
	// Msg 错误消息
	Msg string `json:"msg"`
}

// KlineRow K 线原始行
// API: GET /api/v3/klines
// 行格式: [openTime, open, high, low, close, volume, closeTime,
// quoteVolume, trades, takerBase, takerQuote, ignore]
// 时间与笔数为数字，价格与数量为字符串
type KlineRow []any

// intervals ccxt 风格周期 -> Binance interval 参数
var intervals = map[string]string{
	"1m": "1m", "3m": "3m", "5m": "5m", "15m": "15m", "30m": "30m",
	"1h": "1h", "2h": "2h", "4h": "4h", "6h": "6h", "12h": "12h",
	"1d": "1d",
}
