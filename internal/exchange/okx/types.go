// Package okx 定义 OKX 交易所消息类型。
package okx

// CandlesResponse REST K 线响应
// API: GET /api/v5/market/candles
type CandlesResponse struct {
	// Code 响应码，"0" 表示成功
	Code string `json:"code"`
	// Msg 错误消息
	Msg string `json:"msg"`
	// Data K 线列表，最新在前:
	// [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
	Data [][]string `json:"data"`
}

// SubscribeRequest OKX 订阅请求
type SubscribeRequest struct {
	// Op 操作类型: subscribe, unsubscribe
	Op string `json:"op"`
	// Args 订阅参数列表
	Args []SubscribeArg `json:"args"`
}

// SubscribeArg 订阅参数
type SubscribeArg struct {
	// Channel 频道名称，如 candle5m、candle1H
	Channel string `json:"channel"`
	// InstId 交易对 ID，如 BTC-USDT
	InstId string `json:"instId"`
}

// SubscribeResponse OKX 订阅响应
type SubscribeResponse struct {
	// Event 事件类型: subscribe, error
	Event string `json:"event"`
	// Arg 订阅参数
	Arg *SubscribeArg `json:"arg,omitempty"`
	// Code 错误码
	Code string `json:"code,omitempty"`
	// Msg 错误消息
	Msg string `json:"msg,omitempty"`
}

// CandleMessage candle 频道推送
// data 行格式与 REST 相同
type CandleMessage struct {
	// Arg 订阅参数
	Arg SubscribeArg `json:"arg"`
	// Data K 线列表
	Data [][]string `json:"data"`
}

// ConnectionMetrics 连接质量指标
type ConnectionMetrics struct {
	// ReconnectCount 重连次数
	ReconnectCount int64
	// ParseErrorCount 解析错误次数
	ParseErrorCount int64
	// CandleUpdates 收到的 K 线推送次数
	CandleUpdates int64
	// LastMessageAgeMs 最后消息距今时间（毫秒）
	LastMessageAgeMs int64
	// LastCandleAgeMs 窗口最后一次写入距今时间（毫秒），从未写入为 -1
	LastCandleAgeMs int64
	// WsRttMs WebSocket RTT（毫秒）
	WsRttMs int64
}
