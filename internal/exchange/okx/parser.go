// Package okx 实现 OKX 现货 K 线的 REST 与 WebSocket 接入。
package okx

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"

	"supertrend-flip-bot/internal/core/model"
	"supertrend-flip-bot/internal/util/fastparse"
	"supertrend-flip-bot/internal/util/timeutil"
)

// barFormats ccxt 风格周期 -> OKX bar 参数
var barFormats = map[string]string{
	"1m": "1m", "3m": "3m", "5m": "5m", "15m": "15m", "30m": "30m",
	"1h": "1H", "2h": "2H", "4h": "4H", "6h": "6H", "12h": "12H",
	"1d": "1D",
}

// BarFormat 将周期转换为 OKX bar 参数
func BarFormat(timeframe string) (string, error) {
	bar, ok := barFormats[timeframe]
	if !ok {
		return "", fmt.Errorf("OKX 不支持的周期: %s", timeframe)
	}
	return bar, nil
}

// ParseCandleRow 解析单行 K 线
// 行格式: [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]，confirm 可缺省
func ParseCandleRow(row []string) (model.Bar, error) {
	if len(row) < 6 {
		return model.Bar{}, fmt.Errorf("K 线字段不足: %d", len(row))
	}
	ts, err := fastparse.ParseInt(row[0])
	if err != nil {
		return model.Bar{}, fmt.Errorf("解析 ts 失败: %w", err)
	}
	open, high, low, closePx, err := fastparse.ParseOHLC(row[1], row[2], row[3], row[4])
	if err != nil {
		return model.Bar{}, err
	}
	vol, err := fastparse.ParseDecimal(row[5])
	if err != nil {
		return model.Bar{}, err
	}
	confirm := ""
	if len(row) >= 9 {
		confirm = row[8]
	}
	confirmed, err := fastparse.ParseFlag(confirm)
	if err != nil {
		return model.Bar{}, err
	}
	return model.Bar{
		Timestamp: timeutil.MsToTime(ts),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePx,
		Volume:    vol,
		Confirmed: confirmed,
	}, nil
}

// ParseCandleRows 解析一批 K 线并按时间升序返回
// OKX 返回最新在前
func ParseCandleRows(rows [][]string) ([]model.Bar, error) {
	bars := make([]model.Bar, 0, len(rows))
	for i, row := range rows {
		b, err := ParseCandleRow(row)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", i, err)
		}
		bars = append(bars, b)
	}
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

// ParseCandleMessage 解析 candle 频道推送
// 返回: 非 candle 消息时 bars 为 nil
func ParseCandleMessage(data []byte) (*SubscribeArg, []model.Bar, error) {
	var msg CandleMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, nil, fmt.Errorf("解析 OKX 消息失败: %w", err)
	}
	if !strings.HasPrefix(msg.Arg.Channel, "candle") || len(msg.Data) == 0 {
		return nil, nil, nil
	}
	bars, err := ParseCandleRows(msg.Data)
	if err != nil {
		return nil, nil, err
	}
	return &msg.Arg, bars, nil
}

// ParseSubscribeResponse 解析订阅响应
// 返回: 非订阅响应时 ok=false
func ParseSubscribeResponse(data []byte) (resp SubscribeResponse, ok bool) {
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return resp, false
	}
	return resp, resp.Event == "subscribe" || resp.Event == "error"
}

// IsPong 判断是否为 pong 响应
func IsPong(data []byte) bool {
	return string(data) == "pong"
}
