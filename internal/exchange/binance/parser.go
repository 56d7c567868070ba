// Package binance 实现 Binance 现货 K 线解析。
// 字段映射: openTime -> Bar.Timestamp, closeTime 晚于当前时间 -> 未收盘
package binance

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"supertrend-flip-bot/internal/core/model"
	"supertrend-flip-bot/internal/util/fastparse"
	"supertrend-flip-bot/internal/util/timeutil"
)

// Interval 将周期转换为 Binance interval 参数
func Interval(timeframe string) (string, error) {
	iv, ok := intervals[timeframe]
	if !ok {
		return "", fmt.Errorf("Binance 不支持的周期: %s", timeframe)
	}
	return iv, nil
}

// ParseKlines 解析 klines 响应体
// 参数 now: 判断最新 K 线是否收盘所用的当前时间
// 返回: 按时间升序的 K 线
func ParseKlines(data []byte, now time.Time) ([]model.Bar, error) {
	var rows []KlineRow
	if err := sonic.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("解析 Binance K 线失败: %w", err)
	}
	bars := make([]model.Bar, 0, len(rows))
	for i, row := range rows {
		b, err := ParseKlineRow(row, now)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", i, err)
		}
		if n := len(bars); n > 0 && !b.Timestamp.After(bars[n-1].Timestamp) {
			return nil, fmt.Errorf("第 %d 行: K 线时间未递增", i)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// ParseKlineRow 解析单行 K 线
func ParseKlineRow(row KlineRow, now time.Time) (model.Bar, error) {
	if len(row) < 7 {
		return model.Bar{}, fmt.Errorf("K 线字段不足: %d", len(row))
	}
	openMs, err := toInt(row[0])
	if err != nil {
		return model.Bar{}, fmt.Errorf("解析 openTime 失败: %w", err)
	}
	closeMs, err := toInt(row[6])
	if err != nil {
		return model.Bar{}, fmt.Errorf("解析 closeTime 失败: %w", err)
	}
	fields := make([]string, 5)
	for i := range fields {
		s, ok := row[i+1].(string)
		if !ok {
			return model.Bar{}, fmt.Errorf("第 %d 列不是字符串", i+1)
		}
		fields[i] = s
	}
	open, high, low, closePx, err := fastparse.ParseOHLC(fields[0], fields[1], fields[2], fields[3])
	if err != nil {
		return model.Bar{}, err
	}
	vol, err := fastparse.ParseDecimal(fields[4])
	if err != nil {
		return model.Bar{}, err
	}
	return model.Bar{
		Timestamp: timeutil.MsToTime(openMs),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePx,
		Volume:    vol,
		Confirmed: !timeutil.MsToTime(closeMs).After(now),
	}, nil
}

// toInt 数字列在 JSON 中解码为 float64，也兼容字符串
func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case float64:
		return int64(x), nil
	case int64:
		return x, nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("无法解析 %T", v)
	}
}
