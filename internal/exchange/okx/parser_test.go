// Package okx OKX 解析器测试
package okx

import (
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// **Feature: supertrend-flip-bot, Property 14: Candle Parse Consistency (OKX)**

// TestParseCandleRow_Property 解析后的价格与原始字符串一致
func TestParseCandleRow_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("解析保留 OHLC 与时间", prop.ForAll(
		func(low, spread float64, ts int64) bool {
			high := low + spread
			row := []string{
				strconv.FormatInt(ts, 10),
				formatPx(low), formatPx(high), formatPx(low), formatPx(high),
				"12.5", "0", "0", "1",
			}
			bar, err := ParseCandleRow(row)
			if err != nil {
				return false
			}
			return bar.Timestamp.UnixMilli() == ts &&
				bar.Low.Equal(decimal.RequireFromString(formatPx(low))) &&
				bar.Close.Equal(decimal.RequireFromString(formatPx(high))) &&
				bar.Confirmed
		},
		gen.Float64Range(0.01, 100000),
		gen.Float64Range(0, 1000),
		gen.Int64Range(1_600_000_000_000, 1_900_000_000_000),
	))

	properties.TestingRun(t)
}

func formatPx(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// TestParseCandleRow_Confirm confirm 字段处理
func TestParseCandleRow_Confirm(t *testing.T) {
	tests := []struct {
		name      string
		row       []string
		confirmed bool
		wantErr   bool
	}{
		{"已收盘", []string{"1714564800000", "1", "2", "0.5", "1.5", "10", "0", "0", "1"}, true, false},
		{"未收盘", []string{"1714564800000", "1", "2", "0.5", "1.5", "10", "0", "0", "0"}, false, false},
		{"缺省 confirm", []string{"1714564800000", "1", "2", "0.5", "1.5", "10"}, true, false},
		{"字段不足", []string{"1714564800000", "1", "2"}, false, true},
		{"价格非法", []string{"1714564800000", "x", "2", "0.5", "1.5", "10"}, false, true},
		{"confirm 非法", []string{"1714564800000", "1", "2", "0.5", "1.5", "10", "0", "0", "2"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar, err := ParseCandleRow(tt.row)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && bar.Confirmed != tt.confirmed {
				t.Fatalf("Confirmed = %v, want %v", bar.Confirmed, tt.confirmed)
			}
		})
	}
}

// TestParseCandleRows_Ascending OKX 返回最新在前，解析后为升序
func TestParseCandleRows_Ascending(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var rows [][]string
	for i := 4; i >= 0; i-- {
		ts := base.Add(time.Duration(i) * 5 * time.Minute).UnixMilli()
		rows = append(rows, []string{strconv.FormatInt(ts, 10), "1", "2", "0.5", fmt.Sprint(i + 1), "1", "0", "0", "1"})
	}
	bars, err := ParseCandleRows(rows)
	if err != nil {
		t.Fatalf("ParseCandleRows error: %v", err)
	}
	if len(bars) != 5 {
		t.Fatalf("len = %d, want 5", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			t.Fatalf("bars not ascending at %d", i)
		}
	}
	if !bars[4].Close.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("last close = %s, want 5", bars[4].Close)
	}
}

// TestParseCandleMessage 推送消息解析
func TestParseCandleMessage(t *testing.T) {
	data := []byte(`{"arg":{"channel":"candle5m","instId":"BTC-USDT"},"data":[["1714564800000","60000","60100","59900","60050","3.2","0","0","0"]]}`)
	arg, bars, err := ParseCandleMessage(data)
	if err != nil {
		t.Fatalf("ParseCandleMessage error: %v", err)
	}
	if arg == nil || arg.InstId != "BTC-USDT" || arg.Channel != "candle5m" {
		t.Fatalf("arg = %+v", arg)
	}
	if len(bars) != 1 || bars[0].Confirmed {
		t.Fatalf("bars = %+v", bars)
	}

	// 非 candle 频道
	arg, bars, err = ParseCandleMessage([]byte(`{"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[]}`))
	if err != nil || arg != nil || bars != nil {
		t.Fatalf("non-candle message: arg=%v bars=%v err=%v", arg, bars, err)
	}

	if _, _, err := ParseCandleMessage([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}

// TestParseSubscribeResponse 订阅响应识别
func TestParseSubscribeResponse(t *testing.T) {
	resp, ok := ParseSubscribeResponse([]byte(`{"event":"subscribe","arg":{"channel":"candle5m","instId":"BTC-USDT"}}`))
	if !ok || resp.Arg == nil || resp.Arg.Channel != "candle5m" {
		t.Fatalf("subscribe: ok=%v resp=%+v", ok, resp)
	}
	resp, ok = ParseSubscribeResponse([]byte(`{"event":"error","code":"60012","msg":"Invalid request"}`))
	if !ok || resp.Code != "60012" {
		t.Fatalf("error: ok=%v resp=%+v", ok, resp)
	}
	if _, ok := ParseSubscribeResponse([]byte(`{"arg":{"channel":"candle5m"},"data":[]}`)); ok {
		t.Fatal("data message treated as subscribe response")
	}
}

// TestBarFormat 周期映射
func TestBarFormat(t *testing.T) {
	tests := map[string]string{"1m": "1m", "5m": "5m", "1h": "1H", "4h": "4H", "1d": "1D"}
	for in, want := range tests {
		got, err := BarFormat(in)
		if err != nil || got != want {
			t.Fatalf("BarFormat(%s) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := BarFormat("7m"); err == nil {
		t.Fatal("expected error for unsupported timeframe")
	}
}

// TestIsPong pong 识别
func TestIsPong(t *testing.T) {
	if !IsPong([]byte("pong")) || IsPong([]byte("ping")) || IsPong([]byte(`{"event":"pong"}`)) {
		t.Fatal("IsPong mismatch")
	}
}
