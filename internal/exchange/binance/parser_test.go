// Package binance Binance 解析器测试
package binance

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

// **Feature: supertrend-flip-bot, Property 14: Candle Parse Consistency (Binance)**

// TestParseKlines_Property 解析后的价格与时间与原始数据一致
func TestParseKlines_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("解析保留 OHLC 与时间", prop.ForAll(
		func(low, spread float64, openMs int64) bool {
			closePx := strconv.FormatFloat(low+spread, 'f', 2, 64)
			lowPx := strconv.FormatFloat(low, 'f', 2, 64)
			body := fmt.Sprintf(`[[%d,"%s","%s","%s","%s","1.5",%d,"0",10,"0","0","0"]]`,
				openMs, lowPx, closePx, lowPx, closePx, openMs+299_999)
			now := time.UnixMilli(openMs + 300_000)
			bars, err := ParseKlines([]byte(body), now)
			if err != nil || len(bars) != 1 {
				return false
			}
			b := bars[0]
			return b.Timestamp.UnixMilli() == openMs &&
				b.Close.Equal(decimal.RequireFromString(closePx)) &&
				b.Low.Equal(decimal.RequireFromString(lowPx)) &&
				b.Confirmed
		},
		gen.Float64Range(0.01, 100000),
		gen.Float64Range(0, 1000),
		gen.Int64Range(1_600_000_000_000, 1_900_000_000_000),
	))

	properties.TestingRun(t)
}

// TestParseKlines_Unconfirmed closeTime 晚于当前时间的 K 线未收盘
func TestParseKlines_Unconfirmed(t *testing.T) {
	body := []byte(`[
[1714564800000,"100","102","99","101","1",1714565099999,"0",1,"0","0","0"],
[1714565100000,"101","103","100","102","1",1714565399999,"0",1,"0","0","0"]]`)
	now := time.UnixMilli(1714565200000)
	bars, err := ParseKlines(body, now)
	if err != nil {
		t.Fatalf("ParseKlines error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("len = %d, want 2", len(bars))
	}
	if !bars[0].Confirmed || bars[1].Confirmed {
		t.Fatalf("confirm flags = %v %v, want true false", bars[0].Confirmed, bars[1].Confirmed)
	}
}

// TestParseKlines_Errors 异常输入
func TestParseKlines_Errors(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		body string
	}{
		{"非 JSON", `{`},
		{"字段不足", `[[1714564800000,"1","2"]]`},
		{"价格非字符串", `[[1714564800000,1,"2","0.5","1.5","1",1714565099999]]`},
		{"价格非法", `[[1714564800000,"x","2","0.5","1.5","1",1714565099999]]`},
		{"时间未递增", `[[1714564800000,"1","2","0.5","1.5","1",1714565099999],[1714564800000,"1","2","0.5","1.5","1",1714565099999]]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseKlines([]byte(tt.body), now); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// TestInterval 周期映射
func TestInterval(t *testing.T) {
	if iv, err := Interval("4h"); err != nil || iv != "4h" {
		t.Fatalf("Interval(4h) = %s, %v", iv, err)
	}
	if _, err := Interval("7m"); err == nil {
		t.Fatal("expected error for unsupported timeframe")
	}
}
