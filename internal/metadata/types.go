// Package metadata 负责解析用户输入的交易对并向交易所确认现货交易对存在。
package metadata

import "github.com/shopspring/decimal"

// SymbolMap 单个交易对在各交易所的标识
type SymbolMap struct {
	// Input 用户输入，如 BTC/USDT
	Input string
	// Canon 统一标识，如 BTCUSDT
	Canon string
	// Base 基础币种，如 BTC
	Base string
	// Quote 计价币种，如 USDT
	Quote string
	// OKXInstId OKX 现货 instId，如 BTC-USDT
	OKXInstId string
	// BinanceSym Binance 现货 symbol，如 BTCUSDT
	BinanceSym string
	// TickSize 最小价格变动（确认交易对后填充）
	TickSize decimal.Decimal
}

// Display 返回 BASE/QUOTE 形式，用于日志与账本
func (m *SymbolMap) Display() string {
	return m.Base + "/" + m.Quote
}

// OKXResponse OKX 现货元数据 API 响应
// API: GET /api/v5/public/instruments?instType=SPOT
type OKXResponse struct {
	// Code 响应码，"0" 表示成功
	Code string `json:"code"`
	// Msg 错误消息
	Msg string `json:"msg"`
	// Data 交易对列表
	Data []OKXInstrument `json:"data"`
}

// OKXInstrument OKX 现货交易对
type OKXInstrument struct {
	// InstId 交易对 ID，如 BTC-USDT
	InstId string `json:"instId"`
	// InstType 产品类型: SPOT
	InstType string `json:"instType"`
	// BaseCcy 基础币种
	BaseCcy string `json:"baseCcy"`
	// QuoteCcy 计价币种
	QuoteCcy string `json:"quoteCcy"`
	// TickSz 最小价格变动单位
	TickSz string `json:"tickSz"`
	// LotSz 最小交易数量
	LotSz string `json:"lotSz"`
	// State 状态: live, suspend, preopen
	State string `json:"state"`
}

// IsLiveSpot 判断是否为可交易的现货
func (i *OKXInstrument) IsLiveSpot() bool {
	return i.InstType == "SPOT" && i.State == "live"
}

// BinanceResponse Binance 现货元数据 API 响应
// API: GET /api/v3/exchangeInfo
type BinanceResponse struct {
	// Symbols 交易对列表
	Symbols []BinanceSymbol `json:"symbols"`
}

// BinanceSymbol Binance 现货交易对
type BinanceSymbol struct {
	// Symbol 交易对，如 BTCUSDT
	Symbol string `json:"symbol"`
	// Status 状态: TRADING, BREAK
	Status string `json:"status"`
	// BaseAsset 基础币种
	BaseAsset string `json:"baseAsset"`
	// QuoteAsset 计价币种
	QuoteAsset string `json:"quoteAsset"`
	// Filters 交易规则（只关心 PRICE_FILTER.tickSize）
	Filters []BinanceFilter `json:"filters"`
}

// BinanceFilter Binance 交易规则
type BinanceFilter struct {
	// FilterType 规则类型，如 PRICE_FILTER
	FilterType string `json:"filterType"`
	// TickSize 最小价格变动
	TickSize string `json:"tickSize,omitempty"`
}

// IsTrading 判断是否可交易
func (s *BinanceSymbol) IsTrading() bool {
	return s.Status == "TRADING"
}

// TickSize 返回 PRICE_FILTER 中的 tickSize
func (s *BinanceSymbol) TickSize() string {
	for _, f := range s.Filters {
		if f.FilterType == "PRICE_FILTER" {
			return f.TickSize
		}
	}
	return ""
}
