package metadata

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"supertrend-flip-bot/internal/config"
)

// knownQuotes 无分隔符输入时用于切分的计价币种（按长度优先）
var knownQuotes = []string{"USDT", "USDC", "FDUSD", "BUSD", "BTC", "ETH", "EUR"}

// ParseSymbol 解析用户输入的交易对
// 支持 BTC/USDT、BTC-USDT、btc_usdt、BTCUSDT 等格式
func ParseSymbol(input string) (*SymbolMap, error) {
	s := strings.ToUpper(strings.TrimSpace(input))
	if s == "" {
		return nil, fmt.Errorf("交易对不能为空")
	}

	var base, quote string
	if i := strings.IndexAny(s, "/-_"); i >= 0 {
		base, quote = s[:i], s[i+1:]
	} else {
		for _, q := range knownQuotes {
			if strings.HasSuffix(s, q) && len(s) > len(q) {
				base, quote = strings.TrimSuffix(s, q), q
				break
			}
		}
	}
	if base == "" || quote == "" || strings.ContainsAny(base+quote, "/-_ ") {
		return nil, fmt.Errorf("无法解析交易对 '%s'，期望 BASE/QUOTE", input)
	}

	return &SymbolMap{
		Input:      input,
		Canon:      base + quote,
		Base:       base,
		Quote:      quote,
		OKXInstId:  base + "-" + quote,
		BinanceSym: base + quote,
	}, nil
}

// Resolve 解析交易对并（可选）向所选交易所确认其存在
// 参数 cfg: 配置（使用 symbol / feed.venue / metadata）
// 参数 f: 元数据获取器；cfg.Metadata.Enabled=false 时不发请求
func Resolve(ctx context.Context, cfg *config.Config, f Fetcher) (*SymbolMap, error) {
	m, err := ParseSymbol(cfg.Symbol.Input)
	if err != nil {
		return nil, err
	}
	if !cfg.Metadata.Enabled || f == nil {
		return m, nil
	}

	switch cfg.Feed.Venue {
	case config.VenueBinance:
		syms, err := f.FetchBinance(ctx, cfg.Metadata.Binance)
		if err != nil {
			return nil, fmt.Errorf("获取 Binance 元数据失败: %w", err)
		}
		if err := m.applyBinance(syms); err != nil {
			return nil, err
		}
	default:
		insts, err := f.FetchOKX(ctx, cfg.Metadata.OKX)
		if err != nil {
			return nil, fmt.Errorf("获取 OKX 元数据失败: %w", err)
		}
		if err := m.applyOKX(insts); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *SymbolMap) applyOKX(insts []OKXInstrument) error {
	for i := range insts {
		inst := &insts[i]
		if inst.InstId != m.OKXInstId {
			continue
		}
		if !inst.IsLiveSpot() {
			return fmt.Errorf("OKX 交易对 %s 不可交易: state=%s", inst.InstId, inst.State)
		}
		m.TickSize, _ = decimal.NewFromString(inst.TickSz)
		return nil
	}
	return fmt.Errorf("OKX 未找到现货交易对: %s", m.OKXInstId)
}

func (m *SymbolMap) applyBinance(syms []BinanceSymbol) error {
	for i := range syms {
		sym := &syms[i]
		if !strings.EqualFold(sym.Symbol, m.BinanceSym) {
			continue
		}
		if !sym.IsTrading() {
			return fmt.Errorf("Binance 交易对 %s 不可交易: status=%s", sym.Symbol, sym.Status)
		}
		m.TickSize, _ = decimal.NewFromString(sym.TickSize())
		return nil
	}
	return fmt.Errorf("Binance 未找到现货交易对: %s", m.BinanceSym)
}
