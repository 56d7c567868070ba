// Package feed 将交易所 K 线转换为 SuperTrend 方向序列。
// 行情源失败统一包装为 ErrFeedUnavailable，由轮询驱动退避重试。
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"supertrend-flip-bot/internal/core/model"
	"supertrend-flip-bot/internal/indicator"
	"supertrend-flip-bot/internal/metadata"
)

// ErrFeedUnavailable 行情暂不可用（网络、接口错误或 K 线不足），可重试
var ErrFeedUnavailable = errors.New("行情源不可用")

// Feed 方向序列来源
type Feed interface {
	// FetchDirectionSeries 返回按时间升序的方向样本
	FetchDirectionSeries(ctx context.Context, symbol, timeframe string, lookback int) ([]model.DirectionSample, error)
}

// BarSource K 线来源（OKX REST / OKX WS / Binance REST）
type BarSource interface {
	// Name 来源名称，用于日志
	Name() string
	// Bars 返回最近 limit 根 K 线（升序）
	Bars(ctx context.Context, sym *metadata.SymbolMap, timeframe string, limit int) ([]model.Bar, error)
}

// SupertrendFeed 基于本地 SuperTrend 计算的方向序列来源
type SupertrendFeed struct {
	src           BarSource
	st            *indicator.Supertrend
	sym           *metadata.SymbolMap
	confirmedOnly bool
	logger        *zap.Logger
}

// NewSupertrendFeed 创建方向序列来源
// 参数 sym: 启动时解析（并确认）过的交易对；请求其他交易对时现场解析
// 参数 confirmedOnly: 为 true 时丢弃尚未收盘的 K 线
func NewSupertrendFeed(src BarSource, st *indicator.Supertrend, sym *metadata.SymbolMap, confirmedOnly bool, logger *zap.Logger) *SupertrendFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SupertrendFeed{
		src:           src,
		st:            st,
		sym:           sym,
		confirmedOnly: confirmedOnly,
		logger:        logger.Named("feed"),
	}
}

// FetchDirectionSeries 拉取 K 线并计算方向序列
func (f *SupertrendFeed) FetchDirectionSeries(ctx context.Context, symbol, timeframe string, lookback int) ([]model.DirectionSample, error) {
	sym, err := f.resolve(symbol)
	if err != nil {
		return nil, err
	}

	bars, err := f.src.Bars(ctx, sym, timeframe, lookback)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFeedUnavailable, f.src.Name(), err)
	}
	if f.confirmedOnly {
		bars = confirmed(bars)
	}

	samples, err := f.st.Directions(bars)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFeedUnavailable, f.src.Name(), err)
	}
	f.logger.Debug("方向序列已更新",
		zap.String("source", f.src.Name()),
		zap.Int("bars", len(bars)),
		zap.Int("samples", len(samples)),
	)
	return samples, nil
}

func (f *SupertrendFeed) resolve(symbol string) (*metadata.SymbolMap, error) {
	if f.sym != nil && (symbol == f.sym.Input || strings.EqualFold(symbol, f.sym.Display())) {
		return f.sym, nil
	}
	return metadata.ParseSymbol(symbol)
}

// confirmed 过滤未收盘 K 线
func confirmed(bars []model.Bar) []model.Bar {
	out := bars[:0:0]
	for _, b := range bars {
		if b.Confirmed {
			out = append(out, b)
		}
	}
	return out
}
