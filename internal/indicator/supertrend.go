// Package indicator 计算 SuperTrend 趋势方向。
// ATR 使用 Wilder 平滑：首值为前 period 个 TR 的均值，之后 atr = (prev*(n-1) + tr) / n。
package indicator

import (
	"errors"
	"fmt"
	"math"

	"supertrend-flip-bot/internal/core/model"
)

var (
	// ErrNotEnoughBars K 线数量不足以计算 ATR
	ErrNotEnoughBars = errors.New("K 线数量不足")
	// ErrUnsorted K 线时间不是严格递增
	ErrUnsorted = errors.New("K 线时间未严格递增")
)

// Supertrend SuperTrend 指标参数
type Supertrend struct {
	// Period ATR 周期
	Period int
	// Multiplier ATR 倍数
	Multiplier float64
}

// Point 单根 K 线上的指标值
type Point struct {
	// Upper 上轨（带棘轮）
	Upper float64
	// Lower 下轨（带棘轮）
	Lower float64
	// ATR 当根 ATR
	ATR float64
	// Direction 趋势方向
	Direction model.Direction
}

// NewSupertrend 创建指标
// 参数 period: ATR 周期（默认 7）
// 参数 multiplier: ATR 倍数（默认 3.0）
func NewSupertrend(period int, multiplier float64) (*Supertrend, error) {
	if period <= 0 {
		return nil, fmt.Errorf("ATR 周期必须为正数: %d", period)
	}
	if multiplier <= 0 || math.IsNaN(multiplier) || math.IsInf(multiplier, 0) {
		return nil, fmt.Errorf("ATR 倍数必须为正数: %v", multiplier)
	}
	return &Supertrend{Period: period, Multiplier: multiplier}, nil
}

// MinBars 产出至少两个方向样本所需的 K 线数量
func (s *Supertrend) MinBars() int {
	return s.Period + 1
}

// Compute 计算每根 K 线上的指标值
// 返回: 从第 period 根 K 线（ATR 首次可用）开始的指标序列，与 bars[period-1:] 一一对应
func (s *Supertrend) Compute(bars []model.Bar) ([]Point, error) {
	if len(bars) < s.Period {
		return nil, fmt.Errorf("%w: 需要 %d 根，实际 %d 根", ErrNotEnoughBars, s.Period, len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return nil, fmt.Errorf("%w: 第 %d 根 %v", ErrUnsorted, i, bars[i].Timestamp)
		}
	}

	n := float64(s.Period)
	start := s.Period - 1
	out := make([]Point, 0, len(bars)-start)

	var atr, sumTR float64
	for i, b := range bars {
		high := b.High.InexactFloat64()
		low := b.Low.InexactFloat64()
		closePx := b.Close.InexactFloat64()

		tr := high - low
		if i > 0 {
			prevClose := bars[i-1].Close.InexactFloat64()
			tr = math.Max(tr, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		}

		switch {
		case i < start:
			sumTR += tr
			continue
		case i == start:
			sumTR += tr
			atr = sumTR / n
		default:
			atr = (atr*(n-1) + tr) / n
		}

		hl2 := (high + low) / 2
		p := Point{
			Upper:     hl2 + s.Multiplier*atr,
			Lower:     hl2 - s.Multiplier*atr,
			ATR:       atr,
			Direction: model.DirectionUp,
		}

		if len(out) > 0 {
			prev := out[len(out)-1]
			switch {
			case closePx > prev.Upper:
				p.Direction = model.DirectionUp
			case closePx < prev.Lower:
				p.Direction = model.DirectionDown
			default:
				p.Direction = prev.Direction
				if p.Direction == model.DirectionUp && p.Lower < prev.Lower {
					p.Lower = prev.Lower
				}
				if p.Direction == model.DirectionDown && p.Upper > prev.Upper {
					p.Upper = prev.Upper
				}
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// Directions 计算方向序列
// 返回: 按时间升序的方向样本，价格取收盘价
func (s *Supertrend) Directions(bars []model.Bar) ([]model.DirectionSample, error) {
	points, err := s.Compute(bars)
	if err != nil {
		return nil, err
	}
	start := s.Period - 1
	samples := make([]model.DirectionSample, len(points))
	for i, p := range points {
		b := bars[start+i]
		samples[i] = model.DirectionSample{
			Timestamp: b.Timestamp,
			Direction: p.Direction,
			Close:     b.Close,
		}
	}
	return samples, nil
}
