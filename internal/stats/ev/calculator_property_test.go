// Package ev EV 计算器属性测试
package ev

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"supertrend-flip-bot/internal/core/model"
)

// **Feature: supertrend-flip-bot, Property 10: Rolling Statistics Correctness**

func TestCalculator_RollingStats_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 80
	properties := gopter.NewProperties(parameters)

	properties.Property("Stats 与手工聚合一致（window>=n）", prop.ForAll(
		func(pnls []float64) bool {
			n := len(pnls)
			if n == 0 {
				return true
			}
			c := NewCalculator(n + 10)

			var count, winCount, lossCount int64
			var sumWin, sumLoss float64
			for _, raw := range pnls {
				d := decimal.NewFromFloat(raw).Round(2)
				v := d.InexactFloat64()
				c.Add(model.PositionEvent{Operation: model.OpCloseShort, PnLPercent: model.DecimalPtr(d)})

				count++
				if v > 0 {
					winCount++
					sumWin += v
				} else {
					lossCount++
					sumLoss += math.Abs(v)
				}
			}

			s := c.Stats()
			if s.Count != count || s.WinCount != winCount || s.LossCount != lossCount {
				return false
			}
			wantP := float64(winCount) / float64(count)
			var wantW, wantL float64
			if winCount > 0 {
				wantW = sumWin / float64(winCount)
			}
			if lossCount > 0 {
				wantL = sumLoss / float64(lossCount)
			}
			if !approx(s.WinRate, wantP, 1e-9) || !approx(s.AvgWin, wantW, 1e-6) || !approx(s.AvgLoss, wantL, 1e-6) {
				return false
			}
			return approx(s.EV, wantP*wantW-(1-wantP)*wantL, 1e-6)
		},
		gen.SliceOfN(20, gen.Float64Range(-50, 50)),
	))

	properties.TestingRun(t)
}

// **Feature: supertrend-flip-bot, Property 13: Breakeven Win Rate**

func TestCalculator_PRequired_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 80
	properties := gopter.NewProperties(parameters)

	properties.Property("胜率等于 p_required 时 EV 为 0", prop.ForAll(
		func(pnls []float64) bool {
			c := NewCalculator(len(pnls) + 1)
			for _, raw := range pnls {
				d := decimal.NewFromFloat(raw).Round(2)
				c.Add(model.PositionEvent{Operation: model.OpCloseLong, PnLPercent: model.DecimalPtr(d)})
			}
			s := c.Stats()
			if s.Count == 0 || s.AvgWin+s.AvgLoss == 0 {
				return true
			}
			p := s.PRequired
			return approx(p*s.AvgWin-(1-p)*s.AvgLoss, 0, 1e-6)
		},
		gen.SliceOfN(30, gen.Float64Range(-50, 50)),
	))

	properties.TestingRun(t)
}

func approx(a float64, b float64, eps float64) bool {
	return math.Abs(a-b) <= eps
}
