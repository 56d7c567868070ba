// Package signal 翻转检测属性测试
package signal

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"supertrend-flip-bot/internal/core/model"
)

// **Feature: supertrend-flip-bot, Property 1: One Signal Per Flip**

func TestDetectAll_OneSignalPerFlip_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("信号数等于翻转次数，且信号方向与翻转方向一致", prop.ForAll(
		func(ups []bool) bool {
			dirs := make([]model.Direction, len(ups))
			for i, up := range ups {
				if up {
					dirs[i] = model.DirectionUp
				} else {
					dirs[i] = model.DirectionDown
				}
			}

			flips := 0
			for i := 1; i < len(dirs); i++ {
				if dirs[i] != dirs[i-1] {
					flips++
				}
			}

			sigs := DetectAll(samplesOf(dirs...))
			if len(sigs) != flips {
				return false
			}
			// 相邻信号必然交替
			for i := 1; i < len(sigs); i++ {
				if sigs[i].Kind == sigs[i-1].Kind {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	// **Feature: supertrend-flip-bot, Property 2: Detector Determinism**
	properties.Property("相同输入得到相同输出", prop.ForAll(
		func(a, b bool) bool {
			prev, curr := model.DirectionDown, model.DirectionDown
			if a {
				prev = model.DirectionUp
			}
			if b {
				curr = model.DirectionUp
			}
			return Detect(prev, curr) == Detect(prev, curr)
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
