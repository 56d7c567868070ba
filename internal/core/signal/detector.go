// Package signal 实现趋势方向翻转检测。
// 检测是纯函数：相同的两个方向值永远得到相同结果，无需实时行情即可确定性测试。
package signal

import (
	"errors"
	"fmt"

	"supertrend-flip-bot/internal/core/model"
)

var (
	// ErrInsufficientData 方向样本不足两个
	ErrInsufficientData = errors.New("方向样本不足")
	// ErrNotConsecutive 最新两个样本的时间不是严格递增
	ErrNotConsecutive = errors.New("方向样本不连续")
	// ErrInvalidDirection 方向值不是 +1/-1
	ErrInvalidDirection = errors.New("无效的方向值")
)

// Detect 比较相邻两根 K 线的方向值
// -1 -> +1 返回 ENTER_LONG；+1 -> -1 返回 ENTER_SHORT；其余返回 SignalNone
func Detect(prev, curr model.Direction) model.SignalKind {
	switch {
	case prev == model.DirectionDown && curr == model.DirectionUp:
		return model.SignalEnterLong
	case prev == model.DirectionUp && curr == model.DirectionDown:
		return model.SignalEnterShort
	default:
		return model.SignalNone
	}
}

// DetectLatest 对序列中最新的两个样本做翻转检测
// 返回: 有翻转时返回信号（价格与时间取自最新样本），保持时返回 nil
func DetectLatest(samples []model.DirectionSample) (*model.SignalEvent, error) {
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: 需要 2 个，实际 %d 个", ErrInsufficientData, len(samples))
	}

	prev := samples[len(samples)-2]
	curr := samples[len(samples)-1]
	if !prev.Direction.Valid() || !curr.Direction.Valid() {
		return nil, fmt.Errorf("%w: prev=%d curr=%d", ErrInvalidDirection, prev.Direction, curr.Direction)
	}
	if !curr.Timestamp.After(prev.Timestamp) {
		return nil, fmt.Errorf("%w: prev=%s curr=%s", ErrNotConsecutive, prev.Timestamp, curr.Timestamp)
	}

	kind := Detect(prev.Direction, curr.Direction)
	if kind == model.SignalNone {
		return nil, nil
	}
	return &model.SignalEvent{
		Kind:      kind,
		Price:     curr.Close,
		Timestamp: curr.Timestamp,
	}, nil
}

// DetectAll 扫描整段序列，返回每次翻转对应的信号
// 用于回放历史方向序列
func DetectAll(samples []model.DirectionSample) []model.SignalEvent {
	var out []model.SignalEvent
	for i := 1; i < len(samples); i++ {
		if sig, err := DetectLatest(samples[i-1 : i+1]); err == nil && sig != nil {
			out = append(out, *sig)
		}
	}
	return out
}
