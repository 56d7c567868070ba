// Package store 维护单交易对的滚动 K 线窗口。
// WebSocket 读循环写入，轮询驱动读取快照，读写通过 RWMutex 串行化。
package store

import (
	"sort"
	"sync"
	"time"

	"supertrend-flip-bot/internal/core/model"
)

// Window 按时间升序的 K 线窗口
// 同一时间戳的 K 线以最新推送为准（未收盘 K 线会被多次更新）
type Window struct {
	mu sync.RWMutex
	// bars 升序 K 线
	bars []model.Bar
	// max 窗口容量
	max int
	// updatedAt 最后一次写入的墙钟时间
	updatedAt time.Time
}

// New 创建 K 线窗口
// 参数 max: 最多保留的 K 线数量
func New(max int) *Window {
	if max <= 0 {
		max = 1
	}
	return &Window{
		bars: make([]model.Bar, 0, max),
		max:  max,
	}
}

// Seed 用一批历史 K 线重置窗口（通常来自 REST 回补）
func (w *Window) Seed(bars []model.Bar) {
	sorted := append([]model.Bar(nil), bars...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	w.bars = w.bars[:0]
	for _, b := range sorted {
		w.upsertLocked(b)
	}
	w.updatedAt = time.Now()
}

// Upsert 写入一根 K 线
// 比窗口最早 K 线更早的数据被丢弃
func (w *Window) Upsert(b model.Bar) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.upsertLocked(b)
	w.updatedAt = time.Now()
}

func (w *Window) upsertLocked(b model.Bar) {
	n := len(w.bars)
	switch {
	case n == 0 || b.Timestamp.After(w.bars[n-1].Timestamp):
		w.bars = append(w.bars, b)
	case b.Timestamp.Equal(w.bars[n-1].Timestamp):
		w.bars[n-1] = b
	default:
		i := sort.Search(n, func(i int) bool { return !w.bars[i].Timestamp.Before(b.Timestamp) })
		if i < n && w.bars[i].Timestamp.Equal(b.Timestamp) {
			w.bars[i] = b
			return
		}
		if i == 0 && n >= w.max {
			return
		}
		w.bars = append(w.bars, model.Bar{})
		copy(w.bars[i+1:], w.bars[i:])
		w.bars[i] = b
	}
	if len(w.bars) > w.max {
		w.bars = append(w.bars[:0], w.bars[len(w.bars)-w.max:]...)
	}
}

// Snapshot 返回最近 limit 根 K 线的副本（升序）
// limit <= 0 返回全部
func (w *Window) Snapshot(limit int) []model.Bar {
	w.mu.RLock()
	defer w.mu.RUnlock()
	start := 0
	if limit > 0 && len(w.bars) > limit {
		start = len(w.bars) - limit
	}
	return append([]model.Bar(nil), w.bars[start:]...)
}

// Len 返回窗口内 K 线数量
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.bars)
}

// LastUpdate 返回最后一次写入时间，零值表示从未写入
func (w *Window) LastUpdate() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.updatedAt
}
