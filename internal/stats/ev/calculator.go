// Package ev 实现模拟平仓结果的期望值（EV）统计。
// EV = p × W - (1 - p) × L
// p_required = L / (W + L)
// 其中 W、L 为平均盈利与平均亏损（百分比，L 取绝对值）。
package ev

import (
	"sync"

	"supertrend-flip-bot/internal/core/model"
)

type tradeSample struct {
	win    bool
	pnlPct float64
}

// EVStats EV 统计信息（滚动窗口）
type EVStats struct {
	// Count 样本数
	Count int64 `json:"count"`
	// WinCount 盈利样本数（pnl>0）
	WinCount int64 `json:"win_count"`
	// LossCount 亏损样本数（pnl<=0）
	LossCount int64 `json:"loss_count"`

	// WinRate 胜率 p
	WinRate float64 `json:"win_rate"`
	// AvgWin 平均盈利 W（百分比）
	AvgWin float64 `json:"avg_win_pct"`
	// AvgLoss 平均亏损 L（百分比绝对值）
	AvgLoss float64 `json:"avg_loss_pct"`
	// TotalPnL 窗口内盈亏百分比之和
	TotalPnL float64 `json:"total_pnl_pct"`

	// EV 每笔期望盈亏（百分比）
	EV float64 `json:"ev_pct"`
	// PRequired 盈亏平衡胜率
	PRequired float64 `json:"p_required"`
}

// Calculator EV 计算器（滚动窗口）
// 输入来自账本平仓记录，只用于汇总展示。
type Calculator struct {
	mu sync.Mutex

	// windowSize 滚动窗口大小
	windowSize int
	// buf 环形缓冲区
	buf []tradeSample
	// pos 写入位置
	pos int
	// full 是否已填满
	full bool

	// 维护滚动统计（O(1) 更新）
	count     int64
	winCount  int64
	lossCount int64
	sumWin    float64
	sumLoss   float64
}

// NewCalculator 创建 EV 计算器
// 参数 windowSize: 滚动窗口大小（建议 1000）
func NewCalculator(windowSize int) *Calculator {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &Calculator{
		windowSize: windowSize,
		buf:        make([]tradeSample, windowSize),
	}
}

// Add 添加一条账本记录
// 只统计携带盈亏的平仓记录，其他记录忽略
func (c *Calculator) Add(ev model.PositionEvent) {
	if !ev.Operation.IsClose() || ev.PnLPercent == nil {
		return
	}
	pnl := ev.PnLPercent.InexactFloat64()
	s := tradeSample{win: pnl > 0, pnlPct: pnl}

	c.mu.Lock()
	defer c.mu.Unlock()

	// 若环已满，移除旧样本对统计的贡献
	if c.full {
		old := c.buf[c.pos]
		c.count--
		if old.win {
			c.winCount--
			c.sumWin -= old.pnlPct
		} else {
			c.lossCount--
			c.sumLoss -= abs(old.pnlPct)
		}
	}

	c.buf[c.pos] = s
	c.pos++
	if c.pos >= c.windowSize {
		c.pos = 0
		c.full = true
	}

	c.count++
	if s.win {
		c.winCount++
		c.sumWin += s.pnlPct
	} else {
		c.lossCount++
		c.sumLoss += abs(s.pnlPct)
	}
}

// AddAll 批量添加
func (c *Calculator) AddAll(events []model.PositionEvent) {
	for _, ev := range events {
		c.Add(ev)
	}
}

// Stats 返回滚动窗口统计
func (c *Calculator) Stats() EVStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := EVStats{
		Count:     c.count,
		WinCount:  c.winCount,
		LossCount: c.lossCount,
		TotalPnL:  c.sumWin - c.sumLoss,
	}
	if c.count <= 0 {
		return out
	}

	out.WinRate = float64(c.winCount) / float64(c.count)
	if c.winCount > 0 {
		out.AvgWin = c.sumWin / float64(c.winCount)
	}
	if c.lossCount > 0 {
		out.AvgLoss = c.sumLoss / float64(c.lossCount)
	}

	// EV = p × W - (1 - p) × L
	p := out.WinRate
	out.EV = p*out.AvgWin - (1-p)*out.AvgLoss

	// p_required = L / (W + L)
	den := out.AvgWin + out.AvgLoss
	if den > 0 {
		out.PRequired = out.AvgLoss / den
	} else {
		out.PRequired = 1
	}

	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
