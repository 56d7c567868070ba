// Package metrics 暴露 Prometheus 指标。
// 所有方法对 nil 接收者安全，未启用指标时组件可直接传 nil。
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics 机器人指标集合
type Metrics struct {
	registry *prometheus.Registry

	polls        *prometheus.CounterVec
	feedLatency  prometheus.Histogram
	signals      *prometheus.CounterVec
	ledgerWrites *prometheus.CounterVec
	ledgerStale  prometheus.Gauge
	positionSide prometheus.Gauge
	lastPrice    prometheus.Gauge
	closedPnL    prometheus.Histogram
}

// New 创建指标集合并注册到独立的 Registry
// 参数 symbol: 交易对，作为常量标签
func New(symbol string) *Metrics {
	labels := prometheus.Labels{"symbol": symbol}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "bot_polls_total", Help: "Poll cycles by result", ConstLabels: labels},
			[]string{"result"},
		),
		feedLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "bot_feed_latency_seconds",
			Help:        "Indicator feed call latency",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "bot_signals_total", Help: "Flip signals detected", ConstLabels: labels},
			[]string{"kind"},
		),
		ledgerWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "bot_ledger_writes_total", Help: "Ledger writes by store and result", ConstLabels: labels},
			[]string{"store", "result"},
		),
		ledgerStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_ledger_structured_stale", Help: "1 when the structured store lags the line store", ConstLabels: labels,
		}),
		positionSide: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_position_side", Help: "Simulated position: -1 short, 0 flat, 1 long", ConstLabels: labels,
		}),
		lastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_last_price", Help: "Close price of the newest sample", ConstLabels: labels,
		}),
		closedPnL: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "bot_closed_pnl_percent",
			Help:        "Realized percent P&L of closed simulated positions",
			ConstLabels: labels,
			Buckets:     []float64{-10, -5, -2, -1, -0.5, 0, 0.5, 1, 2, 5, 10},
		}),
	}
	m.registry.MustRegister(
		m.polls, m.feedLatency, m.signals, m.ledgerWrites,
		m.ledgerStale, m.positionSide, m.lastPrice, m.closedPnL,
	)
	return m
}

// Registry 返回底层 Registry（测试用）
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve 启动 /metrics 服务，ctx 取消时关闭
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("指标服务异常退出", zap.String("addr", addr), zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return srv
}

// ObservePoll 记录一次轮询结果（ok / feed_error / duplicate / machine_error）
func (m *Metrics) ObservePoll(result string, latency time.Duration) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result).Inc()
	if latency > 0 {
		m.feedLatency.Observe(latency.Seconds())
	}
}

// ObserveSignal 记录检测到的信号
func (m *Metrics) ObserveSignal(kind string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(kind).Inc()
}

// ObserveLedgerWrite 记录账本写入结果
// 参数 store: csv 或 json
func (m *Metrics) ObserveLedgerWrite(store string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ledgerWrites.WithLabelValues(store, result).Inc()
}

// SetLedgerStale 设置结构化存储过期标记
func (m *Metrics) SetLedgerStale(stale bool) {
	if m == nil {
		return
	}
	if stale {
		m.ledgerStale.Set(1)
	} else {
		m.ledgerStale.Set(0)
	}
}

// SetPosition 设置持仓方向（-1/0/1）
func (m *Metrics) SetPosition(side int) {
	if m == nil {
		return
	}
	m.positionSide.Set(float64(side))
}

// SetLastPrice 设置最新价格
func (m *Metrics) SetLastPrice(price float64) {
	if m == nil {
		return
	}
	m.lastPrice.Set(price)
}

// ObserveClose 记录一次平仓盈亏百分比
func (m *Metrics) ObserveClose(pnlPercent float64) {
	if m == nil {
		return
	}
	m.closedPnL.Observe(pnlPercent)
}
