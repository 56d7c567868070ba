// Package okx 实现 OKX 交易所的 K 线 WebSocket 客户端。
// 连接地址: wss://ws.okx.com:8443/ws/v5/business
// 订阅频道: candle{bar}，如 candle5m
// 心跳机制: 文本 ping/pong，25秒间隔，10秒超时
package okx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"supertrend-flip-bot/internal/config"
	"supertrend-flip-bot/internal/core/model"
	"supertrend-flip-bot/internal/core/store"
	"supertrend-flip-bot/internal/metadata"
	"supertrend-flip-bot/internal/util/backoff"
)

// ErrStale K 线窗口长时间未更新
var ErrStale = errors.New("WebSocket K 线窗口已过期")

// Client OKX K 线 WebSocket 客户端
// 推送写入本地 K 线窗口，轮询驱动通过 Bars 读取快照
type Client struct {
	// cfg 行情源配置
	cfg config.FeedConfig
	// instID 交易对 ID
	instID string
	// timeframe 周期（ccxt 风格）
	timeframe string
	// channel 订阅频道，如 candle5m
	channel string
	// window K 线窗口
	window *store.Window
	// rest 用于连接后回补历史 K 线，可为 nil
	rest *RESTClient
	// logger 日志记录器
	logger *zap.Logger

	// conn WebSocket 连接
	conn *websocket.Conn
	// connMu 连接锁（同时串行化写入）
	connMu sync.Mutex
	// backoff 重连退避
	backoff *backoff.Backoff

	// metrics 连接指标
	metrics ConnectionMetrics
	// metricsMu 指标锁
	metricsMu sync.RWMutex
	// lastMsgNs 最后消息时间（纳秒）
	lastMsgNs int64
	// lastPingSentNs 上次发送 ping 的时间（纳秒）
	lastPingSentNs int64
	// lastPongRecvNs 上次收到 pong 的时间（纳秒）
	lastPongRecvNs int64
	// closed 是否已关闭
	closed int32

	// parseErrSampleCount 解析错误计数（用于采样日志）
	parseErrSampleCount uint64
}

// NewClient 创建 OKX K 线 WebSocket 客户端
// 参数 cfg: 行情源配置
// 参数 sym: 交易对映射
// 参数 timeframe: 周期，如 5m
// 参数 rest: 回补用 REST 客户端
func NewClient(cfg config.FeedConfig, sym *metadata.SymbolMap, timeframe string, rest *RESTClient, logger *zap.Logger) (*Client, error) {
	bar, err := BarFormat(timeframe)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	capacity := cfg.Lookback
	if capacity < maxCandlesLimit {
		capacity = maxCandlesLimit
	}
	return &Client{
		cfg:       cfg,
		instID:    sym.OKXInstId,
		timeframe: timeframe,
		channel:   "candle" + bar,
		window:    store.New(capacity),
		rest:      rest,
		logger:    logger.Named("okx-ws"),
		backoff:   backoff.New(time.Second, 30*time.Second, 0.2),
	}, nil
}

// Name 行情源名称
func (c *Client) Name() string {
	return "okx-ws"
}

// Connect 建立 WebSocket 连接
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	header := http.Header{}
	header.Set("Origin", "https://www.okx.com")
	header.Set("User-Agent", "supertrend-flip-bot/1.0")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.WSURL, header)
	if err != nil {
		return fmt.Errorf("连接 OKX WebSocket 失败: %w", err)
	}

	c.conn = conn
	c.backoff.Reset()
	c.logger.Info("OKX WebSocket 连接成功", zap.String("url", c.cfg.WSURL))
	return nil
}

// Subscribe 订阅 K 线频道
func (c *Client) Subscribe() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("WebSocket 未连接")
	}

	req := SubscribeRequest{
		Op:   "subscribe",
		Args: []SubscribeArg{{Channel: c.channel, InstId: c.instID}},
	}
	data, err := sonic.Marshal(req)
	if err != nil {
		return fmt.Errorf("序列化订阅请求失败: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("发送订阅请求失败: %w", err)
	}

	c.logger.Info("OKX 订阅请求已发送", zap.String("channel", c.channel), zap.String("inst_id", c.instID))
	return nil
}

// Backfill 通过 REST 回补窗口
// 连接建立（含重连）后调用，补齐断线期间缺失的 K 线
func (c *Client) Backfill(ctx context.Context) error {
	if c.rest == nil {
		return nil
	}
	bars, err := c.rest.Candles(ctx, c.instID, c.timeframe, c.cfg.Lookback)
	if err != nil {
		return fmt.Errorf("回补 K 线失败: %w", err)
	}
	c.window.Seed(bars)
	c.logger.Info("K 线窗口已回补", zap.Int("bars", len(bars)))
	return nil
}

// Run 启动客户端主循环
// 包含读取循环和心跳循环，ctx 取消后返回
func (c *Client) Run(ctx context.Context) {
	go c.heartbeatLoop(ctx)
	c.readLoop(ctx)
}

// Bars 返回窗口中最近 limit 根 K 线（升序）
// 窗口为空时先尝试 REST 回补；长时间未收到推送返回 ErrStale
func (c *Client) Bars(ctx context.Context, _ *metadata.SymbolMap, _ string, limit int) ([]model.Bar, error) {
	if c.window.Len() == 0 {
		if err := c.Backfill(ctx); err != nil {
			return nil, err
		}
	}
	if age := c.messageAge(); age > c.staleAfter() {
		return nil, fmt.Errorf("%w: %s 未收到消息", ErrStale, age.Truncate(time.Second))
	}
	return c.window.Snapshot(limit), nil
}

// readLoop 读取循环
func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if atomic.LoadInt32(&c.closed) == 1 {
			return
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			c.reconnect(ctx)
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || atomic.LoadInt32(&c.closed) == 1 {
				return
			}
			c.logger.Warn("读取 OKX 消息失败", zap.Error(err))
			c.incrementReconnectCount()
			c.reconnect(ctx)
			continue
		}

		nowNs := time.Now().UnixNano()
		atomic.StoreInt64(&c.lastMsgNs, nowNs)

		if IsPong(data) {
			atomic.StoreInt64(&c.lastPongRecvNs, nowNs)
			if lastPing := atomic.LoadInt64(&c.lastPingSentNs); lastPing > 0 {
				c.metricsMu.Lock()
				c.metrics.WsRttMs = (nowNs - lastPing) / 1_000_000
				c.metricsMu.Unlock()
			}
			continue
		}

		if resp, ok := ParseSubscribeResponse(data); ok {
			if resp.Event == "error" {
				c.logger.Error("OKX 订阅失败", zap.String("code", resp.Code), zap.String("msg", resp.Msg))
			} else {
				c.logger.Debug("收到订阅响应", zap.ByteString("data", data))
			}
			continue
		}

		arg, bars, err := ParseCandleMessage(data)
		if err != nil {
			c.incrementParseErrorCount()
			c.maybeLogParseError(err, data)
			continue
		}
		if arg == nil || arg.InstId != c.instID {
			continue
		}
		for _, b := range bars {
			c.window.Upsert(b)
		}
		c.metricsMu.Lock()
		c.metrics.CandleUpdates += int64(len(bars))
		c.metricsMu.Unlock()
	}
}

// heartbeatLoop 心跳循环
// 每 ping_interval 发送 ping，期望 pong_timeout 内收到 pong
func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(c.cfg.PingIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.closed) == 1 {
				return
			}

			// 上一次 ping 未按期收到 pong
			lastPing := atomic.LoadInt64(&c.lastPingSentNs)
			lastPong := atomic.LoadInt64(&c.lastPongRecvNs)
			if lastPing > 0 && lastPong < lastPing &&
				time.Now().UnixNano()-lastPing > int64(c.cfg.PongTimeoutMs)*1_000_000 {
				c.logger.Warn("OKX 心跳超时，触发重连")
				c.incrementReconnectCount()
				c.closeConn()
				continue
			}

			c.connMu.Lock()
			conn := c.conn
			if conn == nil {
				c.connMu.Unlock()
				continue
			}
			// gorilla/websocket 不允许并发多写者，这里用 connMu 串行化写入
			pingNs := time.Now().UnixNano()
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				c.connMu.Unlock()
				c.logger.Warn("发送 OKX ping 失败", zap.Error(err))
				continue
			}
			atomic.StoreInt64(&c.lastPingSentNs, pingNs)
			c.connMu.Unlock()
		}
	}
}

// reconnect 重连并回补
func (c *Client) reconnect(ctx context.Context) {
	c.closeConn()

	if err := c.backoff.Wait(ctx); err != nil {
		return
	}
	if err := c.Connect(ctx); err != nil {
		c.logger.Error("OKX 重连失败", zap.Error(err))
		return
	}
	if err := c.Subscribe(); err != nil {
		c.logger.Error("OKX 重新订阅失败", zap.Error(err))
		return
	}
	if err := c.Backfill(ctx); err != nil {
		c.logger.Warn("重连后回补失败", zap.Error(err))
	}
}

// closeConn 关闭连接
func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close 关闭客户端
func (c *Client) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	c.closeConn()
	c.logger.Info("OKX 客户端已关闭")
	return nil
}

// Metrics 获取连接指标
func (c *Client) Metrics() ConnectionMetrics {
	c.metricsMu.RLock()
	defer c.metricsMu.RUnlock()
	m := c.metrics
	m.LastMessageAgeMs = c.messageAge().Milliseconds()
	m.LastCandleAgeMs = -1
	if last := c.window.LastUpdate(); !last.IsZero() {
		m.LastCandleAgeMs = time.Since(last).Milliseconds()
	}
	return m
}

// messageAge 最后一条消息距今时间，从未收到消息时返回 0
func (c *Client) messageAge() time.Duration {
	last := atomic.LoadInt64(&c.lastMsgNs)
	if last == 0 {
		return 0
	}
	return time.Duration(time.Now().UnixNano() - last)
}

// staleAfter 窗口过期阈值：两个心跳周期加一次 pong 超时
func (c *Client) staleAfter() time.Duration {
	return time.Duration(2*c.cfg.PingIntervalMs+c.cfg.PongTimeoutMs) * time.Millisecond
}

func (c *Client) incrementReconnectCount() {
	c.metricsMu.Lock()
	c.metrics.ReconnectCount++
	c.metricsMu.Unlock()
}

func (c *Client) incrementParseErrorCount() {
	c.metricsMu.Lock()
	c.metrics.ParseErrorCount++
	c.metricsMu.Unlock()
}

// maybeLogParseError 采样记录解析错误原始消息
// 第 1 次及之后每 100 次记录 1 条
func (c *Client) maybeLogParseError(err error, data []byte) {
	count := atomic.AddUint64(&c.parseErrSampleCount, 1)
	if count != 1 && count%100 != 0 {
		return
	}
	sample := data
	if len(sample) > 200 {
		sample = sample[:200]
	}
	c.logger.Warn("解析 OKX 消息失败（采样）", zap.Error(err), zap.ByteString("data", sample), zap.Uint64("count", count))
}
