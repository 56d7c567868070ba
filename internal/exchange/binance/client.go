// Package binance 实现 Binance 现货 K 线 REST 客户端。
// 接口地址: GET /api/v3/klines
// 限速: 本地令牌桶，超出后等待
package binance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"supertrend-flip-bot/internal/config"
	"supertrend-flip-bot/internal/core/model"
	"supertrend-flip-bot/internal/metadata"
)

// maxKlinesLimit Binance 单次请求上限
const maxKlinesLimit = 1000

// Client Binance REST K 线客户端
type Client struct {
	// baseURL 如 https://api.binance.com
	baseURL string
	// client HTTP 客户端
	client *http.Client
	// limiter 请求速率限制
	limiter *rate.Limiter
	// now 墙钟（判断 K 线是否收盘）
	now func() time.Time
	// logger 日志记录器
	logger *zap.Logger
}

// NewClient 创建 Binance REST 客户端
// 参数 cfg: 行情源配置
// 参数 timeout: 单次请求超时
func NewClient(cfg config.FeedConfig, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RateLimitPerSec > 0 {
		limit = rate.Limit(cfg.RateLimitPerSec)
	}
	return &Client{
		baseURL: cfg.RestURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
		logger:  logger.Named("binance"),
	}
}

// Name 行情源名称
func (c *Client) Name() string {
	return "binance-rest"
}

// Bars 获取最近 limit 根 K 线（升序）
func (c *Client) Bars(ctx context.Context, sym *metadata.SymbolMap, timeframe string, limit int) ([]model.Bar, error) {
	return c.Klines(ctx, sym.BinanceSym, timeframe, limit)
}

// Klines 请求 /api/v3/klines
// 参数 symbol: 如 BTCUSDT
// 参数 timeframe: ccxt 风格周期
func (c *Client) Klines(ctx context.Context, symbol, timeframe string, limit int) ([]model.Bar, error) {
	interval, err := Interval(timeframe)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxKlinesLimit {
		limit = maxKlinesLimit
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("等待限速失败: %w", err)
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	endpoint := c.baseURL + "/api/v3/klines?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("User-Agent", "supertrend-flip-bot/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求 Binance K 线失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr APIError
		if sonic.Unmarshal(body, &apiErr) == nil && apiErr.Code != 0 {
			return nil, fmt.Errorf("Binance API 返回错误: code=%d, msg=%s", apiErr.Code, apiErr.Msg)
		}
		return nil, fmt.Errorf("Binance HTTP 状态码错误: %d", resp.StatusCode)
	}

	bars, err := ParseKlines(body, c.now())
	if err != nil {
		return nil, err
	}
	c.logger.Debug("获取 K 线",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("count", len(bars)),
	)
	return bars, nil
}
