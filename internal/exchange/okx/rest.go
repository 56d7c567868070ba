package okx

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

// maxCandlesLimit OKX 单次请求上限
const maxCandlesLimit = 300

// RESTClient OKX REST K 线客户端（公共接口，无需签名）
type RESTClient struct {
	// baseURL 如 https://www.okx.com
	baseURL string
	// apiKey 可选，存在时附加到请求头
	apiKey string
	// client HTTP 客户端
	client *http.Client
	// limiter 请求速率限制
	limiter *rate.Limiter
	// logger 日志记录器
	logger *zap.Logger
}

// NewRESTClient 创建 REST 客户端
// 参数 cfg: 行情源配置（rest_url / rate_limit_per_sec / api key）
// 参数 timeout: 单次请求超时
func NewRESTClient(cfg config.FeedConfig, timeout time.Duration, logger *zap.Logger) *RESTClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RateLimitPerSec > 0 {
		limit = rate.Limit(cfg.RateLimitPerSec)
	}
	return &RESTClient{
		baseURL: cfg.RestURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("okx-rest"),
	}
}

// Name 行情源名称
func (c *RESTClient) Name() string {
	return "okx-rest"
}

// Bars 获取最近 limit 根 K 线（升序）
func (c *RESTClient) Bars(ctx context.Context, sym *metadata.SymbolMap, timeframe string, limit int) ([]model.Bar, error) {
	return c.Candles(ctx, sym.OKXInstId, timeframe, limit)
}

// Candles 请求 /api/v5/market/candles
// 参数 instID: 如 BTC-USDT
// 参数 timeframe: ccxt 风格周期，如 5m
func (c *RESTClient) Candles(ctx context.Context, instID, timeframe string, limit int) ([]model.Bar, error) {
	bar, err := BarFormat(timeframe)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxCandlesLimit {
		limit = maxCandlesLimit
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("等待限速失败: %w", err)
	}

	q := url.Values{}
	q.Set("instId", instID)
	q.Set("bar", bar)
	q.Set("limit", strconv.Itoa(limit))
	endpoint := c.baseURL + "/api/v5/market/candles?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("User-Agent", "supertrend-flip-bot/1.0")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求 OKX K 线失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OKX HTTP 状态码错误: %d", resp.StatusCode)
	}

	var out CandlesResponse
	if err := sonic.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("解析 OKX K 线失败: %w", err)
	}
	if out.Code != "0" {
		return nil, fmt.Errorf("OKX API 返回错误: code=%s, msg=%s", out.Code, out.Msg)
	}

	bars, err := ParseCandleRows(out.Data)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("获取 K 线",
		zap.String("inst_id", instID),
		zap.String("bar", bar),
		zap.Int("count", len(bars)),
	)
	return bars, nil
}
