// Package config 负责加载和验证 YAML 配置文件。
// 提供翻转机器人所需的全部配置项：交易对、轮询节奏、行情源、指标参数、账本与输出。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// 环境变量覆盖项（.env 由 main 通过 godotenv 预先加载）
const (
	envSymbol       = "BOT_SYMBOL"
	envTimeframe    = "BOT_TIMEFRAME"
	envPollInterval = "BOT_POLL_INTERVAL_SEC"
	envOKXAPIKey    = "OKX_API_KEY"
)

// 行情源取值
const (
	VenueOKX     = "okx"
	VenueBinance = "binance"

	ModeREST = "rest"
	ModeWS   = "ws"
)

// Config 应用配置根结构
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Symbol 交易对与 K 线周期
	Symbol SymbolConfig `yaml:"symbol"`
	// Poll 轮询驱动配置
	Poll PollConfig `yaml:"poll"`
	// Feed 行情源配置
	Feed FeedConfig `yaml:"feed"`
	// Indicator SuperTrend 指标参数
	Indicator IndicatorConfig `yaml:"indicator"`
	// Metadata 启动时交易对校验配置
	Metadata MetadataConfig `yaml:"metadata"`
	// Ledger 交易账本配置
	Ledger LedgerConfig `yaml:"ledger"`
	// Output 状态快照输出配置
	Output OutputConfig `yaml:"output"`
	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
	// HaltOnInconsistency 出现半翻转等不一致状态时是否停止轮询
	HaltOnInconsistency bool `yaml:"halt_on_inconsistency"`
}

// SymbolConfig 交易对配置
type SymbolConfig struct {
	// Input 用户输入的交易对，如 BTC/USDT
	Input string `yaml:"input"`
	// Timeframe K 线周期，如 5m、1h
	Timeframe string `yaml:"timeframe"`
}

// PollConfig 轮询驱动配置
type PollConfig struct {
	// IntervalSec 轮询间隔（秒）
	IntervalSec int `yaml:"interval_sec"`
	// FeedTimeoutMs 单次行情请求超时（毫秒）
	FeedTimeoutMs int `yaml:"feed_timeout_ms"`
	// RetryBaseMs 行情失败后的首次等待（毫秒）
	RetryBaseMs int `yaml:"retry_base_ms"`
	// RetryMaxMs 行情失败等待上限（毫秒），等于 RetryBaseMs 时为固定退避
	RetryMaxMs int `yaml:"retry_max_ms"`
	// RetryJitter 退避抖动比例（0-1）
	RetryJitter float64 `yaml:"retry_jitter"`
	// SummaryIntervalSec 每日汇总输出间隔（秒）
	SummaryIntervalSec int `yaml:"summary_interval_sec"`
}

// FeedConfig 行情源配置
type FeedConfig struct {
	// Venue 行情交易所: okx 或 binance
	Venue string `yaml:"venue"`
	// Mode 获取方式: rest（每轮拉取）或 ws（订阅 K 线频道，本地缓存窗口）
	Mode string `yaml:"mode"`
	// RestURL REST 基础地址
	RestURL string `yaml:"rest_url"`
	// WSURL WebSocket 地址（仅 okx ws 模式）
	WSURL string `yaml:"ws_url"`
	// Lookback 每次拉取的 K 线数量
	Lookback int `yaml:"lookback"`
	// RateLimitPerSec REST 请求速率上限
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	// ConfirmedOnly 是否丢弃尚未收盘的最新 K 线
	ConfirmedOnly bool `yaml:"confirmed_only"`
	// PingIntervalMs WS 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
	// PongTimeoutMs WS 心跳响应超时（毫秒）
	PongTimeoutMs int `yaml:"pong_timeout_ms"`
	// APIKey 可选的 API Key（只从环境变量读取）
	APIKey string `yaml:"-"`
}

// IndicatorConfig SuperTrend 参数
type IndicatorConfig struct {
	// Period ATR 周期
	Period int `yaml:"period"`
	// Multiplier ATR 倍数
	Multiplier float64 `yaml:"multiplier"`
}

// MetadataConfig 交易对校验配置
type MetadataConfig struct {
	// Enabled 启动时是否向交易所确认交易对存在
	Enabled bool `yaml:"enabled"`
	// OKX OKX 现货元数据 API 地址
	OKX string `yaml:"okx"`
	// Binance Binance 现货元数据 API 地址
	Binance string `yaml:"binance"`
	// TimeoutMs HTTP 请求超时时间（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
}

// LedgerConfig 交易账本配置
type LedgerConfig struct {
	// Dir 账本根目录
	Dir string `yaml:"dir"`
	// MaxRecordsPerDay 结构化存储每天保留的记录上限
	MaxRecordsPerDay int `yaml:"max_records_per_day"`
	// PositionSize 模拟仓位数量（十进制字符串）
	PositionSize string `yaml:"position_size"`
	// Timezone 日期分桶所用时区，空为本地时区
	Timezone string `yaml:"timezone"`
}

// OutputConfig 状态快照输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// StatusEnabled 是否输出 status.jsonl
	StatusEnabled bool `yaml:"status_enabled"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// Enabled 是否暴露 /metrics
	Enabled bool `yaml:"enabled"`
	// Addr 监听地址
	Addr string `yaml:"addr"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// applyEnv 使用环境变量覆盖启动参数
func (c *Config) applyEnv() {
	if v := os.Getenv(envSymbol); v != "" {
		c.Symbol.Input = v
	}
	if v := os.Getenv(envTimeframe); v != "" {
		c.Symbol.Timeframe = v
	}
	if v := os.Getenv(envPollInterval); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Poll.IntervalSec = n
		}
	}
	c.Feed.APIKey = os.Getenv(envOKXAPIKey)
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "supertrend-flip-bot"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	if c.Symbol.Input == "" {
		c.Symbol.Input = "BTC/USDT"
	}
	if c.Symbol.Timeframe == "" {
		c.Symbol.Timeframe = "5m"
	}

	if c.Poll.IntervalSec == 0 {
		c.Poll.IntervalSec = 30
	}
	if c.Poll.FeedTimeoutMs == 0 {
		c.Poll.FeedTimeoutMs = 10000 // 10 秒
	}
	if c.Poll.RetryBaseMs == 0 {
		c.Poll.RetryBaseMs = 30000 // 30 秒
	}
	if c.Poll.RetryMaxMs == 0 {
		c.Poll.RetryMaxMs = c.Poll.RetryBaseMs
	}
	if c.Poll.SummaryIntervalSec == 0 {
		c.Poll.SummaryIntervalSec = 3600 // 1 小时
	}

	if c.Feed.Venue == "" {
		c.Feed.Venue = VenueOKX
	}
	if c.Feed.Mode == "" {
		c.Feed.Mode = ModeREST
	}
	if c.Feed.RestURL == "" {
		switch c.Feed.Venue {
		case VenueBinance:
			c.Feed.RestURL = "https://api.binance.com"
		default:
			c.Feed.RestURL = "https://www.okx.com"
		}
	}
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = "wss://ws.okx.com:8443/ws/v5/business"
	}
	if c.Feed.Lookback == 0 {
		c.Feed.Lookback = 100
	}
	if c.Feed.RateLimitPerSec == 0 {
		c.Feed.RateLimitPerSec = 5
	}
	if c.Feed.PingIntervalMs == 0 {
		c.Feed.PingIntervalMs = 25000 // 25 秒
	}
	if c.Feed.PongTimeoutMs == 0 {
		c.Feed.PongTimeoutMs = 10000 // 10 秒
	}

	if c.Indicator.Period == 0 {
		c.Indicator.Period = 7
	}
	if c.Indicator.Multiplier == 0 {
		c.Indicator.Multiplier = 3.0
	}

	if c.Metadata.OKX == "" {
		c.Metadata.OKX = "https://www.okx.com/api/v5/public/instruments?instType=SPOT"
	}
	if c.Metadata.Binance == "" {
		c.Metadata.Binance = "https://api.binance.com/api/v3/exchangeInfo"
	}
	if c.Metadata.TimeoutMs == 0 {
		c.Metadata.TimeoutMs = 10000
	}

	if c.Ledger.Dir == "" {
		c.Ledger.Dir = "./trade_logs"
	}
	if c.Ledger.MaxRecordsPerDay == 0 {
		c.Ledger.MaxRecordsPerDay = 1000
	}
	if c.Ledger.PositionSize == "" {
		c.Ledger.PositionSize = "0.001"
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9108"
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Symbol.Input) == "" {
		errs = append(errs, "symbol.input: 交易对不能为空")
	}
	if !validTimeframes[c.Symbol.Timeframe] {
		errs = append(errs, fmt.Sprintf("symbol.timeframe: 不支持的周期 '%s'", c.Symbol.Timeframe))
	}

	if c.Poll.IntervalSec <= 0 {
		errs = append(errs, "poll.interval_sec: 轮询间隔必须为正数")
	}
	if c.Poll.FeedTimeoutMs <= 0 {
		errs = append(errs, "poll.feed_timeout_ms: 超时必须为正数")
	}
	if c.Poll.RetryBaseMs <= 0 {
		errs = append(errs, "poll.retry_base_ms: 退避时间必须为正数")
	}
	if c.Poll.RetryMaxMs < c.Poll.RetryBaseMs {
		errs = append(errs, "poll.retry_max_ms: 不能小于 retry_base_ms")
	}
	if c.Poll.RetryJitter < 0 || c.Poll.RetryJitter > 1 {
		errs = append(errs, "poll.retry_jitter: 抖动比例必须在 0-1 之间")
	}
	if c.Poll.SummaryIntervalSec <= 0 {
		errs = append(errs, "poll.summary_interval_sec: 汇总间隔必须为正数")
	}

	switch c.Feed.Venue {
	case VenueOKX, VenueBinance:
	default:
		errs = append(errs, fmt.Sprintf("feed.venue: 无效的交易所 '%s'，有效值: okx, binance", c.Feed.Venue))
	}
	switch c.Feed.Mode {
	case ModeREST:
	case ModeWS:
		if c.Feed.Venue != VenueOKX {
			errs = append(errs, "feed.mode: ws 模式仅支持 okx")
		}
		if c.Feed.WSURL == "" {
			errs = append(errs, "feed.ws_url: WebSocket 地址不能为空")
		}
	default:
		errs = append(errs, fmt.Sprintf("feed.mode: 无效的模式 '%s'，有效值: rest, ws", c.Feed.Mode))
	}
	if c.Feed.RestURL == "" {
		errs = append(errs, "feed.rest_url: REST 地址不能为空")
	}
	if c.Feed.Lookback < c.Indicator.Period+2 {
		errs = append(errs, fmt.Sprintf("feed.lookback: 至少需要 %d 根 K 线", c.Indicator.Period+2))
	}
	if c.Feed.RateLimitPerSec < 0 {
		errs = append(errs, "feed.rate_limit_per_sec: 不能为负数")
	}

	if c.Indicator.Period <= 0 {
		errs = append(errs, "indicator.period: ATR 周期必须为正数")
	}
	if c.Indicator.Multiplier <= 0 {
		errs = append(errs, "indicator.multiplier: ATR 倍数必须为正数")
	}

	if c.Ledger.Dir == "" {
		errs = append(errs, "ledger.dir: 账本目录不能为空")
	}
	if c.Ledger.MaxRecordsPerDay <= 0 {
		errs = append(errs, "ledger.max_records_per_day: 必须为正数")
	}
	if size, err := decimal.NewFromString(c.Ledger.PositionSize); err != nil || !size.IsPositive() {
		errs = append(errs, fmt.Sprintf("ledger.position_size: 无效的仓位数量 '%s'", c.Ledger.PositionSize))
	}
	if _, err := c.Ledger.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("ledger.timezone: %v", err))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// validTimeframes 支持的 K 线周期（ccxt 风格写法）
var validTimeframes = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "12h": true,
	"1d": true,
}

// Size 返回模拟仓位数量
// 调用前需已通过 Validate
func (l *LedgerConfig) Size() decimal.Decimal {
	size, err := decimal.NewFromString(l.PositionSize)
	if err != nil {
		return decimal.Zero
	}
	return size
}

// Location 返回日期分桶所用时区
func (l *LedgerConfig) Location() (*time.Location, error) {
	if l.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return nil, fmt.Errorf("无效的时区 '%s': %w", l.Timezone, err)
	}
	return loc, nil
}
