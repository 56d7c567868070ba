// Package main 是 SuperTrend 翻转机器人的入口点。
// 按固定节奏拉取 K 线，计算 SuperTrend 方向，在方向翻转时切换模拟仓位，
// 每次仓位变化都同步写入交易账本（按日 CSV + 按月 JSON）。
//
// 重要：本系统只模拟仓位，不向交易所发送任何订单。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"supertrend-flip-bot/internal/config"
	"supertrend-flip-bot/internal/core/paper"
	"supertrend-flip-bot/internal/driver"
	"supertrend-flip-bot/internal/exchange/binance"
	"supertrend-flip-bot/internal/exchange/okx"
	"supertrend-flip-bot/internal/feed"
	"supertrend-flip-bot/internal/indicator"
	"supertrend-flip-bot/internal/ledger"
	"supertrend-flip-bot/internal/metadata"
	"supertrend-flip-bot/internal/metrics"
	"supertrend-flip-bot/internal/output/jsonl"
	"supertrend-flip-bot/internal/util/timeutil"
)

func main() {
	var (
		configPath string
		envPath    string
		symbol     string
		timeframe  string
		interval   int
	)
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.StringVar(&envPath, "env", ".env", "环境变量文件路径（不存在时忽略）")
	flag.StringVar(&symbol, "symbol", "", "交易对，如 BTC/USDT（覆盖配置）")
	flag.StringVar(&timeframe, "timeframe", "", "K 线周期，如 5m（覆盖配置）")
	flag.IntVar(&interval, "interval", 0, "轮询间隔秒数（覆盖配置）")
	flag.Parse()

	// .env 只提供默认值，不覆盖已存在的环境变量
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "加载 %s 失败: %v\n", envPath, err)
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if symbol != "" {
		cfg.Symbol.Input = symbol
	}
	if timeframe != "" {
		cfg.Symbol.Timeframe = timeframe
	}
	if interval > 0 {
		cfg.Poll.IntervalSec = interval
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置验证失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel).With(zap.String("app", cfg.App.Name))
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("机器人异常退出", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) (err error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	// 启动时解析交易对，按配置向交易所确认其存在
	fetcher := metadata.NewHTTPFetcher(cfg.Metadata.TimeoutMs)
	sym, err := metadata.Resolve(ctx, cfg, fetcher)
	if err != nil {
		return fmt.Errorf("解析交易对失败: %w", err)
	}
	logger.Info("交易对已确认",
		zap.String("symbol", sym.Display()),
		zap.String("okx_inst_id", sym.OKXInstId),
		zap.String("binance_symbol", sym.BinanceSym),
		zap.String("venue", cfg.Feed.Venue),
		zap.String("mode", cfg.Feed.Mode),
	)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(sym.Display())
		m.Serve(ctx, cfg.Metrics.Addr, logger)
		logger.Info("指标服务已启动", zap.String("addr", cfg.Metrics.Addr))
	}

	book, err := ledger.Open(cfg.Ledger, sym.Display(), logger, ledger.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("打开账本失败: %w", err)
	}
	defer func() {
		err = multierr.Append(err, book.Close())
	}()

	machine := paper.NewMachine(sym.Display(), cfg.Ledger.Size(), book, logger)
	st, found, err := book.Recover()
	if err != nil {
		return fmt.Errorf("从账本恢复状态失败: %w", err)
	}
	if found {
		if err := machine.Restore(st); err != nil {
			return err
		}
	}

	src, closeSrc, err := newBarSource(ctx, cfg, sym, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, closeSrc())
	}()

	trend, err := indicator.NewSupertrend(cfg.Indicator.Period, cfg.Indicator.Multiplier)
	if err != nil {
		return err
	}
	f := feed.NewSupertrendFeed(src, trend, sym, cfg.Feed.ConfirmedOnly, logger)

	opts := []driver.Option{driver.WithMetrics(m)}
	if cfg.Output.StatusEnabled {
		w, werr := jsonl.NewWriter(filepath.Join(cfg.Output.Dir, "status.jsonl"), cfg.Output.BufferSize)
		if werr != nil {
			return fmt.Errorf("创建 status writer 失败: %w", werr)
		}
		defer func() {
			err = multierr.Append(err, w.Close())
		}()
		opts = append(opts, driver.WithSnapshotWriter(w))
	}

	d := driver.New(cfg, f, machine, book, logger, opts...)
	return d.Run(ctx)
}

// newBarSource 按配置创建 K 线来源
// 返回: 来源与关闭函数
func newBarSource(ctx context.Context, cfg *config.Config, sym *metadata.SymbolMap, logger *zap.Logger) (feed.BarSource, func() error, error) {
	timeout := timeutil.DurationMs(cfg.Poll.FeedTimeoutMs)
	noop := func() error { return nil }

	switch {
	case cfg.Feed.Venue == config.VenueBinance:
		return binance.NewClient(cfg.Feed, timeout, logger), noop, nil

	case cfg.Feed.Mode == config.ModeWS:
		rest := okx.NewRESTClient(cfg.Feed, timeout, logger)
		ws, err := okx.NewClient(cfg.Feed, sym, cfg.Symbol.Timeframe, rest, logger)
		if err != nil {
			return nil, nil, err
		}
		startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
		defer startCancel()
		if err := ws.Connect(startCtx); err != nil {
			return nil, nil, fmt.Errorf("OKX 连接失败: %w", err)
		}
		if err := ws.Subscribe(); err != nil {
			return nil, nil, multierr.Append(fmt.Errorf("OKX 订阅失败: %w", err), ws.Close())
		}
		if err := ws.Backfill(startCtx); err != nil {
			// 首次回补失败不影响启动，Bars 会在窗口为空时再次尝试
			logger.Warn("启动回补失败", zap.Error(err))
		}
		go ws.Run(ctx)
		return ws, ws.Close, nil

	default:
		return okx.NewRESTClient(cfg.Feed, timeout, logger), noop, nil
	}
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
