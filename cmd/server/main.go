package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/LudwigRoderich/BatallaNaval/internal/config"
	"github.com/LudwigRoderich/BatallaNaval/internal/server"
)

func main() {
	// 解析命令行參數
	var (
		configPath = flag.String("config", "", "設定檔路徑 (YAML，選填)")
		port       = flag.Int("port", 0, "覆寫監聽埠號")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "", "日誌格式 (text, json)")
	)
	flag.Parse()

	// 載入設定：預設值 → 設定檔 → 環境變數 → 命令行參數
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("載入設定失敗", "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	// 設置日誌
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)

	// 組裝並啟動伺服器
	srv := server.New(cfg, logger)
	if err := srv.Listen(); err != nil {
		logger.Error("伺服器啟動失敗", "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("對戰伺服器啟動",
			"addr", cfg.Addr(),
			"log_level", cfg.Log.Level,
			"log_format", cfg.Log.Format)

		if err := srv.Serve(); err != nil {
			logger.Error("伺服器異常停止", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("收到關閉信號，開始優雅關閉...")
	srv.Shutdown()
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug", // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
