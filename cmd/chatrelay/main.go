package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"timebank-chat/internal/config"
	"timebank-chat/internal/handlers/relay"
	"timebank-chat/internal/logging"
	"timebank-chat/internal/metrics"
	"timebank-chat/internal/websocket"
)

var rootCmd = &cobra.Command{
	Use:          "chatrelay",
	Short:        "Broadcast relay for the time-bank chat",
	SilenceUsage: true,
	RunE:         runRelay,
}

var flagConfig string

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagConfig, "config", "", "path to config file (default ./config/config.yaml or ./config.yaml)")
	flags.String("host", "", "listen host (env SERVER_HOST)")
	flags.String("port", "", "listen port (env SERVER_PORT)")
	flags.String("log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("chatrelay 退出")
	}
}

func runRelay(cmd *cobra.Command, args []string) error {
	// 1. 加载配置
	cfg, err := config.LoadConfig(flagConfig, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.LogLevel, cfg.LogPretty)
	log.Info().Str("app", cfg.AppName).Str("version", cfg.AppVersion).Msg("中继配置加载成功")

	// 2. 初始化指标
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	relayMetrics := metrics.NewRelay(reg)

	// 3. 启动 Hub
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	hub := websocket.NewHub(cfg.WebSocket, cfg.Relay, relayMetrics)
	go hub.Run(hubCtx)
	log.Info().Int("maxConnections", hub.MaxConnections()).Msg("WebSocket Hub 已启动")

	// 4. 启动 HTTP 服务器
	httpServer := &http.Server{
		Addr:           cfg.Server.ListenAddr(),
		Handler:        relay.NewRouter(cfg.Server, hub, reg),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Str("path", cfg.Server.WebSocketPath).Msg("中继 HTTP 服务器启动")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 优雅关闭
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen %s: %w", httpServer.Addr, err)
		}
	case <-ctx.Done():
	}
	log.Info().Msg("中继准备关闭...")

	// 先关闭所有 WebSocket 连接，被劫持的连接不受 Shutdown 管理
	cancelHub()
	<-hub.Done()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("中继已优雅关闭")
	return nil
}
