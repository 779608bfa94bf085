package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vaxgate/internal/api"
	"vaxgate/internal/api/middleware"
	"vaxgate/internal/backend"
	"vaxgate/internal/config"
	"vaxgate/internal/health"
	"vaxgate/internal/pkg/logger"
	"vaxgate/internal/session"
	"vaxgate/internal/types"
	"vaxgate/internal/ws"

	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "./config.yaml", "配置文件路径")
	port       = flag.Int("port", 0, "覆盖服务器端口")
)

/*
main 程序入口
启动流程：
 1. 初始化引导日志 → 加载配置 → 用配置重新初始化日志
 2. 初始化会话管理器（memory / redis）
 3. 创建上游客户端与健康探测器，接通重连推送
 4. 组装路由 → 启动 HTTP 服务器
 5. 等待 SIGINT/SIGTERM → 优雅关闭
*/
func main() {
	startupBegin := time.Now()
	flag.Parse()

	/* 阶段 1：引导日志（配置加载前使用临时 console 日志） */
	if err := logger.Init(&logger.Config{
		Level:  "info",
		Format: "console",
	}); err != nil {
		log.Fatalf("初始化日志系统失败: %v", err)
	}
	defer logger.Sync()

	/* 阶段 2：加载配置 → 用配置重新初始化日志系统 */
	cfg := config.LoadConfigOrDefault(*configPath)
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if err := logger.Init(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		logger.Fatal("重新初始化日志系统失败", zap.Error(err))
	}

	/* 阶段 3：会话管理器（标签页级隔离存储） */
	sessions, err := session.NewManager(&cfg.Session, &cfg.Redis)
	if err != nil {
		logger.Fatal("初始化会话管理器失败", zap.Error(err))
	}
	defer sessions.Close()
	logger.Info("✓ 会话管理器就绪", zap.String("backend", cfg.Session.Backend))

	/* 阶段 4：上游客户端 + 健康探测器 + 重连推送 */
	client := backend.NewClient(&cfg.Upstream)

	hub := ws.NewHub(cfg.Server.WSMaxConnections)
	hub.Start()
	defer hub.Stop()

	prober := health.NewProber(client, health.Options{
		PollInterval: time.Duration(cfg.Health.PollInterval) * time.Second,
		ProbeTimeout: time.Duration(cfg.Health.ProbeTimeout) * time.Second,
		ProgressTick: time.Duration(cfg.Health.ProgressTick) * time.Millisecond,
		ProgressStep: cfg.Health.ProgressStep,
		OnReady: func() {
			/* 恢复进度走满，通知重连视图恢复上次页面 */
			hub.NotifyReady(health.Snapshot{State: health.StateUp, Progress: 100})
		},
	})
	prober.Subscribe(hub.BroadcastHealth)
	prober.Start()
	defer prober.Stop()
	logger.Info("✓ 上游健康探测器启动",
		zap.String("upstream", cfg.Upstream.BaseURL),
		zap.Int("poll_interval", cfg.Health.PollInterval))

	/* 阶段 5：组装路由 + 启动 HTTP 服务器 */
	loginLimiter := middleware.NewLoginRateLimiter(10, 15*time.Minute)
	defer loginLimiter.Stop()

	app := types.NewApp(cfg, sessions, client, prober, hub)
	app.LoginLimiter = loginLimiter
	router, err := api.SetupRouter(app)
	if err != nil {
		logger.Fatal("组装路由失败", zap.Error(err))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	go func() {
		logger.Info("✓ HTTP 服务器启动", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常退出", zap.Error(err))
		}
	}()

	logger.Info("✓ VaxGate 网关启动完成",
		zap.Duration("总耗时", time.Since(startupBegin)),
		zap.String("监听地址", addr))

	/* 阶段 6：等待退出信号 → 优雅关闭 */
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到退出信号，正在优雅关闭...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("关闭 HTTP 服务器失败", zap.Error(err))
	}

	logger.Info("✓ 网关已停止")
}
