package types

import (
	"vaxgate/internal/api/middleware"
	"vaxgate/internal/backend"
	"vaxgate/internal/config"
	"vaxgate/internal/health"
	"vaxgate/internal/session"
	"vaxgate/internal/ws"
)

/*
App 应用上下文
功能：聚合各组件实例，贯穿 handler 和 router，避免全局变量
*/
type App struct {
	Config   *config.Config
	Sessions *session.Manager
	Backend  *backend.Client
	Prober   *health.Prober
	Hub      *ws.Hub

	/* LoginLimiter 由 main 创建并负责 Stop；为空时路由组装时自建 */
	LoginLimiter *middleware.LoginRateLimiter
}

/*
NewApp 创建应用上下文
*/
func NewApp(cfg *config.Config, sessions *session.Manager, client *backend.Client, prober *health.Prober, hub *ws.Hub) *App {
	return &App{
		Config:   cfg,
		Sessions: sessions,
		Backend:  client,
		Prober:   prober,
		Hub:      hub,
	}
}
