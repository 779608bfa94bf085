package api

import (
	"time"

	"vaxgate/internal/api/handler/auth"
	"vaxgate/internal/api/handler/system"
	"vaxgate/internal/api/middleware"
	"vaxgate/internal/api/proxy"
	"vaxgate/internal/api/response"
	"vaxgate/internal/gate"
	"vaxgate/internal/route"
	"vaxgate/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 设置路由
func SetupRouter(app *types.App) (*gin.Engine, error) {
	// 设置Gin模式
	if app.Config.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodyLimit(1 << 20)) /* 1MB 请求体上限，网关只收小请求 */
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(app.Config.Server.CORSAllowedOrigins))
	router.Use(middleware.TabIdentity(app.Sessions))

	healthHandler := system.NewHealthHandler(app)

	// 网关自身存活探测
	router.GET("/healthz", healthHandler.Healthz)

	/*
		Prometheus /metrics 包含敏感运行指标，
		仅允许本地/内网访问，生产环境应通过反向代理进一步限制。
	*/
	router.GET("/metrics", localOnlyGuard(), gin.WrapH(promhttp.Handler()))

	// WebSocket 端点（重连视图订阅健康推送）
	router.GET("/ws/health", app.Hub.HandleWebSocket)

	g := gate.New(app.Sessions, app.Backend, app.Config)

	/*
		视图导航路由。视图本体的渲染不在网关职责内，
		此处返回视图描述符，由前端资源按描述符挂载页面。
		公开视图不过闸门；/admin、/patient 下的导航每次都过闸门。
	*/
	router.GET(route.Login, viewHandler("login"))
	router.GET(route.Register, viewHandler("register"))

	/* 重连视图自带当前健康快照，省一次首屏往返 */
	router.GET(route.HealthCheck, func(c *gin.Context) {
		c.JSON(200, gin.H{
			"view":   "health-check",
			"path":   c.Request.URL.Path,
			"health": app.Prober.Snapshot(),
		})
	})

	guarded := router.Group("")
	guarded.Use(middleware.ProtectedRoute(g))
	{
		guarded.GET(route.AdminPrefix+"/*view", viewHandler("admin"))
		guarded.GET(route.PatientPrefix+"/*view", viewHandler("patient"))
	}

	// API
	apiGroup := router.Group("/api")
	{
		/* 登录限流器：每个 IP 每 15 分钟最多 10 次登录尝试 */
		loginLimiter := app.LoginLimiter
		if loginLimiter == nil {
			loginLimiter = middleware.NewLoginRateLimiter(10, 15*time.Minute)
		}

		authHandler := auth.NewAuthHandler(app)
		apiGroup.POST("/login", loginLimiter.Middleware(), authHandler.Login)
		apiGroup.POST("/logout", authHandler.Logout)

		/* 重连视图的轮询降级端点，WebSocket 不可用时使用 */
		apiGroup.GET("/health/status", healthHandler.Status)

		/* 已认证数据请求转发上游，网关注入令牌 */
		upstream, err := proxy.NewUpstream(app.Backend.BaseURL(), "/api/data")
		if err != nil {
			return nil, err
		}
		data := apiGroup.Group("/data")
		data.Use(middleware.RequireSession(app.Sessions))
		data.Any("/*path", upstream.Handler())
	}

	return router, nil
}

/*
viewHandler 视图描述符处理器
功能：导航请求到达此处即表示闸门已放行（或视图本身公开），
返回应挂载的视图名与请求路径
*/
func viewHandler(view string) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := gin.H{
			"view": view,
			"path": c.Request.URL.Path,
		}
		if sess, ok := middleware.GateSession(c); ok {
			payload["role"] = string(sess.Role)
			payload["username"] = sess.Username
		}
		c.JSON(200, payload)
	}
}

/*
localOnlyGuard 本地访问限制中间件
功能：仅允许 127.0.0.1 / ::1 访问，用于保护 /metrics 等运维端点。
生产环境应额外通过反向代理限制访问。
*/
func localOnlyGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip != "127.0.0.1" && ip != "::1" && ip != "localhost" {
			response.GinForbidden(c, "此端点仅允许本地访问")
			c.Abort()
			return
		}
		c.Next()
	}
}
