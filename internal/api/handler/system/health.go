package system

import (
	"net/http"

	"vaxgate/internal/api/response"
	"vaxgate/internal/types"

	"github.com/gin-gonic/gin"
)

/*
HealthHandler 健康状态处理器
功能：暴露上游探测结果与重连进度，供重连视图轮询/降级使用
*/
type HealthHandler struct {
	app *types.App
}

/*
NewHealthHandler 创建健康状态处理器
*/
func NewHealthHandler(app *types.App) *HealthHandler {
	return &HealthHandler{app: app}
}

/*
Status 上游健康快照
功能：返回探测器当前状态（unknown/up/down）与重连进度（0-100）。
WebSocket 不可用时重连视图退化为轮询此端点。
路由：GET /api/health/status
*/
func (h *HealthHandler) Status(c *gin.Context) {
	response.GinSuccess(c, h.app.Prober.Snapshot())
}

/*
Healthz 本服务存活探测
功能：仅表示网关进程自身存活，与上游健康无关
路由：GET /healthz
*/
func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
