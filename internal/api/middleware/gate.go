package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vaxgate/internal/gate"
	"vaxgate/internal/session"
)

/* ContextKeySession 存储在 gin.Context 中的已确认会话键名 */
const ContextKeySession = "gate_session"

/*
ProtectedRoute 受保护视图守卫
功能：对每次视图导航执行一次闸门决策。放行时把已确认的会话写入
请求上下文供视图处理器使用；拦截时以 302 重定向结束本次导航，
同一请求恰好产生一次渲染或一次跳转，两者不会叠加。
*/
func ProtectedRoute(g *gate.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		tabID := TabID(c)
		if tabID == "" {
			/* 标签页中间件缺位属部署错误，保守拒绝 */
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}

		d := g.Check(c.Request.Context(), tabID, c.Request.URL.Path)
		if d.Action == gate.ActionRedirect {
			c.Redirect(http.StatusFound, d.Location)
			c.Abort()
			return
		}

		c.Set(ContextKeySession, d.Session)
		c.Next()
	}
}

/* GateSession 从请求上下文读取闸门确认过的会话 */
func GateSession(c *gin.Context) (session.Session, bool) {
	if v, ok := c.Get(ContextKeySession); ok {
		if s, ok := v.(session.Session); ok {
			return s, true
		}
	}
	return session.Session{}, false
}
