package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vaxgate/internal/session"
)

/* TabCookieName 标签页标识 Cookie 名称（会话级 Cookie，浏览器关闭后失效） */
const TabCookieName = "vaxgate_tab"

/* ContextKeyTabID 存储在 gin.Context 中的标签页标识键名 */
const ContextKeyTabID = "tab_id"

/*
TabIdentity 标签页标识中间件
功能：为每个浏览器标签页分配独立的会话标识。
请求携带合法的标签页 Cookie 时直接复用；缺失或非法时签发新标识。
后续中间件和处理器通过 TabID(c) 读取，用于定位该标签页的独立会话。
*/
func TabIdentity(sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tabID := ""

		if cookie, err := c.Cookie(TabCookieName); err == nil {
			/* 校验格式，拒绝伪造或损坏的标识 */
			if _, parseErr := uuid.Parse(cookie); parseErr == nil {
				tabID = cookie
			}
		}

		if tabID == "" {
			tabID = sessions.NewTabID()
			/* MaxAge=0 表示会话级 Cookie，随浏览器进程消亡 */
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(TabCookieName, tabID, 0, "/", "", false, true)
		}

		c.Set(ContextKeyTabID, tabID)
		c.Next()
	}
}

/* TabID 从请求上下文读取标签页标识 */
func TabID(c *gin.Context) string {
	if v, ok := c.Get(ContextKeyTabID); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
