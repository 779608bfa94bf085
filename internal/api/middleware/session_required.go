package middleware

import (
	"github.com/gin-gonic/gin"

	"vaxgate/internal/api/response"
	"vaxgate/internal/session"
)

/*
RequireSession 数据接口会话校验
功能：数据请求不参与视图导航，拦截时返回 401 JSON 而非重定向。
仅校验会话存在且完整，权威角色解析由视图导航时的闸门完成。
*/
func RequireSession(sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := sessions.StoreFor(TabID(c))
		sess, ok := st.Get()
		if !ok {
			response.GinUnauthorized(c, "未登录")
			c.Abort()
			return
		}

		c.Set(ContextKeySession, sess)
		c.Next()
	}
}
