package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vaxgate/internal/api/response"
)

/*
Recovery 错误恢复中间件
功能：捕获决策链与处理器中的 panic，带堆栈与标签页标识记入
结构化日志，以统一响应信封返回 500，网关进程不退出
*/
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				zap.L().Named("recovery").Error("请求处理 panic",
					zap.Any("panic", rec),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("tab_id", TabID(c)),
					zap.String("client_ip", c.ClientIP()),
					zap.ByteString("stack", debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
					Success: false,
					Code:    http.StatusInternalServerError,
					Message: "网关内部错误",
				})
			}
		}()

		c.Next()
	}
}
