/*
Package response 统一 JSON 响应格式

所有 API 响应使用同一信封：success 标志、HTTP 状态码、消息与数据。
错误响应只携带面向用户的消息，内部错误细节进结构化日志不出网。
*/
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/*
Response 统一响应信封
*/
type Response struct {
	Success bool        `json:"success"`
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

/* GinSuccess 返回 200 成功响应 */
func GinSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Code:    http.StatusOK,
		Data:    data,
	})
}

/* GinSuccessWithMessage 返回带消息的 200 成功响应 */
func GinSuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Code:    http.StatusOK,
		Message: message,
		Data:    data,
	})
}

/* GinBadRequest 返回 400 参数错误响应 */
func GinBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Code:    http.StatusBadRequest,
		Message: message,
	})
}

/* GinUnauthorized 返回 401 未认证响应 */
func GinUnauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Response{
		Success: false,
		Code:    http.StatusUnauthorized,
		Message: message,
	})
}

/* GinForbidden 返回 403 禁止访问响应 */
func GinForbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, Response{
		Success: false,
		Code:    http.StatusForbidden,
		Message: message,
	})
}

/* GinServiceUnavailable 返回 503 服务不可用响应 */
func GinServiceUnavailable(c *gin.Context, message string) {
	c.JSON(http.StatusServiceUnavailable, Response{
		Success: false,
		Code:    http.StatusServiceUnavailable,
		Message: message,
	})
}

/*
GinInternalError 返回 500 内部错误响应
功能：错误细节记入日志，响应体只携带模糊消息
*/
func GinInternalError(c *gin.Context, message string, err error) {
	zap.L().Error(message,
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, Response{
		Success: false,
		Code:    http.StatusInternalServerError,
		Message: message,
	})
}
