package auth

import (
	"errors"
	"strings"

	"vaxgate/internal/api/middleware"
	"vaxgate/internal/api/response"
	"vaxgate/internal/backend"
	"vaxgate/internal/route"
	"vaxgate/internal/session"
	"vaxgate/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/*
AuthHandler 认证处理器
功能：处理登录、登出，维护标签页会话
*/
type AuthHandler struct {
	app    *types.App
	logger *zap.Logger
}

/*
NewAuthHandler 创建认证处理器
*/
func NewAuthHandler(app *types.App) *AuthHandler {
	return &AuthHandler{
		app:    app,
		logger: zap.L().Named("auth-handler"),
	}
}

/*
LoginRequest 登录请求
*/
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

/*
LoginResponse 登录成功响应
功能：携带前端应跳转的目的地与用户摘要
*/
type LoginResponse struct {
	Redirect string `json:"redirect"`
	Role     string `json:"role"`
	Username string `json:"username"`
}

/*
Login 凭据登录
功能：本地非空校验（不发网络请求）→ 上游认证 → 原子写入标签页会话
→ 按角色计算跳转目的地（patient 可恢复 intendedPath，admin 固定仪表盘）
路由：POST /api/login
*/
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "请求参数无效")
		return
	}

	/* 空凭据在本地拦截，任何网络调用之前 */
	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" || req.Password == "" {
		response.GinBadRequest(c, "请输入用户名和密码")
		return
	}

	result, err := h.app.Backend.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		h.loginError(c, err)
		return
	}

	role := session.ParseRole(result.User.Role)
	if role == session.RoleUnknown {
		h.logger.Warn("登录成功但角色无法识别",
			zap.String("role", result.User.Role))
		response.GinInternalError(c, "账户角色异常，请联系管理员", nil)
		return
	}

	st := h.app.Sessions.StoreFor(middleware.TabID(c))
	if err := st.Set(session.Session{
		Token:    result.Token,
		Role:     role,
		UserID:   result.User.ID,
		Username: result.User.Username,
	}); err != nil {
		response.GinInternalError(c, "会话写入失败", err)
		return
	}

	/* intendedPath 读取即消费，登录后恢复恰好一次 */
	intended, err := st.TakeIntendedPath()
	if err != nil {
		h.logger.Warn("读取 intendedPath 失败", zap.Error(err))
		intended = ""
	}

	h.logger.Info("✓ 登录成功",
		zap.String("username", result.User.Username),
		zap.String("role", string(role)))

	response.GinSuccess(c, LoginResponse{
		Redirect: route.Destination(role, intended),
		Role:     string(role),
		Username: result.User.Username,
	})
}

/*
loginError 登录失败的错误分类响应
*/
func (h *AuthHandler) loginError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		response.GinUnauthorized(c, "用户名或密码错误")
	case errors.Is(err, backend.ErrServer), errors.Is(err, backend.ErrUnreachable):
		h.logger.Warn("登录时上游不可用", zap.Error(err))
		response.GinServiceUnavailable(c, "服务暂时不可用，请稍后再试")
	default:
		response.GinInternalError(c, "登录失败", err)
	}
}

/*
Logout 登出
功能：清除当前标签页会话（含 intendedPath），返回登录页地址。
其他标签页的会话不受影响。
路由：POST /api/logout
*/
func (h *AuthHandler) Logout(c *gin.Context) {
	st := h.app.Sessions.StoreFor(middleware.TabID(c))
	if err := st.Clear(); err != nil {
		response.GinInternalError(c, "登出失败", err)
		return
	}

	response.GinSuccessWithMessage(c, "已退出登录", gin.H{"redirect": route.Login})
}
