/*
Package proxy 上游数据反向代理

已认证视图的数据请求经网关转发到上游 API，网关负责注入会话令牌，
浏览器端不接触令牌本体。
*/
package proxy

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"vaxgate/internal/api/middleware"
	"vaxgate/internal/api/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/*
Upstream 上游反向代理
*/
type Upstream struct {
	proxy  *httputil.ReverseProxy
	logger *zap.Logger
}

/*
NewUpstream 创建上游反向代理
baseURL: 上游 API 根地址
stripPrefix: 转发前从请求路径剥除的网关侧前缀
*/
func NewUpstream(baseURL, stripPrefix string) (*Upstream, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	logger := zap.L().Named("proxy")

	p := httputil.NewSingleHostReverseProxy(target)
	baseDirector := p.Director
	p.Director = func(r *http.Request) {
		if stripPrefix != "" {
			if rest := strings.TrimPrefix(r.URL.Path, stripPrefix); rest != r.URL.Path {
				if rest == "" {
					rest = "/"
				}
				r.URL.Path = rest
			}
		}
		baseDirector(r)
	}
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("上游转发失败",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"success":false,"code":502,"message":"上游服务不可达"}`))
	}

	return &Upstream{proxy: p, logger: logger}, nil
}

/*
Handler 返回转发处理器
功能：要求闸门已确认的会话在上下文中，注入 Bearer 令牌后转发。
无会话时直接 401，不向上游透传匿名请求。
*/
func (u *Upstream) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := middleware.GateSession(c)
		if !ok {
			response.GinUnauthorized(c, "未登录")
			c.Abort()
			return
		}

		c.Request.Header.Set("Authorization", "Bearer "+sess.Token)
		/* 标签页 Cookie 不出网关 */
		c.Request.Header.Del("Cookie")

		u.proxy.ServeHTTP(c.Writer, c.Request)
	}
}
