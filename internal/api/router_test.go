package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"vaxgate/internal/api/middleware"
	"vaxgate/internal/backend"
	"vaxgate/internal/config"
	"vaxgate/internal/health"
	"vaxgate/internal/pkg/logger"
	"vaxgate/internal/session"
	"vaxgate/internal/types"
	"vaxgate/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

/* TestMain 初始化全局日志器，避免中间件日志调用空指针崩溃 */
func TestMain(m *testing.M) {
	logger.Logger = zap.NewNop()
	logger.Sugar = logger.Logger.Sugar()
	os.Exit(m.Run())
}

func newTestRouter(t *testing.T) (*gin.Engine, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions, err := session.NewManager(&config.SessionConfig{Backend: "memory"}, nil)
	if err != nil {
		t.Fatalf("创建会话管理器失败: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })

	cfg := config.DefaultConfig()
	client := backend.NewClient(&cfg.Upstream)
	prober := health.NewProber(client, health.Options{})
	hub := ws.NewHub(0)

	router, err := SetupRouter(types.NewApp(cfg, sessions, client, prober, hub))
	if err != nil {
		t.Fatalf("组装路由失败: %v", err)
	}
	return router, sessions
}

func getWithTab(router *gin.Engine, path, tabID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.AddCookie(&http.Cookie{Name: middleware.TabCookieName, Value: tabID})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

/* 未登录导航受保护视图：302 去登录页，目的地被记录 */
func TestRouter_UnauthenticatedAdminNavigation(t *testing.T) {
	router, sessions := newTestRouter(t)
	tabID := uuid.New().String()

	w := getWithTab(router, "/admin/dashboard", tabID)
	if w.Code != http.StatusFound {
		t.Fatalf("未登录导航应 302，实际 %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login" {
		t.Fatalf("应重定向登录页，实际 %s", loc)
	}

	intended, err := sessions.StoreFor(tabID).TakeIntendedPath()
	if err != nil {
		t.Fatalf("读取 intendedPath 失败: %v", err)
	}
	if intended != "/admin/dashboard" {
		t.Fatalf("intendedPath 应为 /admin/dashboard，实际 %q", intended)
	}
}

/* 公开视图不过闸门，直接放行 */
func TestRouter_PublicViewsServed(t *testing.T) {
	router, _ := newTestRouter(t)
	tabID := uuid.New().String()

	for _, path := range []string{"/login", "/register", "/health-check"} {
		w := getWithTab(router, path, tabID)
		if w.Code != http.StatusOK {
			t.Fatalf("公开视图 %s 应 200，实际 %d", path, w.Code)
		}
	}
}

/* 缺失标签页 Cookie 时中间件自动签发 */
func TestRouter_TabCookieIssued(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var issued string
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.TabCookieName {
			issued = c.Value
		}
	}
	if issued == "" {
		t.Fatal("应签发标签页 Cookie")
	}
	if _, err := uuid.Parse(issued); err != nil {
		t.Fatalf("标签页标识应为合法 UUID: %v", err)
	}
}

func TestRouter_MetricsLocalOnly(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "192.0.2.10:5000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("外部访问 /metrics 应 403，实际 %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("本地访问 /metrics 应 200，实际 %d", w.Code)
	}
}

/* 未登录的数据请求返回 401 JSON，不做导航重定向 */
func TestRouter_DataRequiresSession(t *testing.T) {
	router, _ := newTestRouter(t)
	tabID := uuid.New().String()

	w := getWithTab(router, "/api/data/appointments", tabID)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("未登录数据请求应 401，实际 %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "" {
		t.Fatalf("数据请求不应重定向，实际 Location=%s", loc)
	}
}
