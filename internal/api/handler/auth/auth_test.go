package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"vaxgate/internal/api/middleware"
	"vaxgate/internal/backend"
	"vaxgate/internal/config"
	"vaxgate/internal/session"
	"vaxgate/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

/* testEnv 组装最小登录链路：标签页中间件 + 认证处理器 + 假上游 */
type testEnv struct {
	router   *gin.Engine
	sessions *session.Manager
	tabID    string
	upstream *httptest.Server
	hits     *int64
}

func newTestEnv(t *testing.T, upstreamHandler http.HandlerFunc) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var hits int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		upstreamHandler(w, r)
	}))
	t.Cleanup(upstream.Close)

	sessions, err := session.NewManager(&config.SessionConfig{Backend: "memory"}, nil)
	if err != nil {
		t.Fatalf("创建会话管理器失败: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })

	cfg := config.DefaultConfig()
	cfg.Upstream.BaseURL = upstream.URL
	cfg.Upstream.LoginPath = "/api/auth/login"

	app := types.NewApp(cfg, sessions, backend.NewClient(&cfg.Upstream), nil, nil)
	h := NewAuthHandler(app)

	router := gin.New()
	router.Use(middleware.TabIdentity(sessions))
	router.POST("/api/login", h.Login)
	router.POST("/api/logout", h.Logout)

	return &testEnv{
		router:   router,
		sessions: sessions,
		tabID:    uuid.New().String(),
		upstream: upstream,
		hits:     &hits,
	}
}

func (e *testEnv) post(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("编码请求体失败: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: middleware.TabCookieName, Value: e.tabID})
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func loginOK(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"tok-1","id":42,"username":"zhang","role":"` + role + `"}`))
	}
}

func redirectOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Data struct {
			Redirect string `json:"redirect"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	return resp.Data.Redirect
}

/* 空凭据在本地拦截，不得触碰上游 */
func TestLogin_EmptyCredentialsNoNetworkCall(t *testing.T) {
	env := newTestEnv(t, loginOK("admin"))

	cases := []map[string]string{
		{"identifier": "", "password": "secret"},
		{"identifier": "zhang", "password": ""},
		{"identifier": "   ", "password": "secret"},
	}
	for _, body := range cases {
		w := env.post(t, "/api/login", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("空凭据应返回 400，实际 %d", w.Code)
		}
	}
	if n := atomic.LoadInt64(env.hits); n != 0 {
		t.Fatalf("空凭据不应发出网络请求，实际上游收到 %d 次", n)
	}
}

func TestLogin_AdminRedirectsToDashboard(t *testing.T) {
	env := newTestEnv(t, loginOK("admin"))

	w := env.post(t, "/api/login", map[string]string{"identifier": "zhang", "password": "secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("登录应成功，实际 %d: %s", w.Code, w.Body.String())
	}
	if got := redirectOf(t, w); got != "/admin/dashboard" {
		t.Fatalf("admin 登录应跳转仪表盘，实际 %s", got)
	}

	/* 会话写入标签页存储，四个字段齐全 */
	sess, ok := env.sessions.StoreFor(env.tabID).Get()
	if !ok {
		t.Fatal("登录后会话应存在")
	}
	if sess.Token != "tok-1" || sess.Role != session.RoleAdmin || sess.UserID != "42" {
		t.Fatalf("会话字段不符: %+v", sess)
	}
}

/* patient 登录恢复登录前记录的 intendedPath，且恰好一次 */
func TestLogin_PatientResumesIntendedPath(t *testing.T) {
	env := newTestEnv(t, loginOK("patient"))

	st := env.sessions.StoreFor(env.tabID)
	if err := st.SetIntendedPath("/patient/appointments"); err != nil {
		t.Fatalf("记录 intendedPath 失败: %v", err)
	}

	w := env.post(t, "/api/login", map[string]string{"identifier": "li", "password": "secret"})
	if got := redirectOf(t, w); got != "/patient/appointments" {
		t.Fatalf("应恢复 intendedPath，实际 %s", got)
	}

	/* 已消费：再次读取为空 */
	if intended, _ := st.TakeIntendedPath(); intended != "" {
		t.Fatalf("intendedPath 应已消费，实际 %q", intended)
	}
}

func TestLogin_UpstreamRejectsCredentials(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	w := env.post(t, "/api/login", map[string]string{"identifier": "zhang", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("凭据错误应返回 401，实际 %d", w.Code)
	}
	if _, ok := env.sessions.StoreFor(env.tabID).Get(); ok {
		t.Fatal("登录失败不应写入会话")
	}
}

func TestLogin_UpstreamDown(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	w := env.post(t, "/api/login", map[string]string{"identifier": "zhang", "password": "secret"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("上游 5xx 应返回 503，实际 %d", w.Code)
	}
}

func TestLogin_UnknownRoleRejected(t *testing.T) {
	env := newTestEnv(t, loginOK("pharmacist"))

	w := env.post(t, "/api/login", map[string]string{"identifier": "zhang", "password": "secret"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("未知角色应拒绝，实际 %d", w.Code)
	}
	if _, ok := env.sessions.StoreFor(env.tabID).Get(); ok {
		t.Fatal("未知角色不应写入会话")
	}
}

/* 登出只清当前标签页：另一标签页的会话保留 */
func TestLogout_ClearsOnlyCurrentTab(t *testing.T) {
	env := newTestEnv(t, loginOK("patient"))

	otherTab := uuid.New().String()
	other := env.sessions.StoreFor(otherTab)
	if err := other.Set(session.Session{Token: "tok-2", Role: session.RolePatient, UserID: "7"}); err != nil {
		t.Fatalf("写入会话失败: %v", err)
	}

	env.post(t, "/api/login", map[string]string{"identifier": "li", "password": "secret"})
	w := env.post(t, "/api/logout", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("登出应成功，实际 %d", w.Code)
	}

	if _, ok := env.sessions.StoreFor(env.tabID).Get(); ok {
		t.Fatal("登出后当前标签页会话应被清除")
	}
	if _, ok := other.Get(); !ok {
		t.Fatal("其他标签页会话不应受影响")
	}
}
