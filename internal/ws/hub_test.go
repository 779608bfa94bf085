package ws

import (
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"vaxgate/internal/health"
	"vaxgate/internal/pkg/logger"
)

/* TestMain 初始化全局日志器，避免 Hub 日志调用空指针崩溃 */
func TestMain(m *testing.M) {
	logger.Logger = zap.NewNop()
	logger.Sugar = logger.Logger.Sugar()
	os.Exit(m.Run())
}

func newTestHubServer(t *testing.T, h *Hub) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/ws/health", h.HandleWebSocket)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/health"
}

/*
TestHub_BroadcastReachesClient 测试健康广播到达已连接的浏览器
*/
func TestHub_BroadcastReachesClient(t *testing.T) {
	h := NewHub(0)
	h.Start()
	defer h.Stop()

	url := newTestHubServer(t, h)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("建立连接失败: %v", err)
	}
	defer conn.Close()

	/* 等注册进入事件循环 */
	deadline := time.Now().Add(2 * time.Second)
	for h.count.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	h.BroadcastHealth(health.Snapshot{State: health.StateUp, Progress: 40})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("读取广播事件失败: %v", err)
	}
	if ev.Type != EventHealth || ev.Health.Progress != 40 {
		t.Errorf("事件内容不符: %+v", ev)
	}
}

/*
TestHub_UpgradeAfterStopDoesNotBlock 测试与 Stop 竞争的升级不悬挂
*/
func TestHub_UpgradeAfterStopDoesNotBlock(t *testing.T) {
	h := NewHub(0)
	h.Start()
	url := newTestHubServer(t, h)

	h.Stop()

	/* 事件循环已退出，处理函数必须立即关闭连接返回，而不是停在注册上 */
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, _ = conn.ReadMessage()
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop 后的升级处理未返回")
	}
}
