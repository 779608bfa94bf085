/*
Package ws 重连视图推送

重连视图的浏览器通过 WebSocket 订阅上游健康状态与恢复进度，
探测器每次状态转换/进度推进都会广播到所有连接，进度满格时
额外推送一条 revalidate 事件，通知视图恢复被中断的导航，
免去页面自行轮询。
*/
package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"vaxgate/internal/health"
	"vaxgate/internal/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		/* 浏览器连接已由 CORS 中间件验证 Origin，此处统一放行 */
		return true
	},
}

/* 事件类型 */
const (
	EventHealth     = "health"     /* 健康状态/进度更新 */
	EventRevalidate = "revalidate" /* 恢复进度满格，视图应恢复导航 */
)

/*
Event 推送给重连视图的事件
*/
type Event struct {
	Type   string          `json:"type"`
	Health health.Snapshot `json:"health"`
}

/* client 单个浏览器连接 */
type client struct {
	conn *websocket.Conn
	send chan Event
}

/*
Hub 重连推送集线器
功能：管理重连视图的浏览器长连接并向全部连接广播事件，
注册/注销/广播都经由 Run 循环串行处理
*/
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan Event
	stopChan   chan struct{}

	maxConnections int          /* 0 表示不限制 */
	count          atomic.Int32 /* 当前连接数，供升级入口在循环外读取 */
	logger         *zap.Logger
}

/*
NewHub 创建推送集线器
*/
func NewHub(maxConnections int) *Hub {
	return &Hub{
		clients:        make(map[*client]struct{}),
		register:       make(chan *client),
		unregister:     make(chan *client),
		broadcast:      make(chan Event, 64),
		stopChan:       make(chan struct{}),
		maxConnections: maxConnections,
		logger:         zap.L().Named("ws-hub"),
	}
}

/* Start 启动集线器事件循环 */
func (h *Hub) Start() {
	go h.run()
	logger.Info("✓ 重连推送集线器已启动")
}

/* Stop 停止事件循环并断开全部连接 */
func (h *Hub) Stop() {
	close(h.stopChan)
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int32(len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.count.Store(int32(len(h.clients)))
		case ev := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- ev:
				default:
					/* 写缓冲已满的慢连接直接踢出，防止拖垮广播 */
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.count.Store(int32(len(h.clients)))
		case <-h.stopChan:
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		}
	}
}

/*
BroadcastHealth 广播健康快照
功能：注册为探测器订阅者，转换/进度事件进入广播通道，
通道满时丢弃（推送只是加速，视图总能主动拉取快照）
*/
func (h *Hub) BroadcastHealth(snap health.Snapshot) {
	select {
	case h.broadcast <- Event{Type: EventHealth, Health: snap}:
	default:
	}
}

/*
NotifyReady 推送会话重校验事件
功能：探测器的一次性回调，通知重连视图恢复导航
*/
func (h *Hub) NotifyReady(snap health.Snapshot) {
	select {
	case h.broadcast <- Event{Type: EventRevalidate, Health: snap}:
	default:
	}
}

/*
HandleWebSocket WebSocket 升级处理函数
路由：GET /ws/health
*/
func (h *Hub) HandleWebSocket(c *gin.Context) {
	/* 检查连接数上限，防止资源耗尽 */
	if h.maxConnections > 0 && int(h.count.Load()) >= h.maxConnections {
		h.logger.Warn("重连推送连接数已达上限，拒绝新连接",
			zap.Int("max", h.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "连接数已满"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket 升级失败", zap.Error(err))
		return
	}

	cl := &client{conn: conn, send: make(chan Event, 16)}
	select {
	case h.register <- cl:
	case <-h.stopChan:
		/* 升级与 Stop 竞争：事件循环已退出，没人会收走注册 */
		conn.Close()
		return
	}

	go cl.writePump()
	go cl.readPump(h)
}

/* writePump 将事件序列化写入连接，send 关闭时结束 */
func (c *client) writePump() {
	defer c.conn.Close()
	for ev := range c.send {
		if err := c.conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

/* readPump 仅用于感知对端关闭，收到错误即注销 */
func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.stopChan:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
