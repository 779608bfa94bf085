package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vaxgate/internal/config"
)

/*
Store 单个标签页的会话存储契约
功能：get/set/clear 三操作加 intendedPath 的一次性读取。
Set 对四个字段原子生效；Clear 同时清除会话与 intendedPath。
*/
type Store interface {
	/* Get 读取会话，不完整的会话返回 ok=false */
	Get() (Session, bool)
	/* Set 整体写入会话，替换原有全部字段 */
	Set(sess Session) error
	/* Clear 清除会话与 intendedPath */
	Clear() error
	/* SetIntendedPath 记录被拦截前的目标路径 */
	SetIntendedPath(path string) error
	/* TakeIntendedPath 读取并清空目标路径（读一次即失效） */
	TakeIntendedPath() (string, error)
}

/*
Backend 会话存储后端
功能：按标签页 ID 派发 Store 实例，memory 与 redis 两种实现
*/
type Backend interface {
	StoreFor(tabID string) Store
	Close() error
}

/*
Manager 标签页会话管理器
功能：签发标签页 ID，按 ID 派发作用域隔离的 Store
*/
type Manager struct {
	backend Backend
	logger  *zap.Logger
}

/*
NewManager 创建会话管理器
功能：根据配置选择存储后端，redis 后端连接失败时返回错误
*/
func NewManager(cfg *config.SessionConfig, redisCfg *config.RedisConfig) (*Manager, error) {
	ttl := time.Duration(cfg.TabTTL) * time.Minute
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	var backend Backend
	switch cfg.Backend {
	case "", "memory":
		backend = newMemoryBackend(ttl)
	case "redis":
		rb, err := newRedisBackend(redisCfg, ttl)
		if err != nil {
			return nil, fmt.Errorf("初始化 Redis 会话后端失败: %w", err)
		}
		backend = rb
	default:
		return nil, fmt.Errorf("未知的会话存储后端: %s", cfg.Backend)
	}

	return &Manager{
		backend: backend,
		logger:  zap.L().Named("session-manager"),
	}, nil
}

/* NewTabID 为新标签页签发不可猜测的 ID */
func (m *Manager) NewTabID() string {
	return uuid.New().String()
}

/* StoreFor 获取指定标签页的会话存储 */
func (m *Manager) StoreFor(tabID string) Store {
	return m.backend.StoreFor(tabID)
}

/* Close 关闭底层存储后端 */
func (m *Manager) Close() error {
	return m.backend.Close()
}

/* ===== 内存后端 ===== */

/* tabSlots 单个标签页的五个字符串槽位 */
type tabSlots struct {
	sess       Session
	hasSession bool
	intended   string
	lastAccess time.Time
}

/*
memoryBackend 进程内会话后端
功能：默认后端，单实例部署使用。所有标签页共享一把锁，
保证 set/clear 的多字段原子性；后台 janitor 定期清除闲置
标签页，防止内存无限增长。
*/
type memoryBackend struct {
	mu       sync.Mutex
	tabs     map[string]*tabSlots
	ttl      time.Duration
	stopChan chan struct{} /* 用于停止 janitor goroutine，防止泄漏 */
}

func newMemoryBackend(ttl time.Duration) *memoryBackend {
	b := &memoryBackend{
		tabs:     make(map[string]*tabSlots),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}

	/* 后台定时清理闲置标签页 */
	go b.janitor()

	return b
}

func (b *memoryBackend) StoreFor(tabID string) Store {
	return &memoryStore{backend: b, tabID: tabID}
}

func (b *memoryBackend) Close() error {
	close(b.stopChan)
	return nil
}

/* janitor 每 5 分钟清除超过 TTL 未访问的标签页槽位 */
func (b *memoryBackend) janitor() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-b.ttl)
			b.mu.Lock()
			for id, slots := range b.tabs {
				if slots.lastAccess.Before(cutoff) {
					delete(b.tabs, id)
				}
			}
			b.mu.Unlock()
		case <-b.stopChan:
			return
		}
	}
}

/* slots 获取或创建标签页槽位，调用方必须持有 b.mu */
func (b *memoryBackend) slots(tabID string) *tabSlots {
	s, ok := b.tabs[tabID]
	if !ok {
		s = &tabSlots{}
		b.tabs[tabID] = s
	}
	s.lastAccess = time.Now()
	return s
}

/* memoryStore 绑定单个标签页的内存存储视图 */
type memoryStore struct {
	backend *memoryBackend
	tabID   string
}

func (s *memoryStore) Get() (Session, bool) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	slots := s.backend.slots(s.tabID)
	/* 读侧封闭失败：不完整会话一律视为不存在 */
	if !slots.hasSession || !slots.sess.Complete() {
		return Session{}, false
	}
	return slots.sess, true
}

func (s *memoryStore) Set(sess Session) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	slots := s.backend.slots(s.tabID)
	slots.sess = sess
	slots.hasSession = true
	return nil
}

func (s *memoryStore) Clear() error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	slots := s.backend.slots(s.tabID)
	slots.sess = Session{}
	slots.hasSession = false
	slots.intended = ""
	return nil
}

func (s *memoryStore) SetIntendedPath(path string) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	s.backend.slots(s.tabID).intended = path
	return nil
}

func (s *memoryStore) TakeIntendedPath() (string, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	slots := s.backend.slots(s.tabID)
	path := slots.intended
	slots.intended = ""
	return path, nil
}
