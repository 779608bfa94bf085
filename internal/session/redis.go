package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"vaxgate/internal/config"
)

const (
	/* 会话哈希键前缀：vaxgate:tab:<id>:session */
	redisSessionPrefix = "vaxgate:tab:"
	redisSessionSuffix = ":session"
	/* intendedPath 字符串键后缀 */
	redisIntendedSuffix = ":intended"
)

/*
redisBackend Redis 会话后端
功能：多实例部署时共享会话。每个标签页一个哈希（四字段单条
HSET 写入，保证原子性）加一个 intendedPath 字符串键（GETDEL
实现读一次即失效），键带 TTL 自动过期。
*/
type redisBackend struct {
	client *redis.Client
	ctx    context.Context
	ttl    time.Duration
	logger *zap.Logger
}

/*
newRedisBackend 创建 Redis 会话后端
功能：根据配置初始化连接并 PING 验证，失败时返回错误
*/
func newRedisBackend(cfg *config.RedisConfig, ttl time.Duration) (*redisBackend, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, fmt.Errorf("redis 地址未配置")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx := context.Background()

	/* 测试连接 */
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis 连接失败 [%s]: %w", cfg.Addr, err)
	}

	return &redisBackend{
		client: client,
		ctx:    ctx,
		ttl:    ttl,
		logger: zap.L().Named("session-redis"),
	}, nil
}

func (b *redisBackend) StoreFor(tabID string) Store {
	return &redisStore{backend: b, tabID: tabID}
}

func (b *redisBackend) Close() error {
	return b.client.Close()
}

func (b *redisBackend) sessionKey(tabID string) string {
	return redisSessionPrefix + tabID + redisSessionSuffix
}

func (b *redisBackend) intendedKey(tabID string) string {
	return redisSessionPrefix + tabID + redisIntendedSuffix
}

/* redisStore 绑定单个标签页的 Redis 存储视图 */
type redisStore struct {
	backend *redisBackend
	tabID   string
}

func (s *redisStore) Get() (Session, bool) {
	b := s.backend
	fields, err := b.client.HGetAll(b.ctx, b.sessionKey(s.tabID)).Result()
	if err != nil {
		b.logger.Warn("读取会话失败", zap.String("tab", s.tabID), zap.Error(err))
		return Session{}, false
	}

	sess := Session{
		Token:    fields["token"],
		Role:     ParseRole(fields["role"]),
		UserID:   fields["user_id"],
		Username: fields["username"],
	}
	/* 读侧封闭失败：字段不完整按不存在处理 */
	if !sess.Complete() {
		return Session{}, false
	}
	return sess, true
}

func (s *redisStore) Set(sess Session) error {
	b := s.backend
	key := b.sessionKey(s.tabID)

	/* 四字段单条 HSET + TTL，事务管道保证无中间状态可见 */
	pipe := b.client.TxPipeline()
	pipe.HSet(b.ctx, key,
		"token", sess.Token,
		"role", string(sess.Role),
		"user_id", sess.UserID,
		"username", sess.Username,
	)
	pipe.Expire(b.ctx, key, b.ttl)
	_, err := pipe.Exec(b.ctx)
	return err
}

func (s *redisStore) Clear() error {
	b := s.backend
	return b.client.Del(b.ctx, b.sessionKey(s.tabID), b.intendedKey(s.tabID)).Err()
}

func (s *redisStore) SetIntendedPath(path string) error {
	b := s.backend
	return b.client.Set(b.ctx, b.intendedKey(s.tabID), path, b.ttl).Err()
}

func (s *redisStore) TakeIntendedPath() (string, error) {
	b := s.backend
	path, err := b.client.GetDel(b.ctx, b.intendedKey(s.tabID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return path, nil
}
