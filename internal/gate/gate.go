/*
Package gate 认证闸门

每次受保护导航进入前运行一次，产出一个显式的决策值：放行渲染
或重定向到某个目的地。决策流程严格串行：读会话 → 向后端解析
权威角色 → 角色路由计算目的地 → 产出决策；同一标签页的并发
调用通过互斥串行化，不会交错写会话存储。

错误类别与去向：
  - 无会话 → 登录页，记录 intendedPath 供认证后一次性恢复
  - 后端 401/响应缺字段 → 清除会话，登录页（破坏性，封闭失败）
  - 后端 5xx → 重连视图，会话保留（后端不稳不代表凭据无效）
  - 网络/超时 → 缓存角色回退：仅 admin 且配置允许且令牌自检
    通过时进入管理区，否则保守回登录页（会话保留）
*/
package gate

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"vaxgate/internal/auth"
	"vaxgate/internal/backend"
	"vaxgate/internal/config"
	"vaxgate/internal/pkg/retry"
	"vaxgate/internal/route"
	"vaxgate/internal/session"
)

// Action 决策动作
type Action string

const (
	ActionRender   Action = "render"   /* 放行，渲染请求的视图 */
	ActionRedirect Action = "redirect" /* 重定向到 Location */
)

/*
Decision 闸门决策值
功能：一次调用恰好产出一个决策；Render 时附带已确认的会话，
供下游视图携带令牌请求数据
*/
type Decision struct {
	Action   Action
	Location string /* Action == ActionRedirect 时的目的地 */
	Reason   string
	Session  session.Session /* Action == ActionRender 时有效 */
}

/* Identity 权威角色解析依赖，backend.Client 满足此接口 */
type Identity interface {
	WhoAmI(ctx context.Context, token string) (*backend.UserInfo, error)
}

/*
Gate 认证闸门
*/
type Gate struct {
	sessions *session.Manager
	identity Identity
	policy   retry.Policy

	/* 后端不可达时是否允许缓存的 admin 角色回退放行 */
	allowCachedAdminFallback bool

	tabLocks *keyedMutex /* 同一标签页的决策串行化 */
	logger   *zap.Logger
}

/* tabLock 单个标签页的互斥与持有计数 */
type tabLock struct {
	mu   sync.Mutex
	refs int /* 当前持有或等待的调用数 */
}

/*
keyedMutex 按键互斥
功能：为每个标签页提供一把串行化锁。条目按持有计数管理，
最后一个持有者释放时条目即删除——未认证流量每次请求
生成一次性标签页标识，锁表不能随之累积。
*/
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*tabLock
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*tabLock)}
}

/* lock 获取键对应的锁，返回释放函数 */
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &tabLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

/* size 当前锁表条目数 */
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

/*
New 创建认证闸门
功能：重试策略吸收后端冷启动（首次解析返回 5xx 类错误时
在预算内重试），其余错误类别不重试
*/
func New(sessions *session.Manager, identity Identity, cfg *config.Config) *Gate {
	attempts := cfg.Upstream.RetryAttempts
	if attempts <= 0 {
		attempts = 10
	}
	interval := time.Duration(cfg.Upstream.RetryInterval) * time.Second
	if interval <= 0 {
		interval = time.Second
	}

	return &Gate{
		sessions: sessions,
		identity: identity,
		policy:   retry.Policy{MaxAttempts: attempts, Interval: interval},

		allowCachedAdminFallback: cfg.Gate.AllowCachedAdminFallback,
		tabLocks:                 newKeyedMutex(),
		logger:                   zap.L().Named("auth-gate"),
	}
}

/*
Check 对一次受保护导航做出决策
功能：见包注释。ctx 来自发起请求；请求随视图销毁被取消时
决策按不可达类别收敛，不会在销毁后生效（调用方已不再消费）。
*/
func (g *Gate) Check(ctx context.Context, tabID, requestedPath string) Decision {
	/* 同一标签页串行决策，后到的调用看到前一次写入的最新会话 */
	unlock := g.tabLocks.lock(tabID)
	defer unlock()

	st := g.sessions.StoreFor(tabID)

	/* 第一步：读会话，缺失（含字段不完整）即拦截去登录 */
	sess, ok := st.Get()
	if !ok {
		if !route.Public(requestedPath) {
			_ = st.SetIntendedPath(requestedPath)
		}
		return g.decide(ActionRedirect, route.Login, "no_session", nil)
	}

	/* 第二步：向后端解析权威角色，本地缓存角色不单独作为授权依据 */
	var user *backend.UserInfo
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		u, e := g.identity.WhoAmI(ctx, sess.Token)
		if e == nil {
			user = u
		}
		return e
	}, func(err error) bool {
		/* 仅 5xx 类参与冷启动重试 */
		return errors.Is(err, backend.ErrServer)
	})

	/* 第三步：按错误类别分流 */
	switch {
	case err == nil:
		return g.resolved(st, sess, user, requestedPath)

	case errors.Is(err, backend.ErrUnauthorized), errors.Is(err, backend.ErrMalformed):
		/* 破坏性：后端明确拒绝或响应缺字段，清会话强制重新登录 */
		_ = st.Clear()
		return g.decide(ActionRedirect, route.Login, "unauthorized", err)

	case errors.Is(err, backend.ErrServer):
		/* 非破坏性：重试预算耗尽仍是 5xx，转入重连视图，会话保留 */
		return g.decide(ActionRedirect, route.HealthCheck, "upstream_failure", err)

	default:
		/* 网络/超时/取消 → 缓存角色回退 */
		return g.fallback(sess, requestedPath, err)
	}
}

/*
resolved 角色解析成功后的决策
功能：原子更新会话 → 消费 intendedPath → 角色路由
*/
func (g *Gate) resolved(st session.Store, sess session.Session, user *backend.UserInfo, requestedPath string) Decision {
	role := session.ParseRole(user.Role)
	if role == session.RoleUnknown {
		/* 无法识别的角色等同缺字段，封闭失败 */
		_ = st.Clear()
		return g.decide(ActionRedirect, route.Login, "unknown_role", nil)
	}

	username := user.Username
	if username == "" {
		username = sess.Username
	}
	updated := session.Session{
		Token:    sess.Token,
		Role:     role,
		UserID:   user.ID,
		Username: username,
	}
	_ = st.Set(updated)

	intended, _ := st.TakeIntendedPath()

	/* 患者优先恢复 intendedPath；管理员角色覆盖 intendedPath */
	if role != session.RoleAdmin && route.ValidIntended(intended) && intended != requestedPath {
		return g.decide(ActionRedirect, intended, "resume_intended", nil)
	}

	if !route.Authorized(role, requestedPath) {
		return g.decide(ActionRedirect, route.Destination(role, ""), "forbidden", nil)
	}

	d := g.decide(ActionRender, "", "ok", nil)
	d.Session = updated
	return d
}

/*
fallback 后端不可达时的缓存角色回退
功能：仅缓存角色为 admin、配置显式允许、且令牌自检（未过期、
claims 角色一致）通过时放行管理区；其余一律保守回登录页。
会话保留——不可达不代表凭据无效。
*/
func (g *Gate) fallback(sess session.Session, requestedPath string, cause error) Decision {
	if sess.Role == session.RoleAdmin && g.allowCachedAdminFallback {
		claims, err := auth.InspectToken(sess.Token)
		if err == nil && claims.Role == string(session.RoleAdmin) {
			g.logger.Warn("后端不可达，凭缓存 admin 角色回退放行",
				zap.String("user_id", sess.UserID),
				zap.NamedError("cause", cause))
			if route.Authorized(session.RoleAdmin, requestedPath) &&
				requestedPath != route.Login && requestedPath != route.Register {
				d := g.decide(ActionRender, "", "cached_admin", nil)
				d.Session = sess
				return d
			}
			return g.decide(ActionRedirect, route.AdminDashboard, "cached_admin", nil)
		}
		g.logger.Warn("缓存 admin 角色回退被令牌自检拒绝", zap.Error(err))
	}

	return g.decide(ActionRedirect, route.Login, "unreachable", cause)
}

/* decide 记录决策日志与指标并构造决策值 */
func (g *Gate) decide(action Action, location, reason string, cause error) Decision {
	recordDecision(action, reason)

	fields := []zap.Field{
		zap.String("action", string(action)),
		zap.String("reason", reason),
	}
	if location != "" {
		fields = append(fields, zap.String("location", location))
	}
	if cause != nil {
		fields = append(fields, zap.NamedError("cause", cause))
	}
	g.logger.Debug("闸门决策", fields...)

	return Decision{Action: action, Location: location, Reason: reason}
}
