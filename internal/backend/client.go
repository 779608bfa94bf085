/*
Package backend 预约平台后端 API 客户端

封装网关消费的三个上游端点：凭据认证、当前用户解析、存活探测。
所有请求带有界超时并接受 context 取消；错误归一化为四个类别
（Unauthorized / Server / Unreachable / Malformed），调用方用
errors.Is 判定后走各自的降级路径。
*/
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"vaxgate/internal/config"
)

var (
	/* ErrUnauthorized 后端明确拒绝凭据或令牌（401/403），破坏性：会话应被清除 */
	ErrUnauthorized = errors.New("backend: unauthorized")
	/* ErrServer 后端自身故障（5xx），非破坏性：会话保留，转入重连视图 */
	ErrServer = errors.New("backend: server failure")
	/* ErrUnreachable 网络错误或超时，非破坏性：降级到缓存角色回退 */
	ErrUnreachable = errors.New("backend: unreachable")
	/* ErrMalformed 响应缺少 role/id 等必要字段，按未授权处理（封闭失败） */
	ErrMalformed = errors.New("backend: malformed response")
)

/*
UserInfo 上游返回的当前用户记录
*/
type UserInfo struct {
	ID       string
	Username string
	Role     string
}

/*
LoginResult 凭据认证结果
*/
type LoginResult struct {
	Token string
	User  UserInfo
}

/*
Client 上游 API 客户端
功能：按配置拼装端点地址，维护两个粒度的超时：
角色解析用短超时（闸门决策路径），其余请求用常规超时
*/
type Client struct {
	baseURL      string
	livenessPath string
	loginPath    string
	whoamiPath   string

	httpClient   *http.Client /* 常规请求 */
	whoamiClient *http.Client /* 角色解析，短超时 */

	logger *zap.Logger
}

/*
NewClient 创建上游客户端
*/
func NewClient(cfg *config.UpstreamConfig) *Client {
	whoamiTimeout := time.Duration(cfg.WhoAmITimeout) * time.Second
	if whoamiTimeout <= 0 {
		whoamiTimeout = 6 * time.Second
	}
	requestTimeout := time.Duration(cfg.RequestTimeout) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		livenessPath: cfg.LivenessPath,
		loginPath:    cfg.LoginPath,
		whoamiPath:   cfg.WhoAmIPath,
		httpClient:   &http.Client{Timeout: requestTimeout},
		whoamiClient: &http.Client{Timeout: whoamiTimeout},
		logger:       zap.L().Named("backend-client"),
	}
}

/* loginPayload 上游凭据认证请求体 */
type loginPayload struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

/* loginBody 上游凭据认证响应体 */
type loginBody struct {
	Token string      `json:"token"`
	ID    json.Number `json:"id"`
	Name  string      `json:"username"`
	Role  string      `json:"role"`
}

/* whoamiBody 上游当前用户响应体 */
type whoamiBody struct {
	ID   json.Number `json:"id"`
	Name string      `json:"username"`
	Role string      `json:"role"`
}

/*
Login 凭据认证
功能：提交标识符+密码换取令牌和用户记录。
401/403 → ErrUnauthorized；5xx → ErrServer；传输失败 → ErrUnreachable；
响应缺少令牌或用户字段 → ErrMalformed。
*/
func (c *Client) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	payload, err := json.Marshal(loginPayload{Identifier: identifier, Password: password})
	if err != nil {
		return nil, fmt.Errorf("编码登录请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.loginPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建登录请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var body loginBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if body.Token == "" || body.ID.String() == "" || body.Role == "" {
		return nil, fmt.Errorf("%w: 登录响应缺少 token/id/role", ErrMalformed)
	}

	return &LoginResult{
		Token: body.Token,
		User: UserInfo{
			ID:       body.ID.String(),
			Username: body.Name,
			Role:     body.Role,
		},
	}, nil
}

/*
WhoAmI 解析当前用户
功能：携带 Bearer 令牌向上游确认权威角色。本地缓存的角色
不能单独作为授权依据，每次受保护导航都要经过此调用。
*/
func (c *Client) WhoAmI(ctx context.Context, token string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.whoamiPath, nil)
	if err != nil {
		return nil, fmt.Errorf("构建用户解析请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.whoamiClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var body whoamiBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	/* 缺少 role 或 id 的响应按未授权处理，封闭失败 */
	if body.ID.String() == "" || body.Role == "" {
		return nil, fmt.Errorf("%w: 用户响应缺少 id/role", ErrMalformed)
	}

	return &UserInfo{
		ID:       body.ID.String(),
		Username: body.Name,
		Role:     body.Role,
	}, nil
}

/*
Live 存活探测
功能：请求上游存活端点，2xx 视为就绪，其余一律视为故障
*/
func (c *Client) Live(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.livenessPath, nil)
	if err != nil {
		return fmt.Errorf("构建存活探测请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	/* 丢弃响应体以复用连接 */
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: liveness status %d", ErrServer, resp.StatusCode)
	}
	return nil
}

/* BaseURL 返回上游根地址（反向代理装配用） */
func (c *Client) BaseURL() string {
	return c.baseURL
}

/*
classifyStatus 将 HTTP 状态码映射到错误类别
2xx → nil；401/403 → ErrUnauthorized；5xx → ErrServer；
其余 4xx 视为响应异常 → ErrMalformed
*/
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, status)
	case status >= 500:
		return fmt.Errorf("%w: status %d", ErrServer, status)
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrMalformed, status)
	}
}
