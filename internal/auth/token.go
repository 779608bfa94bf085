/*
Package auth 令牌本地自检

后端不可达走缓存角色回退时，缓存的角色与令牌没有密码学绑定，
单凭本地缓存放行管理区是一个已知的授权弱点。此包在回退路径上
提供一层缓解：不验证签名（签名密钥在后端），但解析令牌自带的
claims，检查其未过期且角色声明与缓存一致。签名验证仍以后端的
当前用户端点为准，这里只是降级时的交叉校验。
*/
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	/* ErrTokenExpired 令牌已过期 */
	ErrTokenExpired = errors.New("auth: token expired")
	/* ErrTokenInvalid 令牌无法解析或缺少必要声明 */
	ErrTokenInvalid = errors.New("auth: token invalid")
)

/*
TokenClaims 令牌自带的身份声明
*/
type TokenClaims struct {
	UserID   string
	Username string
	Role     string
}

/*
InspectToken 解析令牌声明（不验证签名）
功能：提取 user_id/username/role 声明并检查 exp。
令牌格式非法或已过期时返回错误，回退路径据此拒绝放行。
*/
func InspectToken(token string) (*TokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	/* 过期或无期限的令牌不参与任何回退判定 */
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: exp 声明缺失或非法", ErrTokenInvalid)
	}
	if exp.Before(time.Now()) {
		return nil, ErrTokenExpired
	}

	return &TokenClaims{
		UserID:   stringClaim(claims, "user_id"),
		Username: stringClaim(claims, "username"),
		Role:     stringClaim(claims, "role"),
	}, nil
}

/* stringClaim 安全提取字符串声明，类型不匹配时返回空串 */
func stringClaim(claims jwt.MapClaims, key string) string {
	v, ok := claims[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
