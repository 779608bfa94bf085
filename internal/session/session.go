/*
Package session 标签页作用域的会话存储

浏览器每个标签页对应一份会话（token / role / userId / username）和
一个一次性的 intendedPath 槽位。所有读写都经过 Store 的原子契约：
set 同时写入全部字段，clear 同时清除全部字段，任何读取方都不会
观察到 token 存在而 role 缺失的中间状态；字段不完整的会话一律按
不存在处理（读侧封闭失败）。
*/
package session

// Role 会话角色
type Role string

const (
	RoleAdmin   Role = "admin"   /* 管理员 */
	RolePatient Role = "patient" /* 患者 */
	RoleUnknown Role = "unknown" /* 未解析 */
)

/*
ParseRole 解析角色字符串
功能：后端返回的角色字段归一化为枚举，无法识别的值归为 unknown
*/
func ParseRole(s string) Role {
	switch s {
	case "admin":
		return RoleAdmin
	case "patient":
		return RolePatient
	default:
		return RoleUnknown
	}
}

/*
Session 已认证身份
功能：当前标签页缓存的身份与角色，登录时整体写入，
重新登录时整体替换，登出/鉴权失败时整体销毁
*/
type Session struct {
	Token    string `json:"token"`
	Role     Role   `json:"role"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

/*
Complete 检查会话是否完整
功能：token、role、userId 任一缺失或角色无法识别即视为不完整，
调用方应将不完整会话当作不存在处理
*/
func (s Session) Complete() bool {
	if s.Token == "" || s.UserID == "" {
		return false
	}
	return s.Role == RoleAdmin || s.Role == RolePatient
}
