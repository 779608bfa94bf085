/*
Package route 角色路由表

纯映射，无 I/O：给定角色与待恢复的 intendedPath，计算导航目的地。
管理员恒定落在管理面板，intendedPath 不参与（防止借恢复路径
把管理员导向越权混淆的页面）；患者优先恢复 intendedPath，
否则落在患者首页；角色未解析一律回登录页。
*/
package route

import (
	"strings"

	"vaxgate/internal/session"
)

/* 路由表 */
const (
	Login       = "/login"        /* 登录页 */
	Register    = "/register"     /* 注册页 */
	HealthCheck = "/health-check" /* 重连视图 */

	AdminPrefix    = "/admin"           /* 管理区前缀 */
	AdminDashboard = "/admin/dashboard" /* 管理员落地页 */
	PatientPrefix  = "/patient"         /* 患者区前缀 */
	PatientHome    = "/patient/home"    /* 患者落地页 */
)

/*
Public 判断路径是否为无需认证的公开路径
功能：登录/注册/重连相关路径不触发闸门，也不应被记录为 intendedPath
*/
func Public(path string) bool {
	return path == Login || path == Register ||
		path == HealthCheck || strings.HasPrefix(path, HealthCheck+"/")
}

/*
ValidIntended 判断 intendedPath 是否可被患者恢复
功能：根路径、重连视图和管理区前缀的路径不作为恢复目标
*/
func ValidIntended(path string) bool {
	if path == "" || path == "/" {
		return false
	}
	if path == HealthCheck || strings.HasPrefix(path, HealthCheck+"/") {
		return false
	}
	if path == AdminPrefix || strings.HasPrefix(path, AdminPrefix+"/") {
		return false
	}
	return true
}

/*
Destination 计算导航目的地
功能：(role, intendedPath) → 目的路径。
优先级：管理员角色覆盖 intendedPath；患者仅在 intendedPath
合法时恢复；未解析角色回登录页。
*/
func Destination(role session.Role, intended string) string {
	switch role {
	case session.RoleAdmin:
		/* 管理员恒定落地，intendedPath 不参与 */
		return AdminDashboard
	case session.RolePatient:
		if ValidIntended(intended) {
			return intended
		}
		return PatientHome
	default:
		return Login
	}
}

/*
Authorized 判断角色是否可以访问给定的受保护路径
功能：管理员可访问全部受保护区域；患者不可进入管理区；
未解析角色不授予任何访问
*/
func Authorized(role session.Role, path string) bool {
	switch role {
	case session.RoleAdmin:
		return true
	case session.RolePatient:
		return path != AdminPrefix && !strings.HasPrefix(path, AdminPrefix+"/")
	default:
		return false
	}
}
