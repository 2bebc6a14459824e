package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const RoleAdmin = "ADMIN"

// RoleGuard はAuthJWTの後ろで、指定ロールだけを通す。
func RoleGuard(roles ...string) echo.MiddlewareFunc {
	allowed := map[string]bool{}
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			op, ok := OperatorFrom(c)
			if !ok || op.Role == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			if !allowed[op.Role] {
				return c.JSON(http.StatusForbidden, errorJSON("admin only"))
			}
			return next(c)
		}
	}
}

// 照合ツールはADMINだけ
func AdminRoleGuard() echo.MiddlewareFunc {
	return RoleGuard(RoleAdmin)
}
