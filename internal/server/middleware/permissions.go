package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

func HasPermission(user *AppUser, permission string) bool {
	return user != nil && slices.Contains(user.Permissions, permission)
}

func HasAnyPermission(user *AppUser, permissions ...string) bool {
	return slices.ContainsFunc(permissions, func(p string) bool {
		return HasPermission(user, p)
	})
}

// RequirePermission rejects requests whose user lacks permission.
func RequirePermission(permission string) echo.MiddlewareFunc {
	return require([]string{permission}, func(user *AppUser) bool {
		return HasPermission(user, permission)
	})
}

// RequireAnyPermission admits users holding at least one of permissions.
func RequireAnyPermission(permissions ...string) echo.MiddlewareFunc {
	return require(permissions, func(user *AppUser) bool {
		return HasAnyPermission(user, permissions...)
	})
}

func require(wanted []string, allowed func(*AppUser) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := c.(*AppContext).User
			if user == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}
			if !allowed(user) {
				logger.Debug("[Auth] Permission denied", "user", user.UserID, "path", c.Path(), "wanted", wanted)
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "Forbidden: missing permission " + strings.Join(wanted, " or "),
				})
			}
			return next(c)
		}
	}
}
