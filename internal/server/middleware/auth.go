package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var allPermissions = []string{
	"entity.create",
	"entity.delete",
	"relation.create",
	"relation.delete",
	"entity.merge",
	"entity.isolate",
	"entity.prune",
	"export.create",
}

func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		app := c.(*AppContext).App

		// Master API Key bypass
		if app.MasterAPIKey != "" && app.MasterUserID != "" && app.MasterUserRole != "" && token == app.MasterAPIKey {
			c.(*AppContext).User = &AppUser{
				UserID:      app.MasterUserID,
				Role:        app.MasterUserRole,
				Permissions: allPermissions,
			}
			return next(c)
		}

		if app.Keyfunc == nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}
		parsed, err := jwt.Parse(token, app.Keyfunc)
		if err != nil || !parsed.Valid {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}

		userID := userIDFromClaims(claims)
		if userID == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid user ID"})
		}

		role := "user"
		if roleClaim, ok := claims["role"].(string); ok {
			role = roleClaim
		}

		var permissions []string
		if permsClaim, ok := claims["permissions"].([]any); ok {
			for _, p := range permsClaim {
				if pStr, ok := p.(string); ok {
					permissions = append(permissions, pStr)
				}
			}
		}

		if role == "admin" && len(permissions) == 0 {
			permissions = allPermissions
		}

		c.(*AppContext).User = &AppUser{
			UserID:      userID,
			Role:        role,
			Permissions: permissions,
		}

		return next(c)
	}
}

// userIDFromClaims prefers the id claim and falls back to the subject.
func userIDFromClaims(claims jwt.MapClaims) string {
	switch id := claims["id"].(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return strconv.FormatInt(int64(id), 10)
	}
	sub, _ := claims.GetSubject()
	return sub
}
