package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"repo-migrator/internal/pkg/jwt"
	"repo-migrator/pkg/constants"
	pkgErrors "repo-migrator/pkg/errors"
	"repo-migrator/pkg/responses"
)

// AuthMiddleware JWT认证中间件
func AuthMiddleware(manager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(constants.HeaderAuthorization)
		if authHeader == "" {
			responses.ErrorWithCode(c, pkgErrors.CodeUnauthorized, "缺少Authorization Header")
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, constants.HeaderBearerPrefix) {
			responses.ErrorWithCode(c, pkgErrors.CodeUnauthorized, "Authorization格式错误")
			c.Abort()
			return
		}

		claims, err := manager.ParseToken(strings.TrimPrefix(authHeader, constants.HeaderBearerPrefix))
		if err != nil {
			responses.Error(c, err)
			c.Abort()
			return
		}

		c.Set("operator", claims.Operator)
		c.Next()
	}
}
