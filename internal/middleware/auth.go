// internal/middleware/auth.go
package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/fieldbook/ppv-settlement/internal/i18n"
	"github.com/fieldbook/ppv-settlement/internal/utils"
)

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	// Extract token from "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// authenticate validates the session token and stores the caller in the
// context. It reports the i18n key to fail with, or "" on success.
func authenticate(c *gin.Context, token string) string {
	claims, err := utils.ValidateJWT(token)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return i18n.KeyAuthTokenExpired
	}
	if err != nil {
		return i18n.KeyAuthInvalidToken
	}
	c.Set(utils.ContextUserID, uuid.MustParse(claims.UserID))
	c.Set(utils.ContextRole, claims.Role)
	return ""
}

func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := utils.GetLangFromContext(c)

		token, ok := bearerToken(c)
		if !ok {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthRequired))
			return
		}
		if key := authenticate(c, token); key != "" {
			utils.UnauthorizedResponse(c, i18n.T(lang, key))
			return
		}
		c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := utils.GetRoleFromContext(c)
		if role != utils.RoleAdmin {
			utils.ForbiddenResponse(c, "")
			return
		}
		c.Next()
	}
}

// CronSecretRequired admits only callers presenting the scheduler secret whose
// bcrypt hash is configured. An empty hash locks the route.
func CronSecretRequired(secretHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok || !utils.CheckCronSecret(secretHash, token) {
			utils.UnauthorizedResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyAuthCronRequired))
			return
		}
		c.Set(utils.ContextCron, true)
		c.Next()
	}
}

// CronOrAdmin admits the scheduler secret or an admin session.
func CronOrAdmin(secretHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := utils.GetLangFromContext(c)

		token, ok := bearerToken(c)
		if !ok {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthRequired))
			return
		}
		if utils.CheckCronSecret(secretHash, token) {
			c.Set(utils.ContextCron, true)
			c.Next()
			return
		}
		if key := authenticate(c, token); key != "" {
			utils.UnauthorizedResponse(c, i18n.T(lang, key))
			return
		}
		if role, _ := utils.GetRoleFromContext(c); role != utils.RoleAdmin {
			utils.ForbiddenResponse(c, "")
			return
		}
		c.Next()
	}
}
