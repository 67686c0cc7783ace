// internal/api/auth_middleware.go
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	authCookieName = "auth_token"
	// Cookie有效期30天
	authCookieMaxAge = 60 * 60 * 24 * 30
)

// AuthMiddleware 共享令牌鉴权。令牌从cookie或Authorization头
// （Bearer）中取出并与配置的令牌常量时间比较。配置令牌为空时
// 鉴权关闭（本地开发）。
func AuthMiddleware(authToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authToken == "" {
			c.Next()
			return
		}

		if !tokenMatches(requestToken(c), authToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "未授权"})
			return
		}
		c.Next()
	}
}

func requestToken(c *gin.Context) string {
	if token, err := c.Cookie(authCookieName); err == nil && token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func tokenMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// Login 校验访问令牌并下发cookie
// POST /api/auth/login
func Login(authToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Token string `json:"token"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
			return
		}

		if authToken == "" || !tokenMatches(input.Token, authToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "访问令牌无效"})
			return
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(authCookieName, input.Token, authCookieMaxAge, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
