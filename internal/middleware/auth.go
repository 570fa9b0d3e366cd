package middleware

import (
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/school-portal-backend/internal/common/jwt"
	"github.com/dumeirei/school-portal-backend/internal/common/response"
)

// AuthConfig 认证配置
type AuthConfig struct {
	JWTManager *jwt.Manager
	UserType   string // 期望的主体类型
}

// 上下文键
const (
	ContextKeyUserID   = "user_id"
	ContextKeyUserType = "user_type"
	ContextKeyRole     = "role"
	ContextKeyClaims   = "claims"
)

// Auth 认证中间件
func Auth(config *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Unauthorized(c, "Please log in")
			c.Abort()
			return
		}

		claims, err := config.JWTManager.ParseAccessToken(token)
		if err != nil {
			if stderrors.Is(err, jwt.ErrTokenExpired) {
				response.Unauthorized(c, "Session expired, please log in again")
			} else {
				response.Unauthorized(c, "Invalid token")
			}
			c.Abort()
			return
		}

		if config.UserType != "" && claims.UserType != config.UserType {
			response.Forbidden(c, "Access denied")
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyUserType, claims.UserType)
		c.Set(ContextKeyRole, claims.Role)
		c.Set(ContextKeyClaims, claims)

		c.Next()
	}
}

// AffiliateAuth 推广员认证中间件
func AffiliateAuth(jwtManager *jwt.Manager) gin.HandlerFunc {
	return Auth(&AuthConfig{JWTManager: jwtManager, UserType: jwt.UserTypeAffiliate})
}

// AdminAuth 管理员认证中间件
func AdminAuth(jwtManager *jwt.Manager) gin.HandlerFunc {
	return Auth(&AuthConfig{JWTManager: jwtManager, UserType: jwt.UserTypeAdmin})
}

// RequireRoles 要求管理员具备指定角色之一
func RequireRoles(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role := GetRole(c)
		if role == "" {
			response.Unauthorized(c, "Please log in")
			c.Abort()
			return
		}
		if _, ok := roleSet[role]; !ok {
			response.Forbidden(c, "Permission denied")
			c.Abort()
			return
		}
		c.Next()
	}
}

// extractToken 从 Authorization 头或 Cookie 提取令牌
func extractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	token, _ := c.Cookie("token")
	return token
}

func subjectID(c *gin.Context, userType string) int64 {
	if c.GetString(ContextKeyUserType) != userType {
		return 0
	}
	if v, ok := c.Get(ContextKeyUserID); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}

// GetAffiliateID 当前推广员 ID，非推广员请求返回 0
func GetAffiliateID(c *gin.Context) int64 {
	return subjectID(c, jwt.UserTypeAffiliate)
}

// GetAdminID 当前管理员 ID，非管理员请求返回 0
func GetAdminID(c *gin.Context) int64 {
	return subjectID(c, jwt.UserTypeAdmin)
}

// GetRole 从上下文获取角色
func GetRole(c *gin.Context) string {
	return c.GetString(ContextKeyRole)
}
