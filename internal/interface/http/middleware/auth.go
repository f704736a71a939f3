package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
	"github.com/xiebiao/aftersales/pkg/jwt"
	"github.com/xiebiao/aftersales/pkg/response"
)

const actorKey = "actor"

// AuthMiddleware JWT认证中间件
// 设计说明：
// 1. 从Header提取Token并验证
// 2. 把Claims转换成领域层的Actor（买家=USER，客服=ADMIN）
// 3. Handler从Context取Actor，显式传给应用服务
type AuthMiddleware struct {
	jwtManager *jwt.Manager
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(jwtManager *jwt.Manager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager}
}

// RequireAuth 要求登录
// 使用方式：
//
//	authorized := r.Group("/api/v1")
//	authorized.Use(authMiddleware.RequireAuth())
//	authorized.POST("/aftersales", handler.Apply)
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 格式：Authorization: Bearer <token>
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Abort(c, http.StatusUnauthorized, apperrors.ErrUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Abort(c, http.StatusUnauthorized, apperrors.ErrInvalidToken)
			return
		}

		claims, err := m.jwtManager.ParseToken(parts[1])
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, err) // ErrTokenExpired / ErrInvalidToken
			return
		}

		c.Set(actorKey, actorFromClaims(claims))
		c.Next()
	}
}

// RequireAdmin 只允许客服/运营，必须放在RequireAuth之后
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetActor(c).Type != aftersales.ActorAdmin {
			response.Abort(c, http.StatusForbidden, apperrors.ErrForbidden)
			return
		}
		c.Next()
	}
}

func actorFromClaims(claims *jwt.Claims) aftersales.Actor {
	actorType := aftersales.ActorUser
	if claims.IsAdmin() {
		actorType = aftersales.ActorAdmin
	}
	return aftersales.Actor{Type: actorType, ID: claims.UserID, Name: claims.Name}
}

// =========================================
// Context辅助函数（供Handler使用）
// =========================================

// SetActor 写入操作人（OMS入口、测试使用）
func SetActor(c *gin.Context, actor aftersales.Actor) {
	c.Set(actorKey, actor)
}

// GetActor 从Context获取当前操作人，未登录返回零值
func GetActor(c *gin.Context) aftersales.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(aftersales.Actor); ok {
			return actor
		}
	}
	return aftersales.Actor{}
}
