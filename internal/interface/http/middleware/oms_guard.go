package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/infrastructure/config"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
	"github.com/xiebiao/aftersales/pkg/response"
)

// APIKeyHeader OMS调用时携带的密钥
const APIKeyHeader = "X-API-Key"

// OMSGuard OMS接口访问控制
// 教学要点：
// 1. IP白名单：支持单个IP和CIDR，白名单为空表示不限制
// 2. API Key：配置里只保存bcrypt哈希，比较时用bcrypt.CompareHashAndPassword（恒定时间）
// 3. 通过后写入OMS操作人，后续Handler统一从Context取Actor
type OMSGuard struct {
	networks []*net.IPNet
	ips      map[string]bool
	keyHash  []byte
	logger   *zap.Logger
}

// NewOMSGuard 创建OMS访问控制
func NewOMSGuard(cfg *config.Config, log *zap.Logger) *OMSGuard {
	g := &OMSGuard{
		ips:     make(map[string]bool),
		keyHash: []byte(cfg.OMS.APIKeyHash),
		logger:  log.Named("oms.guard"),
	}
	for _, entry := range cfg.OMS.AllowedIPs {
		entry = strings.TrimSpace(entry)
		if _, network, err := net.ParseCIDR(entry); err == nil {
			g.networks = append(g.networks, network)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			g.ips[ip.String()] = true
			continue
		}
		g.logger.Warn("忽略无效的OMS白名单配置", zap.String("entry", entry))
	}
	return g
}

// Handle gin中间件
func (g *OMSGuard) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !g.allowIP(clientIP) {
			g.logger.Warn("OMS请求来源不在白名单", zap.String("ip", clientIP))
			response.Abort(c, http.StatusForbidden, apperrors.ErrForbidden)
			return
		}

		if len(g.keyHash) > 0 {
			key := c.GetHeader(APIKeyHeader)
			if key == "" || bcrypt.CompareHashAndPassword(g.keyHash, []byte(key)) != nil {
				g.logger.Warn("OMS API Key校验失败", zap.String("ip", clientIP))
				response.Abort(c, http.StatusUnauthorized, apperrors.ErrUnauthorized)
				return
			}
		}

		SetActor(c, aftersales.OMSActor(""))
		c.Next()
	}
}

func (g *OMSGuard) allowIP(raw string) bool {
	if len(g.ips) == 0 && len(g.networks) == 0 {
		return true
	}
	ip := net.ParseIP(raw)
	if ip == nil {
		return false
	}
	if g.ips[ip.String()] {
		return true
	}
	for _, n := range g.networks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
