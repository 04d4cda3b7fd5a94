package middleware

import (
	"net/http"
	"strings"

	"supportdesk/internal/config"

	"github.com/gin-gonic/gin"
)

// CORS 按 security.cors 设置跨域响应头
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	methods := strings.Join(cfg.AllowedMethods, ", ")
	if methods == "" {
		methods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	if headers == "" || headers == "*" {
		headers = "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-API-Key"
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allow := allowedOrigin(cfg.AllowedOrigins, origin); allow != "" {
			c.Header("Access-Control-Allow-Origin", allow)
		}
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", headers)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func allowedOrigin(allowed []string, origin string) string {
	for _, o := range allowed {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}
