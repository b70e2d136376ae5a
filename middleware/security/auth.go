package security

import (
	"net/http"
	"strings"

	errs "WPProject/tools/errs"
	sec "WPProject/tools/security"

	"github.com/gin-gonic/gin"
)

// —— context key ——
// 后续模块统一用这俩 key 读取
const (
	WPCtxAuthKey   = "authorization" // string，原始 token
	WPCtxUserIDKey = "user_id"       // string，token 的 sub
)

type Options struct {
	HeaderToken               string // 默认 "authorization"
	EnableAuthorizationBearer bool   // 默认 true
	JWT                       sec.Options
}

func DefaultOptions(secret []byte) *Options {
	return &Options{
		HeaderToken:               WPCtxAuthKey,
		EnableAuthorizationBearer: true,
		JWT:                       sec.DefaultOptions(secret),
	}
}

// Middleware 校验 JWT 并把 user_id 写入 context
func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token = strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		// 兼容 Authorization: Bearer xxx
		if token == "" && opts.EnableAuthorizationBearer {
			if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
				if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
					token = strings.TrimSpace(authz[len("bearer "):])
				}
			}
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenExpired)
			return
		}

		userID, err := sec.Verify(opts.JWT, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenExpired.WithDetail(err.Error()))
			return
		}

		c.Set(WPCtxAuthKey, token)
		c.Set(WPCtxUserIDKey, userID)
		c.Next()
	}
}

// UserID 从 gin context 取出鉴权后的 user_id
func UserID(c *gin.Context) string {
	return c.GetString(WPCtxUserIDKey)
}
