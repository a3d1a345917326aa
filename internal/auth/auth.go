package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// 认证策略由外部服务负责签发 token，这里只负责从 token
// 中解出一个不透明的身份标识，其余声明一概不关心。

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Identity 返回该 token 代表的身份，优先 name 声明，缺省退回 sub。
func (c *Claims) Identity() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Subject
}

func ParseToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Identity() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateToken 签发一个测试/工具用 token，生产签发在外部服务。
func GenerateToken(name, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   name,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// TokenFromRequest 支持 Authorization 头和 token 查询参数两种携带方式，
// 后者是浏览器 WebSocket 握手无法自定义头时的出路。
func TokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// Middleware 保护管理接口，把解析出的身份写入请求上下文。
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := ParseToken(token, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("identity", claims.Identity())
		c.Next()
	}
}

func GetIdentity(c *gin.Context) string {
	if v, ok := c.Get("identity"); ok {
		if name, ok2 := v.(string); ok2 {
			return name
		}
	}
	return ""
}
