package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/wyfcoding/bankledger/pkg/config"
	"github.com/wyfcoding/bankledger/pkg/contextx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UserIDMetadataKey gRPC metadata 中的调用方 ID
const UserIDMetadataKey = "x-user-id"

var errInvalidToken = errors.New("invalid bearer token")

// identityResolver 从受信头或外部认证服务签发的 JWT 中解析调用方，不做凭证校验之外的鉴权
type identityResolver struct {
	secret []byte
	header string
}

func newIdentityResolver(cfg config.AuthConfig) identityResolver {
	header := cfg.UserHeader
	if header == "" {
		header = "X-User-ID"
	}
	return identityResolver{secret: []byte(cfg.JWTSecret), header: header}
}

func (r identityResolver) fromBearer(authorization string) (string, error) {
	raw, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || len(r.secret) == 0 {
		return "", nil
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || claims.Subject == "" {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}

// GinIdentityMiddleware 解析调用方身份；token 无效时返回 401，缺省时匿名放行
func GinIdentityMiddleware(cfg config.AuthConfig) gin.HandlerFunc {
	r := newIdentityResolver(cfg)
	return func(c *gin.Context) {
		userID, err := r.fromBearer(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if userID == "" {
			userID = strings.TrimSpace(c.GetHeader(r.header))
		}
		if userID != "" {
			c.Request = c.Request.WithContext(contextx.WithUserID(c.Request.Context(), userID))
		}
		c.Next()
	}
}

// GRPCIdentityInterceptor 从 metadata 解析调用方身份
func GRPCIdentityInterceptor(cfg config.AuthConfig) grpc.UnaryServerInterceptor {
	r := newIdentityResolver(cfg)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		var userID string
		if vals := md.Get("authorization"); len(vals) > 0 {
			id, err := r.fromBearer(vals[0])
			if err != nil {
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
			userID = id
		}
		if userID == "" {
			if vals := md.Get(UserIDMetadataKey); len(vals) > 0 {
				userID = strings.TrimSpace(vals[0])
			}
		}
		if userID != "" {
			ctx = contextx.WithUserID(ctx, userID)
		}
		return handler(ctx, req)
	}
}
