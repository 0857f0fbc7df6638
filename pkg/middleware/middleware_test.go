package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/bankledger/pkg/config"
	"github.com/wyfcoding/bankledger/pkg/contextx"
	"github.com/wyfcoding/bankledger/pkg/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": contextx.UserID(c.Request.Context())})
	})
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestGinIdentityFromHeaderAndJWT(t *testing.T) {
	r := newEngine(GinIdentityMiddleware(config.AuthConfig{JWTSecret: "s3cret", UserHeader: "X-User-ID"}))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-ID", "alice")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.JSONEq(t, `{"user":"alice"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "s3cret", "bob"))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.JSONEq(t, `{"user":"bob"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other", "mallory"))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGinRecoveryAndRequestID(t *testing.T) {
	r := newEngine(GinLoggingMiddleware(), GinRecoveryMiddleware())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestGinRateLimit(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, QPS: 1, Burst: 1}
	r := newEngine(RateLimitMiddleware(ratelimit.NewLocalRateLimiter(), cfg))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestGRPCRecoveryReturnsInternal(t *testing.T) {
	interceptor := GRPCRecoveryInterceptor()
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"},
		func(ctx context.Context, req any) (any, error) { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestGRPCIdentityFromMetadata(t *testing.T) {
	interceptor := GRPCIdentityInterceptor(config.AuthConfig{})
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(UserIDMetadataKey, "carol"))

	var seen string
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"},
		func(ctx context.Context, req any) (any, error) {
			seen = contextx.UserID(ctx)
			return nil, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "carol", seen)
}
