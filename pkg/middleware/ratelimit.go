package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/bankledger/pkg/config"
	"github.com/wyfcoding/bankledger/pkg/contextx"
	"github.com/wyfcoding/bankledger/pkg/logger"
	"github.com/wyfcoding/bankledger/pkg/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func limitFromConfig(cfg config.RateLimitConfig) ratelimit.Limit {
	return ratelimit.Limit{
		Rate:   cfg.QPS,
		Period: time.Second,
		Burst:  cfg.Burst,
	}
}

// RateLimitMiddleware Gin 限流中间件，已识别调用方时按用户限流，否则按 IP
func RateLimitMiddleware(limiter ratelimit.RateLimiter, cfg config.RateLimitConfig) gin.HandlerFunc {
	limit := limitFromConfig(cfg)
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:ip:%s", c.ClientIP())
		if userID := contextx.UserID(c.Request.Context()); userID != "" {
			key = fmt.Sprintf("ratelimit:user:%s", userID)
		}

		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			// 限流器故障时放行
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			c.Header("Retry-After", strconv.FormatInt(int64(res.RetryAfter/time.Second)+1, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too Many Requests",
				"retry_after": res.RetryAfter.String(),
			})
			return
		}

		c.Next()
	}
}

// GRPCRateLimitInterceptor gRPC 限流拦截器，按调用方限流
func GRPCRateLimitInterceptor(limiter ratelimit.RateLimiter, cfg config.RateLimitConfig) grpc.UnaryServerInterceptor {
	limit := limitFromConfig(cfg)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !cfg.Enabled {
			return handler(ctx, req)
		}
		key := "ratelimit:grpc:anonymous"
		if userID := contextx.UserID(ctx); userID != "" {
			key = "ratelimit:grpc:" + userID
		}
		res, err := limiter.Allow(ctx, key, limit)
		if err != nil {
			logger.Warn(ctx, "rate limiter unavailable", "error", err)
			return handler(ctx, req)
		}
		if !res.Allowed {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}
