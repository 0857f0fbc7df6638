package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"github.com/wyfcoding/bankledger/pkg/logger"
)

// errorKinds 按顺序匹配，具体错误在前
var errorKinds = []struct {
	target error
	status int
	code   string
}{
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrDuplicateTransaction, http.StatusConflict, "duplicate_transaction"},
	{domain.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
	{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "insufficient_funds"},
	{domain.ErrAccountClosed, http.StatusUnprocessableEntity, "account_closed"},
	{domain.ErrLimitExceeded, http.StatusUnprocessableEntity, "limit_exceeded"},
	{domain.ErrValidation, http.StatusBadRequest, "validation_error"},
	{domain.ErrTimeout, http.StatusServiceUnavailable, "timeout"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "deadline_exceeded"},
}

func classify(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// respondError 写错误响应；5xx 不向调用方暴露内部错误信息
func respondError(c *gin.Context, err error, extra gin.H) {
	ctx := c.Request.Context()
	status, code := classify(err)
	body := gin.H{"error": err.Error(), "code": code}
	for k, v := range extra {
		body[k] = v
	}
	switch {
	case status == http.StatusInternalServerError:
		logger.Error(ctx, "request failed", "path", c.FullPath(), "error", err)
		body["error"] = "internal error"
	case status >= http.StatusInternalServerError:
		logger.Warn(ctx, "request aborted", "path", c.FullPath(), "error", err)
	default:
		logger.Debug(ctx, "request rejected", "path", c.FullPath(), "code", code, "error", err)
	}
	c.JSON(status, body)
}
