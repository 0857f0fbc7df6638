package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/bankledger/internal/ledger/application"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
)

// LedgerHandler 账本 HTTP 处理器
type LedgerHandler struct {
	svc *application.LedgerService
}

// NewLedgerHandler 创建 HTTP 处理器
func NewLedgerHandler(svc *application.LedgerService) *LedgerHandler {
	return &LedgerHandler{svc: svc}
}

// RegisterRoutes 注册路由
func (h *LedgerHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.PUT("/owners/:id", h.UpsertOwner)
		api.GET("/owners/:id/accounts", h.ListAccounts)
		api.GET("/owners/:id/category-breakdown", h.CategoryBreakdown)

		api.POST("/accounts", h.CreateAccount)
		api.GET("/accounts/:id", h.GetAccount)
		api.PATCH("/accounts/:id", h.RenameAccount)
		api.POST("/accounts/:id/close", h.CloseAccount)
		api.POST("/accounts/:id/deposit", h.Deposit)
		api.POST("/accounts/:id/withdraw", h.Withdraw)
		api.GET("/accounts/:id/monthly-delta", h.MonthlyDelta)

		api.POST("/transfers", h.Transfer)
		api.GET("/transactions", h.ListTransactions)
		api.GET("/transactions/:id", h.GetTransaction)
		api.POST("/transactions/:id/reverse", h.Reverse)

		api.GET("/recipients", h.FindRecipient)
	}
}

func bindError(c *gin.Context, err error) {
	respondError(c, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error()), nil)
}

// idempotencyKey 请求体优先，其次 Idempotency-Key 头
func idempotencyKey(c *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
}

// respondTransaction 重复交易号返回 409 并附带原交易
func respondTransaction(c *gin.Context, tx *domain.Transaction, err error, okStatus int) {
	if err != nil {
		var extra gin.H
		if errors.Is(err, domain.ErrDuplicateTransaction) && tx != nil {
			extra = gin.H{"transaction": toTransactionResponse(tx)}
		}
		respondError(c, err, extra)
		return
	}
	c.JSON(okStatus, toTransactionResponse(tx))
}

// UpsertOwner 保存户主资料
func (h *LedgerHandler) UpsertOwner(c *gin.Context) {
	var req upsertOwnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	owner, err := h.svc.UpsertOwner(c.Request.Context(), application.UpsertOwnerCommand{
		OwnerID:  c.Param("id"),
		Phone:    req.Phone,
		FullName: req.FullName,
		Tier:     req.Tier,
	})
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, ownerResponse{ID: owner.ID, Phone: owner.Phone, FullName: owner.FullName, Tier: owner.Tier})
}

// CreateAccount 开户
func (h *LedgerHandler) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	acc, err := h.svc.CreateAccount(c.Request.Context(), application.CreateAccountCommand{
		OwnerID:        req.OwnerID,
		Type:           req.Type,
		Name:           req.Name,
		Currency:       req.Currency,
		InitialBalance: req.InitialBalance,
		InterestRate:   req.InterestRate,
		DailyLimit:     req.DailyLimit,
		MonthlyLimit:   req.MonthlyLimit,
	})
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, toAccountResponse(acc))
}

// GetAccount 查询账户
func (h *LedgerHandler) GetAccount(c *gin.Context) {
	acc, err := h.svc.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(acc))
}

// ListAccounts 户主名下账户
func (h *LedgerHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.svc.ListAccounts(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	out := make([]accountResponse, len(accounts))
	for i, a := range accounts {
		out[i] = toAccountResponse(a)
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

// RenameAccount 改名
func (h *LedgerHandler) RenameAccount(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	acc, err := h.svc.RenameAccount(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(acc))
}

// CloseAccount 销户
func (h *LedgerHandler) CloseAccount(c *gin.Context) {
	if err := h.svc.CloseAccount(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(domain.AccountStatusClosed)})
}

// Deposit 存入
func (h *LedgerHandler) Deposit(c *gin.Context) {
	var req movementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	tx, err := h.svc.Deposit(c.Request.Context(), application.DepositCommand{
		TransactionID: idempotencyKey(c, req.TransactionID),
		AccountID:     c.Param("id"),
		Amount:        req.Amount,
		Type:          req.Type,
		Category:      req.Category,
		Description:   req.Description,
	})
	respondTransaction(c, tx, err, http.StatusCreated)
}

// Withdraw 取出
func (h *LedgerHandler) Withdraw(c *gin.Context) {
	var req movementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	tx, err := h.svc.Withdraw(c.Request.Context(), application.WithdrawCommand{
		TransactionID: idempotencyKey(c, req.TransactionID),
		AccountID:     c.Param("id"),
		Amount:        req.Amount,
		Type:          req.Type,
		Category:      req.Category,
		Description:   req.Description,
	})
	respondTransaction(c, tx, err, http.StatusCreated)
}

// Transfer 转账
func (h *LedgerHandler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	tx, err := h.svc.Transfer(c.Request.Context(), application.TransferCommand{
		TransactionID: idempotencyKey(c, req.TransactionID),
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Category:      req.Category,
		Description:   req.Description,
	})
	respondTransaction(c, tx, err, http.StatusCreated)
}

// Reverse 冲正
func (h *LedgerHandler) Reverse(c *gin.Context) {
	var req reverseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}
	tx, err := h.svc.Reverse(c.Request.Context(), application.ReverseCommand{
		TransactionID: c.Param("id"),
		Reason:        req.Reason,
	})
	respondTransaction(c, tx, err, http.StatusCreated)
}

// GetTransaction 查询单笔交易
func (h *LedgerHandler) GetTransaction(c *gin.Context) {
	v, err := h.svc.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, toViewResponse(*v))
}

// ListTransactions 分页查询交易
func (h *LedgerHandler) ListTransactions(c *gin.Context) {
	var req listTransactionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}
	q := application.ListTransactionsQuery{
		AccountID: req.AccountID,
		OwnerID:   req.OwnerID,
		Status:    req.Status,
		Type:      req.Type,
		Category:  req.Category,
		From:      req.From,
		To:        req.To,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}
	var err error
	if q.MinAmount, err = optionalAmount(req.MinAmount); err != nil {
		bindError(c, err)
		return
	}
	if q.MaxAmount, err = optionalAmount(req.MaxAmount); err != nil {
		bindError(c, err)
		return
	}

	page, err := h.svc.ListTransactions(c.Request.Context(), q)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	out := pageResponse{Items: make([]transactionResponse, len(page.Items)), Total: page.Total, Limit: page.Limit, Offset: page.Offset}
	for i, v := range page.Items {
		out.Items[i] = toViewResponse(v)
	}
	c.JSON(http.StatusOK, out)
}

func optionalAmount(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return &v, nil
}

// MonthlyDelta 本月余额变化，as_of 可选
func (h *LedgerHandler) MonthlyDelta(c *gin.Context) {
	var req asOfRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}
	delta, err := h.svc.MonthlyDelta(c.Request.Context(), c.Param("id"), req.AsOf)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, delta)
}

// CategoryBreakdown 收支分类，区间缺省为本月
func (h *LedgerHandler) CategoryBreakdown(c *gin.Context) {
	var req periodRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}
	out, err := h.svc.CategoryBreakdown(c.Request.Context(), c.Param("id"), application.Period{From: req.From, To: req.To})
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, out)
}

// FindRecipient 按 phone 或 account_number 查找收款账户
func (h *LedgerHandler) FindRecipient(c *gin.Context) {
	accounts, err := h.svc.FindRecipient(c.Request.Context(), c.Query("phone"), c.Query("account_number"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	out := make([]recipientResponse, len(accounts))
	for i, a := range accounts {
		out[i] = toRecipientResponse(a)
	}
	c.JSON(http.StatusOK, gin.H{"recipients": out})
}
