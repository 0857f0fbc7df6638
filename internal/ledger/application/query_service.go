package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TransactionView 交易在某个账户视角下的展示
type TransactionView struct {
	*domain.Transaction
	// 视角账户，查询范围内不涉及的一方不计入
	AccountID    string
	DisplayType  domain.TransactionType
	SignedAmount decimal.Decimal
}

// TransactionPage 一页交易
type TransactionPage struct {
	Items  []TransactionView
	Total  int64
	Limit  int
	Offset int
}

// QueryService 只读查询
type QueryService struct {
	deps Deps
}

// NewQueryService 创建查询服务
func NewQueryService(deps Deps) *QueryService {
	return &QueryService{deps: deps}
}

// ListTransactions 按账户或户主查询交易，创建时间倒序
func (s *QueryService) ListTransactions(ctx context.Context, q ListTransactionsQuery) (*TransactionPage, error) {
	scope, err := s.scope(ctx, q.AccountID, q.OwnerID)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	page := &TransactionPage{Items: []TransactionView{}, Limit: limit, Offset: q.Offset}
	if len(scope) == 0 {
		return page, nil
	}

	query := domain.TransactionQuery{
		AccountIDs: scope,
		Status:     domain.TransactionStatus(q.Status),
		Category:   strings.TrimSpace(q.Category),
		From:       q.From,
		To:         q.To,
		MinAmount:  q.MinAmount,
		MaxAmount:  q.MaxAmount,
		Limit:      limit,
		Offset:     q.Offset,
	}
	if q.Status != "" {
		switch query.Status {
		case domain.TxStatusPending, domain.TxStatusCompleted, domain.TxStatusFailed:
		default:
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, q.Status)
		}
	}
	if q.Type != "" {
		types, side, err := typeFilter(domain.TransactionType(q.Type))
		if err != nil {
			return nil, err
		}
		query.Types, query.Side = types, side
	}

	rows, total, err := s.deps.Transactions.List(ctx, query)
	if err != nil {
		return nil, err
	}
	page.Total = total
	owned := make(map[string]bool, len(scope))
	for _, id := range scope {
		owned[id] = true
	}
	for _, tx := range rows {
		page.Items = append(page.Items, viewFor(tx, owned))
	}
	return page, nil
}

// GetTransaction 按交易号查询，调用方必须拥有其中一方账户
func (s *QueryService) GetTransaction(ctx context.Context, transactionID string) (*TransactionView, error) {
	tx, err := s.deps.Transactions.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]bool, 2)
	var lastErr error
	for _, id := range []string{tx.FromAccountID, tx.ToAccountID} {
		if id == "" {
			continue
		}
		acc, err := s.deps.Accounts.Get(ctx, id)
		if err != nil {
			lastErr = err
			continue
		}
		if err := authorize(ctx, acc.OwnerID); err != nil {
			lastErr = err
			continue
		}
		owned[id] = true
	}
	if len(owned) == 0 {
		return nil, lastErr
	}
	v := viewFor(tx, owned)
	return &v, nil
}

// scope 查询涉及的账户集合
func (s *QueryService) scope(ctx context.Context, accountID, ownerID string) ([]string, error) {
	switch {
	case accountID != "":
		acc, err := s.deps.Accounts.Get(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if err := authorize(ctx, acc.OwnerID); err != nil {
			return nil, err
		}
		if ownerID != "" && acc.OwnerID != ownerID {
			return nil, domain.ErrForbidden
		}
		return []string{accountID}, nil
	case ownerID != "":
		if err := authorize(ctx, ownerID); err != nil {
			return nil, err
		}
		accounts, err := s.deps.Accounts.ListByOwner(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(accounts))
		for i, a := range accounts {
			ids[i] = a.ID
		}
		return ids, nil
	default:
		return nil, domain.ErrMissingField
	}
}

// typeFilter 把视角类型换算为存储类型与账户方向
// 转账以 transfer_out 存储，转入方看到 transfer_in；双边 refund 的付款方看到 transfer_out
func typeFilter(t domain.TransactionType) ([]domain.TransactionType, domain.Side, error) {
	switch t {
	case domain.TxTransferIn:
		return []domain.TransactionType{domain.TxTransferOut}, domain.SideDestination, nil
	case domain.TxTransferOut:
		return []domain.TransactionType{domain.TxTransferOut, domain.TxRefund}, domain.SideSource, nil
	case domain.TxRefund:
		return []domain.TransactionType{domain.TxRefund}, domain.SideDestination, nil
	}
	if !t.Valid() {
		return nil, domain.SideAny, domain.ErrInvalidTxType
	}
	return []domain.TransactionType{t}, domain.SideAny, nil
}

// viewFor 范围内涉及转出方时取转出方视角，否则取入账方
func viewFor(tx *domain.Transaction, owned map[string]bool) TransactionView {
	accountID := tx.FromAccountID
	if !owned[accountID] {
		accountID = tx.ToAccountID
	}
	return TransactionView{
		Transaction:  tx,
		AccountID:    accountID,
		DisplayType:  tx.PerspectiveType(accountID),
		SignedAmount: tx.SignedAmountFor(accountID),
	}
}
