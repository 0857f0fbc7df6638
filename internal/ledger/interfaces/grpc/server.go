package grpc

import (
	"context"
	"errors"

	"github.com/wyfcoding/bankledger/internal/ledger/application"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"github.com/wyfcoding/bankledger/pkg/logger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// LedgerGrpcServer 账本 gRPC 服务
type LedgerGrpcServer struct {
	svc *application.LedgerService
}

var _ LedgerServiceServer = (*LedgerGrpcServer)(nil)

// NewLedgerGrpcServer 创建 gRPC 服务
func NewLedgerGrpcServer(svc *application.LedgerService) *LedgerGrpcServer {
	return &LedgerGrpcServer{svc: svc}
}

// toStatus 领域错误转换为 gRPC 状态码
func toStatus(ctx context.Context, err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrForbidden):
		code = codes.PermissionDenied
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrDuplicateTransaction):
		code = codes.AlreadyExists
	case errors.Is(err, domain.ErrConcurrentModification):
		code = codes.Aborted
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrAccountClosed),
		errors.Is(err, domain.ErrLimitExceeded):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrValidation):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrTimeout):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		logger.Error(ctx, "grpc request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

func reply(out map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(out)
}

// UpsertOwner 保存户主资料
func (s *LedgerGrpcServer) UpsertOwner(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(in)
	owner, err := s.svc.UpsertOwner(ctx, application.UpsertOwnerCommand{
		OwnerID:  a.str("owner_id"),
		Phone:    a.str("phone"),
		FullName: a.str("full_name"),
		Tier:     a.str("tier"),
	})
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return reply(map[string]any{
		"id":        owner.ID,
		"phone":     owner.Phone,
		"full_name": owner.FullName,
		"tier":      owner.Tier,
	})
}

// CreateAccount 开户
func (s *LedgerGrpcServer) CreateAccount(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(in)
	cmd := application.CreateAccountCommand{
		OwnerID:  a.str("owner_id"),
		Type:     a.str("type"),
		Name:     a.str("name"),
		Currency: a.str("currency"),
	}
	var err error
	if cmd.InitialBalance, err = a.amount("initial_balance"); err != nil {
		return nil, toStatus(ctx, err)
	}
	if cmd.InterestRate, err = a.optionalAmount("interest_rate"); err != nil {
		return nil, toStatus(ctx, err)
	}
	if cmd.DailyLimit, err = a.optionalAmount("daily_limit"); err != nil {
		return nil, toStatus(ctx, err)
	}
	if cmd.MonthlyLimit, err = a.optionalAmount("monthly_limit"); err != nil {
		return nil, toStatus(ctx, err)
	}

	acc, err := s.svc.CreateAccount(ctx, cmd)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return reply(encodeAccount(acc))
}

// GetAccount 查询账户
func (s *LedgerGrpcServer) GetAccount(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	acc, err := s.svc.GetAccount(ctx, argsOf(in).str("account_id"))
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return reply(encodeAccount(acc))
}

// ListAccounts 户主名下账户
func (s *LedgerGrpcServer) ListAccounts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	accounts, err := s.svc.ListAccounts(ctx, argsOf(in).str("owner_id"))
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	list := make([]any, len(accounts))
	for i, acc := range accounts {
		list[i] = encodeAccount(acc)
	}
	return reply(map[string]any{"accounts": list})
}

// RenameAccount 改名
func (s *LedgerGrpcServer) RenameAccount(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(in)
	acc, err := s.svc.RenameAccount(ctx, a.str("account_id"), a.str("name"))
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return reply(encodeAccount(acc))
}

// CloseAccount 销户
func (s *LedgerGrpcServer) CloseAccount(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.svc.CloseAccount(ctx, argsOf(in).str("account_id")); err != nil {
		return nil, toStatus(ctx, err)
	}
	return reply(map[string]any{"status": string(domain.AccountStatusClosed)})
}

// transactionReply 重复交易号映射为 AlreadyExists
func transactionReply(ctx context.Context, tx *domain.Transaction, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return reply(encodeTransaction(tx))
}

// Transfer 转账
func (s *LedgerGrpcServer) Transfer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(in)
	amount, err := a.amount("amount")
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	tx, err := s.svc.Transfer(ctx, application.TransferCommand{
		TransactionID: a.str("transaction_id"),
		FromAccountID: a.str("from_account_id"),
		ToAccountID:   a.str("to_account_id"),
		Amount:        amount,
		Category:      a.str("category"),
		Description:   a.str("description"),
	})
	return transactionReply(ctx, tx, err)
}

// Deposit 存入
func (s *LedgerGrpcServer) Deposit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(in)
	amount, err := a.amount("amount")
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	tx, err := s.svc.Deposit(ctx, application.DepositCommand{
		TransactionID: a.str("transaction_id"),
		AccountID:     a.str("account_id"),
		Amount:        amount,
		Type:          a.str("type"),
		Category:      a.str("category"),
		Description:   a.str("description"),
	})
	return transactionReply(ctx, tx, err)
}

// Withdraw 取出
func (s *LedgerGrpcServer) Withdraw(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(in)
	amount, err := a.amount("amount")
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	tx, err := s.svc.Withdraw(ctx, application.WithdrawCommand{
		TransactionID: a.str("transaction_id"),
		AccountID:     a.str("account_id"),
		Amount:        amount,
		Type:          a.str("type"),
		Category:      a.str("category"),
		Description:   a.str("description"),
	})
	return transactionReply(ctx, tx, err)
}

// Reverse 冲正
func (s *LedgerGrpcServer) Reverse(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(in)
	tx, err := s.svc.Reverse(ctx, application.ReverseCommand{
		TransactionID: a.str("transaction_id"),
		Reason:        a.str("reason"),
	})
	return transactionReply(ctx, tx, err)
}

// GetTransaction 查询单笔交易
func (s *LedgerGrpcServer) GetTransaction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	v, err := s.svc.GetTransaction(ctx, argsOf(in).str("transaction_id"))
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return reply(encodeView(*v))
}

// ListTransactions 分页查询交易
func (s *LedgerGrpcServer) ListTransactions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(in)
	q := application.ListTransactionsQuery{
		AccountID: a.str("account_id"),
		OwnerID:   a.str("owner_id"),
		Status:    a.str("status"),
		Type:      a.str("type"),
		Category:  a.str("category"),
	}
	var err error
	if q.From, err = a.optionalTime("from"); err != nil {
		return nil, toStatus(ctx, err)
	}
	if q.To, err = a.optionalTime("to"); err != nil {
		return nil, toStatus(ctx, err)
	}
	if q.MinAmount, err = a.optionalAmount("min_amount"); err != nil {
		return nil, toStatus(ctx, err)
	}
	if q.MaxAmount, err = a.optionalAmount("max_amount"); err != nil {
		return nil, toStatus(ctx, err)
	}
	if q.Limit, err = a.integer("limit"); err != nil {
		return nil, toStatus(ctx, err)
	}
	if q.Offset, err = a.integer("offset"); err != nil {
		return nil, toStatus(ctx, err)
	}

	page, err := s.svc.ListTransactions(ctx, q)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	items := make([]any, len(page.Items))
	for i, v := range page.Items {
		items[i] = encodeView(v)
	}
	return reply(map[string]any{
		"items":  items,
		"total":  page.Total,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

// MonthlyDelta 本月余额变化
func (s *LedgerGrpcServer) MonthlyDelta(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(in)
	asOf, err := a.timeOrZero("as_of")
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	d, err := s.svc.MonthlyDelta(ctx, a.str("account_id"), asOf)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return reply(encodeDelta(d))
}

// CategoryBreakdown 收支分类
func (s *LedgerGrpcServer) CategoryBreakdown(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(in)
	from, err := a.timeOrZero("from")
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	to, err := a.timeOrZero("to")
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	b, err := s.svc.CategoryBreakdown(ctx, a.str("owner_id"), application.Period{From: from, To: to})
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return reply(encodeBreakdown(b))
}

// FindRecipient 按手机号或账号查找收款账户，账号脱敏
func (s *LedgerGrpcServer) FindRecipient(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(in)
	accounts, err := s.svc.FindRecipient(ctx, a.str("phone"), a.str("account_number"))
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	list := make([]any, len(accounts))
	for i, acc := range accounts {
		list[i] = encodeRecipient(acc)
	}
	return reply(map[string]any{"recipients": list})
}
