// Package grpc 账本 gRPC 接口
// 请求与响应统一使用 google.protobuf.Struct，服务描述手工声明，不依赖代码生成
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName 全限定服务名
const ServiceName = "bankledger.ledger.v1.LedgerService"

// 方法名
const (
	MethodUpsertOwner       = "UpsertOwner"
	MethodCreateAccount     = "CreateAccount"
	MethodGetAccount        = "GetAccount"
	MethodListAccounts      = "ListAccounts"
	MethodRenameAccount     = "RenameAccount"
	MethodCloseAccount      = "CloseAccount"
	MethodTransfer          = "Transfer"
	MethodDeposit           = "Deposit"
	MethodWithdraw          = "Withdraw"
	MethodReverse           = "Reverse"
	MethodGetTransaction    = "GetTransaction"
	MethodListTransactions  = "ListTransactions"
	MethodMonthlyDelta      = "MonthlyDelta"
	MethodCategoryBreakdown = "CategoryBreakdown"
	MethodFindRecipient     = "FindRecipient"
)

// LedgerServiceServer 服务端需要实现的方法集合
type LedgerServiceServer interface {
	UpsertOwner(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAccounts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RenameAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Deposit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Withdraw(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reverse(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTransaction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTransactions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MonthlyDelta(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CategoryBreakdown(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindRecipient(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryFunc func(srv LedgerServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(LedgerServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc 手工声明的服务描述
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodUpsertOwner, LedgerServiceServer.UpsertOwner),
		unary(MethodCreateAccount, LedgerServiceServer.CreateAccount),
		unary(MethodGetAccount, LedgerServiceServer.GetAccount),
		unary(MethodListAccounts, LedgerServiceServer.ListAccounts),
		unary(MethodRenameAccount, LedgerServiceServer.RenameAccount),
		unary(MethodCloseAccount, LedgerServiceServer.CloseAccount),
		unary(MethodTransfer, LedgerServiceServer.Transfer),
		unary(MethodDeposit, LedgerServiceServer.Deposit),
		unary(MethodWithdraw, LedgerServiceServer.Withdraw),
		unary(MethodReverse, LedgerServiceServer.Reverse),
		unary(MethodGetTransaction, LedgerServiceServer.GetTransaction),
		unary(MethodListTransactions, LedgerServiceServer.ListTransactions),
		unary(MethodMonthlyDelta, LedgerServiceServer.MonthlyDelta),
		unary(MethodCategoryBreakdown, LedgerServiceServer.CategoryBreakdown),
		unary(MethodFindRecipient, LedgerServiceServer.FindRecipient),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/v1/ledger.proto",
}

// RegisterLedgerServiceServer 注册服务
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client 基于 Struct 的通用客户端
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient 包装已建立的连接
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call 调用指定方法，请求与响应均为普通 map
func (c *Client) Call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
