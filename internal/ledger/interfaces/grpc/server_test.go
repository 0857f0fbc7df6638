package grpc

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/bankledger/internal/ledger/application"
	"github.com/wyfcoding/bankledger/internal/ledger/infrastructure/lock"
	"github.com/wyfcoding/bankledger/internal/ledger/infrastructure/persistence/memory"
	"github.com/wyfcoding/bankledger/pkg/config"
	"github.com/wyfcoding/bankledger/pkg/grpcclient"
	"github.com/wyfcoding/bankledger/pkg/idgen"
	"github.com/wyfcoding/bankledger/pkg/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) *bufconn.Listener {
	t.Helper()
	store := memory.NewStore()
	ids, err := idgen.New(2)
	require.NoError(t, err)
	svc := application.NewLedgerService(application.Deps{
		Accounts:     store,
		Transactions: store,
		Owners:       store.Owners(),
		UoW:          store,
		Locker:       lock.NewKeyedMutex(),
		IDs:          ids,
	}, application.DefaultOptions(), nil)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.GRPCRecoveryInterceptor(),
		middleware.GRPCIdentityInterceptor(config.AuthConfig{}),
	))
	RegisterLedgerServiceServer(srv, NewLedgerGrpcServer(svc))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis
}

func dial(t *testing.T, lis *bufconn.Listener, userID string) *Client {
	t.Helper()
	conn, err := grpcclient.NewClient(grpcclient.ClientConfig{Target: "passthrough:///bufnet", UserID: userID},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func TestLedgerOverGRPC(t *testing.T) {
	lis := startServer(t)
	u1 := dial(t, lis, "u1")
	ctx := context.Background()

	savings, err := u1.Call(ctx, MethodCreateAccount, map[string]any{
		"owner_id": "u1", "type": "savings", "name": "rainy day", "initial_balance": "500",
	})
	require.NoError(t, err)
	current, err := u1.Call(ctx, MethodCreateAccount, map[string]any{
		"owner_id": "u1", "type": "current", "name": "bills", "initial_balance": 0,
	})
	require.NoError(t, err)
	assert.Equal(t, "500", savings["balance"])

	tx, err := u1.Call(ctx, MethodTransfer, map[string]any{
		"transaction_id":  "G-1",
		"from_account_id": savings["id"],
		"to_account_id":   current["id"],
		"amount":          200,
	})
	require.NoError(t, err)
	assert.Equal(t, "G-1", tx["transaction_id"])
	assert.Equal(t, "completed", tx["status"])

	_, err = u1.Call(ctx, MethodTransfer, map[string]any{
		"from_account_id": current["id"],
		"to_account_id":   savings["id"],
		"amount":          "1000",
	})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = u1.Call(ctx, MethodTransfer, map[string]any{
		"transaction_id":  "G-1",
		"from_account_id": savings["id"],
		"to_account_id":   current["id"],
		"amount":          "201",
	})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	page, err := u1.Call(ctx, MethodListTransactions, map[string]any{"account_id": current["id"], "limit": "10"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page["total"])
	items := page["items"].([]any)
	require.Len(t, items, 2)

	delta, err := u1.Call(ctx, MethodMonthlyDelta, map[string]any{"account_id": savings["id"]})
	require.NoError(t, err)
	assert.Equal(t, "300", delta["current_balance"])

	breakdown, err := u1.Call(ctx, MethodCategoryBreakdown, map[string]any{"owner_id": "u1"})
	require.NoError(t, err)
	assert.Equal(t, "500", breakdown["total_income"])
}

func TestErrorCodesOverGRPC(t *testing.T) {
	lis := startServer(t)
	u1 := dial(t, lis, "u1")
	u2 := dial(t, lis, "u2")
	ctx := context.Background()

	acc, err := u1.Call(ctx, MethodCreateAccount, map[string]any{"owner_id": "u1", "type": "current", "name": "x"})
	require.NoError(t, err)

	_, err = u2.Call(ctx, MethodGetAccount, map[string]any{"account_id": acc["id"]})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = u1.Call(ctx, MethodGetAccount, map[string]any{"account_id": "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = u1.Call(ctx, MethodDeposit, map[string]any{"account_id": acc["id"], "amount": "abc"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = u1.Call(ctx, MethodListTransactions, map[string]any{"account_id": acc["id"], "from": "yesterday"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = u1.Call(ctx, MethodCloseAccount, map[string]any{"account_id": acc["id"]})
	require.NoError(t, err)
	_, err = u1.Call(ctx, MethodDeposit, map[string]any{"account_id": acc["id"], "amount": "1"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestFindRecipientOverGRPC(t *testing.T) {
	lis := startServer(t)
	u1 := dial(t, lis, "u1")
	ctx := context.Background()

	_, err := u1.Call(ctx, MethodUpsertOwner, map[string]any{"owner_id": "u1", "phone": "555-0100-22"})
	require.NoError(t, err)
	acc, err := u1.Call(ctx, MethodCreateAccount, map[string]any{"owner_id": "u1", "type": "savings", "name": "x"})
	require.NoError(t, err)

	out, err := dial(t, lis, "").Call(ctx, MethodFindRecipient, map[string]any{"phone": "555010022"})
	require.NoError(t, err)
	list := out["recipients"].([]any)
	require.Len(t, list, 1)
	got := list[0].(map[string]any)
	assert.Equal(t, acc["id"], got["account_id"])
	assert.NotEqual(t, acc["number"], got["number"])
}
