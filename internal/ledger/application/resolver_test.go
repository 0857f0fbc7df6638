package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
)

func TestFindRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.UpsertOwner(ctx, UpsertOwnerCommand{OwnerID: "u1", Phone: "+1 555-0100", FullName: "Ann"})
	require.NoError(t, err)

	savings := f.open(t, "u1", domain.AccountTypeSavings, "0")
	current := f.open(t, "u1", domain.AccountTypeCurrent, "0")
	require.NoError(t, f.svc.CloseAccount(ctx, current.ID))

	found, err := f.svc.FindRecipient(ctx, "1 (555) 0100", "")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, savings.ID, found[0].ID)

	found, err = f.svc.FindRecipient(ctx, "999999999", "")
	require.NoError(t, err)
	assert.NotNil(t, found)
	assert.Empty(t, found)

	found, err = f.svc.FindRecipient(ctx, "", " "+savings.Number+" ")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, savings.ID, found[0].ID)

	found, err = f.svc.FindRecipient(ctx, "", current.Number)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = f.svc.FindRecipient(ctx, "", "000000000000")
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = f.svc.FindRecipient(ctx, "5550100", savings.Number)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.FindRecipient(ctx, "", "")
	assert.ErrorIs(t, err, domain.ErrMissingField)
	_, err = f.svc.FindRecipient(ctx, "call me", "")
	assert.ErrorIs(t, err, domain.ErrInvalidPhone)
}
