package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"github.com/wyfcoding/bankledger/pkg/config"
)

func TestExprPolicy(t *testing.T) {
	p, err := NewExprPolicy(`Type == "investment" ? ActiveOfType == 0 && Tier == "premium" : ActiveOfType < 2`)
	require.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, p.Allow(ctx, domain.PolicyInput{Type: "savings", ActiveOfType: 1}))
	assert.ErrorIs(t, p.Allow(ctx, domain.PolicyInput{Type: "savings", ActiveOfType: 2}), domain.ErrDuplicateAccountType)
	assert.NoError(t, p.Allow(ctx, domain.PolicyInput{Type: "investment", Tier: "premium"}))
	assert.ErrorIs(t, p.Allow(ctx, domain.PolicyInput{Type: "investment", Tier: "standard"}), domain.ErrValidation)
}

func TestExprPolicy_RejectsNonBoolean(t *testing.T) {
	_, err := NewExprPolicy(`ActiveTotal + 1`)
	assert.Error(t, err)
	_, err = NewExprPolicy(`UnknownField > 0`)
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	cases := map[string]any{
		"":             domain.OnePerTypePolicy{},
		"one_per_type": domain.OnePerTypePolicy{},
		"unlimited":    domain.UnlimitedPolicy{},
	}
	for name, want := range cases {
		got, err := FromConfig(config.LedgerConfig{AccountPolicy: name})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	tiered, err := FromConfig(config.LedgerConfig{AccountPolicy: "tiered", TierLimits: map[string]int{"premium": 3}})
	require.NoError(t, err)
	assert.NoError(t, tiered.Allow(context.Background(), domain.PolicyInput{Tier: "premium", ActiveOfType: 2}))
	assert.Error(t, tiered.Allow(context.Background(), domain.PolicyInput{Tier: "standard", ActiveOfType: 1}))

	_, err = FromConfig(config.LedgerConfig{AccountPolicy: "bogus"})
	assert.Error(t, err)
}
