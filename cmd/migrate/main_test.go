package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store/inmemory"
)

func TestSeedCreatesStarterAccountOnce(t *testing.T) {
	ctx := context.Background()
	st := inmemory.New()

	created, err := seed(ctx, st)
	require.NoError(t, err)
	assert.True(t, created)

	accounts, err := st.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Main", accounts[0].Name)
	assert.Equal(t, domain.AccountGeneral, accounts[0].Kind)
	assert.True(t, accounts[0].Balance.IsZero())

	created, err = seed(ctx, st)
	require.NoError(t, err)
	assert.False(t, created)

	accounts, err = st.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestSeedLeavesExistingAccountsAlone(t *testing.T) {
	ctx := context.Background()
	st := inmemory.New()

	require.NoError(t, st.CreateAccount(ctx, &domain.Account{
		Name:     "Existing",
		Kind:     domain.AccountCard,
		Currency: "GBP",
		Active:   true,
	}))

	created, err := seed(ctx, st)
	require.NoError(t, err)
	assert.False(t, created)

	accounts, err := st.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Existing", accounts[0].Name)
}
