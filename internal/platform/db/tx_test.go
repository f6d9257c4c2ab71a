package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxFromContext_Empty(t *testing.T) {
	assert.Nil(t, TxFromContext(context.Background()))
}

func TestWithTx_NoPool(t *testing.T) {
	called := false
	err := WithTx(context.Background(), nil, func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database pool")
	assert.False(t, called)
}

func TestWithTx_ReusesOuterTransaction(t *testing.T) {
	// A typed nil pgx.Tx is still a non-nil interface value on the context,
	// which is enough to exercise the nested path without a database.
	var outer pgx.Tx = (*stubTx)(nil)
	ctx := context.WithValue(context.Background(), txKey{}, outer)

	var seen pgx.Tx
	err := WithTx(ctx, nil, func(inner context.Context) error {
		seen = TxFromContext(inner)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, outer, seen)
}

func TestWithTx_NestedErrorPropagates(t *testing.T) {
	var outer pgx.Tx = (*stubTx)(nil)
	ctx := context.WithValue(context.Background(), txKey{}, outer)

	boom := errors.New("boom")
	err := WithTx(ctx, nil, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestTransactor_NoPool(t *testing.T) {
	called := false
	err := NewTransactor(nil).InTx(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(pgx.ErrNoRows))
	assert.True(t, IsNoRows(errors.Join(errors.New("get patient"), pgx.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("other")))
}

type stubTx struct{ pgx.Tx }
