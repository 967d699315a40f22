package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMemStoreRollback(t *testing.T) {
	store := NewMemStore()
	store.AddProduct(Product{ID: 1, Name: "x", Price: decimal.New(100, -2), Stock: 10})

	boom := errors.New("boom")
	err := store.WithinTx(context.Background(), func(tx Tx) error {
		require.NoError(t, tx.DecrementStock(context.Background(), 1, 4))
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, ok := store.Product(1)
	require.True(t, ok)
	require.Equal(t, 10, p.Stock)
}

func TestMemStoreCommit(t *testing.T) {
	store := NewMemStore()
	store.AddProduct(Product{ID: 1, Name: "x", Price: decimal.New(100, -2), Stock: 10})

	err := store.WithinTx(context.Background(), func(tx Tx) error {
		if err := tx.DecrementStock(context.Background(), 1, 4); err != nil {
			return err
		}
		return tx.IncrementStock(context.Background(), 1, 1)
	})
	require.NoError(t, err)

	p, _ := store.Product(1)
	require.Equal(t, 7, p.Stock)
}

func TestMemStoreStockFloor(t *testing.T) {
	store := NewMemStore()
	store.AddProduct(Product{ID: 1, Name: "x", Price: decimal.New(100, -2), Stock: 3})

	err := store.WithinTx(context.Background(), func(tx Tx) error {
		return tx.DecrementStock(context.Background(), 1, 4)
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	p, _ := store.Product(1)
	require.Equal(t, 3, p.Stock)
}
