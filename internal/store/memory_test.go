package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wyenfos-bills/wyenfos-bills/internal/shared"
)

func TestCreateAndGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	rec, err := m.Create(ctx, "widgets", "w1", []byte(`{"name":"bolt"}`))
	require.NoError(t, err)
	require.Equal(t, "w1", rec.ID)
	require.EqualValues(t, 1, rec.Version)

	got, err := m.GetByID(ctx, "widgets", "w1")
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"bolt"}`, string(got.Data))

	_, err = m.GetByID(ctx, "widgets", "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateDuplicateConflicts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Create(ctx, "widgets", "w1", []byte(`{}`))
	require.NoError(t, err)
	_, err = m.Create(ctx, "widgets", "w1", []byte(`{}`))
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateGeneratesID(t *testing.T) {
	m := NewMemory()

	rec, err := m.Create(context.Background(), "widgets", "", []byte(`{}`))
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
}

func TestUpdateCAS(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	rec, err := m.Create(ctx, "counters", "c1", []byte(`{"lastValue":1}`))
	require.NoError(t, err)

	updated, err := m.UpdateCAS(ctx, "counters", "c1", rec.Version, []byte(`{"lastValue":2}`))
	require.NoError(t, err)
	require.EqualValues(t, 2, updated.Version)

	// Stale version loses.
	_, err = m.UpdateCAS(ctx, "counters", "c1", rec.Version, []byte(`{"lastValue":3}`))
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = m.UpdateCAS(ctx, "counters", "missing", 1, []byte(`{}`))
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetAllFilter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Create(ctx, "docs", "d1", []byte(`{"documentType":"CASH_BILL"}`))
	require.NoError(t, err)
	_, err = m.Create(ctx, "docs", "d2", []byte(`{"documentType":"CREDIT_NOTE"}`))
	require.NoError(t, err)

	all, err := m.GetAll(ctx, "docs", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	cash, err := m.GetAll(ctx, "docs", &Filter{Field: "documentType", Equals: "CASH_BILL"})
	require.NoError(t, err)
	require.Len(t, cash, 1)
	require.Equal(t, "d1", cash[0].ID)
}

func TestDeleteIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Create(ctx, "docs", "d1", []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, "docs", "d1"))
	require.NoError(t, m.Delete(ctx, "docs", "d1"))
}
