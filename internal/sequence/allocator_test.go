package sequence

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/wyenfos-bills/wyenfos-bills/internal/shared"
	"github.com/wyenfos-bills/wyenfos-bills/internal/store"
)

func seedDoc(t *testing.T, st store.Store, id, docType, number string) {
	t.Helper()
	_, err := st.Create(context.Background(), "billing_documents", id,
		[]byte(`{"documentType":"`+docType+`","invoiceNumber":"`+number+`"}`))
	require.NoError(t, err)
}

func TestFirstAllocationStartsAtOne(t *testing.T) {
	st := store.NewMemory()
	alloc := NewAllocator(st, ScanMax(st, "billing_documents", "invoiceNumber", "documentType"))

	n, err := alloc.Allocate(context.Background(), "WGD", "CREDIT_BILL")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = alloc.Allocate(context.Background(), "WGD", "CREDIT_BILL")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestSeedsFromExistingDocuments(t *testing.T) {
	st := store.NewMemory()
	seedDoc(t, st, "d1", "CASH_BILL", "WGD-4")
	seedDoc(t, st, "d2", "CASH_BILL", "WGD-9")
	seedDoc(t, st, "d3", "CASH_BILL", "WIT-55")      // other prefix
	seedDoc(t, st, "d4", "CASH_BILL", "WGD-007")     // leading zeros: suffix 7, below max
	seedDoc(t, st, "d5", "CASH_BILL", "WGD-legacy")  // unparseable, ignored
	seedDoc(t, st, "d6", "CREDIT_NOTE", "WGD-100")   // other type, ignored

	alloc := NewAllocator(st, ScanMax(st, "billing_documents", "invoiceNumber", "documentType"))
	n, err := alloc.Allocate(context.Background(), "WGD", "CASH_BILL")
	require.NoError(t, err)
	require.EqualValues(t, 10, n)
}

func TestSequencesAreIndependentPerPrefixAndType(t *testing.T) {
	st := store.NewMemory()
	alloc := NewAllocator(st, nil)
	ctx := context.Background()

	n, err := alloc.Allocate(ctx, "WGD", "CASH_BILL")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = alloc.Allocate(ctx, "WGD", "CREDIT_NOTE")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = alloc.Allocate(ctx, "WIT", "CASH_BILL")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestPeekDoesNotReserve(t *testing.T) {
	st := store.NewMemory()
	alloc := NewAllocator(st, nil)
	ctx := context.Background()

	n, err := alloc.Peek(ctx, "WGD", "RECEIPT")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = alloc.Allocate(ctx, "WGD", "RECEIPT")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = alloc.Peek(ctx, "WGD", "RECEIPT")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestConcurrentAllocationsAreDuplicateFree(t *testing.T) {
	const callers = 50

	st := store.NewMemory()
	alloc := NewAllocator(st, ScanMax(st, "billing_documents", "invoiceNumber", "documentType"),
		WithMaxAttempts(4*callers))

	var mu sync.Mutex
	seen := make(map[int64]bool, callers)

	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			n, err := alloc.Allocate(context.Background(), "WGD", "CASH_BILL")
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[n] {
				t.Errorf("number %d allocated twice", n)
			}
			seen[n] = true
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Len(t, seen, callers)
	for n := int64(1); n <= callers; n++ {
		require.True(t, seen[n], "missing %d", n)
	}
}

type alwaysConflictStore struct {
	store.Store
}

func (s alwaysConflictStore) UpdateCAS(ctx context.Context, collection, id string, expectedVersion int64, data []byte) (store.Record, error) {
	return store.Record{}, shared.Conflictf("contended")
}

func TestExhaustedRetriesSurfaceConflict(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	warm := NewAllocator(st, nil)
	_, err := warm.Allocate(ctx, "WGD", "CASH_BILL")
	require.NoError(t, err)

	alloc := NewAllocator(alwaysConflictStore{st}, nil, WithMaxAttempts(3))
	_, err = alloc.Allocate(ctx, "WGD", "CASH_BILL")
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestMonotonicFloor(t *testing.T) {
	st := store.NewMemory()
	alloc := NewAllocator(st, nil)
	ctx := context.Background()

	var prev int64
	for i := 0; i < 20; i++ {
		n, err := alloc.Allocate(ctx, "WAD", "QUOTATION")
		require.NoError(t, err)
		require.Greater(t, n, prev)
		prev = n
	}
}
