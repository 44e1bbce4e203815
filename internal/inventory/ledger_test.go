package inventory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wyenfos-bills/wyenfos-bills/internal/shared"
	"github.com/wyenfos-bills/wyenfos-bills/internal/store"
)

func qty(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func seedItem(t *testing.T, st store.Store, item Item) {
	t.Helper()
	data, err := json.Marshal(item)
	require.NoError(t, err)
	_, err = st.Create(context.Background(), ItemsCollection, item.Code, data)
	require.NoError(t, err)
}

func TestSaleDecrementsAndLogsMovement(t *testing.T) {
	st := store.NewMemory()
	ledger := NewLedger(st, nil)
	ctx := context.Background()

	seedItem(t, st, Item{Code: "RING-22K", Name: "22K Ring", Quantity: qty(10)})

	warnings := ledger.ApplySale(ctx, []Line{{ItemCode: "RING-22K", Quantity: qty(3)}}, "doc-1")
	require.Empty(t, warnings)

	item, err := ledger.Item(ctx, "RING-22K")
	require.NoError(t, err)
	require.True(t, item.Quantity.Equal(qty(7)))
	require.True(t, item.TotalSold.Equal(qty(3)))

	movements, err := ledger.Movements(ctx, "RING-22K")
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, DirectionSale, movements[0].Direction)
	require.Equal(t, "doc-1", movements[0].SourceDocumentID)
	require.True(t, movements[0].Quantity.Equal(qty(3)))
}

func TestSaleClampsAtZero(t *testing.T) {
	st := store.NewMemory()
	ledger := NewLedger(st, nil)
	ctx := context.Background()

	seedItem(t, st, Item{Code: "CHAIN", Quantity: qty(2)})

	warnings := ledger.ApplySale(ctx, []Line{{ItemCode: "CHAIN", Quantity: qty(5)}}, "doc-1")
	require.Empty(t, warnings)

	item, err := ledger.Item(ctx, "CHAIN")
	require.NoError(t, err)
	require.True(t, item.Quantity.IsZero(), "quantity must clamp at zero, got %s", item.Quantity)
	require.True(t, item.TotalSold.Equal(qty(5)))
}

func TestSaleOfUntrackedItemCreatesAtZero(t *testing.T) {
	st := store.NewMemory()
	ledger := NewLedger(st, nil)
	ctx := context.Background()

	warnings := ledger.ApplySale(ctx, []Line{{ItemCode: "BANGLE", ItemName: "Bangle", Quantity: qty(2), UnitPrice: qty(15000)}}, "doc-9")
	require.Empty(t, warnings)

	item, err := ledger.Item(ctx, "BANGLE")
	require.NoError(t, err)
	require.True(t, item.Quantity.IsZero())
	require.True(t, item.TotalSold.Equal(qty(2)))
	require.Equal(t, "Bangle", item.Name)
}

func TestReturnOfUntrackedItemStocksIt(t *testing.T) {
	st := store.NewMemory()
	ledger := NewLedger(st, nil)
	ctx := context.Background()

	warnings := ledger.ApplyReturn(ctx, []Line{{ItemCode: "STUD", Quantity: qty(4)}}, "cn-1")
	require.Empty(t, warnings)

	item, err := ledger.Item(ctx, "STUD")
	require.NoError(t, err)
	require.True(t, item.Quantity.Equal(qty(4)))
	require.True(t, item.TotalReturns.Equal(qty(4)))
}

func TestQuantityNeverNegativeAcrossMixedOps(t *testing.T) {
	st := store.NewMemory()
	ledger := NewLedger(st, nil)
	ctx := context.Background()

	ops := []struct {
		direction Direction
		n         int64
	}{
		{DirectionSale, 3}, {DirectionReturn, 2}, {DirectionSale, 10},
		{DirectionReturn, 1}, {DirectionSale, 2}, {DirectionSale, 1},
	}
	for _, op := range ops {
		lines := []Line{{ItemCode: "COIN", Quantity: qty(op.n)}}
		if op.direction == DirectionSale {
			require.Empty(t, ledger.ApplySale(ctx, lines, "doc"))
		} else {
			require.Empty(t, ledger.ApplyReturn(ctx, lines, "doc"))
		}
		item, err := ledger.Item(ctx, "COIN")
		require.NoError(t, err)
		require.False(t, item.Quantity.IsNegative(), "quantity went negative: %s", item.Quantity)
	}
}

// failOnItemStore rejects writes for one item code to simulate a flaky store.
type failOnItemStore struct {
	store.Store
	failCode string
}

func (s failOnItemStore) Create(ctx context.Context, collection, id string, data []byte) (store.Record, error) {
	if collection == ItemsCollection && id == s.failCode {
		return store.Record{}, shared.Transientf("store unavailable")
	}
	return s.Store.Create(ctx, collection, id, data)
}

func TestPartialFailureIsolatedToFailingLine(t *testing.T) {
	st := failOnItemStore{Store: store.NewMemory(), failCode: "BAD"}
	ledger := NewLedger(st, nil)
	ctx := context.Background()

	warnings := ledger.ApplySale(ctx, []Line{
		{ItemCode: "GOOD", Quantity: qty(1)},
		{ItemCode: "BAD", Quantity: qty(1)},
	}, "doc-1")
	require.Len(t, warnings, 1)
	require.Equal(t, "inventory_update_failed", warnings[0].Code)
	require.Contains(t, warnings[0].Detail, "BAD")

	// The healthy line still applied and logged its movement.
	item, err := ledger.Item(ctx, "GOOD")
	require.NoError(t, err)
	require.True(t, item.TotalSold.Equal(qty(1)))
	movements, err := ledger.Movements(ctx, "GOOD")
	require.NoError(t, err)
	require.Len(t, movements, 1)

	// The failing line left no movement behind.
	movements, err = ledger.Movements(ctx, "BAD")
	require.NoError(t, err)
	require.Empty(t, movements)
}

func TestConcurrentLinesOnSameItemAllApply(t *testing.T) {
	st := store.NewMemory()
	ledger := NewLedger(st, nil)
	ctx := context.Background()

	seedItem(t, st, Item{Code: "COIN", Quantity: qty(100)})

	lines := make([]Line, 10)
	for i := range lines {
		lines[i] = Line{ItemCode: "COIN", Quantity: qty(1)}
	}
	warnings := ledger.ApplySale(ctx, lines, "doc-1")
	require.Empty(t, warnings)

	item, err := ledger.Item(ctx, "COIN")
	require.NoError(t, err)
	require.True(t, item.Quantity.Equal(qty(90)), "got %s", item.Quantity)
	require.True(t, item.TotalSold.Equal(qty(10)))
}
