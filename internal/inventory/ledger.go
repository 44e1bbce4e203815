// Package inventory applies per-line stock deltas for billing documents and
// records every change in an append-only movement log. Ledger failures never
// block document creation; they degrade to warnings on the create response.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/wyenfos-bills/wyenfos-bills/internal/shared"
	"github.com/wyenfos-bills/wyenfos-bills/internal/store"
)

const (
	itemCASAttempts = 8
	lineConcurrency = 4
)

// Ledger mutates inventory items and appends movement records.
type Ledger struct {
	store  store.Store
	logger *slog.Logger
}

// NewLedger constructs a Ledger.
func NewLedger(st store.Store, logger *slog.Logger) *Ledger {
	return &Ledger{store: st, logger: logger}
}

// ApplySale decrements stock for every line, clamping at zero. Lines are
// independent and applied concurrently. Failures come back as warnings.
func (l *Ledger) ApplySale(ctx context.Context, lines []Line, docID string) []shared.Warning {
	return l.apply(ctx, lines, docID, DirectionSale)
}

// ApplyReturn increments stock for every line.
func (l *Ledger) ApplyReturn(ctx context.Context, lines []Line, docID string) []shared.Warning {
	return l.apply(ctx, lines, docID, DirectionReturn)
}

// Movements lists the movement log for one item code, newest last.
func (l *Ledger) Movements(ctx context.Context, itemCode string) ([]Movement, error) {
	records, err := l.store.GetAll(ctx, MovementsCollection, &store.Filter{Field: "itemCode", Equals: itemCode})
	if err != nil {
		return nil, err
	}
	out := make([]Movement, 0, len(records))
	for _, rec := range records {
		var mv Movement
		if err := json.Unmarshal(rec.Data, &mv); err != nil {
			continue
		}
		out = append(out, mv)
	}
	return out, nil
}

// Item fetches a tracked item by code.
func (l *Ledger) Item(ctx context.Context, code string) (*Item, error) {
	rec, err := l.store.GetByID(ctx, ItemsCollection, code)
	if err != nil {
		return nil, err
	}
	var item Item
	if err := json.Unmarshal(rec.Data, &item); err != nil {
		return nil, fmt.Errorf("inventory: decode item %s: %w", code, err)
	}
	return &item, nil
}

func (l *Ledger) apply(ctx context.Context, lines []Line, docID string, direction Direction) []shared.Warning {
	var (
		mu       sync.Mutex
		warnings []shared.Warning
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lineConcurrency)
	for _, line := range lines {
		line := line
		g.Go(func() error {
			if err := l.applyLine(gctx, line, docID, direction); err != nil {
				if l.logger != nil {
					l.logger.Warn("inventory mutation failed",
						slog.String("item_code", line.ItemCode),
						slog.String("document_id", docID),
						slog.Any("error", err))
				}
				mu.Lock()
				warnings = append(warnings, shared.Warningf("inventory_update_failed",
					"item %s: %v", line.ItemCode, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return warnings
}

func (l *Ledger) applyLine(ctx context.Context, line Line, docID string, direction Direction) error {
	if line.ItemCode == "" {
		return shared.Validationf("inventory: item code required")
	}
	if line.Quantity.Sign() <= 0 {
		return shared.Validationf("inventory: quantity must be positive")
	}
	if err := l.mutateItem(ctx, line, direction); err != nil {
		return err
	}
	return l.appendMovement(ctx, line, docID, direction)
}

func (l *Ledger) mutateItem(ctx context.Context, line Line, direction Direction) error {
	now := time.Now().UTC()
	for attempt := 0; attempt < itemCASAttempts; attempt++ {
		rec, err := l.store.GetByID(ctx, ItemsCollection, line.ItemCode)
		if errors.Is(err, shared.ErrNotFound) {
			item := newItem(line, direction, now)
			data, _ := json.Marshal(item)
			if _, createErr := l.store.Create(ctx, ItemsCollection, line.ItemCode, data); createErr != nil {
				if errors.Is(createErr, shared.ErrConflict) {
					continue
				}
				return createErr
			}
			return nil
		}
		if err != nil {
			return err
		}

		var item Item
		if err := json.Unmarshal(rec.Data, &item); err != nil {
			return fmt.Errorf("inventory: decode item %s: %w", line.ItemCode, err)
		}
		adjust(&item, line, direction, now)
		data, _ := json.Marshal(item)
		if _, err := l.store.UpdateCAS(ctx, ItemsCollection, line.ItemCode, rec.Version, data); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				continue
			}
			return err
		}
		return nil
	}
	return shared.Conflictf("inventory: item %s contended beyond %d attempts", line.ItemCode, itemCASAttempts)
}

// newItem models the first movement against an untracked code. A sale leaves
// quantity at zero ("sold from untracked stock"); a return stocks it.
func newItem(line Line, direction Direction, now time.Time) Item {
	item := Item{
		Code:        line.ItemCode,
		Name:        line.ItemName,
		UnitPrice:   line.UnitPrice,
		GST:         line.TaxRate,
		LastUpdated: now,
	}
	switch direction {
	case DirectionSale:
		item.Quantity = decimal.Zero
		item.TotalSold = line.Quantity
	case DirectionReturn:
		item.Quantity = line.Quantity
		item.TotalReturns = line.Quantity
	}
	return item
}

func adjust(item *Item, line Line, direction Direction, now time.Time) {
	switch direction {
	case DirectionSale:
		item.Quantity = item.Quantity.Sub(line.Quantity)
		if item.Quantity.Sign() < 0 {
			item.Quantity = decimal.Zero
		}
		item.TotalSold = item.TotalSold.Add(line.Quantity)
	case DirectionReturn:
		item.Quantity = item.Quantity.Add(line.Quantity)
		item.TotalReturns = item.TotalReturns.Add(line.Quantity)
	}
	if line.ItemName != "" {
		item.Name = line.ItemName
	}
	if line.UnitPrice.Sign() > 0 {
		item.UnitPrice = line.UnitPrice
	}
	item.LastUpdated = now
}

func (l *Ledger) appendMovement(ctx context.Context, line Line, docID string, direction Direction) error {
	movement := Movement{
		ItemCode:         line.ItemCode,
		Quantity:         line.Quantity,
		Direction:        direction,
		SourceDocumentID: docID,
		Timestamp:        time.Now().UTC(),
	}
	data, err := json.Marshal(movement)
	if err != nil {
		return fmt.Errorf("inventory: encode movement: %w", err)
	}
	if _, err := l.store.Create(ctx, MovementsCollection, "", data); err != nil {
		return fmt.Errorf("inventory: append movement: %w", err)
	}
	return nil
}
