// Package sequence allocates monotonically increasing document numbers per
// (company prefix, document type). Each pair owns a single counter record
// updated through a conditional write; concurrent allocations race on the
// record version and the loser re-reads and retries.
package sequence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/wyenfos-bills/wyenfos-bills/internal/shared"
	"github.com/wyenfos-bills/wyenfos-bills/internal/store"
)

// CountersCollection holds one counter record per (prefix, type) pair.
const CountersCollection = "counters"

const defaultMaxAttempts = 8

// SeedFunc computes the highest already-assigned number for a (prefix, type)
// pair, used once to seed a counter that does not exist yet. Zero means no
// prior numbers.
type SeedFunc func(ctx context.Context, prefix, docType string) (int64, error)

// Counter is the persisted shape of a sequence counter.
type Counter struct {
	Prefix    string `json:"prefix"`
	DocType   string `json:"docType"`
	LastValue int64  `json:"lastValue"`
}

// Allocator hands out the next number in a per-(prefix, type) sequence.
type Allocator struct {
	store       store.Store
	seed        SeedFunc
	maxAttempts int
}

// Option adjusts allocator behaviour.
type Option func(*Allocator)

// WithMaxAttempts overrides the conflict-retry ceiling. Size it to the
// expected number of concurrent writers; exceeding it surfaces a conflict.
func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// NewAllocator constructs an Allocator. seed may be nil for sequences with no
// legacy documents to count.
func NewAllocator(st store.Store, seed SeedFunc, opts ...Option) *Allocator {
	a := &Allocator{store: st, seed: seed, maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func counterID(prefix, docType string) string {
	return fmt.Sprintf("SEQ:%s:%s", prefix, docType)
}

// Allocate returns the next unused number for (prefix, docType). The returned
// values are duplicate-free across concurrent callers and strictly greater
// than every previously allocated number for the pair. Gaps are tolerated:
// an allocated number that never lands in a persisted document is not reused.
func (a *Allocator) Allocate(ctx context.Context, prefix, docType string) (int64, error) {
	if prefix == "" {
		return 0, shared.Validationf("sequence: prefix required")
	}
	id := counterID(prefix, docType)

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		rec, err := a.store.GetByID(ctx, CountersCollection, id)
		if errors.Is(err, shared.ErrNotFound) {
			next, seedErr := a.seedValue(ctx, prefix, docType)
			if seedErr != nil {
				return 0, seedErr
			}
			data, _ := json.Marshal(Counter{Prefix: prefix, DocType: docType, LastValue: next})
			if _, createErr := a.store.Create(ctx, CountersCollection, id, data); createErr != nil {
				if errors.Is(createErr, shared.ErrConflict) {
					// Another caller seeded the counter first.
					continue
				}
				return 0, createErr
			}
			return next, nil
		}
		if err != nil {
			return 0, err
		}

		var counter Counter
		if err := json.Unmarshal(rec.Data, &counter); err != nil {
			return 0, fmt.Errorf("sequence: decode counter %s: %w", id, err)
		}
		counter.LastValue++
		data, _ := json.Marshal(counter)
		if _, err := a.store.UpdateCAS(ctx, CountersCollection, id, rec.Version, data); err != nil {
			if errors.Is(err, shared.ErrConflict) || errors.Is(err, shared.ErrNotFound) {
				continue
			}
			return 0, err
		}
		return counter.LastValue, nil
	}
	return 0, shared.Conflictf("sequence: allocation for %s/%s contended beyond %d attempts", prefix, docType, a.maxAttempts)
}

// Peek returns the number the next Allocate call would hand out, without
// reserving it.
func (a *Allocator) Peek(ctx context.Context, prefix, docType string) (int64, error) {
	rec, err := a.store.GetByID(ctx, CountersCollection, counterID(prefix, docType))
	if errors.Is(err, shared.ErrNotFound) {
		return a.seedValue(ctx, prefix, docType)
	}
	if err != nil {
		return 0, err
	}
	var counter Counter
	if err := json.Unmarshal(rec.Data, &counter); err != nil {
		return 0, fmt.Errorf("sequence: decode counter: %w", err)
	}
	return counter.LastValue + 1, nil
}

func (a *Allocator) seedValue(ctx context.Context, prefix, docType string) (int64, error) {
	if a.seed == nil {
		return 1, nil
	}
	max, err := a.seed(ctx, prefix, docType)
	if err != nil {
		return 0, fmt.Errorf("sequence: seed %s/%s: %w", prefix, docType, err)
	}
	return max + 1, nil
}

// ScanMax builds a SeedFunc that scans a collection and reports the highest
// numeric suffix among records whose field matches PREFIX-N exactly. Records
// with non-matching or unparseable values do not affect the sequence.
func ScanMax(st store.Store, collection, numberField, typeField string) SeedFunc {
	return func(ctx context.Context, prefix, docType string) (int64, error) {
		var filter *store.Filter
		if typeField != "" && docType != "" {
			filter = &store.Filter{Field: typeField, Equals: docType}
		}
		records, err := st.GetAll(ctx, collection, filter)
		if err != nil {
			return 0, err
		}
		re := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `-(\d+)$`)
		var max int64
		for _, rec := range records {
			var doc map[string]any
			if err := json.Unmarshal(rec.Data, &doc); err != nil {
				continue
			}
			value, _ := doc[numberField].(string)
			m := re.FindStringSubmatch(value)
			if m == nil {
				continue
			}
			n, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				continue
			}
			if n > max {
				max = n
			}
		}
		return max, nil
	}
}
