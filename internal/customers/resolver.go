// Package customers finds, deduplicates and merges customer records when
// billing documents are created.
package customers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/wyenfos-bills/wyenfos-bills/internal/sequence"
	"github.com/wyenfos-bills/wyenfos-bills/internal/shared"
	"github.com/wyenfos-bills/wyenfos-bills/internal/store"
)

// Resolver finds an existing customer or creates one.
type Resolver struct {
	store  store.Store
	alloc  *sequence.Allocator
	logger *slog.Logger
}

// NewResolver constructs a Resolver. The allocator hands out CUST-N ids and
// should be seeded from the customers collection.
func NewResolver(st store.Store, alloc *sequence.Allocator, logger *slog.Logger) *Resolver {
	return &Resolver{store: st, alloc: alloc, logger: logger}
}

// NewIDAllocator builds the sequence allocator used for customer ids, seeded
// by scanning existing CUST-N ids.
func NewIDAllocator(st store.Store) *sequence.Allocator {
	return sequence.NewAllocator(st, sequence.ScanMax(st, Collection, "customerId", ""))
}

// Resolve locates the customer for input, creating or merging as needed.
// With an explicit id the lookup is strict. Otherwise existing records are
// matched by exact name, then email, then phone; the first hit wins and
// incoming non-blank contact fields are merged in. Re-resolving identical
// input against an already-merged record performs no writes.
func (r *Resolver) Resolve(ctx context.Context, input ResolveInput) (*Customer, error) {
	if input.CustomerID != "" {
		customer, err := r.get(ctx, input.CustomerID)
		if err != nil {
			return nil, err
		}
		return r.ensureCompany(ctx, customer, input.Company)
	}

	if strings.TrimSpace(input.Name) == "" {
		return nil, shared.Validationf("customers: name required when no customer id is given")
	}

	existing, err := r.match(ctx, input)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		merged, changed := mergeContact(existing.Contact, input.Contact)
		if changed {
			existing.Contact = merged
			existing.UpdatedAt = time.Now().UTC()
			if err := r.put(ctx, existing); err != nil {
				return nil, err
			}
		}
		return r.ensureCompany(ctx, existing, input.Company)
	}

	n, err := r.alloc.Allocate(ctx, IDPrefix, "customer")
	if err != nil {
		return nil, fmt.Errorf("customers: allocate id: %w", err)
	}
	now := time.Now().UTC()
	customer := &Customer{
		ID:        fmt.Sprintf("%s-%d", IDPrefix, n),
		Name:      strings.TrimSpace(input.Name),
		Contact:   input.Contact,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.Company != "" {
		customer.Companies = []string{input.Company}
	}
	data, err := json.Marshal(customer)
	if err != nil {
		return nil, fmt.Errorf("customers: encode: %w", err)
	}
	if _, err := r.store.Create(ctx, Collection, customer.ID, data); err != nil {
		return nil, err
	}
	if r.logger != nil {
		r.logger.Info("customer created", slog.String("customer_id", customer.ID), slog.String("name", customer.Name))
	}
	return customer, nil
}

// Get fetches a customer by id.
func (r *Resolver) Get(ctx context.Context, id string) (*Customer, error) {
	return r.get(ctx, id)
}

func (r *Resolver) get(ctx context.Context, id string) (*Customer, error) {
	rec, err := r.store.GetByID(ctx, Collection, id)
	if err != nil {
		return nil, err
	}
	var customer Customer
	if err := json.Unmarshal(rec.Data, &customer); err != nil {
		return nil, fmt.Errorf("customers: decode %s: %w", id, err)
	}
	return &customer, nil
}

func (r *Resolver) put(ctx context.Context, customer *Customer) error {
	data, err := json.Marshal(customer)
	if err != nil {
		return fmt.Errorf("customers: encode %s: %w", customer.ID, err)
	}
	_, err = r.store.Update(ctx, Collection, customer.ID, data)
	return err
}

// match scans for an existing record by name, email, then phone. First match
// in that priority order wins.
func (r *Resolver) match(ctx context.Context, input ResolveInput) (*Customer, error) {
	records, err := r.store.GetAll(ctx, Collection, nil)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(input.Contact.Email)
	phone := strings.TrimSpace(input.Contact.Phone)

	var byEmail, byPhone *Customer
	for _, rec := range records {
		var customer Customer
		if err := json.Unmarshal(rec.Data, &customer); err != nil {
			continue
		}
		if customer.Name == name {
			c := customer
			return &c, nil
		}
		if byEmail == nil && email != "" && customer.Contact.Email == email {
			c := customer
			byEmail = &c
		}
		if byPhone == nil && phone != "" && customer.Contact.Phone == phone {
			c := customer
			byPhone = &c
		}
	}
	if byEmail != nil {
		return byEmail, nil
	}
	return byPhone, nil
}

func (r *Resolver) ensureCompany(ctx context.Context, customer *Customer, company string) (*Customer, error) {
	if company == "" || slices.Contains(customer.Companies, company) {
		return customer, nil
	}
	customer.Companies = append(customer.Companies, company)
	customer.UpdatedAt = time.Now().UTC()
	if err := r.put(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

// mergeContact overlays non-blank incoming fields onto stored ones.
func mergeContact(stored, incoming Contact) (Contact, bool) {
	merged := stored
	if v := strings.TrimSpace(incoming.Address); v != "" && v != stored.Address {
		merged.Address = v
	}
	if v := strings.TrimSpace(incoming.Phone); v != "" && v != stored.Phone {
		merged.Phone = v
	}
	if v := strings.TrimSpace(incoming.Email); v != "" && v != stored.Email {
		merged.Email = v
	}
	if v := strings.TrimSpace(incoming.GSTIN); v != "" && v != stored.GSTIN {
		merged.GSTIN = v
	}
	return merged, merged != stored
}
