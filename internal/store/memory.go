package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wyenfos-bills/wyenfos-bills/internal/shared"
)

// Memory is an in-process Store used by tests and local tooling. Safe for
// concurrent use.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]Record
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]Record)}
}

func (m *Memory) collection(name string) map[string]Record {
	col, ok := m.collections[name]
	if !ok {
		col = make(map[string]Record)
		m.collections[name] = col
	}
	return col
}

// Create implements Store.
func (m *Memory) Create(ctx context.Context, collection, id string, data []byte) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	col := m.collection(collection)
	if _, exists := col[id]; exists {
		return Record{}, shared.Conflictf("store: %s/%s already exists", collection, id)
	}
	if err := m.checkInvoiceNumberUnique(collection, id, data); err != nil {
		return Record{}, err
	}
	now := time.Now().UTC()
	rec := Record{ID: id, Version: 1, Data: clone(data), CreatedAt: now, UpdatedAt: now}
	col[id] = rec
	return rec, nil
}

// GetByID implements Store.
func (m *Memory) GetByID(ctx context.Context, collection, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.collection(collection)[id]
	if !ok {
		return Record{}, shared.NotFoundf("store: %s/%s", collection, id)
	}
	return rec, nil
}

// GetAll implements Store.
func (m *Memory) GetAll(ctx context.Context, collection string, filter *Filter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.collection(collection) {
		if filter != nil && !matches(rec.Data, filter) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Update implements Store.
func (m *Memory) Update(ctx context.Context, collection, id string, data []byte) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.collection(collection)
	rec, ok := col[id]
	if !ok {
		return Record{}, shared.NotFoundf("store: %s/%s", collection, id)
	}
	rec.Version++
	rec.Data = clone(data)
	rec.UpdatedAt = time.Now().UTC()
	col[id] = rec
	return rec, nil
}

// UpdateCAS implements Store.
func (m *Memory) UpdateCAS(ctx context.Context, collection, id string, expectedVersion int64, data []byte) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.collection(collection)
	rec, ok := col[id]
	if !ok {
		return Record{}, shared.NotFoundf("store: %s/%s", collection, id)
	}
	if rec.Version != expectedVersion {
		return Record{}, shared.Conflictf("store: %s/%s version %d, expected %d", collection, id, rec.Version, expectedVersion)
	}
	rec.Version++
	rec.Data = clone(data)
	rec.UpdatedAt = time.Now().UTC()
	col[id] = rec
	return rec, nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collection(collection), id)
	return nil
}

// billingDocumentsCollection mirrors the partial unique index the Postgres
// schema puts on invoice numbers, so both stores reject duplicates.
const billingDocumentsCollection = "billing_documents"

func (m *Memory) checkInvoiceNumberUnique(collection, id string, data []byte) error {
	if collection != billingDocumentsCollection {
		return nil
	}
	key := invoiceKey(data)
	if key == "" {
		return nil
	}
	for otherID, rec := range m.collection(collection) {
		if otherID != id && invoiceKey(rec.Data) == key {
			return shared.Conflictf("store: duplicate invoice number %s", key)
		}
	}
	return nil
}

func invoiceKey(data []byte) string {
	var doc struct {
		CompanyPrefix string `json:"companyPrefix"`
		DocumentType  string `json:"documentType"`
		InvoiceNumber string `json:"invoiceNumber"`
	}
	if err := json.Unmarshal(data, &doc); err != nil || doc.InvoiceNumber == "" {
		return ""
	}
	return doc.CompanyPrefix + "|" + doc.DocumentType + "|" + doc.InvoiceNumber
}

func matches(data []byte, filter *Filter) bool {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}
	val, ok := doc[filter.Field].(string)
	return ok && val == filter.Equals
}

func clone(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
