// Package billing orchestrates the creation of numbered billing documents:
// number allocation, customer resolution, persistence and inventory fan-out.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wyenfos-bills/wyenfos-bills/internal/customers"
	"github.com/wyenfos-bills/wyenfos-bills/internal/inventory"
	"github.com/wyenfos-bills/wyenfos-bills/internal/sequence"
	"github.com/wyenfos-bills/wyenfos-bills/internal/shared"
	"github.com/wyenfos-bills/wyenfos-bills/internal/store"
)

// persistAttempts bounds the allocate-then-persist loop that backstops the
// counter against a racing caller-supplied number.
const persistAttempts = 3

// CreateInput describes a create-document request.
type CreateInput struct {
	Type        DocType
	CompanyName string
	// CompanyPrefix overrides the directory lookup when set.
	CompanyPrefix string
	// InvoiceNumber, when set by the caller, is used verbatim instead of
	// allocating one.
	InvoiceNumber string
	Customer      customers.ResolveInput
	LineItems     []LineItem
	CreatedBy     string
}

// CreateResult is the two-tier outcome of document creation: the hard result
// plus warnings for degraded side effects.
type CreateResult struct {
	Document *Document
	Customer *customers.Customer
	Warnings []shared.Warning
}

// Enqueuer submits the post-creation email dispatch job.
type Enqueuer interface {
	EnqueueDocumentEmail(ctx context.Context, documentID, recipient string) error
}

// Service composes the allocator, resolver, ledger and store into document
// operations.
type Service struct {
	store     store.Store
	alloc     *sequence.Allocator
	customers *customers.Resolver
	ledger    *inventory.Ledger
	directory *Directory
	enqueuer  Enqueuer
	logger    *slog.Logger
}

// NewService constructs the orchestration service. enqueuer may be nil when
// no background dispatch is wanted.
func NewService(st store.Store, alloc *sequence.Allocator, resolver *customers.Resolver, ledger *inventory.Ledger, directory *Directory, enqueuer Enqueuer, logger *slog.Logger) *Service {
	return &Service{store: st, alloc: alloc, customers: resolver, ledger: ledger, directory: directory, enqueuer: enqueuer, logger: logger}
}

// NewNumberAllocator builds the document-number allocator, seeded by scanning
// existing documents of the same type for PREFIX-N numbers.
func NewNumberAllocator(st store.Store) *sequence.Allocator {
	return sequence.NewAllocator(st, sequence.ScanMax(st, Collection, "invoiceNumber", "documentType"))
}

// CreateDocument runs the creation steps in strict order: allocate number,
// resolve customer, persist, mutate inventory, dispatch. Steps one to three
// are fail-fast; inventory and dispatch failures degrade to warnings. A
// persisted document is never rolled back.
func (s *Service) CreateDocument(ctx context.Context, input CreateInput) (CreateResult, error) {
	if !input.Type.Valid() {
		return CreateResult{}, shared.Validationf("billing: unknown document type %q", input.Type)
	}
	if len(input.LineItems) == 0 && input.Type != DocTypeReceipt {
		return CreateResult{}, shared.Validationf("billing: at least one line item required")
	}

	prefix := strings.ToUpper(strings.TrimSpace(input.CompanyPrefix))
	if prefix == "" {
		prefix = s.directory.Prefix(input.CompanyName)
	}
	if prefix == "" {
		return CreateResult{}, shared.Validationf("billing: company name or prefix required")
	}

	var doc *Document
	var customer *customers.Customer
	for attempt := 1; ; attempt++ {
		number := input.InvoiceNumber
		allocated := false
		if number == "" {
			n, err := s.alloc.Allocate(ctx, prefix, string(input.Type))
			if err != nil {
				return CreateResult{}, err
			}
			number = fmt.Sprintf("%s-%d", prefix, n)
			allocated = true
		}
		if !ValidInvoiceNumber(number) || !strings.HasPrefix(number, prefix+"-") {
			return CreateResult{}, shared.Validationf("billing: invoice number %q does not match %s-N", number, prefix)
		}

		if customer == nil {
			resolveInput := input.Customer
			if resolveInput.Company == "" {
				resolveInput.Company = input.CompanyName
			}
			resolved, err := s.customers.Resolve(ctx, resolveInput)
			if err != nil {
				return CreateResult{}, err
			}
			customer = resolved
		}

		now := time.Now().UTC()
		doc = &Document{
			ID:            uuid.NewString(),
			Type:          input.Type,
			CompanyID:     input.CompanyName,
			CompanyPrefix: prefix,
			InvoiceNumber: number,
			CustomerID:    customer.ID,
			LineItems:     input.LineItems,
			Totals:        ComputeTotals(input.LineItems),
			Status:        StatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
			CreatedBy:     input.CreatedBy,
			LastUpdatedBy: input.CreatedBy,
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return CreateResult{}, fmt.Errorf("billing: encode document: %w", err)
		}
		_, err = s.store.Create(ctx, Collection, doc.ID, data)
		if err == nil {
			break
		}
		// A uniqueness collision on an allocated number means someone slipped
		// a caller-supplied number under us; allocate again.
		if allocated && errors.Is(err, shared.ErrConflict) && attempt < persistAttempts {
			continue
		}
		return CreateResult{}, err
	}

	result := CreateResult{Document: doc, Customer: customer}
	result.Warnings = append(result.Warnings, s.applyInventory(ctx, doc)...)
	result.Warnings = append(result.Warnings, s.dispatch(ctx, doc, customer)...)

	if s.logger != nil {
		s.logger.Info("document created",
			slog.String("document_id", doc.ID),
			slog.String("invoice_number", doc.InvoiceNumber),
			slog.String("type", string(doc.Type)),
			slog.Int("warnings", len(result.Warnings)))
	}
	return result, nil
}

func (s *Service) applyInventory(ctx context.Context, doc *Document) []shared.Warning {
	direction, moves := doc.Type.StockDirection()
	if !moves || len(doc.LineItems) == 0 {
		return nil
	}
	lines := make([]inventory.Line, len(doc.LineItems))
	for i, item := range doc.LineItems {
		lines[i] = inventory.Line{
			ItemCode:  item.ItemCode,
			ItemName:  item.ItemName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			TaxRate:   item.TaxRate,
		}
	}
	if direction == inventory.DirectionReturn {
		return s.ledger.ApplyReturn(ctx, lines, doc.ID)
	}
	return s.ledger.ApplySale(ctx, lines, doc.ID)
}

func (s *Service) dispatch(ctx context.Context, doc *Document, customer *customers.Customer) []shared.Warning {
	if s.enqueuer == nil || customer.Contact.Email == "" {
		return nil
	}
	if err := s.enqueuer.EnqueueDocumentEmail(ctx, doc.ID, customer.Contact.Email); err != nil {
		if s.logger != nil {
			s.logger.Warn("enqueue document email", slog.String("document_id", doc.ID), slog.Any("error", err))
		}
		return []shared.Warning{shared.Warningf("email_dispatch_failed", "document %s: %v", doc.ID, err)}
	}
	return nil
}

// Get fetches a document by id.
func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	rec, err := s.store.GetByID(ctx, Collection, id)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(rec.Data, &doc); err != nil {
		return nil, fmt.Errorf("billing: decode document %s: %w", id, err)
	}
	return &doc, nil
}

// List returns documents of one type, or all documents when docType is empty.
func (s *Service) List(ctx context.Context, docType DocType) ([]Document, error) {
	var filter *store.Filter
	if docType != "" {
		if !docType.Valid() {
			return nil, shared.Validationf("billing: unknown document type %q", docType)
		}
		filter = &store.Filter{Field: "documentType", Equals: string(docType)}
	}
	records, err := s.store.GetAll(ctx, Collection, filter)
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(records))
	for _, rec := range records {
		var doc Document
		if err := json.Unmarshal(rec.Data, &doc); err != nil {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

// Cancel marks a document cancelled. The assigned number stays burned; it
// keeps counting toward the sequence and is never reissued.
func (s *Service) Cancel(ctx context.Context, id, actor string) (*Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == StatusCancelled {
		return doc, nil
	}
	doc.Status = StatusCancelled
	doc.UpdatedAt = time.Now().UTC()
	doc.LastUpdatedBy = actor
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("billing: encode document %s: %w", id, err)
	}
	if _, err := s.store.Update(ctx, Collection, id, data); err != nil {
		return nil, err
	}
	return doc, nil
}
