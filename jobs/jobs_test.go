package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wyenfos-bills/wyenfos-bills/internal/billing"
	"github.com/wyenfos-bills/wyenfos-bills/internal/customers"
	"github.com/wyenfos-bills/wyenfos-bills/internal/inventory"
	"github.com/wyenfos-bills/wyenfos-bills/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

type recordingSender struct {
	sent []string
	err  error
}

func (s *recordingSender) Send(_ context.Context, to, subject, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, to)
	return nil
}

type jobFixture struct {
	store   store.Store
	service *billing.Service
	resolve *customers.Resolver
	sender  *recordingSender
	guard   *SentGuard
	job     *DocumentEmailJob
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	logger := discardLogger()
	st := store.NewMemory()
	resolver := customers.NewResolver(st, customers.NewIDAllocator(st), logger)
	ledger := inventory.NewLedger(st, logger)
	service := billing.NewService(st, billing.NewNumberAllocator(st), resolver, ledger,
		billing.NewDirectory(nil), nil, logger)
	sender := &recordingSender{}
	guard := NewSentGuard(testRedis(t))
	return &jobFixture{
		store:   st,
		service: service,
		resolve: resolver,
		sender:  sender,
		guard:   guard,
		job:     NewDocumentEmailJob(service, resolver, sender, guard, logger),
	}
}

func (f *jobFixture) createDocument(t *testing.T) *billing.Document {
	t.Helper()
	result, err := f.service.CreateDocument(context.Background(), billing.CreateInput{
		Type:        billing.DocTypeQuotation,
		CompanyName: "WYENFOS INFOTECH",
		Customer: customers.ResolveInput{
			Name:    "Devi Menon",
			Contact: customers.Contact{Email: "devi@example.in"},
		},
		LineItems: []billing.LineItem{{
			ItemCode:  "SVC-1",
			ItemName:  "Annual Support",
			Quantity:  decimal.NewFromInt(1),
			UnitPrice: decimal.NewFromInt(12000),
			TaxRate:   decimal.NewFromInt(18),
		}},
		CreatedBy: "tester",
	})
	require.NoError(t, err)
	return result.Document
}

func emailTask(t *testing.T, documentID, recipient string) *asynq.Task {
	t.Helper()
	task, err := NewDocumentEmailTask(DocumentEmailPayload{DocumentID: documentID, Recipient: recipient})
	require.NoError(t, err)
	return task
}

func TestDocumentEmailSendsOnce(t *testing.T) {
	f := newJobFixture(t)
	doc := f.createDocument(t)
	task := emailTask(t, doc.ID, "devi@example.in")

	require.NoError(t, f.job.Handle(context.Background(), task))
	require.NoError(t, f.job.Handle(context.Background(), task))
	require.Len(t, f.sender.sent, 1, "second delivery must be deduplicated")
}

func TestDocumentEmailRetriesOnSendFailure(t *testing.T) {
	f := newJobFixture(t)
	doc := f.createDocument(t)
	task := emailTask(t, doc.ID, "devi@example.in")

	f.sender.err = errors.New("relay down")
	require.Error(t, f.job.Handle(context.Background(), task))

	sent, err := f.guard.AlreadySent(context.Background(), doc.ID)
	require.NoError(t, err)
	require.False(t, sent, "failed delivery must stay eligible for retry")

	f.sender.err = nil
	require.NoError(t, f.job.Handle(context.Background(), task))
	require.Len(t, f.sender.sent, 1)
}

func TestDocumentEmailMissingDocumentDoesNotRetry(t *testing.T) {
	f := newJobFixture(t)
	err := f.job.Handle(context.Background(), emailTask(t, "no-such-doc", "devi@example.in"))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestDocumentEmailNoRecipientIsSkipped(t *testing.T) {
	f := newJobFixture(t)
	doc := f.createDocument(t)
	require.NoError(t, f.job.Handle(context.Background(), emailTask(t, doc.ID, "")))
	require.Empty(t, f.sender.sent)
}

func TestBuildDocumentEmailBody(t *testing.T) {
	f := newJobFixture(t)
	doc := f.createDocument(t)
	customer, err := f.resolve.Get(context.Background(), doc.CustomerID)
	require.NoError(t, err)

	subject, body := BuildDocumentEmail(doc, customer)
	require.Contains(t, subject, doc.InvoiceNumber)
	require.Contains(t, body, "Devi Menon")
	require.Contains(t, body, "Annual Support")
	require.Contains(t, body, "12,000.00")
}

func TestCounterAuditDetectsLaggingCounter(t *testing.T) {
	f := newJobFixture(t)
	doc := f.createDocument(t)
	require.Equal(t, "WIT-1", doc.InvoiceNumber)

	// Write a document around the allocator so the scan floor passes the
	// counter.
	rogue := *doc
	rogue.ID = "rogue"
	rogue.InvoiceNumber = "WIT-9"
	data, err := json.Marshal(rogue)
	require.NoError(t, err)
	_, err = f.store.Create(context.Background(), billing.Collection, rogue.ID, data)
	require.NoError(t, err)

	drifts, err := NewCounterAuditJob(f.store, discardLogger()).Audit(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.Equal(t, "WIT", drifts[0].Prefix)
	require.Equal(t, int64(1), drifts[0].Counter)
	require.Equal(t, int64(9), drifts[0].HighestID)
}

func TestCounterAuditCleanWhenCountersLead(t *testing.T) {
	f := newJobFixture(t)
	f.createDocument(t)

	job := NewCounterAuditJob(f.store, discardLogger())
	drifts, err := job.Audit(context.Background())
	require.NoError(t, err)
	require.Empty(t, drifts)
	require.NoError(t, job.Handle(context.Background(), NewCounterAuditTask()))
}

func TestSentGuardRoundTrip(t *testing.T) {
	guard := NewSentGuard(testRedis(t))

	sent, err := guard.AlreadySent(context.Background(), "doc-1")
	require.NoError(t, err)
	require.False(t, sent)

	require.NoError(t, guard.MarkSent(context.Background(), "doc-1"))
	sent, err = guard.AlreadySent(context.Background(), "doc-1")
	require.NoError(t, err)
	require.True(t, sent)
}
