package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/wyenfos-bills/wyenfos-bills/internal/billing"
	"github.com/wyenfos-bills/wyenfos-bills/internal/customers"
	"github.com/wyenfos-bills/wyenfos-bills/internal/mailer"
)

// Sender is the mail delivery dependency of the email job.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// DocumentEmailJob mails a created billing document to its customer.
type DocumentEmailJob struct {
	billing   *billing.Service
	customers *customers.Resolver
	sender    Sender
	guard     *SentGuard
	logger    *slog.Logger
}

func NewDocumentEmailJob(billingSvc *billing.Service, resolver *customers.Resolver, sender Sender, guard *SentGuard, logger *slog.Logger) *DocumentEmailJob {
	return &DocumentEmailJob{
		billing:   billingSvc,
		customers: resolver,
		sender:    sender,
		guard:     guard,
		logger:    logger,
	}
}

// Handle processes TaskTypeDocumentEmail tasks. Transient delivery failures
// return an error so Asynq retries; a document or recipient that cannot be
// resolved is dropped without retry.
func (j *DocumentEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload DocumentEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if strings.TrimSpace(payload.Recipient) == "" {
		j.logger.Info("document email skipped, no recipient",
			slog.String("document_id", payload.DocumentID))
		return nil
	}
	if j.guard != nil {
		sent, err := j.guard.AlreadySent(ctx, payload.DocumentID)
		if err != nil {
			return err
		}
		if sent {
			return nil
		}
	}

	doc, err := j.billing.Get(ctx, payload.DocumentID)
	if err != nil {
		j.logger.Warn("document email dropped, document unavailable",
			slog.String("document_id", payload.DocumentID), slog.Any("error", err))
		return asynq.SkipRetry
	}
	customer, err := j.customers.Get(ctx, doc.CustomerID)
	if err != nil {
		j.logger.Warn("document email dropped, customer unavailable",
			slog.String("document_id", payload.DocumentID), slog.Any("error", err))
		return asynq.SkipRetry
	}

	subject, body := BuildDocumentEmail(doc, customer)
	if err := j.sender.Send(ctx, payload.Recipient, subject, body); err != nil {
		return err
	}
	if j.guard != nil {
		if err := j.guard.MarkSent(ctx, payload.DocumentID); err != nil {
			j.logger.Warn("mark sent failed",
				slog.String("document_id", payload.DocumentID), slog.Any("error", err))
		}
	}
	j.logger.Info("document email sent",
		slog.String("document_id", payload.DocumentID),
		slog.String("invoice_number", doc.InvoiceNumber))
	return nil
}

// BuildDocumentEmail renders the plain-text notification for a document.
func BuildDocumentEmail(doc *billing.Document, customer *customers.Customer) (subject, body string) {
	subject = fmt.Sprintf("%s %s from %s", documentLabel(doc.Type), doc.InvoiceNumber, doc.CompanyID)
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", customer.Name)
	fmt.Fprintf(&b, "Your %s %s dated %s is ready.\n\n",
		strings.ToLower(documentLabel(doc.Type)), doc.InvoiceNumber, doc.CreatedAt.Format("02 Jan 2006"))
	for _, line := range doc.LineItems {
		fmt.Fprintf(&b, "  %s x %s @ %s\n", line.ItemName, line.Quantity, mailer.FormatAmount(line.UnitPrice))
	}
	fmt.Fprintf(&b, "\nSubtotal: %s\nTax: %s\nGrand total: %s\n\n",
		mailer.FormatAmount(doc.Totals.Subtotal),
		mailer.FormatAmount(doc.Totals.Tax),
		mailer.FormatAmount(doc.Totals.GrandTotal))
	fmt.Fprintf(&b, "Regards,\n%s\n", doc.CompanyID)
	return subject, b.String()
}

func documentLabel(t billing.DocType) string {
	switch t {
	case billing.DocTypeCashBill:
		return "Cash Bill"
	case billing.DocTypeCreditBill:
		return "Credit Bill"
	case billing.DocTypeCreditNote:
		return "Credit Note"
	case billing.DocTypeDebitNote:
		return "Debit Note"
	case billing.DocTypeQuotation:
		return "Quotation"
	case billing.DocTypeReceipt:
		return "Receipt"
	}
	return string(t)
}
