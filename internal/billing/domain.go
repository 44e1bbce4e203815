package billing

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/wyenfos-bills/wyenfos-bills/internal/inventory"
)

// Collection is the store collection holding billing documents.
const Collection = "billing_documents"

// DocType enumerates the numbered document kinds.
type DocType string

const (
	DocTypeCashBill   DocType = "CASH_BILL"
	DocTypeCreditBill DocType = "CREDIT_BILL"
	DocTypeCreditNote DocType = "CREDIT_NOTE"
	DocTypeDebitNote  DocType = "DEBIT_NOTE"
	DocTypeQuotation  DocType = "QUOTATION"
	DocTypeReceipt    DocType = "RECEIPT"
)

// Valid reports whether t is a known document type.
func (t DocType) Valid() bool {
	switch t {
	case DocTypeCashBill, DocTypeCreditBill, DocTypeCreditNote, DocTypeDebitNote, DocTypeQuotation, DocTypeReceipt:
		return true
	}
	return false
}

// StockDirection reports how documents of this type move inventory. The
// second return is false for types with no inventory effect.
func (t DocType) StockDirection() (inventory.Direction, bool) {
	switch t {
	case DocTypeCashBill, DocTypeCreditBill:
		return inventory.DirectionSale, true
	case DocTypeCreditNote:
		return inventory.DirectionReturn, true
	}
	return "", false
}

// Status of a persisted document. Drafts are never persisted, so only Active
// and Cancelled appear in the store. Cancelling keeps the assigned number;
// numbers are never reused.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCancelled Status = "CANCELLED"
)

// LineItem is one sold or returned position on a document.
type LineItem struct {
	ItemCode  string          `json:"itemCode"`
	ItemName  string          `json:"itemName"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	TaxRate   decimal.Decimal `json:"taxRate"`
}

// Totals summarises a document's amounts.
type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
}

// Document is the shared envelope of every numbered billing document.
type Document struct {
	ID            string     `json:"id"`
	Type          DocType    `json:"documentType"`
	CompanyID     string     `json:"companyId"`
	CompanyPrefix string     `json:"companyPrefix"`
	InvoiceNumber string     `json:"invoiceNumber"`
	CustomerID    string     `json:"customerId"`
	LineItems     []LineItem `json:"lineItems"`
	Totals        Totals     `json:"totals"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	CreatedBy     string     `json:"createdBy"`
	LastUpdatedBy string     `json:"lastUpdatedBy"`
}

// invoiceNumberRe is the wire format: prefix letters, hyphen, integer with no
// leading zero.
var invoiceNumberRe = regexp.MustCompile(`^[A-Z]{2,4}-[1-9][0-9]*$`)

// ValidInvoiceNumber reports whether s matches the invoice number wire format.
func ValidInvoiceNumber(s string) bool {
	return invoiceNumberRe.MatchString(s)
}

// Directory maps issuing company names to numbering prefixes. Unknown names
// derive a prefix from the first three letters, upper-cased; that fallback is
// load-bearing for numbering compatibility and must not change.
type Directory struct {
	prefixes map[string]string
}

var defaultPrefixes = map[string]string{
	"WYENFOS GOLD & DIAMONDS":   "WGD",
	"WYENFOS GOLD AND DIAMONDS": "WGD",
	"WYENFOS INFOTECH":          "WIT",
	"WYENFOS ADS":               "WAD",
	"WYENFOS CASH VAPASE":       "WCV",
}

// NewDirectory builds a Directory from the defaults plus overrides.
func NewDirectory(overrides map[string]string) *Directory {
	prefixes := make(map[string]string, len(defaultPrefixes)+len(overrides))
	for name, prefix := range defaultPrefixes {
		prefixes[normalizeCompany(name)] = prefix
	}
	for name, prefix := range overrides {
		prefixes[normalizeCompany(name)] = strings.ToUpper(strings.TrimSpace(prefix))
	}
	return &Directory{prefixes: prefixes}
}

// Prefix resolves the numbering prefix for a company name.
func (d *Directory) Prefix(companyName string) string {
	if prefix, ok := d.prefixes[normalizeCompany(companyName)]; ok {
		return prefix
	}
	return derivePrefix(companyName)
}

func normalizeCompany(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// derivePrefix takes the first three letters of the name, upper-cased.
func derivePrefix(name string) string {
	var letters []rune
	for _, r := range name {
		if unicode.IsLetter(r) {
			letters = append(letters, unicode.ToUpper(r))
			if len(letters) == 3 {
				break
			}
		}
	}
	return string(letters)
}

// ComputeTotals sums line amounts. Tax rates above 1 are read as percentages,
// values at or below 1 as fractions.
func ComputeTotals(lines []LineItem) Totals {
	var subtotal, tax decimal.Decimal
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)
	for _, line := range lines {
		amount := line.Quantity.Mul(line.UnitPrice)
		rate := line.TaxRate
		if rate.GreaterThan(one) {
			rate = rate.Div(hundred)
		}
		subtotal = subtotal.Add(amount)
		tax = tax.Add(amount.Mul(rate))
	}
	return Totals{Subtotal: subtotal, Tax: tax, GrandTotal: subtotal.Add(tax)}
}
