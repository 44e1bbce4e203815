package report

import (
	"bytes"
	"context"
	"html/template"
	"strings"

	"github.com/wyenfos-bills/wyenfos-bills/internal/billing"
	"github.com/wyenfos-bills/wyenfos-bills/internal/customers"
	"github.com/wyenfos-bills/wyenfos-bills/internal/mailer"
)

// Renderer turns billing documents into printable HTML and, through the
// Gotenberg client, into PDFs.
type Renderer struct {
	client *Client
	tmpl   *template.Template
}

func NewRenderer(client *Client) *Renderer {
	return &Renderer{
		client: client,
		tmpl: template.Must(template.New("document").Funcs(template.FuncMap{
			"amount": mailer.FormatAmount,
			"title":  titleCase,
		}).Parse(documentTemplate)),
	}
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(strings.ReplaceAll(s, "_", " ")))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

type documentView struct {
	Doc      *billing.Document
	Customer *customers.Customer
}

// DocumentHTML renders the printable representation of a document.
func (r *Renderer) DocumentHTML(doc *billing.Document, customer *customers.Customer) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, documentView{Doc: doc, Customer: customer}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// DocumentPDF renders the document to HTML and converts it via Gotenberg.
func (r *Renderer) DocumentPDF(ctx context.Context, doc *billing.Document, customer *customers.Customer) ([]byte, error) {
	html, err := r.DocumentHTML(doc, customer)
	if err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, html)
}

const documentTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{ .Doc.InvoiceNumber }}</title>
<style>
body { font-family: Helvetica, Arial, sans-serif; margin: 2rem; color: #1a1a1a; }
h1 { font-size: 1.4rem; margin-bottom: 0; }
.meta { color: #555; margin-bottom: 1.5rem; }
table { width: 100%; border-collapse: collapse; margin-top: 1rem; }
th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #ddd; }
td.num, th.num { text-align: right; }
tfoot td { font-weight: bold; border-bottom: none; }
.cancelled { color: #b00020; font-weight: bold; }
</style>
</head>
<body>
<h1>{{ title (printf "%s" .Doc.Type) }} {{ .Doc.InvoiceNumber }}</h1>
<p class="meta">
Issued by {{ .Doc.CompanyID }} on {{ .Doc.CreatedAt.Format "02 Jan 2006" }}<br>
Billed to {{ .Customer.Name }} ({{ .Customer.ID }})
{{- if .Customer.Contact.GSTIN }}<br>GSTIN: {{ .Customer.Contact.GSTIN }}{{ end }}
{{- if eq (printf "%s" .Doc.Status) "CANCELLED" }}<br><span class="cancelled">CANCELLED</span>{{ end }}
</p>
<table>
<thead>
<tr><th>Item</th><th class="num">Qty</th><th class="num">Unit Price</th><th class="num">Tax</th></tr>
</thead>
<tbody>
{{- range .Doc.LineItems }}
<tr>
<td>{{ .ItemName }} ({{ .ItemCode }})</td>
<td class="num">{{ .Quantity }}</td>
<td class="num">{{ amount .UnitPrice }}</td>
<td class="num">{{ .TaxRate }}</td>
</tr>
{{- end }}
</tbody>
<tfoot>
<tr><td colspan="3">Subtotal</td><td class="num">{{ amount .Doc.Totals.Subtotal }}</td></tr>
<tr><td colspan="3">Tax</td><td class="num">{{ amount .Doc.Totals.Tax }}</td></tr>
<tr><td colspan="3">Grand Total</td><td class="num">{{ amount .Doc.Totals.GrandTotal }}</td></tr>
</tfoot>
</table>
</body>
</html>`
