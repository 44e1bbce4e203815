package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/wyenfos-bills/wyenfos-bills/internal/customers"
	"github.com/wyenfos-bills/wyenfos-bills/internal/platform/httpx"
	"github.com/wyenfos-bills/wyenfos-bills/internal/shared"
)

// actorHeader carries the opaque identity string supplied by the auth layer.
const actorHeader = "X-Actor"

// Handler exposes document operations over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the billing HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/cancel", h.cancel)
}

type customerPayload struct {
	CustomerID string `json:"customerId"`
	Name       string `json:"customerName"`
	Address    string `json:"address"`
	Phone      string `json:"phone"`
	Email      string `json:"email" validate:"omitempty,email"`
	GSTIN      string `json:"gstin"`
}

type lineItemPayload struct {
	ItemCode  string          `json:"itemCode" validate:"required"`
	ItemName  string          `json:"itemName"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	TaxRate   decimal.Decimal `json:"taxRate"`
}

type createDocumentRequest struct {
	DocumentType  string            `json:"documentType" validate:"required"`
	CompanyName   string            `json:"companyName" validate:"required_without=CompanyPrefix"`
	CompanyPrefix string            `json:"companyPrefix" validate:"omitempty,alpha,min=2,max=4"`
	InvoiceNumber string            `json:"invoiceNumber"`
	Customer      customerPayload   `json:"customer"`
	LineItems     []lineItemPayload `json:"lineItems" validate:"dive"`
}

type createDocumentResponse struct {
	Document *Document           `json:"document"`
	Customer *customers.Customer `json:"customer"`
	Warnings []shared.Warning    `json:"warnings,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Validationf("invalid request body: %v", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Validationf("%v", err))
		return
	}

	lines := make([]LineItem, len(req.LineItems))
	for i, l := range req.LineItems {
		lines[i] = LineItem{
			ItemCode:  l.ItemCode,
			ItemName:  l.ItemName,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			TaxRate:   l.TaxRate,
		}
	}
	input := CreateInput{
		Type:          DocType(req.DocumentType),
		CompanyName:   req.CompanyName,
		CompanyPrefix: req.CompanyPrefix,
		InvoiceNumber: req.InvoiceNumber,
		Customer: customers.ResolveInput{
			CustomerID: req.Customer.CustomerID,
			Name:       req.Customer.Name,
			Contact: customers.Contact{
				Address: req.Customer.Address,
				Phone:   req.Customer.Phone,
				Email:   req.Customer.Email,
				GSTIN:   req.Customer.GSTIN,
			},
		},
		LineItems: lines,
		CreatedBy: r.Header.Get(actorHeader),
	}

	result, err := h.service.CreateDocument(r.Context(), input)
	if err != nil {
		h.logger.Warn("create document failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, createDocumentResponse{
		Document: result.Document,
		Customer: result.Customer,
		Warnings: result.Warnings,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.List(r.Context(), DocType(r.URL.Query().Get("type")))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), r.Header.Get(actorHeader))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}
