package report

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wyenfos-bills/wyenfos-bills/internal/billing"
	"github.com/wyenfos-bills/wyenfos-bills/internal/customers"
	"github.com/wyenfos-bills/wyenfos-bills/internal/platform/httpx"
)

// Handler serves printable renditions of billing documents.
type Handler struct {
	renderer  *Renderer
	billing   *billing.Service
	customers *customers.Resolver
	logger    *slog.Logger
}

func NewHandler(renderer *Renderer, billingSvc *billing.Service, resolver *customers.Resolver, logger *slog.Logger) *Handler {
	return &Handler{renderer: renderer, billing: billingSvc, customers: resolver, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Get("/documents/{id}/pdf", h.documentPDF)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.renderer.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) documentPDF(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.billing.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	customer, err := h.customers.Get(r.Context(), doc.CustomerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pdf, err := h.renderer.DocumentPDF(r.Context(), doc, customer)
	if err != nil {
		h.logger.Error("render document pdf",
			slog.String("document_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s.pdf", doc.InvoiceNumber))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
