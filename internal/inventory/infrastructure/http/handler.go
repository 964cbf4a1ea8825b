package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ShubhamPawar-3333/NexusCart/internal/inventory/application"
	"github.com/ShubhamPawar-3333/NexusCart/internal/inventory/domain"
)

// Handler exposes the synchronous query and stock administration surface.
// Allocation is event-driven only; nothing here touches reservations
// except reads.
type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("inventory-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/inventory/product/{productID}", h.productInventory)
	r.Get("/inventory/product/{productID}/available", h.availableQuantity)
	r.Get("/inventory/product/{productID}/check", h.checkStock)
	r.Get("/inventory/low-stock", h.lowStock)
	r.Get("/inventory/orders/{orderID}/reservations", h.orderReservations)
	r.Post("/inventory/stock/add", h.addStock)
	r.Put("/inventory/stock/set", h.setStock)
	return r
}

func (h *Handler) productInventory(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ProductInventory")
	defer span.End()

	rows, err := h.service.ProductInventory(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) availableQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AvailableQuantity")
	defer span.End()

	qty, err := h.service.AvailableQuantity(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"available": qty})
}

func (h *Handler) checkStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CheckStock")
	defer span.End()

	qty := 1
	if q := r.URL.Query().Get("quantity"); q != "" {
		var err error
		if qty, err = strconv.Atoi(q); err != nil {
			h.writeError(w, domain.ErrInvalidRequest)
			return
		}
	}
	inStock, err := h.service.InStock(ctx, chi.URLParam(r, "productID"), qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"inStock": inStock})
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "LowStock")
	defer span.End()

	rows, err := h.service.LowStock(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) orderReservations(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "OrderReservations")
	defer span.End()

	reservations, err := h.service.OrderReservations(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reservations)
}

type stockRequest struct {
	ProductID   string `json:"productId"`
	WarehouseID string `json:"warehouseId"`
	Quantity    int    `json:"quantity"`
}

func (h *Handler) addStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AddStock")
	defer span.End()

	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}
	row, err := h.service.AddStock(ctx, req.ProductID, req.WarehouseID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, row)
}

func (h *Handler) setStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SetStock")
	defer span.End()

	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}
	row, err := h.service.SetStock(ctx, req.ProductID, req.WarehouseID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, row)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrRowNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
