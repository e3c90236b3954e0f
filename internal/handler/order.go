package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ecommerce-suite/orders-service/internal/order"
	"github.com/ecommerce-suite/orders-service/internal/payment"
)

type CreateOrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type CreateOrderRequest struct {
	Items []CreateOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type PaymentConfirmationRequest struct {
	OrderID         string `json:"order_id" validate:"required,uuid4"`
	ChargeReference string `json:"charge_reference" validate:"required"`
	ReceiptURL      string `json:"receipt_url" validate:"required,url"`
}

// OrderHandler exposes the order lifecycle over HTTP. The set of statuses a
// caller may request is deployment configuration, checked here so the core
// never needs to know the full enumeration.
type OrderHandler struct {
	svc      order.Service
	validate *validator.Validate
	statuses map[order.OrderStatus]bool
}

func NewOrderHandler(svc order.Service, allowedStatuses []string) *OrderHandler {
	statuses := make(map[order.OrderStatus]bool, len(allowedStatuses))
	for _, s := range allowedStatuses {
		statuses[order.OrderStatus(s)] = true
	}
	return &OrderHandler{
		svc:      svc,
		validate: validator.New(),
		statuses: statuses,
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handleCreateOrder)
	router.Get("/orders", h.handleListOrders)
	router.Get("/orders/{id}", h.handleGetOrderByID)
	router.Patch("/orders/{id}/status", h.handleChangeStatus)
	router.Post("/orders/{id}/payment-session", h.handleCreatePaymentSession)
	router.Post("/payments/confirmations", h.handlePaymentConfirmation)
}

func (h *OrderHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, payload interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(payload); err != nil {
		log.Warn().Err(err).Msg("handler: failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid request payload: %v", err))
		return false
	}

	if err := h.validate.Struct(payload); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "validation failed",
				Details: formatValidationErrors(validationErrors),
			})
		} else {
			log.Error().Err(err).Msg("handler: unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, "internal validation error")
		}
		return false
	}

	return true
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	items := make([]order.CreateItem, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := uuid.FromString(item.ProductID)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid product id %q", item.ProductID))
			return
		}
		items = append(items, order.CreateItem{ProductID: productID, Quantity: item.Quantity})
	}

	created, err := h.svc.Create(r.Context(), items)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	filter := order.Filter{Page: 1, Limit: 10}

	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			respondWithError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		filter.Page = page
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := order.OrderStatus(raw)
		if !h.statuses[status] {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		filter.Status = &status
	}

	page, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, page)
}

func (h *OrderHandler) orderIDFromURL(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.FromString(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid order id %q", raw))
		return uuid.Nil, false
	}
	return id, true
}

func (h *OrderHandler) handleGetOrderByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderIDFromURL(w, r)
	if !ok {
		return
	}

	ord, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, ord)
}

func (h *OrderHandler) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderIDFromURL(w, r)
	if !ok {
		return
	}

	var req ChangeStatusRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	newStatus := order.OrderStatus(req.Status)
	if !h.statuses[newStatus] {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}

	ord, err := h.svc.ChangeStatus(r.Context(), id, newStatus)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, ord)
}

func (h *OrderHandler) handleCreatePaymentSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderIDFromURL(w, r)
	if !ok {
		return
	}

	session, err := h.svc.CreatePaymentSession(r.Context(), id)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, session)
}

func (h *OrderHandler) handlePaymentConfirmation(w http.ResponseWriter, r *http.Request) {
	var req PaymentConfirmationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	orderID, err := uuid.FromString(req.OrderID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid order id %q", req.OrderID))
		return
	}

	ord, err := h.svc.MarkPaid(r.Context(), payment.Confirmation{
		OrderID:         orderID,
		ChargeReference: req.ChargeReference,
		ReceiptURL:      req.ReceiptURL,
	})
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, ord)
}
