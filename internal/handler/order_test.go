package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecommerce-suite/orders-service/internal/order"
	"github.com/ecommerce-suite/orders-service/internal/payment"
)

type mockOrderService struct {
	createFunc               func(ctx context.Context, items []order.CreateItem) (*order.Order, error)
	getByIDFunc              func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	listFunc                 func(ctx context.Context, f order.Filter) (*order.Page, error)
	changeStatusFunc         func(ctx context.Context, id uuid.UUID, s order.OrderStatus) (*order.Order, error)
	markPaidFunc             func(ctx context.Context, c payment.Confirmation) (*order.Order, error)
	createPaymentSessionFunc func(ctx context.Context, id uuid.UUID) (*payment.Session, error)
}

func (m *mockOrderService) Create(ctx context.Context, items []order.CreateItem) (*order.Order, error) {
	return m.createFunc(ctx, items)
}

func (m *mockOrderService) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockOrderService) List(ctx context.Context, f order.Filter) (*order.Page, error) {
	return m.listFunc(ctx, f)
}

func (m *mockOrderService) ChangeStatus(ctx context.Context, id uuid.UUID, s order.OrderStatus) (*order.Order, error) {
	return m.changeStatusFunc(ctx, id, s)
}

func (m *mockOrderService) MarkPaid(ctx context.Context, c payment.Confirmation) (*order.Order, error) {
	return m.markPaidFunc(ctx, c)
}

func (m *mockOrderService) CreatePaymentSession(ctx context.Context, id uuid.UUID) (*payment.Session, error) {
	return m.createPaymentSessionFunc(ctx, id)
}

var allowedStatuses = []string{"PENDING", "PAID", "DELIVERED", "CANCELLED"}

func newTestRouter(svc order.Service) *chi.Mux {
	h := NewOrderHandler(svc, allowedStatuses)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

const testOrderID = "550e8400-e29b-41d4-a716-446655440000"

func TestOrderHandler_CreateOrder(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		createFunc     func(ctx context.Context, items []order.CreateItem) (*order.Order, error)
		expectedStatus int
	}{
		{
			name: "success",
			body: `{"items":[{"product_id":"0d9bd0a9-9a46-4c73-8b5a-2f6a0016a9b1","quantity":2}]}`,
			createFunc: func(ctx context.Context, items []order.CreateItem) (*order.Order, error) {
				return &order.Order{
					ID:          uuid.Must(uuid.FromString(testOrderID)),
					Status:      order.StatusPending,
					TotalAmount: 51,
					TotalItems:  2,
				}, nil
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "invalid_json",
			body:           `{invalid json}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "empty_items",
			body:           `{"items":[]}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "zero_quantity",
			body:           `{"items":[{"product_id":"0d9bd0a9-9a46-4c73-8b5a-2f6a0016a9b1","quantity":0}]}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed_product_id",
			body:           `{"items":[{"product_id":"not-a-uuid","quantity":1}]}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation_failed_is_opaque",
			body: `{"items":[{"product_id":"0d9bd0a9-9a46-4c73-8b5a-2f6a0016a9b1","quantity":2}]}`,
			createFunc: func(ctx context.Context, items []order.CreateItem) (*order.Order, error) {
				return nil, order.ErrValidationFailed
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "persistence_failed",
			body: `{"items":[{"product_id":"0d9bd0a9-9a46-4c73-8b5a-2f6a0016a9b1","quantity":2}]}`,
			createFunc: func(ctx context.Context, items []order.CreateItem) (*order.Order, error) {
				return nil, order.ErrPersistenceFailed
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockOrderService{createFunc: tt.createFunc}
			router := newTestRouter(svc)

			req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestOrderHandler_CreateOrder_OpaqueError(t *testing.T) {
	svc := &mockOrderService{
		createFunc: func(ctx context.Context, items []order.CreateItem) (*order.Order, error) {
			return nil, order.ErrValidationFailed
		},
	}
	router := newTestRouter(svc)

	body := `{"items":[{"product_id":"0d9bd0a9-9a46-4c73-8b5a-2f6a0016a9b1","quantity":2}]}`
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "check server logs",
		"collaborator error detail must not leak to the caller")
}

func TestOrderHandler_GetOrderByID(t *testing.T) {
	tests := []struct {
		name           string
		id             string
		getByIDFunc    func(ctx context.Context, id uuid.UUID) (*order.Order, error)
		expectedStatus int
	}{
		{
			name: "success",
			id:   testOrderID,
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return &order.Order{ID: id, Status: order.StatusPending}, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "not_found",
			id:   "999e8400-e29b-41d4-a716-446655440000",
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return nil, order.ErrOrderNotFound
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid_id",
			id:             "not-a-uuid",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockOrderService{getByIDFunc: tt.getByIDFunc}
			router := newTestRouter(svc)

			req := httptest.NewRequest(http.MethodGet, "/orders/"+tt.id, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestOrderHandler_ListOrders(t *testing.T) {
	t.Run("meta_shape", func(t *testing.T) {
		svc := &mockOrderService{
			listFunc: func(ctx context.Context, f order.Filter) (*order.Page, error) {
				assert.Equal(t, 2, f.Page)
				assert.Equal(t, 5, f.Limit)
				require.NotNil(t, f.Status)
				assert.Equal(t, order.OrderStatus("DELIVERED"), *f.Status)
				return &order.Page{
					Data: []order.Order{},
					Meta: order.PageMeta{Total: 25, Page: 2, LastPage: 5},
				}, nil
			},
		}
		router := newTestRouter(svc)

		req := httptest.NewRequest(http.MethodGet, "/orders?page=2&limit=5&status=DELIVERED", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var page order.Page
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		assert.Equal(t, 25, page.Meta.Total)
		assert.Equal(t, 5, page.Meta.LastPage)
	})

	t.Run("unknown_status", func(t *testing.T) {
		router := newTestRouter(&mockOrderService{})

		req := httptest.NewRequest(http.MethodGet, "/orders?status=BOGUS", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid_page", func(t *testing.T) {
		router := newTestRouter(&mockOrderService{})

		req := httptest.NewRequest(http.MethodGet, "/orders?page=0", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestOrderHandler_ChangeStatus(t *testing.T) {
	tests := []struct {
		name             string
		id               string
		body             string
		changeStatusFunc func(ctx context.Context, id uuid.UUID, s order.OrderStatus) (*order.Order, error)
		expectedStatus   int
	}{
		{
			name: "success",
			id:   testOrderID,
			body: `{"status":"DELIVERED"}`,
			changeStatusFunc: func(ctx context.Context, id uuid.UUID, s order.OrderStatus) (*order.Order, error) {
				return &order.Order{ID: id, Status: s}, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "status_not_in_configured_set",
			id:             testOrderID,
			body:           `{"status":"TELEPORTED"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing_status",
			id:             testOrderID,
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "not_found",
			id:   testOrderID,
			body: `{"status":"DELIVERED"}`,
			changeStatusFunc: func(ctx context.Context, id uuid.UUID, s order.OrderStatus) (*order.Order, error) {
				return nil, order.ErrOrderNotFound
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockOrderService{changeStatusFunc: tt.changeStatusFunc}
			router := newTestRouter(svc)

			req := httptest.NewRequest(http.MethodPatch, "/orders/"+tt.id+"/status", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestOrderHandler_CreatePaymentSession(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := &mockOrderService{
			createPaymentSessionFunc: func(ctx context.Context, id uuid.UUID) (*payment.Session, error) {
				return &payment.Session{ID: "sess_42", URL: "https://pay.example.com/sess_42"}, nil
			},
		}
		router := newTestRouter(svc)

		req := httptest.NewRequest(http.MethodPost, "/orders/"+testOrderID+"/payment-session", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusCreated, w.Code)

		var session payment.Session
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
		assert.Equal(t, "sess_42", session.ID)
	})

	t.Run("provider_failure", func(t *testing.T) {
		svc := &mockOrderService{
			createPaymentSessionFunc: func(ctx context.Context, id uuid.UUID) (*payment.Session, error) {
				return nil, order.ErrPaymentFailed
			},
		}
		router := newTestRouter(svc)

		req := httptest.NewRequest(http.MethodPost, "/orders/"+testOrderID+"/payment-session", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestOrderHandler_PaymentConfirmation(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		markPaidFunc   func(ctx context.Context, c payment.Confirmation) (*order.Order, error)
		expectedStatus int
	}{
		{
			name: "success",
			body: `{"order_id":"` + testOrderID + `","charge_reference":"ch_1a2b3c","receipt_url":"https://pay.example.com/receipts/1a2b3c"}`,
			markPaidFunc: func(ctx context.Context, c payment.Confirmation) (*order.Order, error) {
				assert.Equal(t, "ch_1a2b3c", c.ChargeReference)
				return &order.Order{ID: c.OrderID, Status: order.StatusPaid, Paid: true}, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing_charge_reference",
			body:           `{"order_id":"` + testOrderID + `","receipt_url":"https://pay.example.com/receipts/1a2b3c"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid_receipt_url",
			body:           `{"order_id":"` + testOrderID + `","charge_reference":"ch_1a2b3c","receipt_url":"not a url"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown_order",
			body: `{"order_id":"` + testOrderID + `","charge_reference":"ch_1a2b3c","receipt_url":"https://pay.example.com/receipts/1a2b3c"}`,
			markPaidFunc: func(ctx context.Context, c payment.Confirmation) (*order.Order, error) {
				return nil, order.ErrOrderNotFound
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockOrderService{markPaidFunc: tt.markPaidFunc}
			router := newTestRouter(svc)

			req := httptest.NewRequest(http.MethodPost, "/payments/confirmations", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}
