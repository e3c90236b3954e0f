package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecommerce-suite/orders-service/internal/handler"
)

func NewRouter(orderHandler *handler.OrderHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	orderHandler.RegisterRoutes(r)

	return r
}
