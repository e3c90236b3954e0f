package order

import (
	"time"

	"github.com/gofrs/uuid"
)

// OrderStatus is an open enumeration: the full set of valid values is
// deployment configuration (APP_ORDER_STATUSES), enforced at the HTTP
// boundary. Only the values this package writes itself are declared here.
type OrderStatus string

const (
	// StatusPending is assigned to every newly created order.
	StatusPending OrderStatus = "PENDING"
	// StatusPaid is written by MarkPaid together with the paid flag.
	StatusPaid OrderStatus = "PAID"
)

func (os OrderStatus) String() string {
	return string(os)
}

// OrderItem is a single line of an order. Price is snapshotted from the
// catalog at creation time and never updated afterwards; Name is resolved
// from the catalog on read and is never persisted.
type OrderItem struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OrderID   uuid.UUID `json:"order_id" db:"order_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Name      string    `json:"name,omitempty" db:"-"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Price     float64   `json:"price" db:"price"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Receipt is created exactly once per order, in the same transaction as the
// paid transition.
type Receipt struct {
	ID         uuid.UUID `json:"id" db:"id"`
	OrderID    uuid.UUID `json:"order_id" db:"order_id"`
	ReceiptURL string    `json:"receipt_url" db:"receipt_url"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type Order struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	Status          OrderStatus `json:"status" db:"status"`
	TotalAmount     float64     `json:"total_amount" db:"total_amount"`
	TotalItems      int         `json:"total_items" db:"total_items"`
	Paid            bool        `json:"paid" db:"paid"`
	PaidAt          *time.Time  `json:"paid_at,omitempty" db:"paid_at"`
	ChargeReference string      `json:"charge_reference,omitempty" db:"charge_reference"`
	Items           []OrderItem `json:"items" db:"-"`
	Receipt         *Receipt    `json:"receipt,omitempty" db:"-"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// CreateItem is one requested line of a new order: which product and how
// many. Price is deliberately absent; it is resolved from the catalog at
// creation time.
type CreateItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// Filter narrows and pages a listing. A nil Status matches all statuses.
// The same filter drives both the count and the data query.
type Filter struct {
	Status *OrderStatus
	Page   int
	Limit  int
}

// Page is the listing response shape: one page of orders plus paging
// metadata computed from the total matching count.
type Page struct {
	Data []Order  `json:"data"`
	Meta PageMeta `json:"meta"`
}

type PageMeta struct {
	Total    int `json:"total"`
	Page     int `json:"page"`
	LastPage int `json:"lastPage"`
}
