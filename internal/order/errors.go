package order

import "errors"

// Externally visible failure kinds. Collaborator-internal causes are logged
// where they happen and are never attached to these sentinels, so callers
// stay decoupled from catalog and payment error shapes.
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrValidationFailed  = errors.New("order validation failed, check server logs for details")
	ErrPersistenceFailed = errors.New("order could not be persisted")
	ErrPaymentFailed     = errors.New("payment collaborator request failed")
)
