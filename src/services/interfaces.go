package services

import (
	"github.com/smalcash/backend/src/cart"
	"github.com/smalcash/backend/src/models"
)

// CheckoutService finalizes a cart into a recorded sale.
type CheckoutService interface {
	Checkout(c *cart.Cart) (*models.Sale, error)
}

// AlertService notifies an operator/admin about sales the remote store has
// permanently rejected. Delivery is best-effort; the sale stays parked in
// the ledger either way.
type AlertService interface {
	SendSyncFailureAlert(sale *models.Sale, reason string) error
}
