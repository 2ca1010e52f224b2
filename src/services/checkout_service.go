package services

import (
	"fmt"
	"time"

	"github.com/smalcash/backend/src/cart"
	"github.com/smalcash/backend/src/ledger"
	"github.com/smalcash/backend/src/logger"
	"github.com/smalcash/backend/src/models"
)

type checkoutServiceImpl struct {
	ledger     ledger.Store
	vendorID   string
	registerID string
	operator   string
}

func NewCheckoutService(store ledger.Store, vendorID, registerID, operator string) CheckoutService {
	return &checkoutServiceImpl{
		ledger:     store,
		vendorID:   vendorID,
		registerID: registerID,
		operator:   operator,
	}
}

// Checkout freezes the cart into a sale record and persists it durably.
// The cart is cleared only after the ledger write succeeds; a storage
// failure leaves the cart intact so the operator can retry.
func (s *checkoutServiceImpl) Checkout(c *cart.Cart) (*models.Sale, error) {
	lines, grossTotal, fee := c.Freeze()
	if len(lines) == 0 || grossTotal == 0 {
		return nil, cart.ErrEmptyOrZeroValue
	}

	sale := &models.Sale{
		VendorID:   s.vendorID,
		RegisterID: s.registerID,
		Operator:   s.operator,
		Lines:      lines,
		GrossTotal: grossTotal,
		Fee:        fee,
		CreatedAt:  time.Now(),
	}

	if _, err := s.ledger.Record(sale); err != nil {
		logger.L.Error("Checkout failed to record sale", "error", err, "grossTotal", grossTotal)
		return nil, fmt.Errorf("failed to record sale: %w", err)
	}

	c.Clear()
	return sale, nil
}
