package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/smalcash/backend/src/cart"
	"github.com/smalcash/backend/src/catalog"
	"github.com/smalcash/backend/src/services"
	"github.com/smalcash/backend/src/utils"
)

// CartHandler is the presentation boundary for the single register cart:
// add/remove lines and checkout. One cart per process, matching the
// one-register-one-operator model.
type CartHandler struct {
	cart       *cart.Cart
	catalog    *catalog.Service
	checkout   services.CheckoutService
	vendorID   string
	notifySync func() // nudges the sync engine after a checkout
}

func NewCartHandler(c *cart.Cart, catalogService *catalog.Service, checkout services.CheckoutService,
	vendorID string, notifySync func()) *CartHandler {
	return &CartHandler{
		cart:       c,
		catalog:    catalogService,
		checkout:   checkout,
		vendorID:   vendorID,
		notifySync: notifySync,
	}
}

type cartResponse struct {
	Lines      []cart.Line `json:"lines"`
	ItemCount  int         `json:"itemCount"`
	GrossTotal float64     `json:"grossTotal"`
	Fee        float64     `json:"fee"`
}

type addItemRequest struct {
	ItemID string `json:"itemId"`
}

func (h *CartHandler) HandleGetCart(w http.ResponseWriter, r *http.Request) {
	h.sendCart(w)
}

func (h *CartHandler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	items, err := h.catalog.Read(h.vendorID)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("error reading catalog: %v", err), http.StatusInternalServerError)
		return
	}
	for _, item := range items {
		if item.ID == req.ItemID {
			h.cart.AddItem(item)
			h.sendCart(w)
			return
		}
	}
	utils.SendJSONError(w, fmt.Sprintf("item %s not in catalog", req.ItemID), http.StatusNotFound)
}

func (h *CartHandler) HandleRemoveOne(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("itemID")
	if itemID == "" {
		utils.SendJSONError(w, "missing item id", http.StatusBadRequest)
		return
	}
	h.cart.RemoveOne(itemID)
	h.sendCart(w)
}

func (h *CartHandler) HandleClearCart(w http.ResponseWriter, r *http.Request) {
	h.cart.Clear()
	h.sendCart(w)
}

// HandleCheckout finalizes the cart into a durably recorded sale. The sale
// is complete once this returns 201; synchronization happens in the
// background.
func (h *CartHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	sale, err := h.checkout.Checkout(h.cart)
	if err != nil {
		if errors.Is(err, cart.ErrEmptyOrZeroValue) {
			utils.SendJSONError(w, "cart is empty or nets to zero", http.StatusUnprocessableEntity)
			return
		}
		utils.SendJSONError(w, fmt.Sprintf("checkout failed: %v", err), http.StatusInternalServerError)
		return
	}

	if h.notifySync != nil {
		h.notifySync()
	}
	utils.SendJSON(w, sale, http.StatusCreated)
}

func (h *CartHandler) sendCart(w http.ResponseWriter) {
	utils.SendJSON(w, cartResponse{
		Lines:      h.cart.Lines(),
		ItemCount:  h.cart.ItemCount(),
		GrossTotal: h.cart.GrossTotal(),
		Fee:        h.cart.Fee(),
	}, http.StatusOK)
}
