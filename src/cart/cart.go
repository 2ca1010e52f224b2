package cart

import (
	"errors"
	"sync"

	"github.com/smalcash/backend/src/models"
	"github.com/smalcash/backend/src/utils"
)

// ErrEmptyOrZeroValue is returned by checkout when the cart's gross total is
// exactly zero. A cart holding only a zero-net combination (e.g. a lone
// Pfand return cancelling a deposit) is not a valid sale.
var ErrEmptyOrZeroValue = errors.New("cart is empty or nets to zero")

// FeeRate is the transaction fee charged on the pure merchandise value
// (positive-price lines only; deposits and return lines are exempt).
const FeeRate = 0.01

// Line is one cart entry: an item reference plus a positive quantity.
type Line struct {
	Item     models.Item `json:"item"`
	Quantity int         `json:"quantity"`
}

// Cart is an ordered collection of lines, unique by item ID. It is transient
// state owned by the register; it exists only until checkout or clear.
// The mutex covers the HTTP boundary, where the UI and the checkout can
// touch the same cart.
type Cart struct {
	mu    sync.Mutex
	lines []Line
}

func New() *Cart {
	return &Cart{}
}

// AddItem increments the quantity of an existing line or appends a new line
// with quantity 1.
func (c *Cart) AddItem(item models.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		if c.lines[i].Item.ID == item.ID {
			c.lines[i].Quantity++
			return
		}
	}
	c.lines = append(c.lines, Line{Item: item, Quantity: 1})
}

// RemoveOne decrements the quantity for the item, removing the line entirely
// when it would drop to zero. Unknown item IDs are ignored.
func (c *Cart) RemoveOne(itemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		if c.lines[i].Item.ID != itemID {
			continue
		}
		if c.lines[i].Quantity > 1 {
			c.lines[i].Quantity--
		} else {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
		}
		return
	}
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

// Lines returns a copy of the current cart lines, in insertion order.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// GrossTotal is sum((price+deposit)*quantity) over all lines, rounded to
// cents.
func (c *Cart) GrossTotal() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return utils.RoundFloat(c.grossLocked(), 2)
}

// Fee is the transaction fee for the current cart contents: FeeRate applied
// to positive-price line value only.
func (c *Cart) Fee() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return utils.RoundFloat(c.feeBaseLocked()*FeeRate, 2)
}

// ItemCount is the total quantity across all lines (the cart badge number).
func (c *Cart) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, line := range c.lines {
		n += line.Quantity
	}
	return n
}

// Freeze captures an immutable snapshot of the cart for a sale record:
// copied lines plus the computed gross total and fee. Later catalog edits
// never alter the snapshot.
func (c *Cart) Freeze() (lines []models.SaleLine, grossTotal, fee float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines = make([]models.SaleLine, 0, len(c.lines))
	for _, line := range c.lines {
		lines = append(lines, models.SaleLine{
			ItemID:   line.Item.ID,
			Name:     line.Item.Name,
			Price:    line.Item.Price,
			Deposit:  line.Item.Deposit,
			Quantity: line.Quantity,
		})
	}
	grossTotal = utils.RoundFloat(c.grossLocked(), 2)
	fee = utils.RoundFloat(c.feeBaseLocked()*FeeRate, 2)
	return lines, grossTotal, fee
}

func (c *Cart) grossLocked() float64 {
	total := 0.0
	for _, line := range c.lines {
		total += (line.Item.Price + line.Item.Deposit) * float64(line.Quantity)
	}
	return total
}

// feeBaseLocked is the "reiner Warenwert": positive-price line value only.
// Deposits and negative-price lines (deposit returns) are fee-exempt.
func (c *Cart) feeBaseLocked() float64 {
	base := 0.0
	for _, line := range c.lines {
		if line.Item.Price > 0 {
			base += line.Item.Price * float64(line.Quantity)
		}
	}
	return base
}
