package models

import "time"

// Item is a sellable catalog entry. Items are replaced wholesale on every
// catalog refresh; a negative price models a return line (e.g. Pfand-Rückgabe).
type Item struct {
	ID       string  `json:"id"`
	VendorID string  `json:"vendorId"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Deposit  float64 `json:"deposit"`
	Category string  `json:"category"`
	Icon     string  `json:"icon"`
	Active   bool    `json:"active"`
}

// Vendor is the organizational owner of a catalog and its sales.
type Vendor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Active bool   `json:"active"`
}

// Register is a point-of-sale terminal belonging to a vendor.
type Register struct {
	ID       string `json:"id"`
	VendorID string `json:"vendorId"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Active   bool   `json:"active"`
}

// SaleLine is a frozen copy of a cart line, captured at checkout so later
// catalog edits never alter historical totals.
type SaleLine struct {
	ItemID   string  `json:"itemId"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Deposit  float64 `json:"deposit"`
	Quantity int     `json:"quantity"`
}

// Sale is the ledger record of one completed checkout. Once recorded, only
// Synchronized, RemoteID and SyncError may change.
type Sale struct {
	LocalID    int64      `json:"localId"`
	UUID       string     `json:"uuid"` // idempotency key for remote dedup
	VendorID   string     `json:"vendorId"`
	RegisterID string     `json:"registerId"`
	Operator   string     `json:"operator"`
	Lines      []SaleLine `json:"lines"`
	GrossTotal float64    `json:"grossTotal"`
	Fee        float64    `json:"fee"`
	CreatedAt  time.Time  `json:"createdAt"`

	Synchronized bool   `json:"synchronized"`
	RemoteID     string `json:"remoteId,omitempty"`
	SyncError    string `json:"syncError,omitempty"`
}

// DailyTotals is the per-vendor, per-day fold over sales: revenue, fee and
// transaction count. Derived data, recomputed from ledger rows on demand.
type DailyTotals struct {
	VendorID string  `json:"vendorId"`
	Day      string  `json:"day"` // YYYY-MM-DD
	Revenue  float64 `json:"revenue"`
	Fee      float64 `json:"fee"`
	Count    int     `json:"count"`
}

// ItemDaySummary is one row of the admin per-item breakdown for a day.
type ItemDaySummary struct {
	ItemID   string  `json:"itemId"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Revenue  float64 `json:"revenue"`
}
