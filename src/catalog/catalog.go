package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/smalcash/backend/src/logger"
	"github.com/smalcash/backend/src/models"
	"github.com/smalcash/backend/src/remote"
)

const itemsCacheKeyFmt = "items_vendor_%s"

// Service is the read-through catalog cache. Reads always succeed from the
// local copy (memory layer over sqlite); Refresh replaces a vendor's cached
// set atomically from the remote source. A failed refresh leaves the prior
// cache untouched, so the register simply keeps selling offline.
type Service struct {
	db     *sql.DB
	remote remote.Store
	mem    *cache.Cache
}

func NewService(db *sql.DB, remoteStore remote.Store, ttl time.Duration) *Service {
	return &Service{
		db:     db,
		remote: remoteStore,
		mem:    cache.New(ttl, 2*ttl),
	}
}

// Refresh fetches active items for the vendor and replaces the cached set in
// a single transaction (full delete-then-insert, never partial). Vendor and
// register master data are refreshed best-effort alongside.
func (s *Service) Refresh(ctx context.Context, vendorID string) ([]models.Item, error) {
	items, err := s.remote.FetchItems(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("catalog refresh for vendor %s: %w", vendorID, err)
	}

	if err := s.replaceItems(vendorID, items); err != nil {
		return nil, err
	}
	s.mem.Delete(fmt.Sprintf(itemsCacheKeyFmt, vendorID))

	s.refreshMasterData(ctx, vendorID)

	logger.L.Info("Catalog refreshed", "vendorID", vendorID, "items", len(items))
	return items, nil
}

func (s *Service) replaceItems(vendorID string, items []models.Item) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("error beginning catalog transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM item_cache WHERE vendor_id = ?`, vendorID); err != nil {
		return fmt.Errorf("error clearing item cache for vendor %s: %w", vendorID, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO item_cache
		(vendor_id, item_id, name, price, deposit, category, icon, active, refreshed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing item insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, item := range items {
		if _, err := stmt.Exec(vendorID, item.ID, item.Name, item.Price, item.Deposit,
			item.Category, item.Icon, item.Active, now); err != nil {
			return fmt.Errorf("error inserting item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing catalog refresh: %w", err)
	}
	return nil
}

// refreshMasterData pulls vendor and register rows alongside the items.
// Failures here are logged, not surfaced; the item refresh already
// succeeded.
func (s *Service) refreshMasterData(ctx context.Context, vendorID string) {
	if vendor, err := s.remote.FetchVendor(ctx, vendorID); err != nil {
		logger.L.Warn("Vendor master data refresh failed", "vendorID", vendorID, "error", err)
	} else if _, err := s.db.Exec(`INSERT OR REPLACE INTO vendor_cache (id, name, email, active, refreshed_at)
		VALUES (?, ?, ?, ?, ?)`, vendor.ID, vendor.Name, vendor.Email, vendor.Active, time.Now()); err != nil {
		logger.L.Error("Failed to cache vendor master data", "vendorID", vendorID, "error", err)
	}

	registers, err := s.remote.FetchRegisters(ctx, vendorID)
	if err != nil {
		logger.L.Warn("Register master data refresh failed", "vendorID", vendorID, "error", err)
		return
	}
	tx, err := s.db.Begin()
	if err != nil {
		logger.L.Error("Failed to begin register cache transaction", "error", err)
		return
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM register_cache WHERE vendor_id = ?`, vendorID); err != nil {
		logger.L.Error("Failed to clear register cache", "vendorID", vendorID, "error", err)
		return
	}
	for _, reg := range registers {
		if _, err := tx.Exec(`INSERT INTO register_cache (id, vendor_id, name, location, active, refreshed_at)
			VALUES (?, ?, ?, ?, ?, ?)`, reg.ID, vendorID, reg.Name, reg.Location, reg.Active, time.Now()); err != nil {
			logger.L.Error("Failed to cache register", "registerID", reg.ID, "error", err)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		logger.L.Error("Failed to commit register cache", "vendorID", vendorID, "error", err)
	}
}

// Read returns the active cached items for the vendor, reflecting the last
// successful refresh. It never touches the network; before the first refresh
// it returns an empty catalog. Inactive items are absent, not soft-visible.
func (s *Service) Read(vendorID string) ([]models.Item, error) {
	key := fmt.Sprintf(itemsCacheKeyFmt, vendorID)
	if cached, found := s.mem.Get(key); found {
		return cached.([]models.Item), nil
	}

	rows, err := s.db.Query(`SELECT vendor_id, item_id, name, price, deposit, category, icon, active
		FROM item_cache WHERE vendor_id = ? AND active = TRUE ORDER BY item_id`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("error reading item cache for vendor %s: %w", vendorID, err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		var item models.Item
		if err := rows.Scan(&item.VendorID, &item.ID, &item.Name, &item.Price, &item.Deposit,
			&item.Category, &item.Icon, &item.Active); err != nil {
			return nil, fmt.Errorf("error scanning cached item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cached items: %w", err)
	}

	s.mem.Set(key, items, cache.DefaultExpiration)
	return items, nil
}

// Vendor returns the cached vendor master data, if any.
func (s *Service) Vendor(vendorID string) (*models.Vendor, error) {
	var vendor models.Vendor
	err := s.db.QueryRow(`SELECT id, name, email, active FROM vendor_cache WHERE id = ?`, vendorID).
		Scan(&vendor.ID, &vendor.Name, &vendor.Email, &vendor.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading vendor cache: %w", err)
	}
	return &vendor, nil
}

// Registers returns the cached active registers for the vendor.
func (s *Service) Registers(vendorID string) ([]models.Register, error) {
	rows, err := s.db.Query(`SELECT id, vendor_id, name, location, active
		FROM register_cache WHERE vendor_id = ? AND active = TRUE ORDER BY id`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("error reading register cache: %w", err)
	}
	defer rows.Close()

	registers := []models.Register{}
	for rows.Next() {
		var reg models.Register
		if err := rows.Scan(&reg.ID, &reg.VendorID, &reg.Name, &reg.Location, &reg.Active); err != nil {
			return nil, fmt.Errorf("error scanning cached register: %w", err)
		}
		registers = append(registers, reg)
	}
	return registers, rows.Err()
}

// Seed installs the built-in demo article list for a vendor whose cache is
// still empty. First-run kiosks can sell offline before ever reaching the
// remote source.
func (s *Service) Seed(vendorID string) error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM item_cache WHERE vendor_id = ?`, vendorID).Scan(&count); err != nil {
		return fmt.Errorf("error checking item cache before seed: %w", err)
	}
	if count > 0 {
		return nil
	}

	items := demoItems(vendorID)
	if err := s.replaceItems(vendorID, items); err != nil {
		return err
	}
	s.mem.Delete(fmt.Sprintf(itemsCacheKeyFmt, vendorID))
	logger.L.Info("Seeded demo catalog", "vendorID", vendorID, "items", len(items))
	return nil
}

func demoItems(vendorID string) []models.Item {
	mk := func(id, name string, price, deposit float64, category, icon string) models.Item {
		return models.Item{ID: id, VendorID: vendorID, Name: name, Price: price,
			Deposit: deposit, Category: category, Icon: icon, Active: true}
	}
	return []models.Item{
		mk("1", "Cola 0,5L", 3.50, 0.25, "Getränke", "🥤"),
		mk("2", "Bier 0,5L", 4.00, 0.25, "Getränke", "🍺"),
		mk("3", "Wasser 0,5L", 2.50, 0.25, "Getränke", "💧"),
		mk("4", "Kaffee", 2.00, 0, "Getränke", "☕"),
		mk("5", "Apfelschorle", 3.00, 0.25, "Getränke", "🧃"),
		mk("6", "Bratwurst", 3.50, 0, "Speisen", "🌭"),
		mk("7", "Pommes", 3.00, 0, "Speisen", "🍟"),
		mk("8", "Brezel", 2.00, 0, "Speisen", "🥨"),
		mk("9", "Pizza Stück", 3.50, 0, "Speisen", "🍕"),
		mk("10", "Schokoriegel", 1.50, 0, "Snacks", "🍫"),
		mk("11", "Chips", 2.50, 0, "Snacks", "🥔"),
		mk("12", "Gummibärchen", 2.00, 0, "Snacks", "🍬"),
		mk("13", "Pfand Rückgabe", -0.25, 0, "Pfand", "♻️"),
	}
}
