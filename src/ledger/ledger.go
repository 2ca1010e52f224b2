package ledger

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smalcash/backend/src/logger"
	"github.com/smalcash/backend/src/models"
	"github.com/smalcash/backend/src/utils"
)

// ErrNotFound is returned when no sale with the given local ID exists.
var ErrNotFound = errors.New("sale not found")

// Store is the ledger interface the sync engine and handlers work against.
type Store interface {
	Record(sale *models.Sale) (int64, error)
	GetSale(localID int64) (*models.Sale, error)
	ListUnsynchronized() ([]models.Sale, error)
	MarkSynchronized(localID int64, remoteID string) error
	MarkRejected(localID int64, reason string) error
	ListRejected() ([]models.Sale, error)
	DailyTotals(vendorID, day string) (models.DailyTotals, error)
	DailyItemBreakdown(vendorID, day string) ([]models.ItemDaySummary, error)
	UnsynchronizedCount() (int, error)
	SubscribeUnsynchronized() (<-chan int, func())
}

// Ledger is the sqlite-backed local ledger. It is the single durable source
// of truth on the device: a sale exists once Record returns, regardless of
// network state.
type Ledger struct {
	db       *sql.DB
	notifier *Broadcaster
}

func New(db *sql.DB) *Ledger {
	return &Ledger{
		db:       db,
		notifier: NewBroadcaster(),
	}
}

// Record durably persists the sale with synchronized=false before returning.
// The local ID is assigned by the database; the UUID idempotency key is
// assigned here, before the INSERT, so a retried push always carries the
// same deduplication token.
func (l *Ledger) Record(sale *models.Sale) (int64, error) {
	if len(sale.Lines) == 0 {
		return 0, fmt.Errorf("refusing to record sale without lines")
	}
	if sale.UUID == "" {
		sale.UUID = uuid.NewString()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now()
	}
	sale.Synchronized = false
	sale.RemoteID = ""

	linesJSON, err := json.Marshal(sale.Lines)
	if err != nil {
		return 0, fmt.Errorf("error encoding sale lines: %w", err)
	}

	res, err := l.db.Exec(`INSERT INTO sales
		(uuid, vendor_id, register_id, operator, lines, gross_total, fee, sale_day, created_at, synchronized)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE)`,
		sale.UUID, sale.VendorID, sale.RegisterID, sale.Operator, string(linesJSON),
		sale.GrossTotal, sale.Fee, utils.DayKey(sale.CreatedAt), sale.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("error inserting sale: %w", err)
	}

	localID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error reading inserted sale id: %w", err)
	}
	sale.LocalID = localID

	logger.L.Info("Sale recorded", "localID", localID, "uuid", sale.UUID,
		"vendorID", sale.VendorID, "grossTotal", sale.GrossTotal, "fee", sale.Fee)
	l.publishCount()
	return localID, nil
}

func (l *Ledger) GetSale(localID int64) (*models.Sale, error) {
	row := l.db.QueryRow(`SELECT local_id, uuid, vendor_id, register_id, operator, lines,
		gross_total, fee, created_at, synchronized, remote_id, sync_error
		FROM sales WHERE local_id = ?`, localID)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sale, nil
}

// ListUnsynchronized returns every pending sale oldest first. Sales parked
// with a permanent sync error are excluded; they are not retried
// automatically.
func (l *Ledger) ListUnsynchronized() ([]models.Sale, error) {
	rows, err := l.db.Query(`SELECT local_id, uuid, vendor_id, register_id, operator, lines,
		gross_total, fee, created_at, synchronized, remote_id, sync_error
		FROM sales
		WHERE synchronized = FALSE AND sync_error IS NULL
		ORDER BY local_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("error querying unsynchronized sales: %w", err)
	}
	defer rows.Close()
	return collectSales(rows)
}

// MarkSynchronized flags a sale as delivered and attaches the remote ID.
// Idempotent: a second call with the same arguments is a no-op.
func (l *Ledger) MarkSynchronized(localID int64, remoteID string) error {
	res, err := l.db.Exec(`UPDATE sales
		SET synchronized = TRUE, remote_id = ?, sync_error = NULL
		WHERE local_id = ? AND synchronized = FALSE`, remoteID, localID)
	if err != nil {
		return fmt.Errorf("error marking sale %d synchronized: %w", localID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected for sale %d: %w", localID, err)
	}
	if affected == 0 {
		// Already synchronized, or no such sale. Only the latter is an error.
		var exists bool
		if err := l.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM sales WHERE local_id = ?)`, localID).Scan(&exists); err != nil {
			return fmt.Errorf("error checking sale %d: %w", localID, err)
		}
		if !exists {
			return ErrNotFound
		}
		logger.L.Debug("MarkSynchronized no-op, sale already synchronized", "localID", localID)
		return nil
	}

	logger.L.Info("Sale marked synchronized", "localID", localID, "remoteID", remoteID)
	l.publishCount()
	return nil
}

// MarkRejected parks a sale with a permanent error so the sync engine stops
// retrying it. The row stays in the ledger and keeps counting toward daily
// totals; it is surfaced on the admin view instead.
func (l *Ledger) MarkRejected(localID int64, reason string) error {
	res, err := l.db.Exec(`UPDATE sales SET sync_error = ?
		WHERE local_id = ? AND synchronized = FALSE`, reason, localID)
	if err != nil {
		return fmt.Errorf("error marking sale %d rejected: %w", localID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected for sale %d: %w", localID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	logger.L.Warn("Sale parked with permanent sync error", "localID", localID, "reason", reason)
	l.publishCount()
	return nil
}

func (l *Ledger) ListRejected() ([]models.Sale, error) {
	rows, err := l.db.Query(`SELECT local_id, uuid, vendor_id, register_id, operator, lines,
		gross_total, fee, created_at, synchronized, remote_id, sync_error
		FROM sales
		WHERE synchronized = FALSE AND sync_error IS NOT NULL
		ORDER BY local_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("error querying rejected sales: %w", err)
	}
	defer rows.Close()
	return collectSales(rows)
}

// DailyTotals folds all ledger rows for the vendor and day, regardless of
// sync state. On-device totals never depend on the network.
func (l *Ledger) DailyTotals(vendorID, day string) (models.DailyTotals, error) {
	totals := models.DailyTotals{VendorID: vendorID, Day: day}
	err := l.db.QueryRow(`SELECT COALESCE(SUM(gross_total), 0), COALESCE(SUM(fee), 0), COUNT(*)
		FROM sales WHERE vendor_id = ? AND sale_day = ?`, vendorID, day).
		Scan(&totals.Revenue, &totals.Fee, &totals.Count)
	if err != nil {
		return models.DailyTotals{}, fmt.Errorf("error computing daily totals for %s/%s: %w", vendorID, day, err)
	}
	totals.Revenue = utils.RoundFloat(totals.Revenue, 2)
	totals.Fee = utils.RoundFloat(totals.Fee, 2)
	return totals, nil
}

// DailyItemBreakdown folds sale lines into per-item quantity and revenue for
// the admin statistics view.
func (l *Ledger) DailyItemBreakdown(vendorID, day string) ([]models.ItemDaySummary, error) {
	rows, err := l.db.Query(`SELECT lines FROM sales
		WHERE vendor_id = ? AND sale_day = ? ORDER BY local_id ASC`, vendorID, day)
	if err != nil {
		return nil, fmt.Errorf("error querying sales for item breakdown: %w", err)
	}
	defer rows.Close()

	byItem := make(map[string]*models.ItemDaySummary)
	var order []string
	for rows.Next() {
		var linesJSON string
		if err := rows.Scan(&linesJSON); err != nil {
			return nil, fmt.Errorf("error scanning sale lines: %w", err)
		}
		var lines []models.SaleLine
		if err := json.Unmarshal([]byte(linesJSON), &lines); err != nil {
			return nil, fmt.Errorf("error decoding sale lines: %w", err)
		}
		for _, line := range lines {
			entry, ok := byItem[line.ItemID]
			if !ok {
				entry = &models.ItemDaySummary{ItemID: line.ItemID, Name: line.Name}
				byItem[line.ItemID] = entry
				order = append(order, line.ItemID)
			}
			entry.Quantity += line.Quantity
			entry.Revenue = utils.RoundFloat(entry.Revenue+line.Price*float64(line.Quantity), 2)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sales for item breakdown: %w", err)
	}

	summary := make([]models.ItemDaySummary, 0, len(order))
	for _, id := range order {
		summary = append(summary, *byItem[id])
	}
	return summary, nil
}

// UnsynchronizedCount is the pending-queue depth shown as the UI badge.
func (l *Ledger) UnsynchronizedCount() (int, error) {
	var count int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM sales
		WHERE synchronized = FALSE AND sync_error IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting unsynchronized sales: %w", err)
	}
	return count, nil
}

// SubscribeUnsynchronized returns a channel receiving the pending count on
// every ledger mutation, plus an unsubscribe func.
func (l *Ledger) SubscribeUnsynchronized() (<-chan int, func()) {
	return l.notifier.Subscribe()
}

func (l *Ledger) publishCount() {
	count, err := l.UnsynchronizedCount()
	if err != nil {
		logger.L.Error("Failed to read unsynchronized count for broadcast", "error", err)
		return
	}
	l.notifier.Publish(count)
}

type saleScanner interface {
	Scan(dest ...interface{}) error
}

func scanSale(row saleScanner) (*models.Sale, error) {
	var sale models.Sale
	var linesJSON string
	var remoteID, syncError sql.NullString
	if err := row.Scan(&sale.LocalID, &sale.UUID, &sale.VendorID, &sale.RegisterID, &sale.Operator,
		&linesJSON, &sale.GrossTotal, &sale.Fee, &sale.CreatedAt,
		&sale.Synchronized, &remoteID, &syncError); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(linesJSON), &sale.Lines); err != nil {
		return nil, fmt.Errorf("error decoding lines for sale %d: %w", sale.LocalID, err)
	}
	sale.RemoteID = remoteID.String
	sale.SyncError = syncError.String
	return &sale, nil
}

func collectSales(rows *sql.Rows) ([]models.Sale, error) {
	var sales []models.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning sale: %w", err)
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sales: %w", err)
	}
	return sales, nil
}
