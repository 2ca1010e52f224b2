package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smalcash/backend/src/database"
	"github.com/smalcash/backend/src/logger"
	"github.com/smalcash/backend/src/models"
	"github.com/smalcash/backend/src/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

type stubRemote struct {
	items     []models.Item
	itemsErr  error
	vendor    *models.Vendor
	registers []models.Register
	fetches   int
}

func (s *stubRemote) PushSale(ctx context.Context, sale *models.Sale) (string, error) {
	return "", remote.ErrUnavailable
}

func (s *stubRemote) FetchItems(ctx context.Context, vendorID string) ([]models.Item, error) {
	s.fetches++
	if s.itemsErr != nil {
		return nil, s.itemsErr
	}
	return s.items, nil
}

func (s *stubRemote) FetchVendor(ctx context.Context, vendorID string) (*models.Vendor, error) {
	if s.vendor == nil {
		return nil, remote.ErrUnavailable
	}
	return s.vendor, nil
}

func (s *stubRemote) FetchRegisters(ctx context.Context, vendorID string) ([]models.Register, error) {
	if s.registers == nil {
		return nil, remote.ErrUnavailable
	}
	return s.registers, nil
}

func newTestService(t *testing.T, stub *stubRemote) *Service {
	t.Helper()
	database.InitDB(filepath.Join(t.TempDir(), "catalog_test.db"))
	db := database.DB
	t.Cleanup(func() { db.Close() })
	return NewService(db, stub, 50*time.Millisecond)
}

func item(id, name string, price float64, active bool) models.Item {
	return models.Item{ID: id, VendorID: "demo-vendor", Name: name, Price: price, Active: active}
}

func TestRefreshReplacesCachedSet(t *testing.T) {
	stub := &stubRemote{items: []models.Item{
		item("1", "Cola 0,5L", 3.50, true),
		item("2", "Bier 0,5L", 4.00, true),
	}}
	svc := newTestService(t, stub)

	_, err := svc.Refresh(context.Background(), "demo-vendor")
	require.NoError(t, err)

	items, err := svc.Read("demo-vendor")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Cola 0,5L", items[0].Name)

	// Second refresh delivers a different set; the old one must be gone.
	stub.items = []models.Item{item("3", "Kaffee", 2.00, true)}
	_, err = svc.Refresh(context.Background(), "demo-vendor")
	require.NoError(t, err)

	items, err = svc.Read("demo-vendor")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Kaffee", items[0].Name)
}

func TestFailedRefreshKeepsPriorCache(t *testing.T) {
	stub := &stubRemote{items: []models.Item{item("1", "Cola 0,5L", 3.50, true)}}
	svc := newTestService(t, stub)

	_, err := svc.Refresh(context.Background(), "demo-vendor")
	require.NoError(t, err)

	stub.itemsErr = fmt.Errorf("%w: network down", remote.ErrUnavailable)
	_, err = svc.Refresh(context.Background(), "demo-vendor")
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrUnavailable)

	items, err := svc.Read("demo-vendor")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Cola 0,5L", items[0].Name)
}

func TestReadExcludesInactiveItems(t *testing.T) {
	stub := &stubRemote{items: []models.Item{
		item("1", "Cola 0,5L", 3.50, true),
		item("2", "Altes Produkt", 1.00, false),
	}}
	svc := newTestService(t, stub)

	_, err := svc.Refresh(context.Background(), "demo-vendor")
	require.NoError(t, err)

	items, err := svc.Read("demo-vendor")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1", items[0].ID)
}

func TestReadNeverTouchesTheNetwork(t *testing.T) {
	stub := &stubRemote{items: []models.Item{item("1", "Cola 0,5L", 3.50, true)}}
	svc := newTestService(t, stub)

	_, err := svc.Refresh(context.Background(), "demo-vendor")
	require.NoError(t, err)
	fetchesAfterRefresh := stub.fetches

	for i := 0; i < 5; i++ {
		_, err := svc.Read("demo-vendor")
		require.NoError(t, err)
	}
	assert.Equal(t, fetchesAfterRefresh, stub.fetches)
}

func TestReadBeforeFirstRefreshIsEmpty(t *testing.T) {
	svc := newTestService(t, &stubRemote{})

	items, err := svc.Read("demo-vendor")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSeedOnlyFillsEmptyCache(t *testing.T) {
	stub := &stubRemote{}
	svc := newTestService(t, stub)

	require.NoError(t, svc.Seed("demo-vendor"))
	items, err := svc.Read("demo-vendor")
	require.NoError(t, err)
	assert.Len(t, items, 13)

	// The deposit return line sells at a negative price.
	var pfand *models.Item
	for i := range items {
		if items[i].Name == "Pfand Rückgabe" {
			pfand = &items[i]
		}
	}
	require.NotNil(t, pfand)
	assert.Equal(t, -0.25, pfand.Price)

	// A refreshed catalog is never overwritten by a later seed.
	stub.items = []models.Item{item("99", "Echter Artikel", 5.00, true)}
	_, err = svc.Refresh(context.Background(), "demo-vendor")
	require.NoError(t, err)
	require.NoError(t, svc.Seed("demo-vendor"))

	items, err = svc.Read("demo-vendor")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Echter Artikel", items[0].Name)
}

func TestRefreshCachesMasterData(t *testing.T) {
	stub := &stubRemote{
		items:  []models.Item{item("1", "Cola 0,5L", 3.50, true)},
		vendor: &models.Vendor{ID: "demo-vendor", Name: "Vereinsfest e.V.", Email: "kasse@verein.de", Active: true},
		registers: []models.Register{
			{ID: "kasse-1", VendorID: "demo-vendor", Name: "Kasse 1", Location: "Haupteingang", Active: true},
			{ID: "kasse-2", VendorID: "demo-vendor", Name: "Kasse 2", Location: "Bierstand", Active: false},
		},
	}
	svc := newTestService(t, stub)

	_, err := svc.Refresh(context.Background(), "demo-vendor")
	require.NoError(t, err)

	vendor, err := svc.Vendor("demo-vendor")
	require.NoError(t, err)
	require.NotNil(t, vendor)
	assert.Equal(t, "Vereinsfest e.V.", vendor.Name)

	registers, err := svc.Registers("demo-vendor")
	require.NoError(t, err)
	require.Len(t, registers, 1)
	assert.Equal(t, "kasse-1", registers[0].ID)
}
