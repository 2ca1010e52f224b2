package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smalcash/backend/src/cart"
	"github.com/smalcash/backend/src/catalog"
	"github.com/smalcash/backend/src/config"
	"github.com/smalcash/backend/src/database"
	"github.com/smalcash/backend/src/ledger"
	"github.com/smalcash/backend/src/logger"
	"github.com/smalcash/backend/src/models"
	"github.com/smalcash/backend/src/remote"
	"github.com/smalcash/backend/src/security"
	"github.com/smalcash/backend/src/services"
	syncengine "github.com/smalcash/backend/src/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	config.Cfg = &config.AppConfig{AdminTokenExpiry: time.Hour}
	os.Exit(m.Run())
}

// testEnv wires the real register stack against a temp sqlite file, with the
// network stubbed out.
type testEnv struct {
	auth     *security.AuthService
	ledger   *ledger.Ledger
	catalog  *catalog.Service
	cart     *cart.Cart
	checkout services.CheckoutService
}

type offlineRemote struct{}

func (offlineRemote) PushSale(ctx context.Context, sale *models.Sale) (string, error) {
	return "", remote.ErrUnavailable
}

func (offlineRemote) FetchItems(ctx context.Context, vendorID string) ([]models.Item, error) {
	return nil, remote.ErrUnavailable
}

func (offlineRemote) FetchVendor(ctx context.Context, vendorID string) (*models.Vendor, error) {
	return nil, remote.ErrUnavailable
}

func (offlineRemote) FetchRegisters(ctx context.Context, vendorID string) ([]models.Register, error) {
	return nil, remote.ErrUnavailable
}

// rejectingRemote answers the item fetch with a permanent refusal, like a
// 404 from the catalog endpoint.
type rejectingRemote struct{ offlineRemote }

func (rejectingRemote) FetchItems(ctx context.Context, vendorID string) ([]models.Item, error) {
	return nil, fmt.Errorf("%w: status 404 fetching items for vendor %s", remote.ErrRejected, vendorID)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database.InitDB(filepath.Join(t.TempDir(), "handlers_test.db"))
	db := database.DB
	t.Cleanup(func() { db.Close() })

	auth, err := security.NewAuthService("test-secret-key-of-sufficient-length", "1234")
	require.NoError(t, err)

	env := &testEnv{
		auth:    auth,
		ledger:  ledger.New(db),
		catalog: catalog.NewService(db, offlineRemote{}, time.Minute),
		cart:    cart.New(),
	}
	env.checkout = services.NewCheckoutService(env.ledger, "demo-vendor", "kasse-1", "Kasse 1")
	require.NoError(t, env.catalog.Seed("demo-vendor"))
	return env
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	token, err := e.auth.GenerateToken("kasse-1")
	require.NoError(t, err)
	return token
}

func TestAdminLogin(t *testing.T) {
	env := newTestEnv(t)
	h := NewAdminHandler(env.auth, "kasse-1")

	t.Run("correct pin yields token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/login",
			bytes.NewBufferString(`{"pin":"1234"}`))
		rr := httptest.NewRecorder()
		h.HandleAdminLogin(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp["token"])
	})

	t.Run("wrong pin is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/login",
			bytes.NewBufferString(`{"pin":"0000"}`))
		rr := httptest.NewRecorder()
		h.HandleAdminLogin(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestAdminMiddlewareGatesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	protected := AdminMiddleware(env.auth)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/reports/items", nil)
	rr := httptest.NewRecorder()
	protected(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/reports/items", nil)
	req.Header.Set("Authorization", "Bearer "+env.adminToken(t))
	rr = httptest.NewRecorder()
	protected(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCartFlowThroughHandlers(t *testing.T) {
	env := newTestEnv(t)
	synced := 0
	h := NewCartHandler(env.cart, env.catalog, env.checkout, "demo-vendor", func() { synced++ })

	addItem := func(itemID string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"itemId": itemID})
		req := httptest.NewRequest(http.MethodPost, "/api/cart/items", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		h.HandleAddItem(rr, req)
		return rr
	}

	// Two Cola, one Bratwurst from the seeded demo catalog.
	require.Equal(t, http.StatusOK, addItem("1").Code)
	require.Equal(t, http.StatusOK, addItem("1").Code)
	rr := addItem("6")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp cartResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.ItemCount)
	// 2x (3.50+0.25) + 3.50 = 11.00 gross, fee on 10.50 merchandise value.
	assert.Equal(t, 11.00, resp.GrossTotal)
	assert.Equal(t, 0.11, resp.Fee)

	// Unknown item is refused.
	assert.Equal(t, http.StatusNotFound, addItem("999").Code)

	// Checkout records the sale, clears the cart and nudges the sync engine.
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
	checkoutRR := httptest.NewRecorder()
	h.HandleCheckout(checkoutRR, req)
	require.Equal(t, http.StatusCreated, checkoutRR.Code)
	assert.Equal(t, 1, synced)

	var sale models.Sale
	require.NoError(t, json.Unmarshal(checkoutRR.Body.Bytes(), &sale))
	assert.NotZero(t, sale.LocalID)
	assert.False(t, sale.Synchronized)

	// The cart is empty again; a second checkout has nothing to sell.
	checkoutRR = httptest.NewRecorder()
	h.HandleCheckout(checkoutRR, httptest.NewRequest(http.MethodPost, "/api/checkout", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, checkoutRR.Code)
	assert.Equal(t, 1, synced)
}

func TestDailyTotalsFeeIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	h := NewReportHandler(env.ledger, "demo-vendor")

	_, err := env.ledger.Record(&models.Sale{
		VendorID:   "demo-vendor",
		RegisterID: "kasse-1",
		Operator:   "Kasse 1",
		Lines:      []models.SaleLine{{ItemID: "1", Name: "Cola 0,5L", Price: 10.00, Quantity: 1}},
		GrossTotal: 10.00,
		Fee:        0.10,
		CreatedAt:  time.Now(),
	})
	require.NoError(t, err)

	get := func(token string) models.DailyTotals {
		req := httptest.NewRequest(http.MethodGet, "/api/reports/daily", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		WithOptionalAdmin(env.auth, h.HandleGetDailyTotals)(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		var totals models.DailyTotals
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &totals))
		return totals
	}

	anon := get("")
	assert.Equal(t, 10.00, anon.Revenue)
	assert.Equal(t, 1, anon.Count)
	assert.Equal(t, 0.0, anon.Fee)

	admin := get(env.adminToken(t))
	assert.Equal(t, 0.10, admin.Fee)
}

func TestRefreshCatalogFallsBackToCache(t *testing.T) {
	env := newTestEnv(t)

	refresh := func(t *testing.T, h *CatalogHandler) catalogResponse {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/api/catalog/refresh", nil)
		rr := httptest.NewRecorder()
		h.HandleRefreshCatalog(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		var resp catalogResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		return resp
	}

	t.Run("unreachable remote", func(t *testing.T) {
		resp := refresh(t, NewCatalogHandler(env.catalog, "demo-vendor"))
		assert.True(t, resp.Offline)
		assert.Len(t, resp.Items, 13)
	})

	t.Run("rejecting remote", func(t *testing.T) {
		svc := catalog.NewService(database.DB, rejectingRemote{}, time.Minute)
		resp := refresh(t, NewCatalogHandler(svc, "demo-vendor"))
		assert.True(t, resp.Offline)
		assert.Len(t, resp.Items, 13)
	})
}

func TestUnsyncedStreamEmitsCounts(t *testing.T) {
	env := newTestEnv(t)
	engine := syncengine.NewEngine(env.ledger, offlineRemote{}, nil, time.Hour, time.Second, time.Minute)
	h := NewSyncHandler(engine, env.ledger)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleUnsyncedStream))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if line = strings.TrimSpace(line); line != "" {
				return line
			}
		}
	}

	// The stream opens with the current pending count.
	assert.Equal(t, "data: 0", readEvent())

	_, err = env.ledger.Record(&models.Sale{
		VendorID:   "demo-vendor",
		RegisterID: "kasse-1",
		Operator:   "Kasse 1",
		Lines:      []models.SaleLine{{ItemID: "1", Name: "Cola 0,5L", Price: 3.50, Quantity: 1}},
		GrossTotal: 3.50,
		Fee:        0.04,
		CreatedAt:  time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "data: 1", readEvent())
}

func TestDailyTotalsRejectsMalformedDay(t *testing.T) {
	env := newTestEnv(t)
	h := NewReportHandler(env.ledger, "demo-vendor")

	req := httptest.NewRequest(http.MethodGet, "/api/reports/daily?day=30.08.2026", nil)
	rr := httptest.NewRecorder()
	h.HandleGetDailyTotals(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
