package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/smalcash/backend/src/logger"
	"github.com/smalcash/backend/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func testSale() *models.Sale {
	return &models.Sale{
		LocalID:    1,
		UUID:       "11111111-2222-3333-4444-555555555555",
		VendorID:   "demo-vendor",
		RegisterID: "kasse-1",
		Operator:   "Kasse 1",
		Lines: []models.SaleLine{
			{ItemID: "1", Name: "Cola 0,5L", Price: 3.50, Deposit: 0.25, Quantity: 2},
		},
		GrossTotal: 7.50,
		Fee:        0.07,
		CreatedAt:  time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC),
	}
}

func TestPushSaleCarriesIdempotencyKey(t *testing.T) {
	var gotHeader string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/sales", r.URL.Path)
		gotHeader = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "remote-abc"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 2*time.Second)
	sale := testSale()

	remoteID, err := client.PushSale(context.Background(), sale)
	require.NoError(t, err)
	assert.Equal(t, "remote-abc", remoteID)
	assert.Equal(t, sale.UUID, gotHeader)
	assert.Equal(t, sale.UUID, gotBody["idempotencyKey"])
	assert.Equal(t, "2026-08-30", gotBody["day"])
}

func TestPushSaleServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 2*time.Second)
	_, err := client.PushSale(context.Background(), testSale())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPushSaleThrottlingIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 2*time.Second)
	_, err := client.PushSale(context.Background(), testSale())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPushSaleBadRequestIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid record", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 2*time.Second)
	_, err := client.PushSale(context.Background(), testSale())
	assert.ErrorIs(t, err, ErrRejected)
}

func TestPushSaleConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	client := NewClient(srv.URL, 500*time.Millisecond)
	_, err := client.PushSale(context.Background(), testSale())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFetchItemsRequestsActiveOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/vendors/demo-vendor/items", r.URL.Path)
		require.Equal(t, "true", r.URL.Query().Get("active"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]models.Item{
			{ID: "1", Name: "Cola 0,5L", Price: 3.50, Deposit: 0.25, Active: true},
			{ID: "13", Name: "Pfand Rückgabe", Price: -0.25, Active: true},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 2*time.Second)
	items, err := client.FetchItems(context.Background(), "demo-vendor")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "demo-vendor", items[0].VendorID)
	assert.Equal(t, -0.25, items[1].Price)
}

func TestFetchVendorAndRegisters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/vendors/demo-vendor":
			json.NewEncoder(w).Encode(models.Vendor{ID: "demo-vendor", Name: "Vereinsfest e.V.", Active: true})
		case "/api/v1/vendors/demo-vendor/registers":
			json.NewEncoder(w).Encode([]models.Register{
				{ID: "kasse-1", VendorID: "demo-vendor", Name: "Kasse 1", Active: true},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 2*time.Second)

	vendor, err := client.FetchVendor(context.Background(), "demo-vendor")
	require.NoError(t, err)
	assert.Equal(t, "Vereinsfest e.V.", vendor.Name)

	registers, err := client.FetchRegisters(context.Background(), "demo-vendor")
	require.NoError(t, err)
	require.Len(t, registers, 1)
	assert.Equal(t, "kasse-1", registers[0].ID)
}
