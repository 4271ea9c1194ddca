package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prescripto/clinic-console/internal/api"
	"github.com/prescripto/clinic-console/internal/notify"
)

type fakeBackend struct {
	mu         sync.Mutex
	orders     []api.Order
	rejectWith string
	calls      map[string]int
	server     *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	f := &fakeBackend{calls: map[string]int{}}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[r.URL.Path]++

	if f.rejectWith != "" {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": f.rejectWith})
		return
	}

	resp := map[string]any{"success": true}
	switch r.URL.Path {
	case "/api/orders":
		resp["orders"] = f.orders
	case "/api/orders/update-status":
		var body struct {
			OrderID string          `json:"orderId"`
			Status  api.OrderStatus `json:"status"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		for i := range f.orders {
			if f.orders[i].ID == body.OrderID {
				f.orders[i].Status = body.Status
			}
		}
	default:
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "not found"})
		return
	}
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeBackend) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func newTestStore(t *testing.T, f *fakeBackend) (*Store, *notify.Recorder) {
	t.Helper()
	rec := notify.NewRecorder(0)
	store := NewStore(api.NewClient(f.server.URL), rec, nil, nil)
	t.Cleanup(store.Close)
	return store, rec
}

func TestFetchOrdersReplacesWholesale(t *testing.T) {
	f := newFakeBackend(t)
	f.orders = []api.Order{
		{ID: "o1", Status: api.OrderProcessing},
		{ID: "o2", Status: api.OrderShipped},
	}
	store, _ := newTestStore(t, f)

	store.FetchOrders(context.Background())
	require.Len(t, store.Orders(), 2)

	f.mu.Lock()
	f.orders = f.orders[:1]
	f.mu.Unlock()

	store.FetchOrders(context.Background())
	assert.Len(t, store.Orders(), 1, "stale entries do not survive a refetch")
}

func TestFetchOrdersFailureKeepsPriorList(t *testing.T) {
	f := newFakeBackend(t)
	f.orders = []api.Order{{ID: "o1", Status: api.OrderProcessing}}
	store, rec := newTestStore(t, f)
	store.FetchOrders(context.Background())

	f.mu.Lock()
	f.rejectWith = "orders unavailable"
	f.mu.Unlock()

	store.FetchOrders(context.Background())

	assert.Len(t, store.Orders(), 1)
	require.Len(t, rec.Notifications(), 1)
	assert.Contains(t, rec.Notifications()[0].Message, "orders unavailable")
}

func TestUpdateStatusPatchesLocally(t *testing.T) {
	f := newFakeBackend(t)
	f.orders = []api.Order{{ID: "o1", Status: api.OrderProcessing}}
	store, rec := newTestStore(t, f)
	store.FetchOrders(context.Background())

	fetchesBefore := f.callCount("/api/orders")
	store.UpdateStatus(context.Background(), "o1", api.OrderShipped)

	assert.Equal(t, api.OrderShipped, store.Orders()[0].Status)
	assert.Equal(t, fetchesBefore, f.callCount("/api/orders"), "optimistic patch, no refetch")
	last := rec.Notifications()[len(rec.Notifications())-1]
	assert.Equal(t, notify.LevelSuccess, last.Level)
}

func TestUpdateStatusRejectsInvalidState(t *testing.T) {
	f := newFakeBackend(t)
	f.orders = []api.Order{{ID: "o1", Status: api.OrderProcessing}}
	store, rec := newTestStore(t, f)
	store.FetchOrders(context.Background())

	store.UpdateStatus(context.Background(), "o1", api.OrderStatus("teleported"))

	assert.Equal(t, 0, f.callCount("/api/orders/update-status"), "validation failure sends nothing")
	assert.Equal(t, api.OrderProcessing, store.Orders()[0].Status)
	require.Len(t, rec.Notifications(), 1)
	assert.Equal(t, notify.LevelError, rec.Notifications()[0].Level)
}

func TestUpdateStatusSameStateIsNoOp(t *testing.T) {
	f := newFakeBackend(t)
	f.orders = []api.Order{{ID: "o1", Status: api.OrderShipped}}
	store, rec := newTestStore(t, f)
	store.FetchOrders(context.Background())

	store.UpdateStatus(context.Background(), "o1", api.OrderShipped)

	assert.Equal(t, 0, f.callCount("/api/orders/update-status"))
	assert.Empty(t, rec.Notifications())
}

func TestUpdateStatusFailureLeavesStateUntouched(t *testing.T) {
	f := newFakeBackend(t)
	f.orders = []api.Order{{ID: "o1", Status: api.OrderProcessing}}
	store, rec := newTestStore(t, f)
	store.FetchOrders(context.Background())

	f.mu.Lock()
	f.rejectWith = "order locked"
	f.mu.Unlock()

	store.UpdateStatus(context.Background(), "o1", api.OrderDelivered)

	assert.Equal(t, api.OrderProcessing, store.Orders()[0].Status)
	require.Len(t, rec.Notifications(), 1)
	assert.Contains(t, rec.Notifications()[0].Message, "order locked")
}

func TestFilterByStatus(t *testing.T) {
	f := newFakeBackend(t)
	f.orders = []api.Order{
		{ID: "o1", Status: api.OrderProcessing},
		{ID: "o2", Status: api.OrderDelivered},
		{ID: "o3", Status: api.OrderDelivered},
	}
	store, _ := newTestStore(t, f)
	store.FetchOrders(context.Background())

	delivered := store.FilterByStatus("delivered")
	require.Len(t, delivered, 2)
	for _, o := range delivered {
		assert.Equal(t, api.OrderDelivered, o.Status)
	}

	assert.Len(t, store.FilterByStatus("all"), 3)
	assert.Len(t, store.FilterByStatus(""), 3)
	assert.Empty(t, store.FilterByStatus("cancelled"))
}
