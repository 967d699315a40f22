package httpx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"teashop/internal/orders"
)

func newTestServer(t *testing.T) (*httptest.Server, *orders.MemStore) {
	t.Helper()
	store := orders.NewMemStore()
	store.AddAddress(orders.Address{ID: 1, UserID: 7, ReceiverName: "Ming Li", ReceiverPhone: "13800000000",
		Province: "Fujian", City: "Xiamen", District: "Siming", Detail: "1 Tea St"})
	store.AddProduct(orders.Product{ID: 101, Name: "Tieguanyin 250g",
		Price: decimal.RequireFromString("10.00"), Stock: 5})

	eng := orders.NewEngine(store, zap.NewNop())
	router := NewRouter()
	h := &OrdersHandler{Engine: eng, Log: zap.NewNop()}
	h.Register(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, userID, role string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set(headerUserID, userID)
	}
	if role != "" {
		req.Header.Set(headerRole, role)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeOrder(t *testing.T, resp *http.Response) orders.Order {
	t.Helper()
	var o orders.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&o))
	return o
}

func checkoutBody(qty int) map[string]any {
	return map[string]any{
		"address_id": 1,
		"items":      []map[string]any{{"product_id": 101, "quantity": qty}},
	}
}

func TestCheckoutEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/orders", "7", "", checkoutBody(2))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	o := decodeOrder(t, resp)
	require.Equal(t, orders.StatusPending, o.Status)
	require.True(t, o.TotalAmount.Equal(decimal.RequireFromString("20.00")))
	require.Len(t, o.Items, 1)
}

func TestCheckoutRequiresIdentity(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/orders", "", "", checkoutBody(1))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name     string
		body     map[string]any
		wantHTTP int
		wantCode string
	}{
		{"empty cart", map[string]any{"address_id": 1}, http.StatusBadRequest, "EMPTY_CART"},
		{"bad quantity", checkoutBody(100), http.StatusBadRequest, "INVALID_QUANTITY"},
		{"oversell", checkoutBody(6), http.StatusConflict, "INSUFFICIENT_STOCK"},
		{"missing address", map[string]any{
			"address_id": 42,
			"items":      []map[string]any{{"product_id": 101, "quantity": 1}},
		}, http.StatusNotFound, "ADDRESS_NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, srv.URL+"/orders", "7", "", tc.body)
			require.Equal(t, tc.wantHTTP, resp.StatusCode)
			var e errResp
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
			require.Equal(t, tc.wantCode, e.Code)
		})
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	created := decodeOrder(t, doJSON(t, http.MethodPost, srv.URL+"/orders", "7", "", checkoutBody(1)))
	base := fmt.Sprintf("%s/orders/%d", srv.URL, created.ID)

	// Stranger cannot pay.
	resp := doJSON(t, http.MethodPost, base+"/pay", "8", "", map[string]any{"payment_method": "alipay"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, base+"/pay", "7", "", map[string]any{"payment_method": "alipay"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, orders.StatusPaid, decodeOrder(t, resp).Status)

	// Ship requires the operator role.
	shipBody := map[string]any{"carrier": "SF Express", "tracking_no": "SF1"}
	resp = doJSON(t, http.MethodPost, base+"/ship", "7", "", shipBody)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, base+"/ship", "9", "admin", shipBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, base+"/complete", "7", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, orders.StatusCompleted, decodeOrder(t, resp).Status)

	// Terminal: cancel now maps to a state conflict.
	resp = doJSON(t, http.MethodPost, base+"/cancel", "7", "", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetAndStatusEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	created := decodeOrder(t, doJSON(t, http.MethodPost, srv.URL+"/orders", "7", "", checkoutBody(1)))
	base := fmt.Sprintf("%s/orders/%d", srv.URL, created.ID)

	resp := doJSON(t, http.MethodGet, base, "7", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Another buyer cannot read it, an operator can.
	resp = doJSON(t, http.MethodGet, base, "8", "", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = doJSON(t, http.MethodGet, base, "8", "admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, base+"/status", "7", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	require.Equal(t, string(orders.StatusPending), st["status"])

	resp = doJSON(t, http.MethodGet, srv.URL+"/orders/9999", "7", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// The status poll follows the same visibility rule as the full read: the
// owner or an operator, never an arbitrary authenticated buyer.
func TestStatusEndpointVisibility(t *testing.T) {
	srv, _ := newTestServer(t)

	created := decodeOrder(t, doJSON(t, http.MethodPost, srv.URL+"/orders", "7", "", checkoutBody(1)))
	url := fmt.Sprintf("%s/orders/%d/status", srv.URL, created.ID)

	resp := doJSON(t, http.MethodGet, url, "", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, url, "8", "", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	var e errResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	require.Equal(t, "FORBIDDEN", e.Code)

	resp = doJSON(t, http.MethodGet, url, "8", "admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		resp := doJSON(t, http.MethodPost, srv.URL+"/orders", "7", "", checkoutBody(1))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/orders?page=1&size=2", "7", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page orders.OrderPage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.EqualValues(t, 3, page.Total)
	require.Len(t, page.Orders, 2)

	resp = doJSON(t, http.MethodGet, srv.URL+"/orders?status=PENDING", "7", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.EqualValues(t, 3, page.Total)
}
