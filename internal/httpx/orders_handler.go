package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"teashop/internal/orders"
	"teashop/internal/redisx"
)

// The gateway authenticates requests and forwards the identity in headers;
// this layer trusts them (see the identity service contract).
const (
	headerUserID = "X-User-Id"
	headerRole   = "X-User-Role"
	roleAdmin    = "admin"
)

type OrdersHandler struct {
	Engine *orders.Engine
	Redis  *redis.Client // optional status cache
	Log    *zap.Logger
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.checkout)
	r.Get("/orders", h.list)
	r.Get("/orders/{id}", h.get)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Post("/orders/{id}/pay", h.pay)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/complete", h.complete)
	r.Post("/orders/{id}/ship", h.ship)
	r.Put("/orders/{id}/status", h.forceStatus)
}

type checkoutReq struct {
	AddressID int64             `json:"address_id"`
	Items     []orders.CartItem `json:"items"`
}

type payReq struct {
	PaymentMethod string `json:"payment_method"`
}

type shipReq struct {
	Carrier    string `json:"carrier"`
	TrackingNo string `json:"tracking_no"`
}

type statusReq struct {
	Status string `json:"status"`
}

type errResp struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

var httpStatusByCode = map[string]int{
	"EMPTY_CART":         http.StatusBadRequest,
	"INVALID_QUANTITY":   http.StatusBadRequest,
	"ADDRESS_NOT_FOUND":  http.StatusNotFound,
	"PRODUCT_NOT_FOUND":  http.StatusNotFound,
	"ORDER_NOT_FOUND":    http.StatusNotFound,
	"INSUFFICIENT_STOCK": http.StatusConflict,
	"INVALID_STATE":      http.StatusConflict,
	"ORDER_EXPIRED":      http.StatusConflict,
	"FORBIDDEN":          http.StatusForbidden,
}

func (h *OrdersHandler) writeErr(w http.ResponseWriter, err error) {
	var be *orders.BusinessError
	if errors.As(err, &be) {
		code, ok := httpStatusByCode[be.Code]
		if !ok {
			code = http.StatusBadRequest
		}
		writeJSON(w, code, errResp{Code: be.Code, Message: err.Error()})
		return
	}
	h.Log.Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errResp{Code: "INTERNAL", Message: "internal error"})
}

func userID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get(headerUserID), 10, 64)
	return id, err == nil && id > 0
}

func isAdmin(r *http.Request) bool {
	return r.Header.Get(headerRole) == roleAdmin
}

func orderID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func unauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, errResp{Code: "UNAUTHENTICATED", Message: "missing identity"})
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		unauthorized(w)
		return
	}
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Code: "BAD_JSON", Message: "invalid json"})
		return
	}
	o, err := h.Engine.Checkout(r.Context(), uid, req.AddressID, req.Items)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		unauthorized(w)
		return
	}
	id, err := orderID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Code: "BAD_ID", Message: "invalid order id"})
		return
	}
	o, err := h.Engine.Get(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if o.UserID != uid && !isAdmin(r) {
		h.writeErr(w, orders.ErrNotOwner)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// statusCacheEntry carries the owner so a cache hit can be authorized
// without touching the store.
type statusCacheEntry struct {
	Status orders.Status `json:"status"`
	UserID int64         `json:"user_id"`
}

// getStatus is the hot read: cache first, store on miss. Same visibility
// rule as get: the owner or an operator.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		unauthorized(w)
		return
	}
	id, err := orderID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Code: "BAD_ID", Message: "invalid order id"})
		return
	}
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, id)
		if s, err := h.Redis.Get(r.Context(), key).Result(); err == nil && s != "" {
			var e statusCacheEntry
			if json.Unmarshal([]byte(s), &e) == nil && e.Status != "" {
				if e.UserID != uid && !isAdmin(r) {
					h.writeErr(w, orders.ErrNotOwner)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"status": e.Status})
				return
			}
		}
	}
	o, err := h.Engine.Get(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if o.UserID != uid && !isAdmin(r) {
		h.writeErr(w, orders.ErrNotOwner)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, map[string]any{"status": o.Status})
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		unauthorized(w)
		return
	}
	q := r.URL.Query()
	f := orders.SearchFilter{OrderNo: q.Get("order_no")}
	if v := q.Get("status"); v != "" {
		st, err := orders.ParseStatus(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errResp{Code: "BAD_STATUS", Message: err.Error()})
			return
		}
		f.Status = st
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = t
		}
	}
	page := orders.Page{Number: 1, Size: 20}
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		page.Number = n
	}
	if n, err := strconv.Atoi(q.Get("size")); err == nil && n > 0 && n <= 100 {
		page.Size = n
	}
	res, err := h.Engine.Search(r.Context(), uid, f, page)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) pay(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		unauthorized(w)
		return
	}
	id, err := orderID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Code: "BAD_ID", Message: "invalid order id"})
		return
	}
	var req payReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentMethod == "" {
		writeJSON(w, http.StatusBadRequest, errResp{Code: "BAD_JSON", Message: "payment_method required"})
		return
	}
	o, err := h.Engine.Pay(r.Context(), uid, id, req.PaymentMethod)
	if err != nil {
		// The auto-cancel already committed; refresh the cache before
		// reporting so the client sees CANCELLED on the next poll.
		if errors.Is(err, orders.ErrOrderExpired) {
			if cancelled, gerr := h.Engine.Get(r.Context(), id); gerr == nil {
				h.cacheStatus(r.Context(), cancelled)
			}
		}
		h.writeErr(w, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		unauthorized(w)
		return
	}
	id, err := orderID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Code: "BAD_ID", Message: "invalid order id"})
		return
	}
	o, err := h.Engine.Cancel(r.Context(), uid, id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) complete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		unauthorized(w)
		return
	}
	id, err := orderID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Code: "BAD_ID", Message: "invalid order id"})
		return
	}
	o, err := h.Engine.Complete(r.Context(), uid, id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) ship(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeJSON(w, http.StatusForbidden, errResp{Code: "FORBIDDEN", Message: "operator role required"})
		return
	}
	id, err := orderID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Code: "BAD_ID", Message: "invalid order id"})
		return
	}
	var req shipReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Carrier == "" || req.TrackingNo == "" {
		writeJSON(w, http.StatusBadRequest, errResp{Code: "BAD_JSON", Message: "carrier and tracking_no required"})
		return
	}
	o, err := h.Engine.Ship(r.Context(), id, req.Carrier, req.TrackingNo)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) forceStatus(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeJSON(w, http.StatusForbidden, errResp{Code: "FORBIDDEN", Message: "operator role required"})
		return
	}
	id, err := orderID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Code: "BAD_ID", Message: "invalid order id"})
		return
	}
	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Code: "BAD_JSON", Message: "invalid json"})
		return
	}
	st, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Code: "BAD_STATUS", Message: err.Error()})
		return
	}
	o, err := h.Engine.ForceStatus(r.Context(), id, st)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o *orders.Order) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	body, _ := json.Marshal(statusCacheEntry{Status: o.Status, UserID: o.UserID})
	if err := h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err(); err != nil {
		h.Log.Warn("status cache write failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}
