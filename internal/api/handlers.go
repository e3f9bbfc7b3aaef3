package api

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"goldbroker/internal/apperr"
	"goldbroker/internal/config"
	"goldbroker/internal/engine"
	"goldbroker/internal/ledger"
	"goldbroker/internal/marketdata"
	"goldbroker/internal/storage"
	"goldbroker/internal/webhook"
	"goldbroker/pkg/types"
)

// Handlers holds all HTTP handler dependencies: the admin REST surface over
// the trading engine and storage, the webhook dispatcher, and the
// dashboard snapshot/websocket endpoints.
//
// Grounded on the teacher's internal/api/handlers.go: one Handlers struct
// built once in NewHandlers and wired into a ServeMux by the caller, with
// JSON encode/decode done inline per handler rather than through a
// framework — kept verbatim as the shape, generalized from a read-only
// market dashboard to a read/write admin surface plus the chat webhook.
type Handlers struct {
	db         *storage.DB
	eng        *engine.Engine
	market     *marketdata.Service
	dispatcher *webhook.Dispatcher
	cfg        config.Config
	hub        *Hub
	logger     *slog.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(db *storage.DB, eng *engine.Engine, market *marketdata.Service, dispatcher *webhook.Dispatcher, cfg config.Config, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{db: db, eng: eng, market: market, dispatcher: dispatcher, cfg: cfg, hub: hub, logger: logger.With("component", "api-handlers")}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleSnapshot returns the current dashboard state for the admin named by
// the ?adminId= query parameter.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	adminID, err := parseUintParam(r.URL.Query().Get("adminId"))
	if err != nil {
		writeError(w, apperr.Validationf("adminId query parameter is required"))
		return
	}

	snapshot, err := BuildSnapshot(r.Context(), h.db, h.market, adminID, h.cfg)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		h.logger.Error("failed to encode snapshot", "error", err)
	}
}

// HandleWebSocket upgrades the connection and registers a dashboard client
// scoped to ?adminId=, pushing an initial snapshot once registered.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	adminID, err := parseUintParam(r.URL.Query().Get("adminId"))
	if err != nil {
		writeError(w, apperr.Validationf("invalid adminId"))
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return isOriginAllowed(req.Header.Get("Origin"), h.cfg.Admin.AllowedOrigins, req.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := NewClient(h.hub, conn, adminID)

	snapshot, err := BuildSnapshot(r.Context(), h.db, h.market, adminID, h.cfg)
	if err != nil {
		h.logger.Warn("failed to build initial snapshot", "error", err)
		return
	}

	data, err := json.Marshal(DashboardEvent{Type: "snapshot", Timestamp: time.Now(), AdminID: adminID, Data: snapshot})
	if err != nil {
		h.logger.Error("failed to marshal initial snapshot", "error", err)
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.Warn("failed to send initial snapshot to client", "adminId", adminID)
	}
}

// createOrderRequest is the admin create-order payload (spec.md §6).
type createOrderRequest struct {
	UserID         uint             `json:"userId"`
	Symbol         string           `json:"symbol"`
	Type           types.Side       `json:"type"`
	Volume         decimal.Decimal  `json:"volume"`
	Price          decimal.Decimal  `json:"price"`
	RequiredMargin *decimal.Decimal `json:"requiredMargin,omitempty"`
	OpeningDate    *time.Time       `json:"openingDate,omitempty"`
}

// HandleCreateOrder implements POST /api/admin/create-order/{adminId}.
func (h *Handlers) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	adminID, err := parseUintParam(r.PathValue("adminId"))
	if err != nil {
		writeError(w, apperr.Validationf("invalid adminId"))
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validationf("invalid request body: %v", err))
		return
	}

	openingDate := time.Now().UTC()
	if req.OpeningDate != nil {
		openingDate = *req.OpeningDate
	}

	result, err := h.eng.OpenTrade(r.Context(), adminID, req.UserID, engine.OpenTradeRequest{
		Symbol: req.Symbol, Type: req.Type, Volume: req.Volume, Spot: req.Price,
		RequiredMargin: req.RequiredMargin, OpeningDate: openingDate,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.hub.BroadcastEvent(DashboardEvent{Type: "order", Timestamp: time.Now(), AdminID: adminID, AccountID: req.UserID, Data: NewOrderLifecycleEvent(result.Order)})
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": result.Order})
}

// HandleListOrders implements GET /api/admin/order/{adminId}.
func (h *Handlers) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	adminID, err := parseUintParam(r.PathValue("adminId"))
	if err != nil {
		writeError(w, apperr.Validationf("invalid adminId"))
		return
	}

	orders, err := h.db.OrdersByAdmin(r.Context(), adminID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": orders})
}

// updateOrderRequest is the whitelisted PATCH payload (spec.md §6/§4.6).
type updateOrderRequest struct {
	OrderStatus  types.OrderStatus `json:"orderStatus,omitempty"`
	ClosingPrice *decimal.Decimal  `json:"closingPrice,omitempty"`
	ClosingDate  *time.Time        `json:"closingDate,omitempty"`
	Comment      string            `json:"comment,omitempty"`
}

// HandleUpdateOrder implements PATCH /api/admin/order/{adminId}/{orderId}.
func (h *Handlers) HandleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	adminID, err := parseUintParam(r.PathValue("adminId"))
	if err != nil {
		writeError(w, apperr.Validationf("invalid adminId"))
		return
	}
	orderID, err := parseUintParam(r.PathValue("orderId"))
	if err != nil {
		writeError(w, apperr.Validationf("invalid orderId"))
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validationf("invalid request body: %v", err))
		return
	}

	result, err := h.eng.CloseTrade(r.Context(), adminID, orderID, engine.CloseTradeUpdate{
		OrderStatus: req.OrderStatus, ClosingPrice: req.ClosingPrice, ClosingDate: req.ClosingDate, Comment: req.Comment,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.hub.BroadcastEvent(DashboardEvent{Type: "order", Timestamp: time.Now(), AdminID: adminID, AccountID: result.Order.User, Data: NewOrderLifecycleEvent(result.Order)})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": result.Order})
}

// transactionRequest is the deposit/withdrawal payload (spec.md §4.7/§6).
type transactionRequest struct {
	AdminID uint                    `json:"adminId"`
	UserID  uint                    `json:"user"`
	Type    types.TransactionType   `json:"type"`
	Asset   types.Asset             `json:"asset"`
	Amount  decimal.Decimal         `json:"amount"`
}

// HandleTransaction implements POST /api/admin/transaction.
func (h *Handlers) HandleTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validationf("invalid request body: %v", err))
		return
	}

	txn, err := h.eng.CreateTransaction(r.Context(), req.AdminID, req.UserID, req.Type, req.Asset, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": txn})
}

// HandleLedgerReconcile implements GET /api/admin/ledger/{adminId}/reconcile:
// a conservation check across every account the admin owns, for both
// CASH and GOLD assets (spec.md §8's ledger-conservation property).
func (h *Handlers) HandleLedgerReconcile(w http.ResponseWriter, r *http.Request) {
	adminID, err := parseUintParam(r.PathValue("adminId"))
	if err != nil {
		writeError(w, apperr.Validationf("invalid adminId"))
		return
	}

	accounts, err := h.db.AccountsByAdmin(r.Context(), adminID)
	if err != nil {
		writeError(w, err)
		return
	}

	results := make([]ledger.ConservationResult, 0, len(accounts)*2)
	for _, acc := range accounts {
		cashResult, err := ledger.ConservationCheck(r.Context(), h.db, acc.ID, types.AssetCash, acc.CashBalance)
		if err != nil {
			writeError(w, err)
			return
		}
		goldResult, err := ledger.ConservationCheck(r.Context(), h.db, acc.ID, types.AssetGold, acc.MetalWeight)
		if err != nil {
			writeError(w, err)
			return
		}
		results = append(results, cashResult, goldResult)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": results})
}

// HandleWhatsApp implements POST /api/chat/whatsapp: parse the vendor's
// form-encoded payload, hand it to the dispatcher, and return an empty
// TwiML envelope immediately (spec.md §4.9 step 3 — the reply itself is
// sent asynchronously via the messaging vendor's send API, not in this
// response body).
func (h *Handlers) HandleWhatsApp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, apperr.Validationf("invalid form body: %v", err))
		return
	}

	msg := webhook.InboundMessage{
		Body:        r.FormValue("Body"),
		From:        r.FormValue("From"),
		MessageSid:  r.FormValue("MessageSid"),
		ProfileName: r.FormValue("ProfileName"),
	}
	h.dispatcher.HandleInbound(r.Context(), msg)

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`))
}

func parseUintParam(s string) (uint, error) {
	if s == "" {
		return 0, apperr.Validationf("missing id")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, apperr.Validationf("invalid id %q", s)
	}
	return uint(n), nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Unauthorized:
		status = http.StatusUnauthorized
	case apperr.Validation:
		status = http.StatusBadRequest
	case apperr.InsufficientBalance:
		status = http.StatusUnprocessableEntity
	case apperr.Conflict:
		status = http.StatusConflict
	case apperr.Upstream:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

// RequireAdminKey is middleware enforcing the admin API key on every
// request it wraps (spec.md §6's "API key for admin surface").
func RequireAdminKey(apiKey string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Api-Key")
		if got == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				got = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if got == "" || got != apiKey {
			writeError(w, apperr.Unauthorizedf("invalid or missing admin API key"))
			return
		}
		next(w, r)
	}
}

func isOriginAllowed(origin string, allowedOrigins []string, reqHost string) bool {
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	normalized := normalizeOrigin(originURL.Scheme, originURL.Host)
	if normalized == "" {
		return false
	}

	if len(allowedOrigins) > 0 {
		for _, allowed := range allowedOrigins {
			u, err := url.Parse(allowed)
			if err != nil {
				continue
			}
			if normalized == normalizeOrigin(u.Scheme, u.Host) {
				return true
			}
		}
		return false
	}

	host := strings.ToLower(originURL.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	reqHostname := normalizeHost(reqHost)
	return reqHostname != "" && host == reqHostname
}

func normalizeOrigin(scheme, host string) string {
	if scheme == "" || host == "" {
		return ""
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host)
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostport)
}
