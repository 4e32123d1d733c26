package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/xtrntr/bazaar/internal/auth"
	"github.com/xtrntr/bazaar/internal/bazaar"
	"github.com/xtrntr/bazaar/internal/events"
	"github.com/xtrntr/bazaar/internal/models"
	"github.com/xtrntr/bazaar/internal/observability"
	"github.com/xtrntr/bazaar/internal/quotes"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Bazaar      *bazaar.Bazaar
	AuthService *auth.AuthService
	Hub         *events.Hub
	Metrics     *observability.Metrics
	Log         logrus.FieldLogger
}

// NewHandler creates a new handler
func NewHandler(bz *bazaar.Bazaar, authService *auth.AuthService, hub *events.Hub, metrics *observability.Metrics, log logrus.FieldLogger) *Handler {
	return &Handler{Bazaar: bz, AuthService: authService, Hub: hub, Metrics: metrics, Log: log}
}

// TraderResponse is the wire form of a trader profile
type TraderResponse struct {
	Index    models.TraderIndex `json:"index"`
	Account  models.AccountID   `json:"account"`
	Name     string             `json:"name"`
	Headline string             `json:"headline"`
	Country  uint8              `json:"country"`
	Method   string             `json:"method"`
	AskPrice models.Amount      `json:"ask_price"`
	AskLimit models.Amount      `json:"ask_limit"`
	BidPrice models.Amount      `json:"bid_price"`
	BidLimit models.Amount      `json:"bid_limit"`
	Created  models.BlockNumber `json:"created"`
}

func traderResponse(p *models.TraderProfile) TraderResponse {
	return TraderResponse{
		Index:    p.Index,
		Account:  p.Account,
		Name:     string(p.Name),
		Headline: string(p.Headline),
		Country:  p.Country,
		Method:   string(p.Method),
		AskPrice: p.AskPrice,
		AskLimit: p.AskLimit,
		BidPrice: p.BidPrice,
		BidLimit: p.BidLimit,
		Created:  p.Created,
	}
}

// TradeResponse is the wire form of a trade with its derived flags
type TradeResponse struct {
	ID        models.TradeIndex  `json:"id"`
	Price     models.Amount      `json:"price"`
	Amount    models.Amount      `json:"amount"`
	Buyer     models.AccountID   `json:"buyer"`
	Seller    models.TraderIndex `json:"seller"`
	State     models.TradeState  `json:"state"`
	Created   models.BlockNumber `json:"created"`
	Initiated bool               `json:"initiated"`
	Escrowed  bool               `json:"escrowed"`
	Received  bool               `json:"received"`
}

func tradeResponse(t *models.Trade) TradeResponse {
	return TradeResponse{
		ID:        t.ID,
		Price:     t.Price,
		Amount:    t.Amount,
		Buyer:     t.Buyer,
		Seller:    t.Seller,
		State:     t.State,
		Created:   t.Created,
		Initiated: t.Initiated(),
		Escrowed:  t.Escrowed(),
		Received:  t.Received(),
	}
}

// BalanceResponse reports the free balance of an account
type BalanceResponse struct {
	Account models.AccountID `json:"account"`
	Free    models.Amount    `json:"free"`
}

// Register handles login registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "Username and password required")
		return
	}

	cred, err := h.AuthService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeOpError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"username": cred.Username,
		"account":  cred.Account,
	})
}

// Login handles login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "Invalid request body")
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// CreateTrader registers the caller as a trader
func (h *Handler) CreateTrader(w http.ResponseWriter, r *http.Request) {
	caller, ok := AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Unauthorized")
		return
	}

	var req struct {
		Name     string        `json:"name"`
		Headline string        `json:"headline"`
		Country  uint8         `json:"country"`
		Method   string        `json:"method"`
		AskPrice models.Amount `json:"ask_price"`
		AskLimit models.Amount `json:"ask_limit"`
		BidPrice models.Amount `json:"bid_price"`
		BidLimit models.Amount `json:"bid_limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "Invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "Name required")
		return
	}

	idx, err := h.Bazaar.Register(r.Context(), caller, bazaar.ProfileFields{
		Name:     []byte(req.Name),
		Headline: []byte(req.Headline),
		Country:  req.Country,
		Method:   []byte(req.Method),
		AskPrice: req.AskPrice,
		AskLimit: req.AskLimit,
		BidPrice: req.BidPrice,
		BidLimit: req.BidLimit,
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"index": idx})
}

// GetTrader returns the profile of the account in the URL
func (h *Handler) GetTrader(w http.ResponseWriter, r *http.Request) {
	account, err := models.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "Invalid account")
		return
	}
	p, err := h.Bazaar.Lookup(r.Context(), account)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, traderResponse(p))
}

// ListTraders returns every registered trader
func (h *Handler) ListTraders(w http.ResponseWriter, r *http.Request) {
	traders, err := h.Bazaar.List(r.Context())
	if err != nil {
		writeOpError(w, err)
		return
	}
	out := make([]TraderResponse, 0, len(traders))
	for _, p := range traders {
		out = append(out, traderResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// UpdateProfile replaces the caller's headline and payment method
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Unauthorized")
		return
	}
	var req struct {
		Headline string `json:"headline"`
		Method   string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "Invalid request body")
		return
	}

	if err := h.Bazaar.UpdateProfile(r.Context(), caller, []byte(req.Headline), []byte(req.Method)); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Profile updated"})
}

// UpdateLimits replaces the caller's pricing fields
func (h *Handler) UpdateLimits(w http.ResponseWriter, r *http.Request) {
	caller, ok := AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Unauthorized")
		return
	}
	var req bazaar.Limits
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "Invalid request body")
		return
	}

	if err := h.Bazaar.UpdateLimits(r.Context(), caller, req); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Limits updated"})
}

// InitiateBuy opens a trade against a seller
func (h *Handler) InitiateBuy(w http.ResponseWriter, r *http.Request) {
	caller, ok := AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Unauthorized")
		return
	}
	var req struct {
		Price  models.Amount      `json:"price"`
		Amount models.Amount      `json:"amount"`
		Seller models.TraderIndex `json:"seller"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "Invalid request body")
		return
	}

	id, err := h.Bazaar.InitiateBuy(r.Context(), caller, req.Price, req.Amount, req.Seller)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id})
}

// ListTrades returns the caller's trades, as buyer by default or as seller with ?role=seller
func (h *Handler) ListTrades(w http.ResponseWriter, r *http.Request) {
	caller, ok := AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Unauthorized")
		return
	}

	var (
		trades []*models.Trade
		err    error
	)
	switch r.URL.Query().Get("role") {
	case "", "buyer":
		trades, err = h.Bazaar.TradesForBuyer(r.Context(), caller)
	case "seller":
		var idx models.TraderIndex
		if idx, err = h.Bazaar.IndexOf(r.Context(), caller); err == nil {
			trades, err = h.Bazaar.TradesForSeller(r.Context(), idx)
		}
	default:
		writeError(w, http.StatusBadRequest, "BadRequest", "Role must be 'buyer' or 'seller'")
		return
	}
	if err != nil {
		writeOpError(w, err)
		return
	}

	if s := r.URL.Query().Get("state"); s != "" {
		state, err := models.ParseTradeState(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BadRequest", "Invalid state")
			return
		}
		filtered := trades[:0]
		for _, t := range trades {
			if t.State == state {
				filtered = append(filtered, t)
			}
		}
		trades = filtered
	}
	out := make([]TradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetTrade returns one trade
func (h *Handler) GetTrade(w http.ResponseWriter, r *http.Request) {
	id, ok := tradeID(w, r)
	if !ok {
		return
	}
	trade, err := h.Bazaar.Trade(r.Context(), id)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tradeResponse(trade))
}

// EscrowCoin funds the trade's escrow from the seller
func (h *Handler) EscrowCoin(w http.ResponseWriter, r *http.Request) {
	h.tradeOp(w, r, "Coin escrowed", h.Bazaar.EscrowCoin)
}

// CancelEscrow refunds the seller after the hold
func (h *Handler) CancelEscrow(w http.ResponseWriter, r *http.Request) {
	h.tradeOp(w, r, "Escrow cancelled", h.Bazaar.CancelEscrow)
}

// ConfirmReceived releases escrow to the buyer
func (h *Handler) ConfirmReceived(w http.ResponseWriter, r *http.Request) {
	h.tradeOp(w, r, "Receipt confirmed", h.Bazaar.ConfirmReceived)
}

// OpenDispute is reserved
func (h *Handler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	h.tradeOp(w, r, "Dispute opened", h.Bazaar.OpenDispute)
}

// CloseDispute is reserved
func (h *Handler) CloseDispute(w http.ResponseWriter, r *http.Request) {
	caller, ok := AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Unauthorized")
		return
	}
	id, ok := tradeID(w, r)
	if !ok {
		return
	}
	var req struct {
		BuyerPortion  uint8 `json:"buyer_portion"`
		SellerPortion uint8 `json:"seller_portion"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "Invalid request body")
		return
	}

	if err := h.Bazaar.CloseDispute(r.Context(), caller, id, req.BuyerPortion, req.SellerPortion); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Dispute closed"})
}

// GetBalance returns the caller's free balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	caller, ok := AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Unauthorized")
		return
	}
	free, err := h.Bazaar.Balance(r.Context(), caller)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Account: caller, Free: free})
}

// GetEscrow returns the escrow account and its balance
func (h *Handler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	esc := h.Bazaar.Escrow()
	free, err := esc.FreeBalance(r.Context())
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Account: esc.Address(), Free: free})
}

// GetAudit compares escrowed trades with the escrow balance
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.Bazaar.Audit(r.Context())
	if err != nil && report == nil {
		writeOpError(w, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
}

// GetQuotes returns the advertised quote board
func (h *Handler) GetQuotes(w http.ResponseWriter, r *http.Request) {
	var f quotes.Filter
	if c := r.URL.Query().Get("country"); c != "" {
		n, err := strconv.ParseUint(c, 10, 8)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BadRequest", "Invalid country")
			return
		}
		f = quotes.InCountry(uint8(n))
	}
	f.Method = r.URL.Query().Get("method")

	traders, err := h.Bazaar.List(r.Context())
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quotes.Build(traders, f))
}

type tradeFunc func(ctx context.Context, caller models.AccountID, id models.TradeIndex) error

func (h *Handler) tradeOp(w http.ResponseWriter, r *http.Request, message string, op tradeFunc) {
	caller, ok := AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Unauthorized")
		return
	}
	id, ok := tradeID(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), caller, id); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

func tradeID(w http.ResponseWriter, r *http.Request) (models.TradeIndex, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "Invalid trade ID")
		return 0, false
	}
	return models.TradeIndex(id), true
}
