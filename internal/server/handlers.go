package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/curve"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/ledger"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/storage"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/stream"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/transfer"
)

// TradeHistory serves past trades of one pool.
type TradeHistory interface {
	RecentTrades(ctx context.Context, mint string, limit int) ([]*models.TradeEvent, error)
}

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Ledger  *ledger.Ledger
	Store   storage.PoolStore
	Book    *transfer.Book // dev faucet; nil unless the book gateway is in use
	History TradeHistory   // optional
	Feed    *stream.Hub    // optional live trade stream
	DevMode bool
	Logger  *logrus.Logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// poolErr renders an error returned by the ledger.
func (h *Handlers) poolErr(c echo.Context, err error) error {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.Logger.WithError(err).WithField("path", c.Path()).Error("Pool request failed")
	}
	resp := ErrorResponse{Error: err.Error(), Code: code, Reason: models.ErrorCode(err)}
	if code >= http.StatusInternalServerError && !h.DevMode {
		resp.Error = http.StatusText(code)
	}
	return c.JSON(code, resp)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

func parseKey(raw string) (solana.PublicKey, bool) {
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(raw))
	if err != nil || pk.IsZero() {
		return solana.PublicKey{}, false
	}
	return pk, true
}

// mintParam parses the :mint path parameter.
func (h *Handlers) mintParam(c echo.Context) (solana.PublicKey, bool) {
	return parseKey(c.Param("mint"))
}

func (h *Handlers) invalidMint(c echo.Context) error {
	return h.err(c, http.StatusBadRequest, "invalid mint", map[string]any{"mint": "must be a base58 public key"})
}

// Health pings the pool store.
func (h *Handlers) Health(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		h.Logger.WithError(err).Warn("Store ping failed")
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{OK: false})
	}
	return c.JSON(http.StatusOK, HealthResponse{OK: true})
}

func (h *Handlers) ListPools(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	pools, err := h.Ledger.Pools(ctx)
	if err != nil {
		return h.poolErr(c, err)
	}
	items := make([]models.PoolView, 0, len(pools))
	for _, p := range pools {
		items = append(items, p.View())
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) GetPool(c echo.Context) error {
	mint, ok := h.mintParam(c)
	if !ok {
		return h.invalidMint(c)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	p, err := h.Ledger.Pool(ctx, mint)
	if err != nil {
		return h.poolErr(c, err)
	}
	return c.JSON(http.StatusOK, p.View())
}

func (h *Handlers) InitializePool(c echo.Context) error {
	var req InitializePoolRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	mint, ok := parseKey(req.Mint)
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid mint", map[string]any{"mint": "must be a base58 public key"})
	}
	depositor, ok := parseKey(req.Depositor)
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid depositor", map[string]any{"depositor": "must be a base58 public key"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	handle, err := h.Ledger.Initialize(ctx, ledger.InitializeRequest{
		Mint:        mint,
		Depositor:   depositor,
		AmountBase:  req.AmountBase,
		AmountQuote: req.AmountQuote,
	})
	if err != nil {
		return h.poolErr(c, err)
	}
	return c.JSON(http.StatusCreated, handle)
}

func (h *Handlers) Buy(c echo.Context) error {
	mint, ok := h.mintParam(c)
	if !ok {
		return h.invalidMint(c)
	}
	var req BuyRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	trader, ok := parseKey(req.Trader)
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid trader", map[string]any{"trader": "must be a base58 public key"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	maxIn := req.MaxBaseIn
	if maxIn == 0 && req.SlippageBps > 0 {
		q, err := h.Ledger.QuoteBuy(ctx, mint, req.DesiredQuoteOut)
		if err != nil {
			return h.poolErr(c, err)
		}
		if maxIn, err = curve.MaxWithSlippage(q.BaseAmount, req.SlippageBps); err != nil {
			return h.poolErr(c, err)
		}
	}

	r, err := h.Ledger.Buy(ctx, ledger.BuyRequest{
		Mint:            mint,
		Trader:          trader,
		DesiredQuoteOut: req.DesiredQuoteOut,
		MaxBaseIn:       maxIn,
		MaxImpactBps:    req.MaxImpactBps,
	})
	if err != nil {
		return h.poolErr(c, err)
	}
	return c.JSON(http.StatusOK, newTradeResponse(r))
}

func (h *Handlers) Sell(c echo.Context) error {
	mint, ok := h.mintParam(c)
	if !ok {
		return h.invalidMint(c)
	}
	var req SellRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	trader, ok := parseKey(req.Trader)
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid trader", map[string]any{"trader": "must be a base58 public key"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	minOut := req.MinBaseOut
	if minOut == 0 && req.SlippageBps > 0 {
		q, err := h.Ledger.QuoteSell(ctx, mint, req.QuoteIn)
		if err != nil {
			return h.poolErr(c, err)
		}
		minOut = curve.ApplySlippage(q.BaseAmount, req.SlippageBps)
	}

	r, err := h.Ledger.Sell(ctx, ledger.SellRequest{
		Mint:         mint,
		Trader:       trader,
		QuoteIn:      req.QuoteIn,
		MinBaseOut:   minOut,
		MaxImpactBps: req.MaxImpactBps,
	})
	if err != nil {
		return h.poolErr(c, err)
	}
	return c.JSON(http.StatusOK, newTradeResponse(r))
}

// Quote prices a buy or sell without settling it.
// Accepts amount (required) and slippageBps (optional) query parameters.
func (h *Handlers) Quote(c echo.Context) error {
	mint, ok := h.mintParam(c)
	if !ok {
		return h.invalidMint(c)
	}
	side := c.Param("side")
	if side != models.SideBuy && side != models.SideSell {
		return h.err(c, http.StatusBadRequest, "invalid side", map[string]any{"side": "must be buy or sell"})
	}

	amount, err := strconv.ParseUint(strings.TrimSpace(c.QueryParam("amount")), 10, 64)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid amount", map[string]any{"amount": "must be uint64"})
	}
	var slippageBps uint16
	if v := strings.TrimSpace(c.QueryParam("slippageBps")); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid slippageBps", map[string]any{"slippageBps": "must be uint16"})
		}
		slippageBps = uint16(n)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	var q *curve.Quote
	if side == models.SideBuy {
		q, err = h.Ledger.QuoteBuy(ctx, mint, amount)
	} else {
		q, err = h.Ledger.QuoteSell(ctx, mint, amount)
	}
	if err != nil {
		return h.poolErr(c, err)
	}

	resp := newQuoteResponse(q)
	if slippageBps > 0 {
		resp.SlippageBps = slippageBps
		if side == models.SideBuy {
			if resp.SlippageLimit, err = curve.MaxWithSlippage(q.BaseAmount, slippageBps); err != nil {
				return h.poolErr(c, err)
			}
		} else {
			resp.SlippageLimit = curve.ApplySlippage(q.BaseAmount, slippageBps)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// RecentTrades returns the pool's latest trades with optional limit parameter
// Accepts limit query parameter (default: 100, range: 1-500)
func (h *Handlers) RecentTrades(c echo.Context) error {
	if h.History == nil {
		return h.err(c, http.StatusNotFound, "trade history is not configured", nil)
	}
	mint, ok := h.mintParam(c)
	if !ok {
		return h.invalidMint(c)
	}

	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 500 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 500"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.History.RecentTrades(ctx, mint.String(), limit)
	if err != nil {
		h.Logger.WithError(err).Warn("Failed to load trade history")
		return h.err(c, http.StatusInternalServerError, "failed to get trades", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// Airdrop credits the balance book so local traders can be funded.
func (h *Handlers) Airdrop(c echo.Context) error {
	var req AirdropRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	owner, ok := parseKey(req.Owner)
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid owner", map[string]any{"owner": "must be a base58 public key"})
	}

	var mint solana.PublicKey
	if req.Tokens > 0 || req.Mint != "" {
		if mint, ok = parseKey(req.Mint); !ok {
			return h.err(c, http.StatusBadRequest, "invalid mint", map[string]any{"mint": "required when tokens are requested"})
		}
	}

	if req.Native > 0 {
		if err := h.Book.Credit(models.AssetNative, owner, solana.PublicKey{}, req.Native); err != nil {
			return h.poolErr(c, err)
		}
	}
	resp := map[string]any{
		"owner":  owner.String(),
		"native": h.Book.Balance(models.AssetNative, owner, solana.PublicKey{}),
	}

	if !mint.IsZero() {
		if err := h.Book.Credit(models.AssetToken, owner, mint, req.Tokens); err != nil {
			return h.poolErr(c, err)
		}
		resp["mint"] = mint.String()
		resp["tokens"] = h.Book.Balance(models.AssetToken, owner, mint)
	}
	return c.JSON(http.StatusOK, resp)
}
