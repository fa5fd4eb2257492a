package api

import (
	"bytes"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/mtlprog/oracle/internal/domain"
)

type tokenResponse struct {
	Index int `json:"index"`
	domain.TokenInformation
	Aggregator          domain.Address `json:"aggregator"`
	VolatilityFormatted string         `json:"volatilityFormatted"`
}

// tokenRequest is the body of POST /api/v1/tokens and PUT /api/v1/tokens/{token}.
// Volatility is a decimal string; Token and Aggregator are only read on create.
type tokenRequest struct {
	Token      string `json:"token"`
	Aggregator string `json:"aggregator"`
	Volatility string `json:"volatility"`
	domain.TokenParams
}

func (req tokenRequest) params() (domain.TokenParams, error) {
	p := req.TokenParams
	p.Volatility = new(big.Int)
	if req.Volatility != "" {
		v, err := domain.ParseScaled(req.Volatility, domain.VolatilityScale)
		if err != nil {
			return p, err
		}
		p.Volatility = v
	}
	return p, nil
}

func (h *Handler) tokenView(index int, info domain.TokenInformation) tokenResponse {
	return tokenResponse{
		Index:               index,
		TokenInformation:    info,
		Aggregator:          h.aggregator.Aggregator(info.Token),
		VolatilityFormatted: domain.FormatScaled(info.Volatility, domain.VolatilityScale),
	}
}

// ListTokens handles GET /api/v1/tokens.
func (h *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	tokens := lo.Map(h.aggregator.Tokens(), func(t domain.TokenInformation, i int) tokenResponse {
		return h.tokenView(i, t)
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(tokens),
		"tokens": tokens,
	})
}

// GetToken handles GET /api/v1/tokens/{token}.
func (h *Handler) GetToken(w http.ResponseWriter, r *http.Request) {
	token, ok := pathAddress(w, r, "token")
	if !ok {
		return
	}
	info, err := h.aggregator.TokenByAddress(token)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.tokenView(h.aggregator.FindTokenIndex(token), info))
}

// AddToken handles POST /api/v1/tokens.
func (h *Handler) AddToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	token, err := domain.ParseAddress(req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token address")
		return
	}
	var aggregator domain.Address
	if req.Aggregator != "" {
		if aggregator, err = domain.ParseAddress(req.Aggregator); err != nil {
			writeError(w, http.StatusBadRequest, "invalid aggregator address")
			return
		}
	}
	params, err := req.params()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid volatility")
		return
	}

	if err := h.aggregator.AddToken(r.Context(), h.call(r), token, aggregator, params); err != nil {
		writeRegistryError(w, err)
		return
	}
	info, err := h.aggregator.TokenByAddress(token)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.tokenView(h.aggregator.FindTokenIndex(token), info))
}

// UpdateToken handles PUT /api/v1/tokens/{token}.
func (h *Handler) UpdateToken(w http.ResponseWriter, r *http.Request) {
	token, ok := pathAddress(w, r, "token")
	if !ok {
		return
	}
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	params, err := req.params()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid volatility")
		return
	}

	if err := h.aggregator.UpdateToken(r.Context(), h.call(r), token, params); err != nil {
		writeRegistryError(w, err)
		return
	}
	info, err := h.aggregator.TokenByAddress(token)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.tokenView(h.aggregator.FindTokenIndex(token), info))
}

type aggregatorResponse struct {
	Token      domain.Address `json:"token"`
	Aggregator domain.Address `json:"aggregator"`
}

// GetAggregator handles GET /api/v1/aggregators/{token}.
func (h *Handler) GetAggregator(w http.ResponseWriter, r *http.Request) {
	token, ok := pathAddress(w, r, "token")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, aggregatorResponse{Token: token, Aggregator: h.aggregator.Aggregator(token)})
}

// SetAggregator handles PUT /api/v1/aggregators/{token}. The zero address
// disables reads for the token.
func (h *Handler) SetAggregator(w http.ResponseWriter, r *http.Request) {
	token, ok := pathAddress(w, r, "token")
	if !ok {
		return
	}
	var req struct {
		Aggregator string `json:"aggregator"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	aggregator, err := domain.ParseAddress(req.Aggregator)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid aggregator address")
		return
	}

	if err := h.aggregator.SetAggregator(r.Context(), h.call(r), token, aggregator); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, aggregatorResponse{Token: token, Aggregator: aggregator})
}

type quoteResponse struct {
	Token      domain.Address `json:"token"`
	RoundsBack uint64         `json:"roundsBack"`
	Value      string         `json:"value"`
	Formatted  string         `json:"formatted,omitempty"`
}

// roundsBack parses the optional roundsBack query parameter. ok is false
// after a 400 has been written.
func roundsBack(w http.ResponseWriter, r *http.Request) (n uint64, set, ok bool) {
	v := r.URL.Query().Get("roundsBack")
	if v == "" {
		return 0, false, true
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "roundsBack must be a non-negative integer")
		return 0, false, false
	}
	return n, true, true
}

// GetTokenPrice handles GET /api/v1/tokens/{token}/price. With roundsBack it
// reads the answer that many rounds before the latest one.
func (h *Handler) GetTokenPrice(w http.ResponseWriter, r *http.Request) {
	token, ok := pathAddress(w, r, "token")
	if !ok {
		return
	}
	back, previous, ok := roundsBack(w, r)
	if !ok {
		return
	}

	var (
		price *big.Int
		err   error
	)
	if previous {
		price, err = h.aggregator.GetPreviousPrice(r.Context(), token, back)
	} else {
		price, err = h.aggregator.GetPrice(r.Context(), token)
	}
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	resp := quoteResponse{Token: token, RoundsBack: back, Value: price.String()}
	if info, err := h.aggregator.TokenByAddress(token); err == nil {
		resp.Formatted = domain.FormatScaled(price, int32(info.PriceDecimals))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTokenTimestamp handles GET /api/v1/tokens/{token}/timestamp.
func (h *Handler) GetTokenTimestamp(w http.ResponseWriter, r *http.Request) {
	token, ok := pathAddress(w, r, "token")
	if !ok {
		return
	}
	back, previous, ok := roundsBack(w, r)
	if !ok {
		return
	}

	var (
		ts  *big.Int
		err error
	)
	if previous {
		ts, err = h.aggregator.GetPreviousTimeStamp(r.Context(), token, back)
	} else {
		ts, err = h.aggregator.GetTimeStamp(r.Context(), token)
	}
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	resp := quoteResponse{Token: token, RoundsBack: back, Value: ts.String()}
	if ts.IsInt64() {
		resp.Formatted = time.Unix(ts.Int64(), 0).UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExportTokens handles GET /api/v1/tokens/export.xlsx.
func (h *Handler) ExportTokens(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.export.Export(r.Context(), &buf); err != nil {
		slog.Error("failed to export tokens", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	name := fmt.Sprintf("tokens-%s.xlsx", h.now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write export body", "error", err)
	}
}
