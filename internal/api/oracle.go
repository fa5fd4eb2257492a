package api

import (
	"math/big"
	"net/http"

	"github.com/mtlprog/oracle/internal/domain"
)

type priceResponse struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"` // raw, scaled by 10^18
	Formatted string `json:"formatted"`
	UpdatedAt uint64 `json:"updatedAt,omitempty"`
}

// setPriceRequest carries either a decimal price ("0.71") or the raw scaled
// integer. Raw wins when both are set.
type setPriceRequest struct {
	Price string `json:"price"`
	Raw   string `json:"raw"`
}

func (req setPriceRequest) value() (*big.Int, error) {
	if req.Raw != "" {
		return domain.ParseInteger(req.Raw)
	}
	return domain.ParseScaled(req.Price, domain.PriceScale)
}

// GetPrice handles GET /api/v1/oracle/prices/{symbol}.
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	price, err := h.oracle.FreshPrice(h.call(r), symbol)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{
		Symbol:    symbol,
		Price:     price.Value.String(),
		Formatted: domain.FormatScaled(price.Value, domain.PriceScale),
		UpdatedAt: price.UpdatedAt,
	})
}

// SetPrice handles PUT /api/v1/oracle/prices/{symbol}.
func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req setPriceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	value, err := req.value()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	symbol := r.PathValue("symbol")
	call := h.call(r)
	if err := h.oracle.SetPrice(r.Context(), call, symbol, value); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{
		Symbol:    symbol,
		Price:     value.String(),
		Formatted: domain.FormatScaled(value, domain.PriceScale),
		UpdatedAt: max(call.Now, 1),
	})
}

type expirationBody struct {
	Period uint64 `json:"period"`
}

// GetExpiration handles GET /api/v1/oracle/expiration.
func (h *Handler) GetExpiration(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, expirationBody{Period: h.oracle.ExpirationPeriod()})
}

// SetExpiration handles PUT /api/v1/oracle/expiration.
func (h *Handler) SetExpiration(w http.ResponseWriter, r *http.Request) {
	var req expirationBody
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.oracle.ChangeExpirationPeriod(r.Context(), h.call(r), req.Period); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type sourceResponse struct {
	Address domain.Address `json:"address"`
	Trusted bool           `json:"trusted"`
}

// GetSource handles GET /api/v1/oracle/sources/{address}.
func (h *Handler) GetSource(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sourceResponse{Address: addr, Trusted: h.oracle.IsSource(addr)})
}

// AddSource handles PUT /api/v1/oracle/sources/{address}.
func (h *Handler) AddSource(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	if err := h.oracle.AddSource(r.Context(), h.call(r), addr); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sourceResponse{Address: addr, Trusted: true})
}

// DropSource handles DELETE /api/v1/oracle/sources/{address}.
func (h *Handler) DropSource(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	if err := h.oracle.DropSource(r.Context(), h.call(r), addr); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sourceResponse{Address: addr, Trusted: false})
}
