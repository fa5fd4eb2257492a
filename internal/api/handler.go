package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mtlprog/oracle/internal/domain"
	"github.com/mtlprog/oracle/internal/export"
	"github.com/mtlprog/oracle/internal/journal"
	"github.com/mtlprog/oracle/internal/registry"
)

const maxBodyBytes = 1 << 20

// Handler provides HTTP endpoints for the price registries.
type Handler struct {
	oracle     *registry.PriceOracle
	aggregator *registry.ReferenceAggregator
	journal    journal.Repository
	export     *export.Service
	now        func() time.Time
}

// NewHandler creates a new API handler. journal may be nil when event
// storage is disabled.
func NewHandler(oracle *registry.PriceOracle, aggregator *registry.ReferenceAggregator, events journal.Repository) *Handler {
	return &Handler{
		oracle:     oracle,
		aggregator: aggregator,
		journal:    events,
		export:     export.NewService(aggregator),
		now:        time.Now,
	}
}

// call builds the registry call context for r: the authenticated caller (zero
// for anonymous reads) and the current time.
func (h *Handler) call(r *http.Request) domain.Call {
	return domain.Call{
		Caller: callerFrom(r.Context()),
		Now:    uint64(h.now().Unix()),
	}
}

// pathAddress parses the named path value as an address, writing a 400 on
// failure.
func pathAddress(w http.ResponseWriter, r *http.Request, name string) (domain.Address, bool) {
	addr, err := domain.ParseAddress(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+" address")
		return domain.Address{}, false
	}
	return addr, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeRegistryError maps registry failures onto HTTP statuses. Anything
// that is not a registry sentinel came from an aggregator or token contract.
func writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotAvailable), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidToken):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrInsufficientHistory):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("upstream call failed", "error", err)
		writeError(w, http.StatusBadGateway, "upstream failure")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
