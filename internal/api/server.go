package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/mtlprog/oracle/internal/domain"
	"github.com/mtlprog/oracle/internal/metrics"
)

// NewServer creates an HTTP server with all routes configured. apiKeys maps
// bearer keys to the caller identity they authenticate; m may be nil.
func NewServer(port string, handler *Handler, apiKeys map[string]domain.Address, m *metrics.Metrics) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(handler, apiKeys, m),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewRouter registers every route on a fresh mux. All writes require a
// bearer key; reads are public.
func NewRouter(handler *Handler, apiKeys map[string]domain.Address, m *metrics.Metrics) http.Handler {
	auth := func(h http.HandlerFunc) http.Handler { return requireAuth(apiKeys, h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/oracle/prices/{symbol}", handler.GetPrice)
	mux.Handle("PUT /api/v1/oracle/prices/{symbol}", auth(handler.SetPrice))
	mux.HandleFunc("GET /api/v1/oracle/expiration", handler.GetExpiration)
	mux.Handle("PUT /api/v1/oracle/expiration", auth(handler.SetExpiration))
	mux.HandleFunc("GET /api/v1/oracle/sources/{address}", handler.GetSource)
	mux.Handle("PUT /api/v1/oracle/sources/{address}", auth(handler.AddSource))
	mux.Handle("DELETE /api/v1/oracle/sources/{address}", auth(handler.DropSource))

	mux.HandleFunc("GET /api/v1/aggregators/{token}", handler.GetAggregator)
	mux.Handle("PUT /api/v1/aggregators/{token}", auth(handler.SetAggregator))

	mux.HandleFunc("GET /api/v1/tokens", handler.ListTokens)
	mux.Handle("POST /api/v1/tokens", auth(handler.AddToken))
	mux.HandleFunc("GET /api/v1/tokens/export.xlsx", handler.ExportTokens)
	mux.HandleFunc("GET /api/v1/tokens/{token}", handler.GetToken)
	mux.Handle("PUT /api/v1/tokens/{token}", auth(handler.UpdateToken))
	mux.HandleFunc("GET /api/v1/tokens/{token}/price", handler.GetTokenPrice)
	mux.HandleFunc("GET /api/v1/tokens/{token}/timestamp", handler.GetTokenTimestamp)

	mux.HandleFunc("GET /api/v1/events", handler.ListEvents)
	mux.HandleFunc("GET /api/v1/events/{id}", handler.GetEvent)

	if m == nil {
		return mux
	}
	mux.Handle("GET /metrics", m.Handler())
	return m.Instrument(mux)
}

type callerKey struct{}

func withCaller(ctx context.Context, caller domain.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// callerFrom returns the authenticated caller, or the zero address for
// anonymous requests.
func callerFrom(ctx context.Context) domain.Address {
	caller, _ := ctx.Value(callerKey{}).(domain.Address)
	return caller
}

// requireAuth resolves the bearer key to a caller identity. Whether that
// caller may perform the operation is decided by the registry.
func requireAuth(apiKeys map[string]domain.Address, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var (
			caller domain.Address
			found  bool
		)
		for key, addr := range apiKeys {
			if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
				caller, found = addr, true
			}
		}
		if !found {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), caller)))
	})
}
