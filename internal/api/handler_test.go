package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/oracle/internal/domain"
	"github.com/mtlprog/oracle/internal/journal"
	"github.com/mtlprog/oracle/internal/metrics"
	"github.com/mtlprog/oracle/internal/registry"
	"github.com/mtlprog/oracle/internal/registry/registrytest"
)

var (
	owner   = testKeys["owner-key"]
	source  = testKeys["source-key"]
	usdc    = common.HexToAddress("0x0000000000000000000000000000000000001001")
	badDecs = common.HexToAddress("0x0000000000000000000000000000000000003003")
	aggr1   = common.HexToAddress("0x0000000000000000000000000000000000002001")
	broken  = common.HexToAddress("0x0000000000000000000000000000000000002bad")
)

type mockJournal struct {
	entries    []journal.Entry
	lastFilter journal.Filter
}

func (m *mockJournal) Append(_ context.Context, registry, name string, payload json.RawMessage) error {
	m.entries = append(m.entries, journal.Entry{ID: int64(len(m.entries) + 1), Registry: registry, Name: name, Payload: payload})
	return nil
}

func (m *mockJournal) Get(_ context.Context, id int64) (*journal.Entry, error) {
	for _, e := range m.entries {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, journal.ErrNotFound
}

func (m *mockJournal) List(_ context.Context, f journal.Filter) ([]journal.Entry, error) {
	m.lastFilter = f
	return m.entries, nil
}

type fixture struct {
	t       *testing.T
	now     int64
	oracle  *registry.PriceOracle
	agg     *registry.ReferenceAggregator
	dir     *registry.Directory
	journal *mockJournal
	writer  *journal.Writer
	router  http.Handler
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{t: t, now: 1700000000, journal: &mockJournal{}}
	f.dir = registry.NewDirectory()
	f.dir.BindToken(usdc, &registrytest.Token{TokenName: "USD Coin", TokenSymbol: "USDC", TokenDecimals: 6})
	f.dir.BindToken(badDecs, &registrytest.Token{TokenName: "Bad", TokenSymbol: "BAD"})
	f.dir.BindAggregator(aggr1, registrytest.NewAggregator(100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110))
	f.dir.BindAggregator(broken, &registrytest.Aggregator{Err: errors.New("execution reverted")})

	f.writer = journal.NewWriter(f.journal, 64)
	t.Cleanup(f.writer.Close)
	f.oracle = registry.NewPriceOracle(owner, 600, []domain.Address{source}, f.writer.Notifier("oracle"))
	f.agg = registry.NewReferenceAggregator(owner, f.dir, f.writer.Notifier("aggregator"))

	h := NewHandler(f.oracle, f.agg, f.journal)
	h.now = func() time.Time { return time.Unix(f.now, 0) }
	f.router = NewRouter(h, testKeys, metrics.New())
	return f
}

func (f *fixture) do(method, path, key, body string) *httptest.ResponseRecorder {
	f.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestOraclePriceLifecycle(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/oracle/prices/FTM", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("never-set price status = %d, want 404", w.Code)
	}

	w = f.do(http.MethodPut, "/api/v1/oracle/prices/FTM", "source-key", `{"price":"0.71"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("set status = %d, body %s", w.Code, w.Body)
	}

	f.now += 599
	w = f.do(http.MethodGet, "/api/v1/oracle/prices/FTM", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("fresh price status = %d", w.Code)
	}
	got := decode[priceResponse](t, w)
	if got.Price != "710000000000000000" || got.Formatted != "0.71" || got.UpdatedAt != 1700000000 {
		t.Errorf("price = %+v", got)
	}

	f.now++
	w = f.do(http.MethodGet, "/api/v1/oracle/prices/FTM", "", "")
	if w.Code != http.StatusGone {
		t.Errorf("expired price status = %d, want 410", w.Code)
	}
}

func TestOracleSetPriceRejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		key  string
		body string
		want int
	}{
		{"no key", "", `{"price":"1"}`, http.StatusUnauthorized},
		{"owner is not a source", "owner-key", `{"price":"1"}`, http.StatusForbidden},
		{"malformed body", "source-key", `{"price":`, http.StatusBadRequest},
		{"unknown field", "source-key", `{"usd":"1"}`, http.StatusBadRequest},
		{"bad raw", "source-key", `{"raw":"1.5"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPut, "/api/v1/oracle/prices/FTM", tt.key, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
	if f.oracle.LatestPrice("FTM").IsSet() {
		t.Error("rejected writes must not store a price")
	}
}

func TestOracleSetRawPrice(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPut, "/api/v1/oracle/prices/BTC", "source-key", `{"raw":"64000000000000000000000"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := f.oracle.LatestPrice("BTC").Value.String(); got != "64000000000000000000000" {
		t.Errorf("stored = %s", got)
	}
}

func TestOracleExpiration(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPut, "/api/v1/oracle/expiration", "source-key", `{"period":60}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("source change status = %d, want 403", w.Code)
	}

	w = f.do(http.MethodPut, "/api/v1/oracle/expiration", "owner-key", `{"period":60}`)
	if w.Code != http.StatusOK {
		t.Fatalf("owner change status = %d", w.Code)
	}

	w = f.do(http.MethodGet, "/api/v1/oracle/expiration", "", "")
	if got := decode[expirationBody](t, w); got.Period != 60 {
		t.Errorf("period = %d, want 60", got.Period)
	}
}

func TestOracleSources(t *testing.T) {
	f := newFixture(t)
	other := "0x00000000000000000000000000000000000000b1"

	w := f.do(http.MethodPut, "/api/v1/oracle/sources/"+other, "source-key", "")
	if w.Code != http.StatusForbidden {
		t.Errorf("non-owner add status = %d, want 403", w.Code)
	}

	w = f.do(http.MethodPut, "/api/v1/oracle/sources/"+other, "owner-key", "")
	if w.Code != http.StatusOK {
		t.Fatalf("add status = %d", w.Code)
	}
	w = f.do(http.MethodGet, "/api/v1/oracle/sources/"+other, "", "")
	if got := decode[sourceResponse](t, w); !got.Trusted {
		t.Error("source should be trusted after add")
	}

	// membership can be queried per address but not listed
	w = f.do(http.MethodGet, "/api/v1/oracle/sources", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("list sources status = %d, want 404", w.Code)
	}

	w = f.do(http.MethodDelete, "/api/v1/oracle/sources/"+other, "owner-key", "")
	if w.Code != http.StatusOK {
		t.Fatalf("drop status = %d", w.Code)
	}
	if f.oracle.IsSource(common.HexToAddress(other)) {
		t.Error("source should be dropped")
	}

	w = f.do(http.MethodGet, "/api/v1/oracle/sources/not-an-address", "", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad address status = %d, want 400", w.Code)
	}
}

func TestAddTokens(t *testing.T) {
	f := newFixture(t)

	native := `{"token":"` + domain.NativeToken.Hex() + `","aggregator":"` + aggr1.Hex() + `","logo":"ftm.svg","priceDecimals":8,"isActive":true,"volatility":"0.25"}`
	w := f.do(http.MethodPost, "/api/v1/tokens", "owner-key", native)
	if w.Code != http.StatusCreated {
		t.Fatalf("add native status = %d, body %s", w.Code, w.Body)
	}
	got := decode[tokenResponse](t, w)
	if got.Index != 0 || got.Symbol != "FTM" || got.Decimals != 18 || got.Aggregator != aggr1 || got.VolatilityFormatted != "0.25" {
		t.Errorf("native = %+v", got)
	}

	tests := []struct {
		name string
		key  string
		body string
		want int
	}{
		{"duplicate", "owner-key", native, http.StatusConflict},
		{"not owner", "source-key", `{"token":"` + usdc.Hex() + `"}`, http.StatusForbidden},
		{"zero decimals", "owner-key", `{"token":"` + badDecs.Hex() + `"}`, http.StatusUnprocessableEntity},
		{"bad address", "owner-key", `{"token":"0x12"}`, http.StatusBadRequest},
		{"bad volatility", "owner-key", `{"token":"` + usdc.Hex() + `","volatility":"high"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/v1/tokens", tt.key, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	w = f.do(http.MethodPost, "/api/v1/tokens", "owner-key", `{"token":"`+usdc.Hex()+`"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add usdc status = %d", w.Code)
	}

	w = f.do(http.MethodGet, "/api/v1/tokens", "", "")
	list := decode[struct {
		Count  int             `json:"count"`
		Tokens []tokenResponse `json:"tokens"`
	}](t, w)
	if list.Count != 2 || list.Tokens[1].Symbol != "USDC" || list.Tokens[1].Index != 1 {
		t.Errorf("list = %+v", list)
	}
}

func TestUpdateToken(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodPost, "/api/v1/tokens", "owner-key", `{"token":"`+usdc.Hex()+`","logo":"old.svg"}`)

	w := f.do(http.MethodPut, "/api/v1/tokens/"+usdc.Hex(), "owner-key", `{"logo":"new.svg","canTrade":true,"volatility":"1.5"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", w.Code, w.Body)
	}
	got := decode[tokenResponse](t, w)
	if got.Logo != "new.svg" || !got.CanTrade || got.Symbol != "USDC" || got.Volatility.Int64() != 150000000 {
		t.Errorf("updated = %+v", got)
	}

	w = f.do(http.MethodPut, "/api/v1/tokens/"+badDecs.Hex(), "owner-key", `{"logo":"x"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown token update status = %d, want 404", w.Code)
	}

	w = f.do(http.MethodGet, "/api/v1/tokens/"+badDecs.Hex(), "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown token get status = %d, want 404", w.Code)
	}
}

func TestTokenPriceReads(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodPost, "/api/v1/tokens", "owner-key", `{"token":"`+usdc.Hex()+`","priceDecimals":2}`)

	w := f.do(http.MethodGet, "/api/v1/tokens/"+usdc.Hex()+"/price", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unset aggregator status = %d, want 404", w.Code)
	}

	w = f.do(http.MethodPut, "/api/v1/aggregators/"+usdc.Hex(), "owner-key", `{"aggregator":"`+aggr1.Hex()+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("set aggregator status = %d", w.Code)
	}
	w = f.do(http.MethodGet, "/api/v1/aggregators/"+usdc.Hex(), "", "")
	if got := decode[aggregatorResponse](t, w); got.Aggregator != aggr1 {
		t.Errorf("aggregator = %s", got.Aggregator.Hex())
	}

	tests := []struct {
		path      string
		want      int
		value     string
		formatted string
	}{
		{"/price", http.StatusOK, "110", "1.1"},
		{"/price?roundsBack=0", http.StatusOK, "110", "1.1"},
		{"/price?roundsBack=10", http.StatusOK, "100", "1"},
		{"/price?roundsBack=11", http.StatusBadRequest, "", ""},
		{"/price?roundsBack=-1", http.StatusBadRequest, "", ""},
		{"/timestamp", http.StatusOK, "1010", "1970-01-01T00:16:50Z"},
		{"/timestamp?roundsBack=3", http.StatusOK, "1007", "1970-01-01T00:16:47Z"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := f.do(http.MethodGet, "/api/v1/tokens/"+usdc.Hex()+tt.path, "", "")
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want != http.StatusOK {
				return
			}
			got := decode[quoteResponse](t, w)
			if got.Value != tt.value || got.Formatted != tt.formatted {
				t.Errorf("quote = %+v", got)
			}
		})
	}
}

func TestTokenPriceUpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodPut, "/api/v1/aggregators/"+usdc.Hex(), "owner-key", `{"aggregator":"`+broken.Hex()+`"}`)

	w := f.do(http.MethodGet, "/api/v1/tokens/"+usdc.Hex()+"/price", "", "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestExportTokens(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodPost, "/api/v1/tokens", "owner-key", `{"token":"`+usdc.Hex()+`","aggregator":"`+aggr1.Hex()+`"}`)

	w := f.do(http.MethodGet, "/api/v1/tokens/export.xlsx", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.HasPrefix(w.Body.String(), "PK") {
		t.Error("body is not a zip archive")
	}
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodPut, "/api/v1/oracle/prices/FTM", "source-key", `{"price":"0.71"}`)
	f.do(http.MethodPut, "/api/v1/aggregators/"+usdc.Hex(), "owner-key", `{"aggregator":"`+aggr1.Hex()+`"}`)
	if err := f.writer.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	w := f.do(http.MethodGet, "/api/v1/events?registry=oracle&limit=5000", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	entries := decode[[]journal.Entry](t, w)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if f.journal.lastFilter.Registry != "oracle" || f.journal.lastFilter.Limit != 1000 {
		t.Errorf("filter = %+v", f.journal.lastFilter)
	}
	if entries[0].Name != "PriceChanged" || entries[1].Name != "AggregatorChanged" {
		t.Errorf("names = %s, %s", entries[0].Name, entries[1].Name)
	}

	w = f.do(http.MethodGet, "/api/v1/events/2", "", "")
	if got := decode[journal.Entry](t, w); got.Registry != "aggregator" {
		t.Errorf("event 2 = %+v", got)
	}
	w = f.do(http.MethodGet, "/api/v1/events/99", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing event status = %d, want 404", w.Code)
	}
}

func TestEventsJournalDisabled(t *testing.T) {
	h := NewHandler(registry.NewPriceOracle(owner, 60, nil, nil), registry.NewReferenceAggregator(owner, registry.NewDirectory(), nil), nil)
	router := NewRouter(h, testKeys, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, "/api/v1/oracle/expiration", "", "")

	w := f.do(http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "oracle_http_requests_total") {
		t.Error("metrics output missing request counter")
	}
}
