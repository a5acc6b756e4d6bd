package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rendafacil/movements-service/internal/client"
	"github.com/rendafacil/movements-service/internal/events"
	"github.com/rendafacil/movements-service/internal/model"
	"github.com/rendafacil/movements-service/internal/repository"
	"github.com/rendafacil/movements-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const testDocument = "04781722903"

type stubStore struct {
	records []model.MovementRecord
	getErr  error
}

func (s *stubStore) GetMovements(ctx context.Context, document string, marketType model.MarketType, start, end time.Time) ([]model.MovementRecord, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.records, nil
}

func (s *stubStore) SaveMovements(ctx context.Context, document string, marketType model.MarketType, records []model.MovementRecord) error {
	return nil
}

type stubFetcher struct {
	records []model.MovementRecord
	err     error
}

func (f *stubFetcher) Movements(ctx context.Context, marketType model.MarketType, document string, startDate, endDate time.Time) ([]model.MovementRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type noopPublisher struct{}

func (noopPublisher) PublishSynced(ctx context.Context, event events.SyncedEvent) {}

// newTestRouter mounts the handler behind a stub identity middleware so
// requests arrive with the document already resolved, the way the auth
// middleware leaves them.
func newTestRouter(store *stubStore, fetcher *stubFetcher, document string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewMovementsService(store, fetcher, noopPublisher{}, zap.NewNop())
	h := NewMovementsHandler(svc, zap.NewNop())

	router := gin.New()
	router.GET("/api/v1/movements", func(c *gin.Context) {
		if document != "" {
			c.Set("document", document)
		}
	}, h.GetMovements)
	return router
}

func doGet(router *gin.Engine, query string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/movements"+query, nil)
	router.ServeHTTP(w, req)
	return w
}

func sampleRecord(date string) model.MovementRecord {
	return model.MovementRecord{
		ReferenceDate:  date,
		MovementType:   "Compra",
		TickerSymbol:   "PETR4",
		Quantity:       10,
		UnitPrice:      decimal.RequireFromString("7.90"),
		OperationValue: decimal.RequireFromString("79.00"),
	}
}

func TestGetMovementsHandler(t *testing.T) {
	t.Run("returns the calendar-grouped movements", func(t *testing.T) {
		store := &stubStore{records: []model.MovementRecord{sampleRecord("2024-01-05")}}
		fetcher := &stubFetcher{}
		router := newTestRouter(store, fetcher, testDocument)

		w := doGet(router, "?market_type=equities")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
		}
		var body struct {
			Document   string                       `json:"document"`
			MarketType string                       `json:"market_type"`
			Movements  map[string]map[string]map[string][]json.RawMessage `json:"movements"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Document != testDocument {
			t.Errorf("document = %q", body.Document)
		}
		if body.MarketType != "equities" {
			t.Errorf("market_type = %q", body.MarketType)
		}
		if got := len(body.Movements["2024"]["01"]["05"]); got != 1 {
			t.Errorf("day 2024/01/05 has %d records, want 1", got)
		}
	})

	t.Run("rejects a request without a resolved document", func(t *testing.T) {
		router := newTestRouter(&stubStore{}, &stubFetcher{}, "")
		if w := doGet(router, "?market_type=equities"); w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("maps an unknown market type to 404", func(t *testing.T) {
		router := newTestRouter(&stubStore{}, &stubFetcher{}, testDocument)
		if w := doGet(router, "?market_type=crypto"); w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("maps a malformed date to 400", func(t *testing.T) {
		router := newTestRouter(&stubStore{}, &stubFetcher{}, testDocument)
		if w := doGet(router, "?market_type=equities&start_date=05/01/2024"); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
		if w := doGet(router, "?market_type=equities&end_date=garbage"); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("maps an inverted window to 400", func(t *testing.T) {
		router := newTestRouter(&stubStore{}, &stubFetcher{}, testDocument)
		w := doGet(router, "?market_type=equities&start_date=2024-02-01&end_date=2024-01-01")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("maps a B3 access denial to 401", func(t *testing.T) {
		fetcher := &stubFetcher{err: client.ErrUnauthorizedClientAccess}
		router := newTestRouter(&stubStore{}, fetcher, testDocument)
		w := doGet(router, "?market_type=equities")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("maps B3 rate limiting to 429", func(t *testing.T) {
		fetcher := &stubFetcher{err: &client.MovementsError{Err: client.ErrTooManyRequests}}
		router := newTestRouter(&stubStore{}, fetcher, testDocument)
		w := doGet(router, "?market_type=equities")
		if w.Code != http.StatusTooManyRequests {
			t.Errorf("status = %d, want 429", w.Code)
		}
	})

	t.Run("maps a store failure to 500", func(t *testing.T) {
		store := &stubStore{getErr: &repository.StoreError{Op: "get", Err: errors.New("firebase down")}}
		router := newTestRouter(store, &stubFetcher{}, testDocument)
		w := doGet(router, "?market_type=equities")
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})

	t.Run("maps an unclassified failure to 500", func(t *testing.T) {
		fetcher := &stubFetcher{err: &client.MovementsError{Err: errors.New("something broke")}}
		router := newTestRouter(&stubStore{}, fetcher, testDocument)
		w := doGet(router, "?market_type=equities")
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})

	t.Run("degrades to cached data when B3 fails", func(t *testing.T) {
		store := &stubStore{records: []model.MovementRecord{sampleRecord("2024-01-05")}}
		fetcher := &stubFetcher{err: &client.MovementsError{Err: errors.New("something broke")}}
		router := newTestRouter(store, fetcher, testDocument)
		w := doGet(router, "?market_type=equities")
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200: %s", w.Code, w.Body.String())
		}
	})
}
