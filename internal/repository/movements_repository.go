package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rendafacil/movements-service/internal/config"
	"github.com/rendafacil/movements-service/internal/model"

	"go.uber.org/zap"
)

// StoreError reports a failed interaction with the movements store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("movements store %s failed: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// MovementsRepository persists movements in a Firebase Realtime Database
// over its REST interface. Documents live under
// movements/{document}/{market_type}/{year}/{month}/{day}.
type MovementsRepository struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewMovementsRepository creates a movements repository.
func NewMovementsRepository(cfg config.FirebaseConfig, logger *zap.Logger) *MovementsRepository {
	return &MovementsRepository{
		baseURL:   cfg.BaseURL,
		authToken: cfg.AuthToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// GetMovements loads every cached movement for the document and market type
// whose reference date falls inside the inclusive [start, end] window. The
// store is fetched as one calendar subtree and filtered locally.
func (r *MovementsRepository) GetMovements(
	ctx context.Context,
	document string,
	marketType model.MarketType,
	start, end time.Time,
) ([]model.MovementRecord, error) {
	body, err := r.request(ctx, http.MethodGet, r.path(document, marketType), nil)
	if err != nil {
		return nil, &StoreError{Op: "get", Err: err}
	}

	// Firebase returns the literal null for an absent subtree.
	var index model.CalendarIndex
	if err := json.Unmarshal(body, &index); err != nil {
		return nil, &StoreError{Op: "get", Err: fmt.Errorf("decoding calendar subtree: %w", err)}
	}
	if index == nil {
		return nil, nil
	}

	startStr := start.Format(model.DateFormat)
	endStr := end.Format(model.DateFormat)
	var records []model.MovementRecord
	for _, record := range index.Flatten() {
		if record.ReferenceDate >= startStr && record.ReferenceDate <= endStr {
			records = append(records, record)
		}
	}
	return records, nil
}

// SaveMovements writes the given records under their calendar days with a
// single multi-path PATCH, leaving sibling days untouched.
func (r *MovementsRepository) SaveMovements(
	ctx context.Context,
	document string,
	marketType model.MarketType,
	records []model.MovementRecord,
) error {
	if len(records) == 0 {
		return nil
	}

	patch := map[string][]model.MovementRecord{}
	for year, months := range model.ToCalendar(records) {
		for month, days := range months {
			for day, movements := range days {
				patch[year+"/"+month+"/"+day] = movements
			}
		}
	}

	payload, err := json.Marshal(patch)
	if err != nil {
		return &StoreError{Op: "patch", Err: err}
	}
	if _, err := r.request(ctx, http.MethodPatch, r.path(document, marketType), payload); err != nil {
		return &StoreError{Op: "patch", Err: err}
	}
	r.logger.Debug("Persisted movements delta",
		zap.String("document", document),
		zap.String("market_type", string(marketType)),
		zap.Int("records", len(records)),
		zap.Int("days", len(patch)))
	return nil
}

func (r *MovementsRepository) path(document string, marketType model.MarketType) string {
	return fmt.Sprintf("movements/%s/%s", document, marketType)
}

func (r *MovementsRepository) request(ctx context.Context, method, dbPath string, payload []byte) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/%s.json", r.baseURL, dbPath)
	if r.authToken != "" {
		params := url.Values{}
		params.Set("auth", r.authToken)
		reqURL = reqURL + "?" + params.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Error("Movements store request failed",
			zap.String("method", method),
			zap.String("path", dbPath),
			zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		r.logger.Error("Movements store returned bad status",
			zap.String("method", method),
			zap.String("path", dbPath),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response", body))
		return nil, fmt.Errorf("store returned status %d", resp.StatusCode)
	}
	return body, nil
}
