package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rendafacil/movements-service/internal/config"
	"github.com/rendafacil/movements-service/internal/model"
	"github.com/shopspring/decimal"

	"go.uber.org/zap"
)

// APIVersion is the B3 movements API version this client speaks.
const APIVersion = "v2"

// defaultMaxInFlight caps concurrent page fetches so a huge page count
// cannot fan out unbounded.
const defaultMaxInFlight = 32

// B3Client fetches investor movements from the B3 API. The HTTP connection
// pool is shared across calls for the process lifetime.
type B3Client struct {
	baseURL     string
	maxInFlight int
	httpClient  *http.Client
	tokens      *TokenManager
	logger      *zap.Logger
}

// NewB3Client creates a B3 API client from configuration.
func NewB3Client(cfg config.B3Config, logger *zap.Logger) *B3Client {
	maxInFlight := cfg.MaxPageFetches
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	return &B3Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		maxInFlight: maxInFlight,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		tokens: NewTokenManager(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, cfg.Scope, cfg.Timeout, logger),
		logger: logger,
	}
}

// Movements fetches every movement for the document and market type in the
// inclusive [startDate, endDate] window, across all result pages.
func (c *B3Client) Movements(
	ctx context.Context,
	marketType model.MarketType,
	document string,
	startDate, endDate time.Time,
) ([]model.MovementRecord, error) {
	envelope, ok := marketType.Envelope()
	if !ok {
		return nil, &MovementsError{Err: fmt.Errorf("unknown market type %q", marketType)}
	}

	reqPath := strings.Join([]string{
		"movement", APIVersion, string(marketType), "investors", document,
	}, "/")
	params := url.Values{}
	params.Set("referenceStartDate", startDate.Format(model.DateFormat))
	params.Set("referenceEndDate", endDate.Format(model.DateFormat))

	pages, err := c.fetchAllPages(ctx, http.MethodGet, reqPath, params)
	if err != nil {
		c.logger.Error("Failed to paginate B3 movements",
			zap.String("market_type", string(marketType)),
			zap.String("document", document),
			zap.Error(err))
		return nil, &MovementsError{Err: err}
	}

	var records []model.MovementRecord
	for _, page := range pages {
		pageRecords, err := c.extractMovements(page, envelope)
		if err != nil {
			var inconsistent *InconsistentDataError
			switch {
			case errors.Is(err, ErrUnauthorizedClientAccess):
				// Propagates unwrapped: an access denial is not an
				// internal failure.
				return nil, err
			case errors.As(err, &inconsistent):
				c.logger.Error("Received inconsistent paginator data",
					zap.String("market_type", string(marketType)),
					zap.String("document", document),
					zap.ByteString("page", inconsistent.Page))
			default:
				c.logger.Error("Received bad movements page from B3",
					zap.String("market_type", string(marketType)),
					zap.String("document", document),
					zap.Error(err))
			}
			return nil, &MovementsError{Err: err}
		}
		records = append(records, pageRecords...)
	}
	return records, nil
}

// movementsPage is the portion of a B3 response page the client inspects.
type movementsPage struct {
	Code json.RawMessage            `json:"code"`
	Data map[string]json.RawMessage `json:"data"`
}

// extractMovements pulls the market-type-specific movement list out of one
// raw page. A page without a data key either carries a known error code or
// is a protocol violation.
func (c *B3Client) extractMovements(page json.RawMessage, envelope model.EnvelopeKeys) ([]model.MovementRecord, error) {
	var parsed movementsPage
	if err := json.Unmarshal(page, &parsed); err != nil {
		return nil, &InconsistentDataError{Page: page}
	}

	if parsed.Data == nil {
		if code := codeString(parsed.Code); code != "" {
			if err := errorForStatus(code); err != nil {
				return nil, err
			}
		}
		return nil, &InconsistentDataError{Page: page}
	}

	periodsRaw, ok := parsed.Data[envelope.Periods]
	if !ok {
		return nil, &InconsistentDataError{Page: page}
	}
	var periods map[string]json.RawMessage
	if err := json.Unmarshal(periodsRaw, &periods); err != nil {
		return nil, &InconsistentDataError{Page: page}
	}
	movementsRaw, ok := periods[envelope.Movements]
	if !ok {
		return nil, &InconsistentDataError{Page: page}
	}
	var rawMovements []json.RawMessage
	if err := json.Unmarshal(movementsRaw, &rawMovements); err != nil {
		return nil, &InconsistentDataError{Page: page}
	}

	records := make([]model.MovementRecord, 0, len(rawMovements))
	for i, raw := range rawMovements {
		record, err := decodeMovement(raw, envelope.Quantity)
		if err != nil {
			c.logger.Warn("Skipping malformed movement",
				zap.Int("index", i),
				zap.ByteString("raw", raw),
				zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// rawMovement is one movement as B3 serializes it.
type rawMovement struct {
	ReferenceDate             string          `json:"referenceDate"`
	ProductCategory           string          `json:"productCategory"`
	ProductTypeName           string          `json:"productTypeName"`
	MovementType              string          `json:"movementType"`
	OperationType             string          `json:"operationType"`
	TickerSymbol              string          `json:"tickerSymbol"`
	CorporationName           string          `json:"corporationName"`
	ParticipantName           string          `json:"participantName"`
	ParticipantDocumentNumber string          `json:"participantDocumentNumber"`
	UnitPrice                 decimal.Decimal `json:"unitPrice"`
	OperationValue            decimal.Decimal `json:"operationValue"`
}

// decodeMovement maps a wire movement to a MovementRecord. The quantity
// field name is market-type-specific, so it is read through the envelope
// table rather than a struct tag.
func decodeMovement(raw json.RawMessage, quantityKey string) (model.MovementRecord, error) {
	var rm rawMovement
	if err := json.Unmarshal(raw, &rm); err != nil {
		return model.MovementRecord{}, err
	}
	if rm.ReferenceDate == "" {
		return model.MovementRecord{}, fmt.Errorf("movement is missing referenceDate")
	}
	if _, err := time.Parse(model.DateFormat, rm.ReferenceDate); err != nil {
		return model.MovementRecord{}, fmt.Errorf("bad referenceDate %q: %w", rm.ReferenceDate, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return model.MovementRecord{}, err
	}
	var quantity int64
	if q, ok := fields[quantityKey]; ok {
		if err := json.Unmarshal(q, &quantity); err != nil {
			return model.MovementRecord{}, fmt.Errorf("bad %s: %w", quantityKey, err)
		}
	} else if q, ok := fields["quantity"]; ok {
		if err := json.Unmarshal(q, &quantity); err != nil {
			return model.MovementRecord{}, fmt.Errorf("bad quantity: %w", err)
		}
	}

	return model.MovementRecord{
		ReferenceDate:             rm.ReferenceDate,
		ProductCategory:           rm.ProductCategory,
		ProductTypeName:           rm.ProductTypeName,
		MovementType:              rm.MovementType,
		OperationType:             rm.OperationType,
		TickerSymbol:              rm.TickerSymbol,
		CorporationName:           rm.CorporationName,
		ParticipantName:           rm.ParticipantName,
		ParticipantDocumentNumber: rm.ParticipantDocumentNumber,
		Quantity:                  quantity,
		UnitPrice:                 rm.UnitPrice,
		OperationValue:            rm.OperationValue,
	}, nil
}

// doRequest performs one authenticated request against the B3 API and
// returns the decoded page. A response that rejects the bearer token forces
// exactly one re-acquisition and one retry; a second rejection surfaces as
// a TokenError.
func (c *B3Client) doRequest(ctx context.Context, method, reqPath string, params url.Values) (json.RawMessage, error) {
	token, err := c.tokens.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}

	page, status, err := c.send(ctx, method, reqPath, params, token)
	if err != nil {
		return nil, err
	}
	if status != http.StatusUnauthorized {
		return page, nil
	}

	// The token was rejected: refresh once and retry once.
	c.tokens.Invalidate(token)
	token, err = c.tokens.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}
	page, status, err = c.send(ctx, method, reqPath, params, token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, &TokenError{Err: fmt.Errorf("%s %s rejected a freshly acquired token", method, reqPath)}
	}
	return page, nil
}

// send issues a single HTTP call. Error pages are returned as pages, not
// errors: B3 reports semantic failures through code fields in the body.
func (c *B3Client) send(ctx context.Context, method, reqPath string, params url.Values, token *Token) (json.RawMessage, int, error) {
	reqURL := c.baseURL + "/" + reqPath
	if len(params) > 0 {
		reqURL = reqURL + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, 0, &RequestError{Method: method, URL: reqURL, Err: err}
	}
	req.Header.Set("Authorization", token.Authorization())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("B3 request failed",
			zap.String("method", method),
			zap.String("url", reqURL),
			zap.Error(err))
		return nil, 0, &RequestError{Method: method, URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &RequestError{Method: method, URL: reqURL, Err: err}
	}

	page := json.RawMessage(body)
	if !json.Valid(body) || len(body) == 0 {
		// Non-JSON bodies become synthetic error pages carrying the HTTP
		// status, matching the shape of B3's own error responses.
		message := strings.TrimSpace(string(body))
		if message == "" {
			message = "no message"
		}
		synthetic, _ := json.Marshal(map[string]string{
			"code":    fmt.Sprintf("%d", resp.StatusCode),
			"message": message,
		})
		page = synthetic
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Received bad status from B3",
			zap.String("method", method),
			zap.String("url", reqURL),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response", page))
	}
	return page, resp.StatusCode, nil
}

// codeString normalizes a page's code field, which B3 serializes sometimes
// as a string ("422.02") and sometimes as a bare number (429).
func codeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
