package model

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DateFormat is the wire and storage format for reference dates.
const DateFormat = "2006-01-02"

// MovementRecord is a single financial event (trade, transfer) reported by
// B3 for one document and market type. Monetary values are fixed-point
// decimals and serialize as quoted strings, never floats.
type MovementRecord struct {
	ReferenceDate             string          `json:"reference_date"`
	ProductCategory           string          `json:"product_category"`
	ProductTypeName           string          `json:"product_type_name"`
	MovementType              string          `json:"movement_type"`
	OperationType             string          `json:"operation_type"`
	TickerSymbol              string          `json:"ticker_symbol"`
	CorporationName           string          `json:"corporation_name"`
	ParticipantName           string          `json:"participant_name"`
	ParticipantDocumentNumber string          `json:"participant_document_number"`
	Quantity                  int64           `json:"quantity"`
	UnitPrice                 decimal.Decimal `json:"unit_price"`
	OperationValue            decimal.Decimal `json:"operation_value"`
}

// DateParts splits the record's reference date (YYYY-MM-DD) into its
// year, month and day components. Month and day are zero-padded to width 2,
// the year is 4 digits.
func (m MovementRecord) DateParts() (year, month, day string, ok bool) {
	parts := strings.Split(m.ReferenceDate, "-")
	if len(parts) != 3 {
		return "", "", "", false
	}
	y, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", "", "", false
	}
	mo, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", "", "", false
	}
	d, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", "", "", false
	}
	return pad(y, 4), pad(mo, 2), pad(d, 2), true
}

// Key builds a composite identity for the record. B3 assigns no unique id
// to movements, so identity is exact equality over every field.
func (m MovementRecord) Key() string {
	return strings.Join([]string{
		m.ReferenceDate,
		m.ProductCategory,
		m.ProductTypeName,
		m.MovementType,
		m.OperationType,
		m.TickerSymbol,
		m.CorporationName,
		m.ParticipantName,
		m.ParticipantDocumentNumber,
		strconv.FormatInt(m.Quantity, 10),
		m.UnitPrice.String(),
		m.OperationValue.String(),
	}, "|")
}

func pad(n, width int) string {
	s := strconv.Itoa(n)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// MovementsGrouped is the calendar-indexed view returned to callers.
type MovementsGrouped struct {
	Document   string        `json:"document"`
	MarketType string        `json:"market_type"`
	Movements  CalendarIndex `json:"movements"`
}
