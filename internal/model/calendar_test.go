package model

import (
	"sort"
	"testing"

	"github.com/shopspring/decimal"
)

func testRecord(date, ticker string) MovementRecord {
	return MovementRecord{
		ReferenceDate:             date,
		ProductCategory:           "Renda Variável",
		ProductTypeName:           "Ações",
		MovementType:              "Compra",
		OperationType:             "Crédito",
		TickerSymbol:              ticker,
		CorporationName:           ticker + " S.A.",
		ParticipantName:           "Corretora",
		ParticipantDocumentNumber: "88888888888",
		Quantity:                  15,
		UnitPrice:                 decimal.RequireFromString("7.90"),
		OperationValue:            decimal.RequireFromString("118.50"),
	}
}

func TestToCalendar(t *testing.T) {
	t.Run("partitions by zero-padded year month day", func(t *testing.T) {
		records := []MovementRecord{
			testRecord("2024-01-05", "PETR4"),
			testRecord("2024-01-05", "VALE3"),
			testRecord("2024-01-20", "ITUB4"),
		}
		idx := ToCalendar(records)

		if got := len(idx["2024"]["01"]["05"]); got != 2 {
			t.Errorf("day 2024/01/05 has %d records, want 2", got)
		}
		if got := len(idx["2024"]["01"]["20"]); got != 1 {
			t.Errorf("day 2024/01/20 has %d records, want 1", got)
		}
	})

	t.Run("pads single digit month and day keys", func(t *testing.T) {
		idx := ToCalendar([]MovementRecord{testRecord("2024-3-7", "PETR4")})
		if got := len(idx["2024"]["03"]["07"]); got != 1 {
			t.Fatalf("expected record under 2024/03/07, index: %v", idx)
		}
	})

	t.Run("orders a day deterministically by ticker", func(t *testing.T) {
		idx := ToCalendar([]MovementRecord{
			testRecord("2024-01-05", "VALE3"),
			testRecord("2024-01-05", "PETR4"),
		})
		day := idx["2024"]["01"]["05"]
		if day[0].TickerSymbol != "PETR4" || day[1].TickerSymbol != "VALE3" {
			t.Errorf("day order = %s, %s; want PETR4, VALE3", day[0].TickerSymbol, day[1].TickerSymbol)
		}
	})

	t.Run("drops records with unparseable dates", func(t *testing.T) {
		idx := ToCalendar([]MovementRecord{testRecord("not-a-date", "PETR4")})
		if len(idx) != 0 {
			t.Errorf("expected empty index, got %v", idx)
		}
	})
}

func TestFlattenRoundTrip(t *testing.T) {
	records := []MovementRecord{
		testRecord("2023-12-31", "PETR4"),
		testRecord("2024-01-05", "VALE3"),
		testRecord("2024-01-05", "PETR4"),
		testRecord("2024-02-10", "ITUB4"),
	}
	flat := ToCalendar(records).Flatten()
	if len(flat) != len(records) {
		t.Fatalf("round trip lost records: got %d, want %d", len(flat), len(records))
	}

	want := make([]string, 0, len(records))
	for _, r := range records {
		want = append(want, r.Key())
	}
	got := make([]string, 0, len(flat))
	for _, r := range flat {
		got = append(got, r.Key())
	}
	sort.Strings(want)
	sort.Strings(got)
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("round trip changed record multiset at %d:\n got %q\nwant %q", i, got[i], want[i])
		}
	}
}

func TestLatestDate(t *testing.T) {
	t.Run("returns the maximum reference date", func(t *testing.T) {
		idx := ToCalendar([]MovementRecord{
			testRecord("2024-01-05", "PETR4"),
			testRecord("2024-02-28", "VALE3"),
			testRecord("2023-12-31", "ITUB4"),
		})
		latest, ok := idx.LatestDate()
		if !ok {
			t.Fatal("expected a latest date")
		}
		if latest != "2024-02-28" {
			t.Errorf("latest = %s, want 2024-02-28", latest)
		}
	})

	t.Run("reports empty index", func(t *testing.T) {
		if _, ok := (CalendarIndex{}).LatestDate(); ok {
			t.Error("empty index reported a latest date")
		}
	})
}

func TestMergeRecords(t *testing.T) {
	t.Run("appends new records and reports them", func(t *testing.T) {
		cached := []MovementRecord{testRecord("2024-01-05", "PETR4")}
		delta := []MovementRecord{
			testRecord("2024-01-10", "VALE3"),
			testRecord("2024-01-11", "ITUB4"),
		}
		merged, added := MergeRecords(cached, delta)
		if len(merged) != 3 {
			t.Errorf("merged has %d records, want 3", len(merged))
		}
		if len(added) != 2 {
			t.Errorf("added has %d records, want 2", len(added))
		}
	})

	t.Run("treats exact duplicates as no-ops", func(t *testing.T) {
		cached := []MovementRecord{testRecord("2024-01-05", "PETR4")}
		delta := []MovementRecord{
			testRecord("2024-01-05", "PETR4"),
			testRecord("2024-01-10", "VALE3"),
			testRecord("2024-01-10", "VALE3"),
		}
		merged, added := MergeRecords(cached, delta)
		if len(merged) != 2 {
			t.Errorf("merged has %d records, want 2", len(merged))
		}
		if len(added) != 1 {
			t.Errorf("added has %d records, want 1", len(added))
		}
	})

	t.Run("keeps distinct records on the same day", func(t *testing.T) {
		cached := []MovementRecord{testRecord("2024-01-05", "PETR4")}
		other := testRecord("2024-01-05", "PETR4")
		other.Quantity = 30
		merged, added := MergeRecords(cached, []MovementRecord{other})
		if len(merged) != 2 || len(added) != 1 {
			t.Errorf("merged=%d added=%d, want 2 and 1", len(merged), len(added))
		}
	})
}
