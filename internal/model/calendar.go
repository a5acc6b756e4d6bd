package model

import "sort"

// CalendarIndex is the three-level view of movements: year ("2024") →
// month ("01") → day ("05") → movements for the day. Month and day keys are
// always zero-padded to two digits. The same shape is used for the HTTP
// response and as the storage layout under movements/{document}/{market}.
type CalendarIndex map[string]map[string]map[string][]MovementRecord

// ToCalendar partitions records by year, month and day. Within a day,
// records keep discovery order, then are stable-sorted by ticker symbol and
// movement type so repeated syncs produce identical output regardless of
// page completion order.
func ToCalendar(records []MovementRecord) CalendarIndex {
	idx := CalendarIndex{}
	for _, r := range records {
		idx.Add(r)
	}
	for _, months := range idx {
		for _, days := range months {
			for day := range days {
				movements := days[day]
				sort.SliceStable(movements, func(i, j int) bool {
					if movements[i].TickerSymbol != movements[j].TickerSymbol {
						return movements[i].TickerSymbol < movements[j].TickerSymbol
					}
					return movements[i].MovementType < movements[j].MovementType
				})
			}
		}
	}
	return idx
}

// Add appends one record to the index. Records with an unparseable
// reference date are dropped.
func (ci CalendarIndex) Add(r MovementRecord) {
	year, month, day, ok := r.DateParts()
	if !ok {
		return
	}
	if ci[year] == nil {
		ci[year] = map[string]map[string][]MovementRecord{}
	}
	if ci[year][month] == nil {
		ci[year][month] = map[string][]MovementRecord{}
	}
	ci[year][month][day] = append(ci[year][month][day], r)
}

// Flatten returns every record in the index as a flat slice. The inverse of
// ToCalendar up to ordering.
func (ci CalendarIndex) Flatten() []MovementRecord {
	var out []MovementRecord
	for _, year := range sortedKeys(ci) {
		months := ci[year]
		for _, month := range sortedKeys(months) {
			days := months[month]
			for _, day := range sortedKeys(days) {
				out = append(out, days[day]...)
			}
		}
	}
	return out
}

// LatestDate returns the maximum (year, month, day) present in the index as
// a YYYY-MM-DD string. ok is false when the index holds no records; the
// caller substitutes the retention edge.
func (ci CalendarIndex) LatestDate() (date string, ok bool) {
	var best string
	for year, months := range ci {
		for month, days := range months {
			for day, movements := range days {
				if len(movements) == 0 {
					continue
				}
				d := year + "-" + month + "-" + day
				if d > best {
					best = d
				}
			}
		}
	}
	return best, best != ""
}

// MergeRecords appends delta records to cached, dropping any delta record
// already present by full-field identity. The remote is not contractually
// gap-free, so exact duplicates are treated as idempotent no-ops. Returns
// the merged set and the delta records actually added.
func MergeRecords(cached, delta []MovementRecord) (merged, added []MovementRecord) {
	seen := make(map[string]struct{}, len(cached))
	for _, r := range cached {
		seen[r.Key()] = struct{}{}
	}
	merged = append(merged, cached...)
	for _, r := range delta {
		if _, dup := seen[r.Key()]; dup {
			continue
		}
		seen[r.Key()] = struct{}{}
		merged = append(merged, r)
		added = append(added, r)
	}
	return merged, added
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
