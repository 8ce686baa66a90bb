// Package strikes regroups per-symbol option records into one row per strike.
package strikes

import (
	"math"
	"sort"

	"github.com/dgnsrekt/gex-live/internal/collect"
	"github.com/dgnsrekt/gex-live/internal/option"
)

// Row is the call/put open interest, volume and IV at one strike.
type Row struct {
	Strike      float64  `json:"strike"`
	CallOI      float64  `json:"call_oi"`
	PutOI       float64  `json:"put_oi"`
	CallVolume  float64  `json:"call_volume"`
	PutVolume   float64  `json:"put_volume"`
	CallIV      *float64 `json:"call_iv,omitempty"`
	PutIV       *float64 `json:"put_iv,omitempty"`
	TotalOI     float64  `json:"total_oi"`
	TotalVolume float64  `json:"total_volume"`
}

// Table is the strike rows of one cycle, ascending by strike.
type Table []Row

// Aggregate builds the strike table. Symbols that do not decode as options
// are skipped. Missing or NaN open interest and volume count as zero and a
// NaN IV counts as absent.
func Aggregate(records collect.Records) Table {
	byStrike := make(map[float64]*Row)

	for symbol, rec := range records {
		sym, ok := option.Parse(symbol)
		if !ok || rec == nil {
			continue
		}

		row, ok := byStrike[sym.Strike]
		if !ok {
			row = &Row{Strike: sym.Strike}
			byStrike[sym.Strike] = row
		}

		oi := orZero(rec.OpenInterest)
		volume := orZero(rec.Volume)
		iv := validIV(rec.IV)

		switch sym.Type {
		case option.Call:
			row.CallOI += oi
			row.CallVolume += volume
			if iv != nil {
				row.CallIV = iv
			}
		case option.Put:
			row.PutOI += oi
			row.PutVolume += volume
			if iv != nil {
				row.PutIV = iv
			}
		}
	}

	table := make(Table, 0, len(byStrike))
	for _, row := range byStrike {
		row.TotalOI = row.CallOI + row.PutOI
		row.TotalVolume = row.CallVolume + row.PutVolume
		table = append(table, *row)
	}
	sort.Slice(table, func(i, j int) bool {
		return table[i].Strike < table[j].Strike
	})

	return table
}

// Totals sums the table's open interest and volume.
type Totals struct {
	CallOI     float64 `json:"call_oi"`
	PutOI      float64 `json:"put_oi"`
	CallVolume float64 `json:"call_volume"`
	PutVolume  float64 `json:"put_volume"`
}

func (t Table) Totals() Totals {
	var totals Totals
	for _, row := range t {
		totals.CallOI += row.CallOI
		totals.PutOI += row.PutOI
		totals.CallVolume += row.CallVolume
		totals.PutVolume += row.PutVolume
	}
	return totals
}

// PutCallRatioOI is put over call open interest.
func (t Table) PutCallRatioOI() Ratio {
	totals := t.Totals()
	return NewRatio(totals.PutOI, totals.CallOI)
}

// PutCallRatioVolume is put over call volume.
func (t Table) PutCallRatioVolume() Ratio {
	totals := t.Totals()
	return NewRatio(totals.PutVolume, totals.CallVolume)
}

// RankKey selects the value Top orders rows by.
type RankKey int

const (
	ByTotalOI RankKey = iota
	ByTotalVolume
	ByPutCallOI
)

// PutCallOI is put over call open interest at this strike. With no call
// open interest the put side is divided by one.
func (r Row) PutCallOI() float64 {
	return r.PutOI / atLeastOne(r.CallOI)
}

// PutCallVolume is put over call volume, with the same zero handling as
// PutCallOI.
func (r Row) PutCallVolume() float64 {
	return r.PutVolume / atLeastOne(r.CallVolume)
}

func (r Row) rank(key RankKey) float64 {
	switch key {
	case ByTotalVolume:
		return r.TotalVolume
	case ByPutCallOI:
		return r.PutCallOI()
	default:
		return r.TotalOI
	}
}

// Top returns up to n rows with the largest key, largest first. Equal rows
// keep ascending strike order. The receiver is not modified.
func (t Table) Top(n int, key RankKey) Table {
	if n <= 0 {
		return nil
	}

	ranked := make(Table, len(t))
	copy(ranked, t)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].rank(key) > ranked[j].rank(key)
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// IVs returns the present call and put IVs, ascending by strike.
func (t Table) IVs() (calls, puts []float64) {
	for _, row := range t {
		if row.CallIV != nil {
			calls = append(calls, *row.CallIV)
		}
		if row.PutIV != nil {
			puts = append(puts, *row.PutIV)
		}
	}
	return calls, puts
}

func atLeastOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

func orZero(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return *v
}

func validIV(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	iv := *v
	return &iv
}
