// Package gex computes dealer gamma exposure per strike and the zero-gamma
// flip level for one spot snapshot.
package gex

import (
	"math"
	"sort"

	"github.com/dgnsrekt/gex-live/internal/collect"
	"github.com/dgnsrekt/gex-live/internal/option"
)

// ContractMultiplier is the number of shares per option contract.
const ContractMultiplier = 100

// movePct scales exposure to a 1% move in the underlying.
const movePct = 0.01

// StrikeGEX is the exposure at one strike. PutGEX is a magnitude;
// NetGEX is CallGEX minus PutGEX.
type StrikeGEX struct {
	Strike  float64 `json:"strike"`
	CallGEX float64 `json:"call_gex"`
	PutGEX  float64 `json:"put_gex"`
	NetGEX  float64 `json:"net_gex"`
}

// Metrics summarizes exposure across all strikes.
type Metrics struct {
	NumOptions   int      `json:"num_options"`
	TotalCallGEX float64  `json:"total_call_gex"`
	TotalPutGEX  float64  `json:"total_put_gex"`
	NetGEX       float64  `json:"net_gex"`
	MaxGEXStrike *float64 `json:"max_gex_strike,omitempty"`
	ZeroGamma    *float64 `json:"zero_gamma,omitempty"`
}

type contribution struct {
	strike float64
	typ    option.Type
	gex    float64 // signed: calls positive, puts negative
}

// Calculator accumulates per-symbol contributions at a fixed spot. It
// belongs to one fetch cycle and is not safe for concurrent use.
type Calculator struct {
	spot          float64
	contributions map[string]contribution
}

func NewCalculator(spot float64) *Calculator {
	return &Calculator{
		spot:          spot,
		contributions: make(map[string]contribution),
	}
}

// FromRecords feeds every collected record into a new Calculator.
func FromRecords(spot float64, records collect.Records) *Calculator {
	c := NewCalculator(spot)
	for symbol, rec := range records {
		if rec == nil {
			continue
		}
		c.UpdateGamma(symbol, rec.Gamma, rec.OpenInterest)
	}
	return c
}

// Spot returns the price the exposure is computed at.
func (c *Calculator) Spot() float64 {
	return c.spot
}

// UpdateGamma records the exposure of one option symbol, replacing any
// earlier value for it. It reports false, and records nothing, when gamma
// or open interest is missing or not a number, or the symbol is not an
// option.
func (c *Calculator) UpdateGamma(symbol string, gamma, openInterest *float64) bool {
	if !usable(gamma) || !usable(openInterest) {
		return false
	}
	sym, ok := option.Parse(symbol)
	if !ok {
		return false
	}

	gex := Exposure(*gamma, *openInterest, c.spot)
	if sym.Type == option.Put {
		gex = -gex
	}
	c.contributions[symbol] = contribution{strike: sym.Strike, typ: sym.Type, gex: gex}
	return true
}

// Exposure is the unsigned dollar gamma of a position for a 1% move.
func Exposure(gamma, openInterest, spot float64) float64 {
	return gamma * openInterest * ContractMultiplier * spot * spot * movePct
}

// GEXByStrike returns per-strike exposure, ascending by strike.
func (c *Calculator) GEXByStrike() []StrikeGEX {
	byStrike := make(map[float64]*StrikeGEX)
	for _, contrib := range c.contributions {
		row, ok := byStrike[contrib.strike]
		if !ok {
			row = &StrikeGEX{Strike: contrib.strike}
			byStrike[contrib.strike] = row
		}
		if contrib.typ == option.Put {
			row.PutGEX += -contrib.gex
		} else {
			row.CallGEX += contrib.gex
		}
	}

	rows := make([]StrikeGEX, 0, len(byStrike))
	for _, row := range byStrike {
		row.NetGEX = row.CallGEX - row.PutGEX
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Strike < rows[j].Strike
	})
	return rows
}

// TotalMetrics aggregates exposure across all strikes.
func (c *Calculator) TotalMetrics() Metrics {
	rows := c.GEXByStrike()
	m := Metrics{NumOptions: len(c.contributions)}

	maxAbs := -1.0
	for _, row := range rows {
		m.TotalCallGEX += row.CallGEX
		m.TotalPutGEX += row.PutGEX
		m.NetGEX += row.NetGEX

		// Strict comparison keeps the lowest strike on ties.
		if abs := math.Abs(row.NetGEX); abs > maxAbs {
			maxAbs = abs
			strike := row.Strike
			m.MaxGEXStrike = &strike
		}
	}

	m.ZeroGamma = ZeroGamma(rows)
	return m
}

// ZeroGamma finds where the cumulative net exposure, summed upward from the
// lowest strike, first changes sign, interpolating linearly between the two
// bracketing strikes. rows must be ascending by strike. It returns nil when
// the cumulative sum never changes sign.
func ZeroGamma(rows []StrikeGEX) *float64 {
	if len(rows) < 2 {
		return nil
	}

	prev := rows[0].NetGEX
	for i := 1; i < len(rows); i++ {
		cur := prev + rows[i].NetGEX
		if (prev > 0 && cur <= 0) || (prev < 0 && cur >= 0) {
			lo, hi := rows[i-1].Strike, rows[i].Strike
			level := lo + (hi-lo)*(prev/(prev-cur))
			return &level
		}
		prev = cur
	}
	return nil
}

func usable(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
