package faker

import (
	"math"

	"github.com/dgnsrekt/gex-live/internal/dxlink"
	"github.com/dgnsrekt/gex-live/internal/option"
)

// Market is a deterministic synthetic options market around a fixed spot.
// Gamma peaks at the money, put open interest dominates below spot and call
// open interest above it, so the net GEX profile has a flip near spot.
type Market struct {
	Underlying string
	Spot       float64

	// GammaPeak is the at-the-money gamma. Defaults to 0.01.
	GammaPeak float64
	// Width is the strike distance of one standard move. Defaults to 1% of spot.
	Width float64

	// NoTrades suppresses underlying Trade events so clients fall back to quotes.
	NoTrades bool
	// Drop, when set, suppresses individual (symbol, kind) events.
	Drop func(symbol string, kind dxlink.EventType) bool
}

// Event builds the current event for a subscription. It reports false when
// the market has nothing for that symbol and kind.
func (m *Market) Event(sub dxlink.Subscription) (dxlink.Event, bool) {
	if m.Drop != nil && m.Drop(sub.Symbol, sub.Type) {
		return dxlink.Event{}, false
	}

	if sub.Symbol == m.Underlying {
		return m.underlyingEvent(sub.Type)
	}

	sym, ok := option.Parse(sub.Symbol)
	if !ok {
		return dxlink.Event{}, false
	}
	return m.optionEvent(sub.Symbol, sym, sub.Type)
}

func (m *Market) underlyingEvent(kind dxlink.EventType) (dxlink.Event, bool) {
	ev := dxlink.Event{EventSymbol: m.Underlying, EventType: kind}

	switch kind {
	case dxlink.EventTrade:
		if m.NoTrades {
			return dxlink.Event{}, false
		}
		ev.Price = dxlink.NewNumber(m.Spot)
		ev.DayVolume = dxlink.NewNumber(1_250_000)
	case dxlink.EventQuote:
		ev.BidPrice = dxlink.NewNumber(m.Spot - 0.25)
		ev.AskPrice = dxlink.NewNumber(m.Spot + 0.25)
	default:
		return dxlink.Event{}, false
	}
	return ev, true
}

func (m *Market) optionEvent(symbol string, sym option.Symbol, kind dxlink.EventType) (dxlink.Event, bool) {
	ev := dxlink.Event{EventSymbol: symbol, EventType: kind}
	x := (m.Spot - sym.Strike) / m.width()

	switch kind {
	case dxlink.EventGreeks:
		ev.Gamma = dxlink.NewNumber(round6(m.gammaPeak() * math.Exp(-0.5*x*x)))
		callDelta := logistic(1.7 * x)
		if sym.Type == option.Call {
			ev.Delta = dxlink.NewNumber(round6(callDelta))
		} else {
			ev.Delta = dxlink.NewNumber(round6(callDelta - 1))
		}
		ev.Volatility = dxlink.NewNumber(round6(math.Max(0.05, 0.18+0.5*(m.Spot-sym.Strike)/m.Spot)))

	case dxlink.EventSummary:
		ev.OpenInterest = dxlink.NewNumber(m.openInterest(sym.Type, x))

	case dxlink.EventTrade:
		oi := m.openInterest(sym.Type, x)
		ev.Price = dxlink.NewNumber(round6(math.Max(0.05, m.width()*0.4*math.Exp(-0.5*x*x))))
		ev.DayVolume = dxlink.NewNumber(math.Round(oi * 0.3))

	default:
		return dxlink.Event{}, false
	}
	return ev, true
}

func (m *Market) openInterest(t option.Type, x float64) float64 {
	if t == option.Call {
		return math.Round(500 + 1500*logistic(-x))
	}
	return math.Round(500 + 3000*logistic(x))
}

func (m *Market) gammaPeak() float64 {
	if m.GammaPeak > 0 {
		return m.GammaPeak
	}
	return 0.01
}

func (m *Market) width() float64 {
	if m.Width > 0 {
		return m.Width
	}
	return m.Spot * 0.01
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
