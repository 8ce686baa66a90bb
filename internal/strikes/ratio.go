package strikes

import (
	"encoding/json"
	"strconv"
)

// Sentiment bands for a put/call ratio.
const (
	SentimentBullish        = "Bullish"
	SentimentNeutralBullish = "Neutral-Bullish"
	SentimentNeutralBearish = "Neutral-Bearish"
	SentimentBearish        = "Bearish"
	SentimentNA             = "N/A"
)

// Ratio is a put/call ratio. OK is false when the call side is zero.
type Ratio struct {
	Value float64
	OK    bool
}

// NewRatio divides puts by calls, reporting no value for a zero denominator.
func NewRatio(puts, calls float64) Ratio {
	if calls == 0 {
		return Ratio{}
	}
	return Ratio{Value: puts / calls, OK: true}
}

func (r Ratio) String() string {
	if !r.OK {
		return "N/A"
	}
	return strconv.FormatFloat(r.Value, 'f', 2, 64)
}

// Sentiment maps the ratio onto the usual contrarian bands.
func (r Ratio) Sentiment() string {
	switch {
	case !r.OK:
		return SentimentNA
	case r.Value < 0.7:
		return SentimentBullish
	case r.Value < 1.0:
		return SentimentNeutralBullish
	case r.Value < 1.3:
		return SentimentNeutralBearish
	default:
		return SentimentBearish
	}
}

// MarshalJSON renders a missing ratio as null.
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.OK {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

func (r *Ratio) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = Ratio{}
		return nil
	}
	if err := json.Unmarshal(b, &r.Value); err != nil {
		return err
	}
	r.OK = true
	return nil
}
