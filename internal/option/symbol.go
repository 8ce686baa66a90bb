package option

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Type is the option right.
type Type byte

const (
	Call Type = 'C'
	Put  Type = 'P'
)

func (t Type) String() string {
	switch t {
	case Call:
		return "call"
	case Put:
		return "put"
	default:
		return "unknown"
	}
}

// ExpirationLayout is the YYMMDD layout used inside feed symbols.
const ExpirationLayout = "060102"

// Symbol identifies a single option contract on the feed.
type Symbol struct {
	Prefix     string
	Expiration string // YYMMDD
	Type       Type
	Strike     float64
}

// Format: .{prefix}{YYMMDD}{C|P}{strike}
var symbolPattern = regexp.MustCompile(`^\.([A-Z0-9/]+?)(\d{6})([CP])(\d+(?:\.\d+)?)$`)

// Encode builds the feed symbol for a contract. Integral strikes carry no
// decimal part; fractional strikes use the shortest exact representation.
func Encode(prefix, expiration string, t Type, strike float64) string {
	return fmt.Sprintf(".%s%s%c%s", prefix, expiration, byte(t), FormatStrike(strike))
}

// FormatStrike renders a strike the way the feed expects it (680, 680.5).
func FormatStrike(strike float64) string {
	return strconv.FormatFloat(strike, 'f', -1, 64)
}

// String implements fmt.Stringer and returns the encoded feed symbol.
func (s Symbol) String() string {
	return Encode(s.Prefix, s.Expiration, s.Type, s.Strike)
}

// Parse decodes a feed symbol. It reports false for anything that is not an
// option symbol so callers can skip unrelated feed symbols.
func Parse(s string) (Symbol, bool) {
	m := symbolPattern.FindStringSubmatch(s)
	if m == nil {
		return Symbol{}, false
	}

	strike, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return Symbol{}, false
	}

	return Symbol{
		Prefix:     m[1],
		Expiration: m[2],
		Type:       Type(m[3][0]),
		Strike:     strike,
	}, true
}

// ExpirationDate parses the YYMMDD expiration.
func (s Symbol) ExpirationDate() (time.Time, error) {
	t, err := time.Parse(ExpirationLayout, s.Expiration)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing expiration %q: %w", s.Expiration, err)
	}
	return t, nil
}

// DisplayExpiration renders a YYMMDD expiration as "Jan 02, 2006", falling
// back to the raw value when it does not parse.
func DisplayExpiration(expiration string) string {
	t, err := time.Parse(ExpirationLayout, expiration)
	if err != nil {
		return expiration
	}
	return t.Format("Jan 02, 2006")
}
