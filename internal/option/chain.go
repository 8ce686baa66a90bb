package option

import (
	"math"
	"time"

	"github.com/scmhub/calendar"
)

// Chain returns below+above+1 strikes spaced by increment and centered on the
// strike nearest to center. Halfway centers round to even.
func Chain(center, increment float64, above, below int) []float64 {
	if increment <= 0 || above < 0 || below < 0 {
		return nil
	}

	centerIndex := math.RoundToEven(center / increment)

	strikes := make([]float64, 0, above+below+1)
	for i := -below; i <= above; i++ {
		strikes = append(strikes, roundStrike((centerIndex+float64(i))*increment))
	}
	return strikes
}

// Symbols emits a call and a put symbol for every strike, in strike order.
func Symbols(prefix, expiration string, strikes []float64) []string {
	symbols := make([]string, 0, len(strikes)*2)
	for _, strike := range strikes {
		symbols = append(symbols,
			Encode(prefix, expiration, Call, strike),
			Encode(prefix, expiration, Put, strike),
		)
	}
	return symbols
}

// roundStrike trims binary noise from fractional increments (0.1 * 3).
func roundStrike(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// DefaultExpiration returns today's YYMMDD in New York time when NYSE trades
// today (0DTE), otherwise the next business day.
func DefaultExpiration(now time.Time) string {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}

	nyse := calendar.XNYS()
	day := now.In(loc)
	// Noon avoids DST edges when matching calendar dates.
	day = time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, loc)

	for i := 0; i < 10; i++ {
		if nyse.IsBusinessDay(day) {
			return day.Format(ExpirationLayout)
		}
		day = day.AddDate(0, 0, 1)
	}
	return now.In(loc).Format(ExpirationLayout)
}

// IsMarketDay reports whether NYSE trades on the New York date of t.
func IsMarketDay(t time.Time) bool {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	day := t.In(loc)
	day = time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, loc)
	return calendar.XNYS().IsBusinessDay(day)
}
