package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/gex-live/internal/cycle"
)

// FormatSuccessMessage creates a success notification body.
func FormatSuccessMessage(res *cycle.Result) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Spot: %s\n", res.Spot))
	sb.WriteString(fmt.Sprintf("Options: %d\n", res.Metrics.NumOptions))
	sb.WriteString(fmt.Sprintf("Net GEX: %.2fB\n", res.Metrics.NetGEX/1e9))
	if res.Metrics.MaxGEXStrike != nil {
		sb.WriteString(fmt.Sprintf("Max GEX strike: %.2f\n", *res.Metrics.MaxGEXStrike))
	}
	if res.Metrics.ZeroGamma != nil {
		sb.WriteString(fmt.Sprintf("Zero gamma: %.2f\n", *res.Metrics.ZeroGamma))
	} else {
		sb.WriteString("Zero gamma: none\n")
	}
	sb.WriteString(fmt.Sprintf("P/C (OI): %s (%s)\n", res.PCROI, res.PCROI.Sentiment()))
	sb.WriteString(fmt.Sprintf("Duration: %s", res.Duration().Round(time.Millisecond)))

	return sb.String()
}

// FormatFailureMessage creates a failure notification body.
func FormatFailureMessage(underlying string, duration time.Duration, err error) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Underlying: %s\n", underlying))
	sb.WriteString(fmt.Sprintf("Duration: %s", duration.Round(time.Millisecond)))

	if err != nil {
		sb.WriteString(fmt.Sprintf("\n\nError: %v", err))
	}

	return sb.String()
}
