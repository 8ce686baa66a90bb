// Package report renders a fetch cycle result as terminal tables.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dgnsrekt/gex-live/internal/cycle"
	"github.com/dgnsrekt/gex-live/internal/gex"
	"github.com/dgnsrekt/gex-live/internal/option"
	"github.com/dgnsrekt/gex-live/internal/strikes"
)

// IVSummary is the mean and median implied volatility per side. A side with
// no valid IV reports OK false.
type IVSummary struct {
	CallMean, CallMedian float64
	PutMean, PutMedian   float64
	CallOK, PutOK        bool
}

// Skew is put mean IV minus call mean IV.
func (s IVSummary) Skew() (float64, bool) {
	if !s.CallOK || !s.PutOK {
		return 0, false
	}
	return s.PutMean - s.CallMean, true
}

// SummarizeIV computes the IV summary over a strike table.
func SummarizeIV(table strikes.Table) IVSummary {
	calls, puts := table.IVs()

	var s IVSummary
	s.CallMean, s.CallMedian, s.CallOK = meanMedian(calls)
	s.PutMean, s.PutMedian, s.PutOK = meanMedian(puts)
	return s
}

func meanMedian(data []float64) (float64, float64, bool) {
	mean, err := stats.Mean(data)
	if err != nil {
		return 0, 0, false
	}
	median, err := stats.Median(data)
	if err != nil {
		return 0, 0, false
	}
	return mean, median, true
}

// TopCount is the number of rows in each top strikes table.
const TopCount = 10

// Render writes every section of the report.
func Render(w io.Writer, res *cycle.Result) {
	p := message.NewPrinter(language.English)

	Header(w, p, res)
	fmt.Fprintln(w)
	GEXTable(w, p, res.GEX, res.Spot.Value)
	fmt.Fprintln(w)
	StrikeTable(w, p, res.Strikes)
	fmt.Fprintln(w)
	TopStrikes(w, p, res.Strikes, TopCount)
	fmt.Fprintln(w)
	IV(w, SummarizeIV(res.Strikes))
}

// Header writes the summary metrics block.
func Header(w io.Writer, p *message.Printer, res *cycle.Result) {
	m := res.Metrics

	fmt.Fprintf(w, "%s GEX  %s  (%s)\n", res.Underlying, option.DisplayExpiration(res.Expiration), res.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Spot:            %s (%s)\n", p.Sprintf("%.2f", res.Spot.Value), res.Spot.Source)
	fmt.Fprintf(w, "Options tracked: %s\n", p.Sprintf("%d", m.NumOptions))
	fmt.Fprintf(w, "Call GEX:        %s\n", billions(m.TotalCallGEX))
	fmt.Fprintf(w, "Put GEX:         %s\n", billions(m.TotalPutGEX))
	fmt.Fprintf(w, "Net GEX:         %s\n", billions(m.NetGEX))
	fmt.Fprintf(w, "Max GEX strike:  %s\n", strikeOrNA(p, m.MaxGEXStrike))
	fmt.Fprintf(w, "Zero gamma:      %s\n", strikeOrNA(p, m.ZeroGamma))
	fmt.Fprintf(w, "P/C ratio (OI):  %s (%s)\n", res.PCROI, res.PCROI.Sentiment())
	fmt.Fprintf(w, "P/C ratio (Vol): %s (%s)\n", res.PCRVolume, res.PCRVolume.Sentiment())
}

// GEXTable writes one row per strike, marking the strike nearest spot.
func GEXTable(w io.Writer, p *message.Printer, rows []gex.StrikeGEX, spot float64) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Strike", "Call GEX", "Put GEX", "Net GEX", ""})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(false)

	atm := nearest(rows, spot)
	for i, row := range rows {
		marker := ""
		if i == atm {
			marker = "<- spot"
		}
		table.Append([]string{
			p.Sprintf("%.2f", row.Strike),
			billions(row.CallGEX),
			billions(row.PutGEX),
			billions(row.NetGEX),
			marker,
		})
	}
	table.Render()
}

// StrikeTable writes open interest, volume and IV per strike with a totals footer.
func StrikeTable(w io.Writer, p *message.Printer, rows strikes.Table) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Strike", "Call OI", "Put OI", "Call Vol", "Put Vol", "Call IV", "Put IV"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(false)

	for _, row := range rows {
		table.Append([]string{
			p.Sprintf("%.2f", row.Strike),
			p.Sprintf("%.0f", row.CallOI),
			p.Sprintf("%.0f", row.PutOI),
			p.Sprintf("%.0f", row.CallVolume),
			p.Sprintf("%.0f", row.PutVolume),
			percentOrNA(row.CallIV),
			percentOrNA(row.PutIV),
		})
	}

	totals := rows.Totals()
	table.SetFooter([]string{
		"Total",
		p.Sprintf("%.0f", totals.CallOI),
		p.Sprintf("%.0f", totals.PutOI),
		p.Sprintf("%.0f", totals.CallVolume),
		p.Sprintf("%.0f", totals.PutVolume),
		"",
		"",
	})
	table.Render()
}

// TopStrikes writes the n largest strikes by total open interest, by total
// volume and by put/call open interest ratio.
func TopStrikes(w io.Writer, p *message.Printer, rows strikes.Table, n int) {
	fmt.Fprintln(w, "Top strikes by total OI")
	byOI := newTable(w, "Strike", "Call OI", "Put OI", "Total OI")
	for _, row := range rows.Top(n, strikes.ByTotalOI) {
		byOI.Append([]string{
			p.Sprintf("%.2f", row.Strike),
			p.Sprintf("%.0f", row.CallOI),
			p.Sprintf("%.0f", row.PutOI),
			p.Sprintf("%.0f", row.TotalOI),
		})
	}
	byOI.Render()

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Top strikes by total volume")
	byVolume := newTable(w, "Strike", "Call Vol", "Put Vol", "Total Vol")
	for _, row := range rows.Top(n, strikes.ByTotalVolume) {
		byVolume.Append([]string{
			p.Sprintf("%.2f", row.Strike),
			p.Sprintf("%.0f", row.CallVolume),
			p.Sprintf("%.0f", row.PutVolume),
			p.Sprintf("%.0f", row.TotalVolume),
		})
	}
	byVolume.Render()

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Top strikes by put/call ratio")
	byRatio := newTable(w, "Strike", "P/C (OI)", "P/C (Vol)", "Total OI")
	for _, row := range rows.Top(n, strikes.ByPutCallOI) {
		byRatio.Append([]string{
			p.Sprintf("%.2f", row.Strike),
			fmt.Sprintf("%.2f", row.PutCallOI()),
			fmt.Sprintf("%.2f", row.PutCallVolume()),
			p.Sprintf("%.0f", row.TotalOI),
		})
	}
	byRatio.Render()
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(false)
	return table
}

// IV writes the implied volatility summary.
func IV(w io.Writer, s IVSummary) {
	var sb strings.Builder
	sb.WriteString("IV summary\n")
	if s.CallOK {
		sb.WriteString(fmt.Sprintf("  Calls: mean %.2f%%, median %.2f%%\n", s.CallMean*100, s.CallMedian*100))
	} else {
		sb.WriteString("  Calls: N/A\n")
	}
	if s.PutOK {
		sb.WriteString(fmt.Sprintf("  Puts:  mean %.2f%%, median %.2f%%\n", s.PutMean*100, s.PutMedian*100))
	} else {
		sb.WriteString("  Puts:  N/A\n")
	}
	if skew, ok := s.Skew(); ok {
		sb.WriteString(fmt.Sprintf("  Skew (put - call): %+.2f pts\n", skew*100))
	}
	fmt.Fprint(w, sb.String())
}

func nearest(rows []gex.StrikeGEX, spot float64) int {
	best := -1
	for i, row := range rows {
		if best < 0 || math.Abs(row.Strike-spot) < math.Abs(rows[best].Strike-spot) {
			best = i
		}
	}
	return best
}

func billions(v float64) string {
	return fmt.Sprintf("%.3fB", v/1e9)
}

func strikeOrNA(p *message.Printer, v *float64) string {
	if v == nil {
		return "N/A"
	}
	return p.Sprintf("%.2f", *v)
}

func percentOrNA(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *v*100)
}
