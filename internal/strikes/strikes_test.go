package strikes

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/dgnsrekt/gex-live/internal/collect"
)

func f(v float64) *float64 { return &v }

func TestAggregateSummaryOnly(t *testing.T) {
	records := collect.Records{
		".SPXW251114P6000": {OpenInterest: f(150)},
	}

	table := Aggregate(records)
	if len(table) != 1 {
		t.Fatalf("expected 1 row, got %d", len(table))
	}

	row := table[0]
	if row.Strike != 6000 {
		t.Errorf("expected strike 6000, got %v", row.Strike)
	}
	if row.PutOI != 150 || row.CallOI != 0 {
		t.Errorf("expected put OI 150 and call OI 0, got %v/%v", row.PutOI, row.CallOI)
	}
	if row.PutVolume != 0 || row.TotalVolume != 0 {
		t.Errorf("expected zero volume, got %v", row.TotalVolume)
	}
	if row.PutIV != nil || row.CallIV != nil {
		t.Error("expected no IV")
	}
}

func TestAggregateGroupsAndSorts(t *testing.T) {
	records := collect.Records{
		".SPXW251114C6005": {OpenInterest: f(100), Volume: f(10), IV: f(0.15)},
		".SPXW251114P6005": {OpenInterest: f(300), Volume: f(30), IV: f(0.17)},
		".SPXW251114C5995": {OpenInterest: f(50), Volume: f(5), IV: f(math.NaN())},
		".SPXW251114P5995": {OpenInterest: f(math.NaN()), Volume: f(math.NaN())},
		"SPX":              {Volume: f(1_000_000)},
		".BAD":             {OpenInterest: f(1)},
		".SPXW251114C6000": nil,
	}

	table := Aggregate(records)
	if len(table) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table))
	}
	if table[0].Strike != 5995 || table[1].Strike != 6005 {
		t.Fatalf("expected strikes 5995, 6005, got %v, %v", table[0].Strike, table[1].Strike)
	}

	low := table[0]
	if low.CallOI != 50 || low.PutOI != 0 || low.TotalOI != 50 {
		t.Errorf("expected NaN OI coerced to zero, got %+v", low)
	}
	if low.CallIV != nil {
		t.Errorf("expected NaN IV to be absent, got %v", *low.CallIV)
	}

	high := table[1]
	if high.TotalOI != 400 || high.TotalVolume != 40 {
		t.Errorf("expected totals 400/40, got %v/%v", high.TotalOI, high.TotalVolume)
	}
	if high.CallIV == nil || *high.CallIV != 0.15 || high.PutIV == nil || *high.PutIV != 0.17 {
		t.Errorf("expected IVs 0.15/0.17, got %v/%v", high.CallIV, high.PutIV)
	}

	calls, puts := table.IVs()
	if len(calls) != 1 || len(puts) != 1 {
		t.Errorf("expected one IV per side, got %v and %v", calls, puts)
	}
}

func TestAggregateEmpty(t *testing.T) {
	table := Aggregate(nil)
	if len(table) != 0 {
		t.Errorf("expected empty table, got %d rows", len(table))
	}
	if table.PutCallRatioOI().OK {
		t.Error("expected no ratio for an empty table")
	}
}

func TestPutCallRatios(t *testing.T) {
	table := Table{
		{Strike: 6000, CallOI: 1000, PutOI: 1200, CallVolume: 0, PutVolume: 50},
		{Strike: 6005, CallOI: 1000, PutOI: 800},
	}

	oi := table.PutCallRatioOI()
	if !oi.OK || oi.Value != 1.0 {
		t.Errorf("expected OI ratio 1.0, got %+v", oi)
	}
	if oi.String() != "1.00" {
		t.Errorf("expected 1.00, got %s", oi.String())
	}

	vol := table.PutCallRatioVolume()
	if vol.OK {
		t.Errorf("expected no volume ratio with zero call volume, got %+v", vol)
	}
	if vol.String() != "N/A" || vol.Sentiment() != "N/A" {
		t.Errorf("expected N/A, got %s / %s", vol.String(), vol.Sentiment())
	}
}

func TestTop(t *testing.T) {
	table := Table{
		{Strike: 5990, CallOI: 0, PutOI: 400, CallVolume: 10, PutVolume: 5, TotalOI: 400, TotalVolume: 15},
		{Strike: 5995, CallOI: 500, PutOI: 500, CallVolume: 90, PutVolume: 10, TotalOI: 1000, TotalVolume: 100},
		{Strike: 6000, CallOI: 1500, PutOI: 1500, CallVolume: 20, PutVolume: 20, TotalOI: 3000, TotalVolume: 40},
		{Strike: 6005, CallOI: 200, PutOI: 800, CallVolume: 0, PutVolume: 0, TotalOI: 1000, TotalVolume: 0},
	}

	tests := []struct {
		name string
		key  RankKey
		n    int
		want []float64
	}{
		{"by total OI", ByTotalOI, 3, []float64{6000, 5995, 6005}},
		{"by total volume", ByTotalVolume, 2, []float64{5995, 6000}},
		{"by put/call OI", ByPutCallOI, 4, []float64{5990, 6005, 5995, 6000}},
		{"more than available", ByTotalOI, 10, []float64{6000, 5995, 6005, 5990}},
	}

	for _, tt := range tests {
		got := table.Top(tt.n, tt.key)
		if len(got) != len(tt.want) {
			t.Errorf("%s: expected %d rows, got %d", tt.name, len(tt.want), len(got))
			continue
		}
		for i, strike := range tt.want {
			if got[i].Strike != strike {
				t.Errorf("%s: row %d: expected strike %v, got %v", tt.name, i, strike, got[i].Strike)
			}
		}
	}

	if table[0].Strike != 5990 {
		t.Error("expected Top to leave the table in strike order")
	}
	if got := table.Top(0, ByTotalOI); got != nil {
		t.Errorf("expected no rows for n=0, got %v", got)
	}
}

func TestRowPutCallNoCalls(t *testing.T) {
	row := Row{Strike: 5990, PutOI: 400, PutVolume: 5}
	if got := row.PutCallOI(); got != 400 {
		t.Errorf("expected put OI over one, got %v", got)
	}
	if got := row.PutCallVolume(); got != 5 {
		t.Errorf("expected put volume over one, got %v", got)
	}
	if got := (Row{}).PutCallOI(); got != 0 {
		t.Errorf("expected zero for an empty strike, got %v", got)
	}
}

func TestSentiment(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{0.5, SentimentBullish},
		{0.7, SentimentNeutralBullish},
		{0.99, SentimentNeutralBullish},
		{1.0, SentimentNeutralBearish},
		{1.29, SentimentNeutralBearish},
		{1.3, SentimentBearish},
		{2.5, SentimentBearish},
	}

	for _, tt := range tests {
		got := Ratio{Value: tt.value, OK: true}.Sentiment()
		if got != tt.want {
			t.Errorf("ratio %v: expected %s, got %s", tt.value, tt.want, got)
		}
	}
}

func TestRatioJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Ratio `json:"a"`
		B Ratio `json:"b"`
	}{NewRatio(3, 2), NewRatio(1, 0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"a":1.5,"b":null}` {
		t.Errorf("unexpected JSON: %s", data)
	}

	var r Ratio
	if err := json.Unmarshal([]byte("null"), &r); err != nil || r.OK {
		t.Errorf("expected null to decode as missing, got %+v (%v)", r, err)
	}
}
