package export

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgnsrekt/gex-live/internal/collect"
	"github.com/dgnsrekt/gex-live/internal/cycle"
	"github.com/dgnsrekt/gex-live/internal/gex"
	"github.com/dgnsrekt/gex-live/internal/quote"
	"github.com/dgnsrekt/gex-live/internal/strikes"
)

func sampleResult(id string, finished time.Time) *cycle.Result {
	nan := math.NaN()
	zero := 6002.5
	return &cycle.Result{
		ID:         id,
		StartedAt:  finished.Add(-15 * time.Second),
		FinishedAt: finished,
		Underlying: "SPX",
		Expiration: "251114",
		Spot:       quote.Price{Value: 6001, Source: quote.SourceQuote},
		Records: collect.Records{
			".SPXW251114C6000": {Gamma: &nan},
		},
		Strikes: strikes.Table{{Strike: 6000, CallOI: 10, PutOI: 20, TotalOI: 30}},
		GEX:     []gex.StrikeGEX{{Strike: 6000, CallGEX: 1, PutGEX: 2, NetGEX: -1}},
		Metrics: gex.Metrics{NumOptions: 2, NetGEX: -1, ZeroGamma: &zero},
		PCROI:   strikes.NewRatio(20, 10),
	}
}

func TestWriterPath(t *testing.T) {
	w, err := NewWriter("/data/gex")
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	res := sampleResult("a", time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC))
	expected := filepath.Join("/data/gex", "2025-11-14", "SPX_251114.jsonl.zst")
	if got := w.Path(res); got != expected {
		t.Errorf("expected path %s, got %s", expected, got)
	}
}

func TestWriteAppends(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	finished := time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC)
	path, err := w.Write(sampleResult("first", finished))
	if err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if _, err := w.Write(sampleResult("second", finished.Add(time.Minute))); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	snapshots, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
	if snapshots[0].ID != "first" || snapshots[1].ID != "second" {
		t.Errorf("expected first then second, got %s then %s", snapshots[0].ID, snapshots[1].ID)
	}

	s := snapshots[0]
	if s.Spot.Source != quote.SourceQuote {
		t.Errorf("expected quote source, got %s", s.Spot.Source)
	}
	if s.Metrics.ZeroGamma == nil || *s.Metrics.ZeroGamma != 6002.5 {
		t.Errorf("expected zero gamma 6002.5, got %v", s.Metrics.ZeroGamma)
	}
	if !s.PCROI.OK || s.PCROI.Value != 2 {
		t.Errorf("expected PCR 2, got %+v", s.PCROI)
	}
	if s.PCRVolume.OK {
		t.Errorf("expected missing volume ratio, got %+v", s.PCRVolume)
	}
	if len(s.Strikes) != 1 || s.Strikes[0].TotalOI != 30 {
		t.Errorf("unexpected strikes: %+v", s.Strikes)
	}
}

func TestWriteKeepsEarlierFrames(t *testing.T) {
	dir := t.TempDir()
	finished := time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC)

	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	path, err := w.Write(sampleResult("first", finished))
	w.Close()
	if err != nil {
		t.Fatal(err)
	}

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// A new writer, as after a restart, appends to the same day file.
	w2, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer w2.Close()
	if _, err := w2.Write(sampleResult("second", finished.Add(time.Minute))); err != nil {
		t.Fatal(err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) <= len(before) || !bytes.Equal(after[:len(before)], before) {
		t.Error("expected the first frame to be left untouched")
	}

	snapshots, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(snapshots) != 2 || snapshots[1].ID != "second" {
		t.Errorf("expected two snapshots ending with second, got %d", len(snapshots))
	}
}

func TestWriteSeparatesDays(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	day1, err := w.Write(sampleResult("a", time.Date(2025, 11, 13, 15, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatal(err)
	}
	day2, err := w.Write(sampleResult("b", time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatal(err)
	}
	if day1 == day2 {
		t.Errorf("expected separate files per day, got %s twice", day1)
	}
}

func TestReadFileMissing(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.jsonl.zst")); err == nil {
		t.Error("expected error for missing file")
	}
}
