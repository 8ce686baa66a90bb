// Package export appends cycle snapshots to zstd-compressed JSON Lines files.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/dgnsrekt/gex-live/internal/collect"
	"github.com/dgnsrekt/gex-live/internal/cycle"
	"github.com/dgnsrekt/gex-live/internal/gex"
	"github.com/dgnsrekt/gex-live/internal/quote"
	"github.com/dgnsrekt/gex-live/internal/strikes"
)

// Snapshot is the exported view of a cycle result. Raw per-symbol records
// are left out; they may carry NaN values that JSON cannot represent.
type Snapshot struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Underlying string          `json:"underlying"`
	Expiration string          `json:"expiration"`
	Spot       quote.Price     `json:"spot"`
	Stats      collect.Stats   `json:"stats"`
	Strikes    strikes.Table   `json:"strikes"`
	GEX        []gex.StrikeGEX `json:"gex"`
	Metrics    gex.Metrics     `json:"metrics"`
	PCROI      strikes.Ratio   `json:"pcr_oi"`
	PCRVolume  strikes.Ratio   `json:"pcr_volume"`
}

// NewSnapshot copies the exportable fields of res.
func NewSnapshot(res *cycle.Result) Snapshot {
	return Snapshot{
		ID:         res.ID,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Underlying: res.Underlying,
		Expiration: res.Expiration,
		Spot:       res.Spot,
		Stats:      res.Stats,
		Strikes:    res.Strikes,
		GEX:        res.GEX,
		Metrics:    res.Metrics,
		PCROI:      res.PCROI,
		PCRVolume:  res.PCRVolume,
	}
}

// Writer appends snapshots under a base directory.
type Writer struct {
	baseDir string
	enc     *zstd.Encoder

	mu sync.Mutex
}

// NewWriter creates a Writer rooted at baseDir.
func NewWriter(baseDir string) (*Writer, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &Writer{baseDir: baseDir, enc: enc}, nil
}

// Path is the file a result is appended to:
// <base>/<YYYY-MM-DD>/<underlying>_<expiration>.jsonl.zst
func (w *Writer) Path(res *cycle.Result) string {
	return filepath.Join(w.baseDir, res.FinishedAt.Format("2006-01-02"),
		fmt.Sprintf("%s_%s.jsonl.zst", res.Underlying, res.Expiration))
}

// Write appends one snapshot line and returns the file path. Each line is
// its own zstd frame, written with a single append so earlier frames are
// never rewritten.
func (w *Writer) Write(res *cycle.Result) (string, error) {
	line, err := json.Marshal(NewSnapshot(res))
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	destPath := w.Path(res)
	if err := os.MkdirAll(filepath.Dir(destPath), 0750); err != nil {
		return "", fmt.Errorf("creating directories: %w", err)
	}

	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640)
	if err != nil {
		return "", fmt.Errorf("opening export: %w", err)
	}

	_, err = f.Write(w.enc.EncodeAll(line, nil))
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}

	return destPath, nil
}

// Close releases encoder resources.
func (w *Writer) Close() {
	if w.enc != nil {
		_ = w.enc.Close()
	}
}

// ReadFile decodes every snapshot in an exported file, oldest first.
func ReadFile(path string) ([]Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening export: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	var snapshots []Snapshot
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var s Snapshot
		if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
			return nil, fmt.Errorf("decoding line %d: %w", len(snapshots)+1, err)
		}
		snapshots = append(snapshots, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	return snapshots, nil
}
