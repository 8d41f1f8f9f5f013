package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// WriteJSON 以缩进 JSON 写出完整报告。
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteRowsCSV writes the per-timestamp backtest table.
func WriteRowsCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "regime", "position", "gross", "cost", "net", "equity", "drawdown"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Time.UTC().Format(time.RFC3339),
			r.Regime,
			formatFloat(r.Position),
			formatFloat(r.Gross),
			formatFloat(r.Cost),
			formatFloat(r.Net),
			formatFloat(r.Equity),
			formatFloat(r.Drawdown),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAttributionCSV writes the per-regime P&L table.
func WriteAttributionCSV(w io.Writer, attr []Attribution) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"regime", "mean", "sum", "count"}); err != nil {
		return err
	}
	for _, a := range attr {
		if err := cw.Write([]string{a.Regime, formatFloat(a.Mean), formatFloat(a.Sum), strconv.Itoa(a.Count)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Files 写出的文件路径。
type Files struct {
	JSON        string
	Rows        string
	Attribution string
}

// Save 在 dir 下写出 <ticker>_report.json、<ticker>_backtest.csv、<ticker>_attribution.csv。
func Save(dir string, r *Report) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("create output dir: %w", err)
	}
	files := Files{
		JSON:        filepath.Join(dir, r.Ticker+"_report.json"),
		Rows:        filepath.Join(dir, r.Ticker+"_backtest.csv"),
		Attribution: filepath.Join(dir, r.Ticker+"_attribution.csv"),
	}
	if err := writeFile(files.JSON, func(w io.Writer) error { return WriteJSON(w, r) }); err != nil {
		return Files{}, err
	}
	if err := writeFile(files.Rows, func(w io.Writer) error { return WriteRowsCSV(w, r.Rows) }); err != nil {
		return Files{}, err
	}
	if err := writeFile(files.Attribution, func(w io.Writer) error { return WriteAttributionCSV(w, r.Attribution) }); err != nil {
		return Files{}, err
	}
	return files, nil
}

func writeFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	if err := fn(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func formatFloat(f Float) string {
	v := float64(f)
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
