package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/medical-lab/internal/entity"
)

// CLIConfig configures the tesseract binary engine.
type CLIConfig struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	Language    string // default "eng"
	TessdataDir string
	PSM         int // e.g., 6 is good for uniform block of text
	OEM         int // 1 = LSTM; leave 0 to use default
}

// CLIEngine runs the tesseract binary in TSV mode and groups words into lines.
type CLIEngine struct {
	cfg    CLIConfig
	runner Runner
}

func NewCLIEngine(cfg CLIConfig, runner Runner) *CLIEngine {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &CLIEngine{cfg: cfg, runner: runner}
}

func (e *CLIEngine) Name() string { return "tesseract" }

func (e *CLIEngine) Close() error { return nil }

func (e *CLIEngine) Recognize(ctx context.Context, img []byte) ([]Line, error) {
	tmpDir, err := os.MkdirTemp("", "medlab-tess-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, "input.png")
	if err := os.WriteFile(in, img, 0o600); err != nil {
		return nil, fmt.Errorf("write tesseract input: %w", err)
	}

	// tesseract <file> stdout -l <lang> [--psm n] [--oem n] tsv
	args := []string{in, "stdout", "-l", e.cfg.Language}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Binary, args...)
	if err != nil {
		return nil, fmt.Errorf("tesseract TSV: %w: %s", err, truncate(string(errb), 512))
	}
	return parseTesseractTSV(string(out)), nil
}

type tsvLineKey struct{ page, block, par, line int }

type tsvLine struct {
	words          []string
	confSum        float64
	confN          int
	x0, y0, x1, y1 float64
}

// parseTesseractTSV groups level-5 (word) rows into lines. Rows with the wrong
// column count or non-numeric geometry are skipped.
func parseTesseractTSV(out string) []Line {
	rows := strings.Split(out, "\n")
	var order []tsvLineKey
	lines := map[tsvLineKey]*tsvLine{}

	for i, ln := range rows {
		ln = strings.TrimRight(ln, "\r")
		if i == 0 || ln == "" {
			continue
		} // skip header
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		nums := make([]int, 10)
		ok := true
		for j := 0; j < 10; j++ {
			v, err := strconv.Atoi(strings.TrimSpace(cols[j]))
			if err != nil {
				ok = false
				break
			}
			nums[j] = v
		}
		if !ok || nums[0] != 5 {
			continue
		}
		text := strings.TrimSpace(strings.Join(cols[11:], "\t"))
		if text == "" {
			continue
		}
		conf, err := strconv.ParseFloat(strings.TrimSpace(cols[10]), 64)
		if err != nil {
			continue
		}

		key := tsvLineKey{nums[1], nums[2], nums[3], nums[4]}
		left, top := float64(nums[6]), float64(nums[7])
		right, bottom := left+float64(nums[8]), top+float64(nums[9])
		l, seen := lines[key]
		if !seen {
			l = &tsvLine{x0: left, y0: top, x1: right, y1: bottom}
			lines[key] = l
			order = append(order, key)
		}
		l.words = append(l.words, text)
		l.x0, l.y0 = min(l.x0, left), min(l.y0, top)
		l.x1, l.y1 = max(l.x1, right), max(l.y1, bottom)
		if conf >= 0 {
			l.confSum += conf
			l.confN++
		}
	}

	out2 := make([]Line, 0, len(order))
	for _, k := range order {
		l := lines[k]
		var c float64
		if l.confN > 0 {
			c = l.confSum / float64(l.confN) / 100.0
		}
		out2 = append(out2, Line{
			Box:        entity.BBox{{l.x0, l.y0}, {l.x1, l.y0}, {l.x1, l.y1}, {l.x0, l.y1}},
			Text:       strings.Join(l.words, " "),
			Confidence: c,
		})
	}
	return out2
}
