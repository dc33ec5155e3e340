package ocr

import (
	"regexp"
	"sort"
	"strings"

	"github.com/joseph-ayodele/medical-lab/internal/entity"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
)

// CleanText collapses noisy whitespace in a native text layer.
// Conservative: keeps line breaks; collapses >2 newlines into a single blank line.
func CleanText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\f", "\n")
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.Join(lines, "\n")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Normalize orders records canonically and recomputes every derived field.
// Normalize(Normalize(r)) == Normalize(r).
func Normalize(res entity.ExtractionResult) entity.ExtractionResult {
	records := make([]entity.ExtractedRecord, len(res.Results))
	copy(records, res.Results)
	SortRecords(records)

	res.Results = records
	res.TextCount = len(records)
	res.ExtractedText = JoinText(records)
	res.ConfidenceScore = MeanConfidence(records)
	res.FullContent = Summarize(res.FileType, records)
	return res
}

// SortRecords orders by locator, then unknown-geometry records, then top-to-bottom, left-to-right.
func SortRecords(records []entity.ExtractedRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Locator != b.Locator {
			return a.Locator < b.Locator
		}
		az, bz := a.BBox.IsZero(), b.BBox.IsZero()
		if az != bz {
			return az
		}
		if az {
			return false
		}
		if a.BBox[0][1] != b.BBox[0][1] {
			return a.BBox[0][1] < b.BBox[0][1]
		}
		return a.BBox[0][0] < b.BBox[0][0]
	})
}

// JoinText is the newline-join of trimmed, non-empty record texts.
func JoinText(records []entity.ExtractedRecord) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		if t := strings.TrimSpace(r.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// MeanConfidence is nil for an empty record set.
func MeanConfidence(records []entity.ExtractedRecord) *float64 {
	if len(records) == 0 {
		return nil
	}
	var sum float64
	for _, r := range records {
		sum += r.Confidence
	}
	mean := sum / float64(len(records))
	return &mean
}
