package ocr

import (
	"reflect"
	"testing"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
)

func box(x, y float64) entity.BBox {
	return entity.BBox{{x, y}, {x + 10, y}, {x + 10, y + 5}, {x, y + 5}}
}

func TestSortRecords(t *testing.T) {
	records := []entity.ExtractedRecord{
		{Text: "p2", Locator: 2},
		{Text: "right", Locator: 1, BBox: box(50, 10)},
		{Text: "lower", Locator: 1, BBox: box(0, 30)},
		{Text: "left", Locator: 1, BBox: box(0, 10)},
		{Text: "native", Locator: 1},
	}
	SortRecords(records)

	var got []string
	for _, r := range records {
		got = append(got, r.Text)
	}
	want := []string{"native", "left", "right", "lower", "p2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestSortRecordsLineNumbered(t *testing.T) {
	records := []entity.ExtractedRecord{
		{Text: "line 3", Locator: 3, Method: constants.MethodNative},
		{Text: "line 1", Locator: 1, Method: constants.MethodNative},
		{Text: "line 10", Locator: 10, Method: constants.MethodNative},
		{Text: "line 2", Locator: 2, Method: constants.MethodNative},
	}
	res := Normalize(entity.ExtractionResult{Success: true, Results: records})

	if res.ExtractedText != "line 1\nline 2\nline 3\nline 10" {
		t.Errorf("ExtractedText = %q", res.ExtractedText)
	}
	if records[0].Text != "line 3" {
		t.Error("Normalize must not reorder the caller's slice")
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	in := entity.ExtractionResult{
		Success:  true,
		FileType: constants.IMAGE,
		Results: []entity.ExtractedRecord{
			{Text: " Rx: amoxicillin 500 mg ", Confidence: 0.9, Locator: 1, BBox: box(0, 40)},
			{Text: "Dr. Smith", Confidence: 0.7, Locator: 1, BBox: box(0, 10)},
			{Text: "", Method: constants.MethodOCRFailed, Locator: 2},
		},
	}
	once := Normalize(in)
	twice := Normalize(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("Normalize is not idempotent:\n%+v\n%+v", once, twice)
	}

	if once.TextCount != 3 {
		t.Errorf("text count = %d", once.TextCount)
	}
	if once.ExtractedText != "Dr. Smith\nRx: amoxicillin 500 mg" {
		t.Errorf("extracted text = %q", once.ExtractedText)
	}
	if once.ConfidenceScore == nil {
		t.Fatal("confidence should be set")
	}
	if got := *once.ConfidenceScore; got < 0.533 || got > 0.534 {
		t.Errorf("confidence = %v", got)
	}
	if want := "Medical prescription containing 3 text elements with average confidence of 53.3%"; once.FullContent != want {
		t.Errorf("full content = %q", once.FullContent)
	}
	// input slice must not be reordered
	if in.Results[0].Text != " Rx: amoxicillin 500 mg " {
		t.Error("Normalize mutated its input")
	}
}

func TestNormalizeEmpty(t *testing.T) {
	res := Normalize(entity.ExtractionResult{FileType: constants.TXT, Results: []entity.ExtractedRecord{}})
	if res.ConfidenceScore != nil {
		t.Errorf("confidence should be nil for no records, got %v", *res.ConfidenceScore)
	}
	if res.FullContent != "TXT document containing 0 text elements with average confidence of 0.0%" {
		t.Errorf("full content = %q", res.FullContent)
	}
}

func TestCleanText(t *testing.T) {
	in := "  Name:\t\tJane   Doe \r\n\r\n\r\n\r\nDOB:  1980\f"
	want := "Name: Jane Doe\n\nDOB: 1980"
	if got := CleanText(in); got != want {
		t.Errorf("CleanText = %q, want %q", got, want)
	}
	if CleanText(" \n\t ") != "" {
		t.Error("whitespace-only text should clean to empty")
	}
}
