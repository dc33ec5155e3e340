package ocr

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
)

const (
	summaryRecords   = 3
	summaryCharLimit = 50
)

type contentLabel struct {
	label string
	re    *regexp.Regexp
}

// checked in order; first match wins
var contentLabels = []contentLabel{
	{"Medical prescription", regexp.MustCompile(`\b(rx|prescription|prescribed|dosage|refills?|tablets?|capsules?|pharmacy|\d+\s?mg)\b`)},
	{"Invoice", regexp.MustCompile(`\b(invoice|bill(ed|ing)?|amount due|balance due|receipt|payment)\b`)},
	{"Medical form", regexp.MustCompile(`\b(form|date of birth|dob|patient name|signature|questionnaire|consent)\b`)},
	{"Letter", regexp.MustCompile(`\b(dear|sincerely|regards|to whom it may concern|referral)\b`)},
	{"Contract", regexp.MustCompile(`\b(agreement|contract|hereby|terms and conditions|party|parties)\b`)},
}

// Summarize builds the one-sentence full_content description.
func Summarize(ft constants.FileType, records []entity.ExtractedRecord) string {
	var head []string
	for i := 0; i < len(records) && i < summaryRecords; i++ {
		t := records[i].Text
		if r := []rune(t); len(r) > summaryCharLimit {
			t = string(r[:summaryCharLimit])
		}
		head = append(head, t)
	}
	sample := strings.ToLower(strings.Join(head, " "))

	label := fmt.Sprintf("%s document", ft)
	if ft == "" {
		label = "Document"
	}
	for _, cl := range contentLabels {
		if cl.re.MatchString(sample) {
			label = cl.label
			break
		}
	}

	var avg float64
	if c := MeanConfidence(records); c != nil {
		avg = *c
	}
	return fmt.Sprintf("%s containing %d text elements with average confidence of %.1f%%", label, len(records), avg*100)
}
