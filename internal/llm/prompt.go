package llm

import "strings"

// MedicalExtractionPrompt is sent with every image. The model is asked for
// plain text only so the reply can be stored as a single record.
var MedicalExtractionPrompt = strings.Join([]string{
	"You are reading a scanned or photographed medical document (lab report, prescription, clinic form, discharge note, or referral letter).",
	"Transcribe ALL visible text exactly as written, top to bottom and left to right.",
	"Preserve line breaks, numbers, units (mg, mL, mmol/L, g/dL), reference ranges, dates and patient identifiers.",
	"Keep table rows on one line with cells separated by ' | '.",
	"Do not interpret, summarize, translate, or add commentary. Do not guess illegible characters; write [illegible] instead.",
	"Return plain text only, without Markdown or code fences.",
}, " ")

// UserPrompt names the file so the model can use it as a weak hint.
func UserPrompt(filename string) string {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "Extract the text from this medical document image."
	}
	return "Extract the text from this medical document image (file: " + filename + ")."
}
