package ocr

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
)

const wordprocessingNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// ExtractTXT emits one native record per non-empty line. Malformed UTF-8 is
// replaced, not rejected. Locators are 1-based line numbers.
func ExtractTXT(data []byte, filename string) entity.ExtractionResult {
	s := strings.ToValidUTF8(string(data), "\uFFFD")
	s = strings.TrimPrefix(s, "\uFEFF")
	s = reCRLF.ReplaceAllString(s, "\n")

	var records []entity.ExtractedRecord
	for i, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		records = append(records, nativeRecord(line, i+1))
	}
	return textResult(filename, constants.TXT, records)
}

// ExtractDOCX emits one native record per non-empty paragraph of
// word/document.xml, in document order. Locators are 1-based paragraph numbers.
func ExtractDOCX(data []byte, filename string) entity.ExtractionResult {
	paras, err := docxParagraphs(data)
	if err != nil {
		return entity.Failure(filename, constants.DOCX, entity.ErrorKindDecode, "decode docx: "+err.Error())
	}
	var records []entity.ExtractedRecord
	for i, p := range paras {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		records = append(records, nativeRecord(p, i+1))
	}
	return textResult(filename, constants.DOCX, records)
}

func nativeRecord(text string, locator int) entity.ExtractedRecord {
	return entity.ExtractedRecord{
		Text:       text,
		Confidence: constants.NativeConfidence,
		Method:     constants.MethodNative,
		Locator:    locator,
	}
}

func textResult(filename string, ft constants.FileType, records []entity.ExtractedRecord) entity.ExtractionResult {
	if records == nil {
		records = []entity.ExtractedRecord{}
	}
	return entity.ExtractionResult{
		Success:    true,
		Filename:   filename,
		FileType:   ft,
		TotalPages: 1,
		Results:    records,
		ProcessingSummary: entity.ProcessingSummary{
			TotalPages:      1,
			NativeTextPages: 1,
			Method:          constants.MethodNative,
		},
	}
}

func docxParagraphs(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, errors.New("word/document.xml not found")
	}
	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer func() { _ = rc.Close() }()

	dec := xml.NewDecoder(rc)
	var (
		paras  []string
		cur    strings.Builder
		inPara int
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordprocessingNS {
				continue
			}
			switch t.Name.Local {
			case "p":
				if inPara == 0 {
					cur.Reset()
				}
				inPara++
			case "t":
				inText = true
			case "tab":
				if inPara > 0 {
					cur.WriteByte('\t')
				}
			case "br", "cr":
				if inPara > 0 {
					cur.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if t.Name.Space != wordprocessingNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				inPara--
				if inPara == 0 {
					paras = append(paras, cur.String())
				}
			}
		case xml.CharData:
			if inText && inPara > 0 {
				cur.Write(t)
			}
		}
	}
	return paras, nil
}
