package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/async"
	"github.com/joseph-ayodele/medical-lab/internal/common"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
	"github.com/joseph-ayodele/medical-lab/internal/ocr"
	"github.com/joseph-ayodele/medical-lab/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 40, 30))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type stubEngine struct {
	mu    sync.Mutex
	name  string
	lines []ocr.Line
}

func (e *stubEngine) Name() string {
	if e.name == "" {
		return "tesseract"
	}
	return e.name
}
func (e *stubEngine) Close() error { return nil }

func (e *stubEngine) Recognize(context.Context, []byte) ([]ocr.Line, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lines, nil
}

func (e *stubEngine) set(texts ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lines = nil
	for i, s := range texts {
		y := float64(10 * (i + 1))
		e.lines = append(e.lines, ocr.Line{Text: s, Confidence: 0.9, Box: entity.BBox{{0, y}, {20, y}, {20, y + 5}, {0, y + 5}}})
	}
}

// memStore is an in-memory primary whose connectivity and writes can be switched off.
type memStore struct {
	mu      sync.Mutex
	up      bool
	saveErr error
	docs    map[string]entity.StoredDocument
	seq     int
}

func newMemStore() *memStore { return &memStore{up: true, docs: map[string]entity.StoredDocument{}} }

func (m *memStore) Name() string { return "memory" }

func (m *memStore) Connected(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.up
}

func (m *memStore) Save(_ context.Context, doc *entity.StoredDocument) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.seq++
	doc.ID = fmt.Sprintf("mem-%d", m.seq)
	m.docs[doc.ID] = *doc
	return doc.ID, nil
}

func (m *memStore) GetByID(_ context.Context, id string, includePayload bool) (*entity.StoredDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !includePayload {
		d = d.WithoutPayload()
	}
	return &d, nil
}

func (m *memStore) ListByPatient(_ context.Context, patientID string, _ int) ([]entity.StoredDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []entity.StoredDocument{}
	for _, d := range m.docs {
		if d.PatientID == patientID {
			out = append(out, d.WithoutPayload())
		}
	}
	return out, nil
}

func (m *memStore) UpdateOCRResults(_ context.Context, id string, patch entity.DocumentPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return false, nil
	}
	text, n := patch.ExtractedText, patch.TextCount
	d.ExtractedText, d.TextCount, d.OCRResults = &text, &n, patch.OCRResults
	m.docs[id] = d
	return true, nil
}

func (m *memStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[id]
	delete(m.docs, id)
	return ok, nil
}

func (m *memStore) Close() error { return nil }

type fixture struct {
	pipeline *Pipeline
	primary  *memStore
	fallback *repository.FileStore
	engine   *stubEngine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	fb, err := repository.OpenFileStore(filepath.Join(t.TempDir(), "fallback.json"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	eng := &stubEngine{}
	ext := ocr.NewExtractor(ocr.Config{}, eng, nil, nil, testLogger())
	primary := newMemStore()
	return &fixture{
		pipeline: New(primary, fb, ext, testLogger(), opts...),
		primary:  primary,
		fallback: fb,
		engine:   eng,
	}
}

func TestIngestTextToPrimary(t *testing.T) {
	f := newFixture(t)
	resp, err := f.pipeline.Ingest(context.Background(), IngestRequest{
		Data:      []byte("Referral letter\nDear Dr. Jones"),
		MIMEType:  "text/plain",
		Filename:  "referral.txt",
		PatientID: "  P-100 ",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !resp.Success || resp.TextCount != 2 {
		t.Fatalf("unexpected extraction: %+v", resp.ExtractionResult)
	}
	if resp.StorageType != constants.StoragePrimary || resp.DocumentID == "" {
		t.Fatalf("storage = %q id = %q", resp.StorageType, resp.DocumentID)
	}
	if resp.PatientID != "P-100" || resp.IsImage || resp.ProcessingType != constants.ProcessingTypeStorage {
		t.Errorf("response envelope = %+v", resp)
	}

	doc := f.primary.docs[resp.DocumentID]
	if doc.ProcessingMethod != constants.ProcessingFileStorage || doc.DocumentType != constants.DocumentTypeDocument {
		t.Errorf("stored method/type = %s/%s", doc.ProcessingMethod, doc.DocumentType)
	}
	if doc.OCRResults != nil {
		t.Error("non-image documents store no ocr_results")
	}
	if doc.Metadata["file_extension"] != "txt" || doc.Metadata["is_image"] != false || doc.Metadata["mime_type"] != "text/plain" {
		t.Errorf("metadata = %v", doc.Metadata)
	}
	if got, _ := base64.StdEncoding.DecodeString(doc.Base64Data); string(got) != "Referral letter\nDear Dr. Jones" {
		t.Error("payload not stored as base64 of the original bytes")
	}
}

func TestIngestImageFallsBackWhenPrimaryDown(t *testing.T) {
	f := newFixture(t)
	f.primary.up = false
	f.engine.set("Patient: Jane Doe", "DOB 1980-02-03")

	resp, err := f.pipeline.Ingest(context.Background(), IngestRequest{
		Data: testPNG(t), MIMEType: "image/png", Filename: "intake.png", PatientID: "P1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StorageType != constants.StorageFallback {
		t.Fatalf("storage = %q, want fallback", resp.StorageType)
	}
	if !resp.IsImage || resp.ProcessingType != constants.ProcessingTypeOCR {
		t.Errorf("image flags = %v/%s", resp.IsImage, resp.ProcessingType)
	}
	doc, err := f.fallback.GetByID(context.Background(), resp.DocumentID, true)
	if err != nil {
		t.Fatal(err)
	}
	if doc.ProcessingMethod != constants.ProcessingTesseract || doc.DocumentType != constants.DocumentTypeImage {
		t.Errorf("stored method/type = %s/%s", doc.ProcessingMethod, doc.DocumentType)
	}
	if len(doc.OCRResults) != 2 {
		t.Errorf("ocr_results = %+v", doc.OCRResults)
	}
	if len(f.primary.docs) != 0 {
		t.Error("a disconnected primary must not receive writes")
	}
}

func TestIngestEmptyImageStoresEmptyResults(t *testing.T) {
	f := newFixture(t)
	resp, err := f.pipeline.Ingest(context.Background(), IngestRequest{
		Data: testPNG(t), Filename: "blank.png", PatientID: "P1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.TextCount != 0 {
		t.Errorf("blank image without fallback is an empty success: %+v", resp.ExtractionResult)
	}
	doc := f.primary.docs[resp.DocumentID]
	if doc.OCRResults == nil || len(doc.OCRResults) != 0 {
		t.Errorf("images store an empty, non-null ocr_results, got %#v", doc.OCRResults)
	}
}

func TestIngestPrimaryWriteErrorFallsBack(t *testing.T) {
	f := newFixture(t)
	f.primary.saveErr = errors.New("connection reset")

	resp, err := f.pipeline.Ingest(context.Background(), IngestRequest{
		Data: []byte("note"), Filename: "n.txt", PatientID: "P1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StorageType != constants.StorageFallback || resp.DocumentID == "" {
		t.Errorf("storage = %q id = %q", resp.StorageType, resp.DocumentID)
	}
}

type brokenStore struct{ memStore }

func (b *brokenStore) Save(context.Context, *entity.StoredDocument) (string, error) {
	return "", errors.New("disk full")
}

func TestIngestBothStoresFail(t *testing.T) {
	primary := newMemStore()
	primary.saveErr = errors.New("timeout")
	fallback := &brokenStore{}
	p := New(primary, fallback, ocr.NewExtractor(ocr.Config{}, &stubEngine{}, nil, nil, testLogger()), testLogger())

	resp, err := p.Ingest(context.Background(), IngestRequest{Data: []byte("x"), Filename: "x.txt", PatientID: "P1"})
	if err != nil {
		t.Fatalf("store failures are reported in the response, not as errors: %v", err)
	}
	if resp.DocumentID != "" || resp.StorageType != "" {
		t.Errorf("nothing should have been stored: %+v", resp)
	}
	if !resp.Success {
		t.Error("extraction itself succeeded")
	}

	_, _, serr := p.save(context.Background(), &entity.StoredDocument{})
	if !errors.Is(serr, common.ErrStoreWrite) || common.CodeOf(serr) != common.CodeStoreWrite {
		t.Errorf("save error = %v", serr)
	}
}

func TestIngestUnsupported(t *testing.T) {
	f := newFixture(t)
	resp, err := f.pipeline.Ingest(context.Background(), IngestRequest{
		Data: []byte("MZ"), MIMEType: "application/x-msdownload", Filename: "setup.exe", PatientID: "P1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ErrorKind != entity.ErrorKindUnsupportedFormat || resp.Success {
		t.Errorf("result = %+v", resp.ExtractionResult)
	}
	if resp.DocumentID != "" || len(f.primary.docs) != 0 {
		t.Error("unsupported files are not stored")
	}
}

func TestIngestInvalidPatient(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Ingest(context.Background(), IngestRequest{Data: []byte("x"), Filename: "x.txt", PatientID: " "})
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("err = %v, want invalid input", err)
	}
}

func TestIngestThroughWorkerQueue(t *testing.T) {
	q := async.NewWorkerQueue(testLogger(), async.WithWorkers(2))
	defer q.Shutdown(context.Background())
	f := newFixture(t, WithRunner(q))

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.pipeline.Ingest(context.Background(), IngestRequest{
				Data: []byte(fmt.Sprintf("line %d", i)), Filename: fmt.Sprintf("f%d.txt", i), PatientID: "P1",
			})
			if err == nil && resp.DocumentID == "" {
				err = errors.New("not stored")
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	docs, storage, err := f.pipeline.ListByPatient(context.Background(), "P1", 10)
	if err != nil || storage != constants.StoragePrimary || len(docs) != 5 {
		t.Errorf("list = %d docs from %q, err %v", len(docs), storage, err)
	}
}

func TestReprocessUpdatesHoldingStore(t *testing.T) {
	f := newFixture(t)
	f.primary.up = false
	f.engine.set("blurry")

	resp, err := f.pipeline.Ingest(context.Background(), IngestRequest{
		Data: testPNG(t), MIMEType: "image/png", Filename: "rx.png", PatientID: "P1",
	})
	if err != nil || resp.StorageType != constants.StorageFallback {
		t.Fatalf("ingest: %v %+v", err, resp)
	}

	f.engine.set("Rx: amoxicillin", "500 mg twice daily")
	res, storage, err := f.pipeline.Reprocess(context.Background(), resp.DocumentID)
	if err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	if storage != constants.StorageFallback || res.TextCount != 2 {
		t.Errorf("storage = %q text_count = %d", storage, res.TextCount)
	}
	doc, _ := f.fallback.GetByID(context.Background(), resp.DocumentID, true)
	if *doc.ExtractedText != "Rx: amoxicillin\n500 mg twice daily" || len(doc.OCRResults) != 2 {
		t.Errorf("stored document not updated: text=%q records=%d", *doc.ExtractedText, len(doc.OCRResults))
	}

	if _, _, err := f.pipeline.Reprocess(context.Background(), "doc_0_0000"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("missing id err = %v", err)
	}
}

func TestGetAndDeleteAcrossStores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fbID, err := f.fallback.Save(ctx, &entity.StoredDocument{PatientID: "P1", Filename: "old.txt"})
	if err != nil {
		t.Fatal(err)
	}
	prResp, _ := f.pipeline.Ingest(ctx, IngestRequest{Data: []byte("new"), Filename: "new.txt", PatientID: "P1"})

	if _, st, err := f.pipeline.GetByID(ctx, fbID, false); err != nil || st != constants.StorageFallback {
		t.Errorf("fallback document: %q %v", st, err)
	}
	if _, st, err := f.pipeline.GetByID(ctx, prResp.DocumentID, false); err != nil || st != constants.StoragePrimary {
		t.Errorf("primary document: %q %v", st, err)
	}
	if _, _, err := f.pipeline.GetByID(ctx, "nope", false); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("missing: %v", err)
	}

	for _, id := range []string{fbID, prResp.DocumentID} {
		if ok, err := f.pipeline.Delete(ctx, id); !ok || err != nil {
			t.Errorf("Delete(%s) = %v, %v", id, ok, err)
		}
	}
	if ok, _ := f.pipeline.Delete(ctx, fbID); ok {
		t.Error("second delete should report false")
	}
}

func TestListFallsBackWhenPrimaryDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.fallback.Save(ctx, &entity.StoredDocument{PatientID: "P1", Filename: "a.txt"}); err != nil {
		t.Fatal(err)
	}
	f.primary.up = false
	docs, st, err := f.pipeline.ListByPatient(ctx, "P1", 0)
	if err != nil || st != constants.StorageFallback || len(docs) != 1 {
		t.Errorf("got %d docs from %q, err %v", len(docs), st, err)
	}
	if _, _, err := f.pipeline.ListByPatient(ctx, "", 5); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("empty patient err = %v", err)
	}
}

func TestIngestBase64(t *testing.T) {
	f := newFixture(t)
	f.engine.set("Glucose 5.4")
	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG(t))

	res, err := f.pipeline.IngestBase64(context.Background(), payload, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Filename != "image.png" || res.ExtractedText != "Glucose 5.4" {
		t.Errorf("result = %+v", res)
	}
	if len(f.primary.docs) != 0 {
		t.Error("base64 OCR does not store anything")
	}
	if _, err := f.pipeline.IngestBase64(context.Background(), "%%%", "x.png"); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("bad payload err = %v", err)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	st := f.pipeline.Status(context.Background())
	if st.PrimaryStore != "memory" || !st.PrimaryConnected || st.OCREngine != "tesseract" || st.VisionLLMAvailable {
		t.Errorf("status = %+v", st)
	}
	if st.FallbackPath != f.fallback.Path() {
		t.Errorf("fallback path = %q", st.FallbackPath)
	}
}

func TestImageProcessingMethodPerEngine(t *testing.T) {
	tests := []struct {
		engine string
		want   constants.ProcessingMethod
	}{
		{"tesseract", constants.ProcessingTesseract},
		{"cloudvision", constants.ProcessingCloudVision},
		{"tesseract-cli", constants.ProcessingTesseract},
	}
	for _, tt := range tests {
		t.Run(tt.engine, func(t *testing.T) {
			primary := newMemStore()
			eng := &stubEngine{name: tt.engine}
			eng.set("WBC 6.1")
			p := New(primary, &brokenStore{}, ocr.NewExtractor(ocr.Config{}, eng, nil, nil, testLogger()), testLogger())

			resp, err := p.Ingest(context.Background(), IngestRequest{Data: testPNG(t), Filename: "cbc.png", PatientID: "P1"})
			if err != nil || resp.DocumentID == "" {
				t.Fatalf("ingest: %v %+v", err, resp)
			}
			got := primary.docs[resp.DocumentID].ProcessingMethod
			if got != tt.want {
				t.Errorf("processing_method = %q, want %q", got, tt.want)
			}
			if !slices.Contains(constants.ProcessingMethods, got) {
				t.Errorf("processing_method %q is outside the stored set", got)
			}
		})
	}
}
