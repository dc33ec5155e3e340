package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/medical-lab/constants"
	"github.com/joseph-ayodele/medical-lab/internal/common"
	"github.com/joseph-ayodele/medical-lab/internal/entity"
	"github.com/joseph-ayodele/medical-lab/internal/pipeline"
)

// HandleUpload accepts multipart form fields file and patient_id.
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		s.writeError(w, r, wrapBodyErr(err, "invalid multipart form"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, common.InvalidInputf("file is required"))
		return
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, wrapBodyErr(err, "read upload"))
		return
	}

	resp, err := s.pipeline.Ingest(r.Context(), pipeline.IngestRequest{
		Data:      data,
		MIMEType:  header.Header.Get("Content-Type"),
		Filename:  header.Filename,
		PatientID: r.FormValue("patient_id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if resp.ErrorKind == entity.ErrorKindUnsupportedFormat {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

type ocrBase64Request struct {
	Image    string `json:"image"`
	Filename string `json:"filename"`
}

// HandleOCRBase64 extracts text from a JSON {image, filename} body without storing it.
func (s *Server) HandleOCRBase64(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	var req ocrBase64Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, wrapBodyErr(err, "invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Image) == "" {
		s.writeError(w, r, common.InvalidInputf("image is required"))
		return
	}
	res, err := s.pipeline.IngestBase64(r.Context(), req.Image, req.Filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type listResponse struct {
	Success     bool                    `json:"success"`
	PatientID   string                  `json:"patient_id"`
	Documents   []entity.StoredDocument `json:"documents"`
	Count       int                     `json:"count"`
	StorageType constants.StorageType   `json:"storage_type"`
}

func (s *Server) HandleListDocuments(w http.ResponseWriter, r *http.Request) {
	pid := r.PathValue("patient_id")
	limit := constants.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, common.InvalidInputf("limit must be a positive integer"))
			return
		}
		limit = n
	}
	docs, storage, err := s.pipeline.ListByPatient(r.Context(), pid, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{
		Success:     true,
		PatientID:   strings.TrimSpace(pid),
		Documents:   docs,
		Count:       len(docs),
		StorageType: storage,
	})
}

type documentResponse struct {
	Success     bool                   `json:"success"`
	Document    *entity.StoredDocument `json:"document"`
	StorageType constants.StorageType  `json:"storage_type"`
}

func (s *Server) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	include := false
	if v := r.URL.Query().Get("include_payload"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, common.InvalidInputf("include_payload must be a boolean"))
			return
		}
		include = b
	}
	doc, storage, err := s.pipeline.GetByID(r.Context(), r.PathValue("id"), include)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentResponse{Success: true, Document: doc, StorageType: storage})
}

func (s *Server) HandleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := s.pipeline.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, common.NotFoundf("document %s", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": true, "document_id": id})
}

type reprocessResponse struct {
	Success     bool                     `json:"success"`
	DocumentID  string                   `json:"document_id"`
	Result      *entity.ExtractionResult `json:"result"`
	StorageType constants.StorageType    `json:"storage_type"`
}

func (s *Server) HandleReprocess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, storage, err := s.pipeline.Reprocess(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reprocessResponse{Success: res.Success, DocumentID: id, Result: res, StorageType: storage})
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// HandleExport streams an XLSX listing of the patient's documents.
// Optional from and to query parameters are YYYY-MM-DD.
func (s *Server) HandleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		s.writeError(w, r, fmt.Errorf("export is not configured"))
		return
	}
	pid, err := common.NormalizePatientID(r.PathValue("patient_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	from, err := parseDate(r.URL.Query().Get("from"), "from")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"), "to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	xlsx, err := s.exporter.ExportPatientXLSX(r.Context(), pid, from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name := fmt.Sprintf("patient-%s-documents.xlsx", unsafeFilenameChars.ReplaceAllString(pid, "_"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(xlsx)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(xlsx)
}

type healthResponse struct {
	State   string `json:"status"`
	TimeUTC string `json:"time_utc"`
	pipeline.Status
}

// HandleHealth always answers 200; status is "degraded" while writes go to the fallback.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.pipeline.Status(r.Context())
	state := "healthy"
	if st.PrimaryStore != "" && !st.PrimaryConnected {
		state = "degraded"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		State:   state,
		TimeUTC: time.Now().UTC().Format(time.RFC3339),
		Status:  st,
	})
}

func parseDate(v, field string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, common.InvalidInputf("%s must be YYYY-MM-DD", field)
	}
	return &t, nil
}

func wrapBodyErr(err error, msg string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return common.NewAppError(common.CodeInvalidInput, msg+": "+err.Error(), common.ErrInvalidInput)
}
