package constants

// Method is how a single record was produced.
type Method string

// Stable values (stored as-is).
const (
	MethodNative    Method = "native"
	MethodOCR       Method = "ocr"
	MethodOCRFailed Method = "ocr_failed"
	MethodVisionLLM Method = "vision_llm"
)

// ProcessingMethod is recorded on a StoredDocument.
type ProcessingMethod string

const (
	ProcessingTesseract   ProcessingMethod = "tesseract"
	ProcessingCloudVision ProcessingMethod = "cloudvision"
	ProcessingOpenAI      ProcessingMethod = "openai"
	ProcessingFileStorage ProcessingMethod = "file_storage"
	ProcessingVisionLLM   ProcessingMethod = "vision_llm"
)

// ProcessingMethods is the closed set a StoredDocument may carry.
var ProcessingMethods = []ProcessingMethod{
	ProcessingTesseract,
	ProcessingCloudVision,
	ProcessingOpenAI,
	ProcessingFileStorage,
	ProcessingVisionLLM,
}

// ProcessingMethodForEngine maps an OCR engine name onto ProcessingMethods.
// Both tesseract engines (in-process and CLI) record tesseract.
func ProcessingMethodForEngine(engine string) ProcessingMethod {
	if engine == string(ProcessingCloudVision) {
		return ProcessingCloudVision
	}
	return ProcessingTesseract
}

type DocumentType string

const (
	DocumentTypeImage    DocumentType = "medical_image"
	DocumentTypeDocument DocumentType = "medical_document"
)

type ProcessingType string

const (
	ProcessingTypeOCR     ProcessingType = "ocr_extraction"
	ProcessingTypeStorage ProcessingType = "base64_storage"
)

// StorageType names the store that accepted a write or served a read.
type StorageType string

const (
	StoragePrimary  StorageType = "primary"
	StorageFallback StorageType = "fallback"
)

const (
	DefaultMaxImageDimension = 2048
	DefaultOCRTimeoutSeconds = 120
	DefaultVisionTimeoutSecs = 30
	DefaultPDFRasterScale    = 2
	DefaultListLimit         = 10

	// VisionLLMConfidence is reported for every vision-LLM record; the model gives none.
	VisionLLMConfidence = 0.95
	NativeConfidence    = 1.0
)
