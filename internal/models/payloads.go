package models

// These structs define the JSON payloads exchanged between callers and the
// conversion Cloud Functions.

// ConvertRequest is the input for the ConvertDocxToPdf callable functions.
// Exactly one of DocxURL and StoragePath must be set; StoragePath wins when
// both are.
type ConvertRequest struct {
	DocxURL        string `json:"docxUrl,omitempty"`
	StoragePath    string `json:"storagePath,omitempty"`
	OutputFileName string `json:"outputFileName,omitempty"`
}

// ConvertResponse is the output of a successful conversion.
type ConvertResponse struct {
	PDFURL   string `json:"pdfUrl"`
	PDFPath  string `json:"pdfPath"`
	PDFSize  int    `json:"pdfSize"`
	PDFPages int    `json:"pdfPages,omitempty"`
}

// CallableRequest is the callable protocol wrapper around a request body.
type CallableRequest struct {
	Data ConvertRequest `json:"data"`
}

// CallableResponse is the callable protocol wrapper around a result.
type CallableResponse struct {
	Result *ConvertResponse `json:"result,omitempty"`
	Error  *CallableError   `json:"error,omitempty"`
}

// CallableError is the error body of the callable protocol.
type CallableError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// GCSEvent is the payload of a Cloud Storage object event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        string `json:"size,omitempty"`
}
