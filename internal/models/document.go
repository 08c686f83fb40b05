package models

// ExtractedDocument lives for the duration of one upload request.
type ExtractedDocument struct {
	Filename string `json:"filename"`
	RawBytes []byte `json:"-"`
	MimeType string `json:"mime_type"`
	Text     string `json:"-"`
	// Source records which strategy produced Text: "ocr", "text" or "spreadsheet".
	Source string `json:"source,omitempty"`
}
