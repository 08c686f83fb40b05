package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"medreport/internal/logging"
	"medreport/internal/models"
)

// ErrNoText means no strategy produced any text for the document.
var ErrNoText = errors.New("could not extract text from file")

// Extractor turns an uploaded file into an ExtractedDocument.
type Extractor struct {
	ocr    OCR
	logger *slog.Logger
}

func NewExtractor(ocr OCR, logger *slog.Logger) *Extractor {
	return &Extractor{ocr: ocr, logger: logging.OrDiscard(logger)}
}

// Extract routes supported extensions through OCR and decodes everything else
// locally. Plain text and xlsx files fall back to local decoding when OCR
// yields nothing. Empty text after all strategies returns ErrNoText.
func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) (*models.ExtractedDocument, error) {
	log := logging.FromContext(ctx, e.logger)
	doc := &models.ExtractedDocument{
		Filename: filename,
		RawBytes: data,
		MimeType: MimeType(filename),
	}
	ext := NormalizeExt(filename)

	if !SupportedByOCR(filename) {
		doc.Text = DecodeText(data)
		doc.Source = "text"
	} else {
		if e.ocr != nil {
			text, err := e.ocr.Extract(ctx, filename, doc.MimeType, data)
			if err != nil {
				log.Warn("extract.ocr_failed", "filename", filename, "error", err)
			}
			doc.Text, doc.Source = text, "ocr"
		}
		if strings.TrimSpace(doc.Text) == "" {
			switch {
			case isPlainText(ext):
				doc.Text, doc.Source = DecodeText(data), "text"
			case isSpreadsheet(ext):
				text, err := SpreadsheetText(data)
				if err != nil {
					log.Warn("extract.spreadsheet_failed", "filename", filename, "error", err)
				}
				doc.Text, doc.Source = text, "spreadsheet"
			}
		}
	}

	if strings.TrimSpace(doc.Text) == "" {
		log.Warn("extract.empty", "filename", filename, "mime", doc.MimeType)
		return doc, ErrNoText
	}
	log.Info("extract.done", "filename", filename, "source", doc.Source, "chars", len(doc.Text))
	return doc, nil
}

// DecodeText interprets data as UTF-8, dropping invalid byte sequences.
func DecodeText(data []byte) string {
	return strings.ToValidUTF8(string(data), "")
}

// SpreadsheetText flattens every sheet into tab-separated lines.
func SpreadsheetText(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String()), nil
}
