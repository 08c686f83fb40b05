package extract

import (
	"path/filepath"
	"strings"
)

const defaultMimeType = "application/octet-stream"

var mimeTypes = map[string]string{
	"pdf":  "application/pdf",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"doc":  "application/msword",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"ppt":  "application/vnd.ms-powerpoint",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"xls":  "application/vnd.ms-excel",
	"txt":  "text/plain",
	"csv":  "text/csv",
	"rtf":  "application/rtf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"tiff": "image/tiff",
	"tif":  "image/tiff",
	"bmp":  "image/bmp",
	"gif":  "image/gif",
}

// NormalizeExt returns the lowercase extension of filename without the dot.
func NormalizeExt(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// MimeType maps a filename to its content type tag.
func MimeType(filename string) string {
	if mt, ok := mimeTypes[NormalizeExt(filename)]; ok {
		return mt
	}
	return defaultMimeType
}

// SupportedByOCR reports whether the file is routed to the OCR service.
func SupportedByOCR(filename string) bool {
	_, ok := mimeTypes[NormalizeExt(filename)]
	return ok
}

func isPlainText(ext string) bool {
	return ext == "txt" || ext == "csv"
}

func isSpreadsheet(ext string) bool {
	return ext == "xlsx"
}
