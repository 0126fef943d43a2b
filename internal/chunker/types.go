package chunker

import (
	"mime"
	"path/filepath"
	"strings"
)

// Type is a canonical document type from the allow-list.
type Type string

// Allow-listed document types.
const (
	TypePDF  Type = "pdf"
	TypeDOC  Type = "doc"
	TypeDOCX Type = "docx"
	TypeXLS  Type = "xls"
	TypeXLSX Type = "xlsx"
	TypePPT  Type = "ppt"
	TypePPTX Type = "pptx"
	TypeCSV  Type = "csv"
	TypeTXT  Type = "txt"
	TypeHTML Type = "html"
	TypeJPEG Type = "jpeg"
	TypePNG  Type = "png"
)

var aliases = map[string]Type{
	"pdf":  TypePDF,
	"doc":  TypeDOC,
	"docx": TypeDOCX,
	"xls":  TypeXLS,
	"xlsx": TypeXLSX,
	"ppt":  TypePPT,
	"pptx": TypePPTX,
	"csv":  TypeCSV,
	"txt":  TypeTXT,
	"text": TypeTXT,
	"html": TypeHTML,
	"htm":  TypeHTML,
	"jpeg": TypeJPEG,
	"jpg":  TypeJPEG,
	"png":  TypePNG,

	"application/pdf":    TypePDF,
	"application/msword": TypeDOC,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   TypeDOCX,
	"application/vnd.ms-excel":                                                  TypeXLS,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         TypeXLSX,
	"application/vnd.ms-powerpoint":                                             TypePPT,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": TypePPTX,
	"text/csv":   TypeCSV,
	"text/plain": TypeTXT,
	"text/html":  TypeHTML,
	"image/jpeg": TypeJPEG,
	"image/png":  TypePNG,
}

// NormalizeType maps an extension (".pdf", "pdf"), a filename ("a.PDF") or a
// MIME type ("application/pdf; charset=binary") to an allow-listed Type.
func NormalizeType(declared string) (Type, bool) {
	s := strings.ToLower(strings.TrimSpace(declared))
	if s == "" {
		return "", false
	}
	if strings.Contains(s, "/") {
		if mt, _, err := mime.ParseMediaType(s); err == nil {
			s = mt
		}
		t, ok := aliases[s]
		return t, ok
	}
	if ext := filepath.Ext(s); ext != "" {
		s = ext
	}
	t, ok := aliases[strings.TrimPrefix(s, ".")]
	return t, ok
}

// Supported returns the allow-listed extensions.
func Supported() []string {
	return []string{"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "csv", "txt", "html", "htm", "jpeg", "jpg", "png"}
}

// ContentType is the MIME type served when a stored document is downloaded.
func (t Type) ContentType() string {
	switch t {
	case TypePDF:
		return "application/pdf"
	case TypeDOC:
		return "application/msword"
	case TypeDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case TypeXLS:
		return "application/vnd.ms-excel"
	case TypeXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case TypePPT:
		return "application/vnd.ms-powerpoint"
	case TypePPTX:
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case TypeCSV:
		return "text/csv; charset=utf-8"
	case TypeTXT:
		return "text/plain; charset=utf-8"
	case TypeHTML:
		return "text/html; charset=utf-8"
	case TypeJPEG:
		return "image/jpeg"
	case TypePNG:
		return "image/png"
	}
	return "application/octet-stream"
}
