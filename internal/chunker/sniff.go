package chunker

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

// expected lists the detected MIME type (or an ancestor of it) each
// declared type must match.
var expected = map[Type]string{
	TypePDF:  "application/pdf",
	TypeDOCX: "application/zip",
	TypeXLSX: "application/zip",
	TypePPTX: "application/zip",
	TypePNG:  "image/png",
	TypeJPEG: "image/jpeg",
	TypeCSV:  "text/plain",
	TypeTXT:  "text/plain",
	TypeHTML: "text/plain",
}

// sniff rejects bytes whose container does not match the declared type, for
// example a renamed ZIP uploaded as .pdf.
func sniff(data []byte, t Type) error {
	want, ok := expected[t]
	if !ok {
		return nil
	}
	got := mimetype.Detect(data)
	for m := got; m != nil; m = m.Parent() {
		if m.Is(want) {
			return nil
		}
	}
	return fmt.Errorf("%w: content is %s, not %s", domain.ErrExtraction, got.String(), t)
}
