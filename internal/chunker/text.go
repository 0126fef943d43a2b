package chunker

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

// decodeText returns data as UTF-8. A BOM selects UTF-8 or UTF-16; other
// input that is not valid UTF-8 is read as Windows-1252.
func decodeText(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return string(data[3:]), nil
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}), bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, data)
		return string(out), err
	case utf8.Valid(data):
		return string(data), nil
	}
	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	return string(out), err
}

// extractText treats the file as one page without layout; every line is a
// segment.
func extractText(_ context.Context, data []byte) ([]Segment, error) {
	s, err := decodeText(data)
	if err != nil {
		return nil, fmt.Errorf("%w: text: %v", domain.ErrExtraction, err)
	}
	lines := strings.Split(s, "\n")
	out := make([]Segment, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, Segment{Text: l, Page: 1})
		}
	}
	return out, nil
}

// extractCSV flattens each record like a spreadsheet row. Ragged rows are
// accepted.
func extractCSV(_ context.Context, data []byte) ([]Segment, error) {
	s, err := decodeText(data)
	if err != nil {
		return nil, fmt.Errorf("%w: csv: %v", domain.ErrExtraction, err)
	}
	r := csv.NewReader(strings.NewReader(s))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var out []Segment
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %v", domain.ErrExtraction, err)
		}
		if line := joinCells(rec); line != "" {
			out = append(out, Segment{Text: line, Page: 1})
		}
	}
	return out, nil
}
