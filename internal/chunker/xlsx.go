package chunker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

// extractXLSX flattens every non-empty row to one "a | b | c" line. Each
// sheet is a page.
func extractXLSX(ctx context.Context, data []byte) ([]Segment, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: %v", domain.ErrExtraction, err)
	}
	defer f.Close()

	var out []Segment
	for i, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("%w: xlsx sheet %q: %v", domain.ErrExtraction, sheet, err)
		}
		for _, row := range rows {
			if line := joinCells(row); line != "" {
				out = append(out, Segment{Text: line, Page: i + 1})
			}
		}
	}
	return out, nil
}

func joinCells(cells []string) string {
	parts := make([]string, 0, len(cells))
	for _, c := range cells {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " | ")
}
