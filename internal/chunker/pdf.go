package chunker

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

// US Letter, used when a page carries no readable MediaBox.
const (
	defaultPageWidth  = 612
	defaultPageHeight = 792
)

// extractPDF emits one segment per text row with its bounding box converted
// to a top-left origin. Width and Height carry the page size.
func extractPDF(ctx context.Context, data []byte) ([]Segment, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: pdf: %v", domain.ErrExtraction, err)
	}

	var out []Segment
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		w, h := pageSize(p)
		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("%w: pdf page %d: %v", domain.ErrExtraction, i, err)
		}
		sort.SliceStable(rows, func(a, b int) bool { return rows[a].Position > rows[b].Position })
		for _, row := range rows {
			text, box, ok := rowText(row.Content, w, h)
			if !ok {
				continue
			}
			out = append(out, Segment{Text: text, Page: i, BBox: box})
		}
	}
	return out, nil
}

func pageSize(p pdf.Page) (float64, float64) {
	mb := p.V.Key("MediaBox")
	if mb.IsNull() || mb.Len() < 4 {
		return defaultPageWidth, defaultPageHeight
	}
	w := mb.Index(2).Float64() - mb.Index(0).Float64()
	h := mb.Index(3).Float64() - mb.Index(1).Float64()
	if w <= 0 || h <= 0 {
		return defaultPageWidth, defaultPageHeight
	}
	return w, h
}

// rowText joins glyph runs, inserting a space where the horizontal gap
// exceeds a fifth of the font size.
func rowText(texts pdf.TextHorizontal, pageW, pageH float64) (string, domain.Rect, bool) {
	if len(texts) == 0 {
		return "", domain.Rect{}, false
	}
	sort.SliceStable(texts, func(a, b int) bool { return texts[a].X < texts[b].X })

	var (
		b    strings.Builder
		prev *pdf.Text
		box  = domain.Rect{X1: texts[0].X, X2: texts[0].X, Width: pageW, Height: pageH}
		top  float64
		base float64
	)
	for i := range texts {
		t := &texts[i]
		if prev != nil {
			gap := t.X - (prev.X + prev.W)
			if gap > t.FontSize*0.2 && !strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(t.S, " ") {
				b.WriteByte(' ')
			}
		}
		b.WriteString(t.S)
		box.X1 = min(box.X1, t.X)
		box.X2 = max(box.X2, t.X+t.W)
		top = max(top, t.Y+t.FontSize)
		if i == 0 {
			base = t.Y
		}
		base = min(base, t.Y)
		prev = t
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", domain.Rect{}, false
	}
	box.Y1 = pageH - top
	box.Y2 = pageH - base
	return text, box, true
}
