package chunker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

const blockSelector = "title, h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td, th, dt, dd, figcaption, caption"

// extractHTML drops script and style content and emits the innermost block
// elements in document order. Pages without block markup fall back to the
// body text.
func extractHTML(_ context.Context, data []byte) ([]Segment, error) {
	s, err := decodeText(data)
	if err != nil {
		return nil, fmt.Errorf("%w: html: %v", domain.ErrExtraction, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(s)))
	if err != nil {
		return nil, fmt.Errorf("%w: html: %v", domain.ErrExtraction, err)
	}
	doc.Find("script, style, noscript, template, svg").Remove()

	var out []Segment
	doc.Find(blockSelector).Each(func(_ int, sel *goquery.Selection) {
		if sel.Find(blockSelector).Length() > 0 {
			return
		}
		if t := strings.TrimSpace(sel.Text()); t != "" {
			out = append(out, Segment{Text: t, Page: 1})
		}
	})
	if len(out) == 0 {
		if t := strings.TrimSpace(doc.Find("body").Text()); t != "" {
			out = append(out, Segment{Text: t, Page: 1})
		}
	}
	return out, nil
}
