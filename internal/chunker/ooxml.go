package chunker

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// extractDOCX reads word/document.xml. Paragraphs become segments and
// explicit or rendered page breaks advance the page number.
func extractDOCX(_ context.Context, data []byte) ([]Segment, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: docx: %v", domain.ErrExtraction, err)
	}
	body, err := readZipEntry(zr, "word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("%w: docx: %v", domain.ErrExtraction, err)
	}
	return paragraphs(body, 1, true)
}

// extractPPTX reads every slide in numeric order; each slide is a page.
func extractPPTX(ctx context.Context, data []byte) ([]Segment, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: pptx: %v", domain.ErrExtraction, err)
	}
	type slide struct {
		n int
		f *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		if m := slideName.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{n, f})
		}
	}
	if len(slides) == 0 {
		return nil, fmt.Errorf("%w: pptx: no slides", domain.ErrExtraction)
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var out []Segment
	for i, s := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := readFile(s.f)
		if err != nil {
			return nil, fmt.Errorf("%w: pptx slide %d: %v", domain.ErrExtraction, s.n, err)
		}
		segs, err := paragraphs(body, i+1, false)
		if err != nil {
			return nil, err
		}
		out = append(out, segs...)
	}
	return out, nil
}

// paragraphs walks WordprocessingML or DrawingML: <p> delimits paragraphs,
// <t> carries text, <tab> is a space and <br type="page"> (or a rendered
// page break) starts a new page when pageBreaks is set.
func paragraphs(body []byte, page int, pageBreaks bool) ([]Segment, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		out    []Segment
		cur    strings.Builder
		inText bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, Segment{Text: s, Page: page})
		}
		cur.Reset()
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: xml: %v", domain.ErrExtraction, err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				cur.WriteByte(' ')
			case "br":
				if pageBreaks && attr(el, "type") == "page" {
					flush()
					page++
				} else {
					cur.WriteByte(' ')
				}
			case "lastRenderedPageBreak":
				if pageBreaks {
					flush()
					page++
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inText {
				cur.Write(el)
			}
		}
	}
	flush()
	return out, nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return readFile(f)
		}
	}
	return nil, fmt.Errorf("missing %s", name)
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
