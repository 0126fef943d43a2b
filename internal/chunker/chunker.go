// Package chunker turns uploaded document bytes into an ordered sequence of
// text fragments carrying page and bounding-box metadata.
//
// Extraction is delegated to one Extractor per document type. Extracted
// segments are normalised (NFC, control characters removed, whitespace runs
// collapsed) and then split per page with a sliding window. The default
// window is 1000 characters with a 200 character overlap (a 20% overlap
// ratio); both are configurable through WithChunkSize and WithOverlap.
package chunker

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Segment is one unit of extracted text in reading order. BBox is the zero
// rectangle when the backend exposes no layout.
type Segment struct {
	Text string
	Page int
	BBox domain.Rect
}

// Fragment is one chunk produced by the engine.
type Fragment struct {
	Seq  int
	Text string
	Page int
	BBox domain.Rect
}

// Extractor parses raw bytes of one document type into segments.
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]Segment, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, data []byte) ([]Segment, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, data []byte) ([]Segment, error) {
	return f(ctx, data)
}

// Chunker is safe for concurrent use once constructed.
type Chunker struct {
	chunkSize  int
	overlap    int
	extractors map[Type]Extractor
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the window size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between consecutive windows in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithOCR routes image formats through runner, invoking command with the
// given tesseract language codes.
func WithOCR(runner CommandRunner, command string, languages []string) Option {
	return func(c *Chunker) {
		ocr := NewOCR(runner, command, languages)
		c.extractors[TypeJPEG] = ocr
		c.extractors[TypePNG] = ocr
	}
}

// WithExtractor overrides the backend for one type.
func WithExtractor(t Type, e Extractor) Option {
	return func(c *Chunker) { c.extractors[t] = e }
}

// New builds a Chunker with the default extraction backends.
func New(opts ...Option) *Chunker {
	ocr := NewOCR(ExecRunner{}, "", nil)
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		extractors: map[Type]Extractor{
			TypePDF:  ExtractorFunc(extractPDF),
			TypeDOCX: ExtractorFunc(extractDOCX),
			TypePPTX: ExtractorFunc(extractPPTX),
			TypeXLSX: ExtractorFunc(extractXLSX),
			TypeCSV:  ExtractorFunc(extractCSV),
			TypeTXT:  ExtractorFunc(extractText),
			TypeHTML: ExtractorFunc(extractHTML),
			TypeJPEG: ocr,
			TypePNG:  ocr,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// ChunkSize returns the configured window size.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk extracts and splits data declared as declaredType.
//
// Errors:
//   - domain.ErrUnsupportedFormat: type not allow-listed or no parser for it.
//   - domain.ErrExtraction: the bytes could not be parsed as the declared type.
//   - domain.ErrEmptyDocument: parsing succeeded but produced no text.
//   - domain.ErrTimeout (with ErrExtraction): ctx expired during parsing.
func (c *Chunker) Chunk(ctx context.Context, data []byte, declaredType string) ([]Fragment, error) {
	t, ok := NormalizeType(declaredType)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an accepted document type", domain.ErrUnsupportedFormat, declaredType)
	}
	segs, err := c.Extract(ctx, data, t)
	if err != nil {
		return nil, err
	}
	frags := c.Split(segs)
	if len(frags) == 0 {
		return nil, domain.ErrEmptyDocument
	}
	return frags, nil
}

// Extract runs the backend for t and normalises its output. It never returns
// an empty slice with a nil error: no text yields ErrEmptyDocument.
func (c *Chunker) Extract(ctx context.Context, data []byte, t Type) ([]Segment, error) {
	ex, ok := c.extractors[t]
	if !ok {
		return nil, fmt.Errorf("%w: legacy %s files are not supported, convert to the OOXML format", domain.ErrUnsupportedFormat, t)
	}
	if len(data) == 0 {
		return nil, domain.ErrEmptyDocument
	}
	if err := sniff(data, t); err != nil {
		return nil, err
	}

	type result struct {
		segs []Segment
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %s parser panic: %v", domain.ErrExtraction, t, r)}
			}
		}()
		segs, err := ex.Extract(ctx, data)
		done <- result{segs, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w: parsing %s", domain.ErrTimeout, domain.ErrExtraction, t)
		}
		return nil, ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		if errors.Is(res.err, domain.ErrUnsupportedFormat) || errors.Is(res.err, domain.ErrExtraction) ||
			errors.Is(res.err, domain.ErrEmptyDocument) || errors.Is(res.err, domain.ErrTimeout) {
			return nil, res.err
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrExtraction, t, res.err)
	}

	out := normalizeSegments(res.segs)
	if len(out) == 0 {
		return nil, domain.ErrEmptyDocument
	}
	return out, nil
}
