package chunker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

// DefaultOCRCommand is the tesseract executable looked up on PATH.
const DefaultOCRCommand = "tesseract"

// CommandRunner executes an external command, feeding stdin and returning
// stdout.
type CommandRunner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// OCR recognises text in images through the tesseract CLI. The result is a
// single page without layout.
type OCR struct {
	runner    CommandRunner
	command   string
	languages []string
}

// NewOCR returns an OCR extractor. Empty command and languages default to
// "tesseract" and English.
func NewOCR(runner CommandRunner, command string, languages []string) *OCR {
	if runner == nil {
		runner = ExecRunner{}
	}
	if command == "" {
		command = DefaultOCRCommand
	}
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &OCR{runner: runner, command: command, languages: languages}
}

// Args returns the tesseract arguments: read stdin, write stdout, assume a
// uniform block of text and keep spacing between words.
func (o *OCR) Args() []string {
	return []string{
		"stdin", "stdout",
		"-l", strings.Join(o.languages, "+"),
		"--psm", "6",
		"-c", "preserve_interword_spaces=1",
	}
}

// Extract implements Extractor.
func (o *OCR) Extract(ctx context.Context, data []byte) ([]Segment, error) {
	out, err := o.runner.Run(ctx, data, o.command, o.Args()...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: ocr: %s not installed", domain.ErrExtraction, o.command)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w: ocr", domain.ErrTimeout, domain.ErrExtraction)
		}
		return nil, fmt.Errorf("%w: ocr: %v", domain.ErrExtraction, err)
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return nil, nil
	}
	return []Segment{{Text: text, Page: 1}}, nil
}
