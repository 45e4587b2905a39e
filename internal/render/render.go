// Package render holds the result and error types shared by the template-clone
// and direct-layout renderers.
package render

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Result is either a LinkResult or an InlineResult.
type Result interface {
	Filename() string
	isResult()
}

// LinkResult points at a remotely hosted PDF export.
type LinkResult struct {
	URL    string
	FileID string
	Name   string
}

func (r LinkResult) Filename() string { return r.Name }
func (LinkResult) isResult()          {}

// InlineResult carries the PDF bytes directly.
type InlineResult struct {
	Bytes []byte
	Name  string
}

func (r InlineResult) Filename() string { return r.Name }
func (InlineResult) isResult()          {}

// Steps reported by Error.
const (
	StepCopy       = "copy_template"
	StepSubstitute = "substitute_placeholders"
	StepExport     = "export"
	StepLayout     = "layout"
	StepFetch      = "fetch_export"
	StepValidate   = "validate"
)

// Error is a fatal render failure at a named step.
type Error struct {
	Step     string
	Document string
	Err      error
}

func (e *Error) Error() string {
	if e.Document == "" {
		return fmt.Sprintf("render %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("render %s %s: %v", e.Document, e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotPDF reports bytes that do not parse as a PDF with at least one page.
var ErrNotPDF = errors.New("not a valid pdf")

// ValidatePDF parses b and checks it has at least one page.
func ValidatePDF(b []byte) (err error) {
	if len(b) == 0 {
		return fmt.Errorf("%w: empty", ErrNotPDF)
	}
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrNotPDF, r)
		}
	}()
	r, perr := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if perr != nil {
		return fmt.Errorf("%w: %v", ErrNotPDF, perr)
	}
	if r.NumPage() < 1 {
		return fmt.Errorf("%w: no pages", ErrNotPDF)
	}
	return nil
}
