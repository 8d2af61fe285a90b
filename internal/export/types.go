// Package export renders an issue and its audit history as HTML, PDF, or DOCX.
package export

import "errors"

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat validates a format query value.
func ParseFormat(value string) (Format, bool) {
	switch Format(value) {
	case FormatHTML, FormatPDF, FormatDOCX:
		return Format(value), true
	default:
		return "", false
	}
}

// Request contains parameters for an export operation
type Request struct {
	OrgID   string
	IssueID string
	Format  Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
