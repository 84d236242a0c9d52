package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

var (
	// ErrUnsupportedFormat indicates the declared media type has no
	// extractor. Caller error, not retryable.
	ErrUnsupportedFormat = errors.New("unsupported media type")

	// ErrExtractionFailed indicates the underlying parser failed on a
	// supported media type.
	ErrExtractionFailed = errors.New("text extraction failed")
)

// Media types accepted by Extract.
const (
	MediaTypePlain    = "text/plain"
	MediaTypeMarkdown = "text/markdown"
	MediaTypeXMark    = "text/x-markdown"
	MediaTypePDF      = "application/pdf"
	MediaTypeDocx     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Extract converts the file at path into raw text, dispatching purely on
// the declared media type. Unknown types fail with ErrUnsupportedFormat;
// parser failures are wrapped in ErrExtractionFailed.
func Extract(path, mediaType string) (string, error) {
	switch mediaType {
	case MediaTypePlain, MediaTypeMarkdown, MediaTypeXMark:
		return extractText(path)
	case MediaTypePDF:
		return extractPDF(path)
	case MediaTypeDocx:
		return extractDocx(path)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, mediaType)
	}
}

// extractText reads the file as UTF-8, replacing invalid byte sequences
// rather than failing on them.
func extractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrExtractionFailed, path, err)
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// pdfPageText extracts the text of one parsed page. A variable so tests
// can inject per-page parser failures.
var pdfPageText = func(page *model.PdfPage) (string, error) {
	ex, err := extractor.New(page)
	if err != nil {
		return "", err
	}
	return ex.ExtractText()
}

// extractPDF concatenates per-page text with newline separators. A page
// that fails to parse is skipped, but a document where every page fails is
// an extraction error rather than silently empty text, as is a
// document-level parse failure.
func extractPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %v", ErrExtractionFailed, path, err)
	}
	defer f.Close()

	reader, err := model.NewPdfReader(f)
	if err != nil {
		return "", fmt.Errorf("%w: parsing PDF: %v", ErrExtractionFailed, err)
	}

	numPages, err := reader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("%w: reading PDF page count: %v", ErrExtractionFailed, err)
	}

	var parts []string
	failedPages := 0
	for i := 1; i <= numPages; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			failedPages++
			continue
		}
		text, err := pdfPageText(page)
		if err != nil {
			failedPages++
			continue
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	if numPages > 0 && failedPages == numPages {
		return "", fmt.Errorf("%w: none of the %d PDF pages could be parsed", ErrExtractionFailed, numPages)
	}

	return strings.Join(parts, "\n"), nil
}

// extractDocx concatenates the non-blank paragraphs of a .docx document
// with newline separators.
func extractDocx(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrExtractionFailed, path, err)
	}

	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: parsing docx: %v", ErrExtractionFailed, err)
	}
	defer doc.Close()

	var parts []string
	for _, para := range doc.Paragraphs() {
		var b strings.Builder
		for _, run := range para.Runs() {
			b.WriteString(run.Text())
		}
		if text := b.String(); strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, "\n"), nil
}
