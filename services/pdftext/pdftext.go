// Package pdftext extracts the plain-text layer from PDF attachments so the
// field extractors can run over it.
package pdftext

import (
	"bytes"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"

	"github.com/techmailbox/shipmail/interfaces"
)

type extractor struct{}

func NewExtractor() interfaces.PDFTextExtractor {
	return &extractor{}
}

// Text returns the concatenated text layer of the document. Malformed PDFs
// are common in scanned mail traffic, so any failure, panic included, comes
// back as an error the pipeline treats as "no data".
func (e *extractor) Text(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("pdf text extraction panicked: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(err, "failed to open pdf")
	}

	var buf bytes.Buffer
	totalPage := reader.NumPage()
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(content)
		buf.WriteString("\n")
	}

	return buf.String(), nil
}
