// Package extractor holds the pure text extractors that pull structured
// shipment fields out of PDF document text. They never touch IO: unreadable or
// unmatched input yields an empty result, not an error.
package extractor

import (
	"regexp"
	"strings"
)

// deliveryIDLength is the fixed width of a delivery identifier.
const deliveryIDLength = 8

var deliveryNoteRe = regexp.MustCompile(`(?i)shipping\s*note\s*no\.?\s*[:\-]?\s*([A-Za-z0-9\s]{8,})`)

var whitespaceRe = regexp.MustCompile(`\s+`)

// DeliveryID finds the "shipping note no." label in a Delivery document and
// returns the normalized 8-char identifier, or "" when the document carries
// none.
func DeliveryID(text string) string {
	if text == "" {
		return ""
	}
	m := deliveryNoteRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return normalizeIdentifier(m[1])
}

// normalizeIdentifier strips internal whitespace and truncates to the fixed
// identifier width. Scanned PDFs routinely split identifiers across spaces.
func normalizeIdentifier(raw string) string {
	s := whitespaceRe.ReplaceAllString(raw, "")
	if len(s) > deliveryIDLength {
		s = s[:deliveryIDLength]
	}
	return s
}

func trimLineRemainder(s string) string {
	return strings.TrimSpace(s)
}
