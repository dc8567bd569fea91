package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// EADData holds the fields extracted from an EAD customs-release document.
// Every field is optional; Delivery empty means the document could not be
// correlated to a shipment.
type EADData struct {
	Delivery    string
	ProcessCode string
	MRN         string
	// ReleaseDate is normalized to YYYY-MM-DD.
	ReleaseDate string
}

// mrnWindow is how far past an "mrn" label the strict/loose patterns are
// searched. Scanned PDFs fragment the token, so the window is generous.
const mrnWindow = 250

// releaseDateWindow bounds the text read after the release-date label.
const releaseDateWindow = 50

var (
	n325Re = regexp.MustCompile(`(?i)(?:\[\s*N325\s*\]|\bN325\b)[:\s,-]*([A-Za-z0-9\s]{8,})`)

	pow01Re = regexp.MustCompile(`(?i)(?:\[\s*POW01\s*\]|\bPOW01\b)[:\s-]*([^\r\n]+)`)
	d9dk8Re = regexp.MustCompile(`(?i)(?:\[\s*9DK8\s*\]|\b9DK8\b)[:\s-]*([^\r\n]+)`)

	mrnLabelRe  = regexp.MustCompile(`(?i)(?:\bnr\s*)?mrn\b`)
	mrnStrictRe = regexp.MustCompile(`\b\d{2}PL[A-Z0-9]{14}\b`)
	mrnLooseRe  = regexp.MustCompile(`(\d{2})\s*P\s*L\s*([A-Z0-9\s\-]{14,})`)
	mrnCleanRe  = regexp.MustCompile(`[^0-9A-Za-z]`)
	mrnShapeRe  = regexp.MustCompile(`^\d{2}PL[A-Z0-9]{14}`)

	releaseDateLabelRe = regexp.MustCompile(`(?i)date\s*of\s*release\s*for\s*export\s*[:\-\x{2013}\x{2014}]?\s*`)
	// Year-first (YYYY sep M sep D) or day-first (D sep M sep YYYY), with
	// mixed separators including en/em dashes.
	releaseDateTokenRe = regexp.MustCompile(`([0-9]{4}\s*[-./\x{2013}\x{2014}]\s*[0-9]{1,2}\s*[-./\x{2013}\x{2014}]\s*[0-9]{1,2}|[0-9]{1,2}\s*[-./\x{2013}\x{2014}]\s*[0-9]{1,2}\s*[-./\x{2013}\x{2014}]\s*[0-9]{4})`)

	dashVariantsRe = regexp.MustCompile(`[\x{2013}\x{2014}]`)
)

// EAD extracts the correlation and closing fields from an EAD document's text.
func EAD(raw string) EADData {
	if raw == "" {
		return EADData{}
	}
	// Non-breaking spaces come out of PDF text layers all the time.
	text := strings.ReplaceAll(raw, "\u00a0", " ")

	return EADData{
		Delivery:    extractEADDelivery(text),
		ProcessCode: extractProcessCode(text),
		MRN:         extractMRN(text),
		ReleaseDate: extractReleaseDate(text),
	}
}

func extractEADDelivery(text string) string {
	m := n325Re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return normalizeIdentifier(m[1])
}

// extractProcessCode prefers the POW01 label and falls back to 9DK8, taking
// the trimmed remainder of the labelled line.
func extractProcessCode(text string) string {
	if m := pow01Re.FindStringSubmatch(text); m != nil {
		return trimLineRemainder(m[1])
	}
	if m := d9dk8Re.FindStringSubmatch(text); m != nil {
		return trimLineRemainder(m[1])
	}
	return ""
}

// extractMRN runs the three-tier search: strict near an "mrn" label, loose
// reconstruction near the label, then document-wide strict match.
func extractMRN(text string) string {
	if loc := mrnLabelRe.FindStringIndex(text); loc != nil {
		end := loc[0] + mrnWindow
		if end > len(text) {
			end = len(text)
		}
		around := text[loc[0]:end]

		if strict := mrnStrictRe.FindString(around); strict != "" {
			return strict
		}
		if loose := mrnLooseRe.FindStringSubmatch(around); loose != nil {
			cleaned := strings.ToUpper(mrnCleanRe.ReplaceAllString(loose[1]+"PL"+loose[2], ""))
			if mrnShapeRe.MatchString(cleaned) {
				return cleaned[:18]
			}
		}
	}
	return mrnStrictRe.FindString(text)
}

func extractReleaseDate(text string) string {
	label := releaseDateLabelRe.FindStringIndex(text)
	if label == nil {
		return ""
	}
	end := label[1] + releaseDateWindow
	if end > len(text) {
		end = len(text)
	}
	token := releaseDateTokenRe.FindString(text[label[1]:end])
	if token == "" {
		return ""
	}
	return normalizeDate(token)
}

// normalizeDate turns a matched date token into YYYY-MM-DD, accepting both
// year-first and day-first component orders.
func normalizeDate(token string) string {
	s := dashVariantsRe.ReplaceAllString(token, "-")
	s = whitespaceRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")

	var parts []string
	for _, p := range strings.Split(s, "-") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) != 3 {
		return ""
	}
	switch {
	case len(parts[0]) == 4:
		return fmt.Sprintf("%s-%s-%s", parts[0], pad2(parts[1]), pad2(parts[2]))
	case len(parts[2]) == 4:
		return fmt.Sprintf("%s-%s-%s", parts[2], pad2(parts[1]), pad2(parts[0]))
	}
	return ""
}

func pad2(s string) string {
	if n, err := strconv.Atoi(s); err == nil {
		return fmt.Sprintf("%02d", n)
	}
	return s
}
