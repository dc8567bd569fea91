package utils

import (
	"regexp"
	"strings"
)

var emailListSeparators = regexp.MustCompile(`[,;\s]+`)

// SplitEmailList splits a recipient list stored as one string on commas,
// semicolons and whitespace, dropping empty entries.
func SplitEmailList(s string) []string {
	parts := emailListSeparators.Split(s, -1)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// TruncateString shortens s to max runes, appending an ellipsis when cut.
func TruncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func IsStringInSlice(s string, slice []string) bool {
	for _, item := range slice {
		if item == s {
			return true
		}
	}
	return false
}
