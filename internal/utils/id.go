package utils

import (
	"log"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateNanoIDWithPrefix generates a prefixed nanoid, e.g. "ship_x2c8k1p0q9m3"
func GenerateNanoIDWithPrefix(prefix string, length int) string {
	id, err := gonanoid.Generate(idAlphabet, length)
	if err != nil {
		log.Printf("failed to generate nanoid: %v", err)
		return ""
	}
	return prefix + "_" + id
}
