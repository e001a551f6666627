package core

import (
	"fmt"
	"math/rand/v2"
)

// pseudonymPrefixes is the fixed label set names are drawn from.
var pseudonymPrefixes = []string{
	"Anon", "Ghost", "Shadow", "Echo", "Cipher", "Nova", "Quill", "Raven",
}

const (
	pseudonymSuffixMin = 1000
	pseudonymSuffixMax = 9999
	// maxPseudonymAttempts caps collision retries; the namespace holds 72000 names.
	maxPseudonymAttempts = 512
)

// IntN returns a uniform int in [0, n). rand.IntN is the default.
type IntN func(n int) int

// GeneratePseudonym draws names until one is not taken.
func GeneratePseudonym(intn IntN, taken func(string) bool) (string, error) {
	if intn == nil {
		intn = rand.IntN
	}
	span := pseudonymSuffixMax - pseudonymSuffixMin + 1
	for range maxPseudonymAttempts {
		prefix := pseudonymPrefixes[intn(len(pseudonymPrefixes))]
		name := fmt.Sprintf("%s-%d", prefix, pseudonymSuffixMin+intn(span))
		if !taken(name) {
			return name, nil
		}
	}
	return "", ErrNamespaceExhausted
}
