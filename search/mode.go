package search

import "fmt"

// IndexMode selects the token-expansion strategy applied while indexing. The
// mode controls which derived strings are stored as index keys for each field
// token; query tokens are never expanded.
type IndexMode string

const (
	// IndexModeExactWords stores each token as-is. Queries match whole
	// tokens only.
	IndexModeExactWords IndexMode = "EXACT_WORDS"

	// IndexModePrefixes stores every non-empty prefix of each token, so
	// queries match the beginning of a token.
	IndexModePrefixes IndexMode = "PREFIXES"

	// IndexModeAllSubstrings stores every contiguous non-empty substring of
	// each token. A token of N runes produces N*(N+1)/2 index keys, so
	// indexing very long tokens is quadratic in token length by design.
	IndexModeAllSubstrings IndexMode = "ALL_SUBSTRINGS"
)

// ParseIndexMode converts a mode name from configuration or an API request
// into an IndexMode.
func ParseIndexMode(s string) (IndexMode, error) {
	switch IndexMode(s) {
	case IndexModeExactWords, IndexModePrefixes, IndexModeAllSubstrings:
		return IndexMode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidIndexMode, s)
}

// Valid reports whether m is one of the three defined modes.
func (m IndexMode) Valid() bool {
	switch m {
	case IndexModeExactWords, IndexModePrefixes, IndexModeAllSubstrings:
		return true
	}
	return false
}

// Expand returns the strings stored in the inverted index for a single
// token under the given mode. It is a pure function: the same mode and token
// always produce the same expansion, in the same order.
//
// Expansion iterates runes, not bytes, so multi-byte code points (including
// those outside the Basic Multilingual Plane) are treated as single
// characters and never split mid-sequence.
func Expand(mode IndexMode, token string) []string {
	switch mode {
	case IndexModeExactWords:
		return []string{token}

	case IndexModePrefixes:
		runes := []rune(token)
		expanded := make([]string, 0, len(runes))
		for end := 1; end <= len(runes); end++ {
			expanded = append(expanded, string(runes[:end]))
		}
		return expanded

	case IndexModeAllSubstrings:
		runes := []rune(token)
		expanded := make([]string, 0, len(runes)*(len(runes)+1)/2)
		for start := 0; start < len(runes); start++ {
			for end := start + 1; end <= len(runes); end++ {
				expanded = append(expanded, string(runes[start:end]))
			}
		}
		return expanded
	}
	return nil
}
