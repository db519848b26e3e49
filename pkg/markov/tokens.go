package markov

import (
	"io"
	"strings"
	"unicode"
)

// Token represents a single whitespace-delimited unit of text, exactly as it
// appeared in the input.
type Token struct {
	Text string
}

// Tokenizer splits training text into tokens and decides which tokens may take
// part in a chain.
type Tokenizer interface {
	// NewStream starts tokenizing r.
	NewStream(io.Reader) StreamTokenizer
	// Accept reports whether a token is allowed into a chain. Tokens that are
	// not accepted still occupy their position in the window sequence.
	Accept(token string) bool
}

// StreamTokenizer hands out the tokens of one reader in order.
type StreamTokenizer interface {
	// Next returns io.EOF after the last token.
	Next() (*Token, error)
}

// DefaultPunctuation is the set of characters ignored by IsAlphaPunct.
const DefaultPunctuation = ".,;:!?'"

// IsAlphaPunct reports whether s consists of letters once every character in
// punct has been removed. The remainder has to be at least one letter long.
func IsAlphaPunct(s, punct string) bool {
	letters := 0
	for _, r := range s {
		if strings.ContainsRune(punct, r) {
			continue
		}
		if !unicode.IsLetter(r) {
			return false
		}
		letters++
	}
	return letters > 0
}
