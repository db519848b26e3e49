package markov

import (
	"bufio"
	"io"
	"unicode/utf8"
)

// DefaultTokenizer splits text on Unicode whitespace and accepts tokens that
// are purely alphabetic apart from a small set of punctuation characters.
// The punctuation set and a minimum token length are adjustable through
// Option values.
type DefaultTokenizer struct {
	punctuation string
	minLength   int
}

// Option configures a DefaultTokenizer.
type Option func(*DefaultTokenizer)

// WithPunctuation sets the characters that are stripped before the
// alphabetic check.
// Default: DefaultPunctuation
func WithPunctuation(punct string) Option {
	return func(t *DefaultTokenizer) {
		t.punctuation = punct
	}
}

// WithMinLength sets the minimum number of characters (punctuation included)
// an accepted token must have.
// Default: 1
func WithMinLength(n int) Option {
	return func(t *DefaultTokenizer) {
		t.minLength = n
	}
}

// NewDefaultTokenizer returns a tokenizer using DefaultPunctuation and a
// minimum length of 1, adjusted by opts.
func NewDefaultTokenizer(opts ...Option) *DefaultTokenizer {
	t := &DefaultTokenizer{
		punctuation: DefaultPunctuation,
		minLength:   1,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Accept applies the alphapunct filter and the minimum length.
func (t *DefaultTokenizer) Accept(token string) bool {
	if utf8.RuneCountInString(token) < t.minLength {
		return false
	}
	return IsAlphaPunct(token, t.punctuation)
}

// NewStream returns a StreamTokenizer reading whitespace-separated words from r.
func (t *DefaultTokenizer) NewStream(r io.Reader) StreamTokenizer {
	scanner := bufio.NewScanner(r)
	// Allow single tokens longer than the default 64KiB buffer.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanWords)
	return &DefaultStreamTokenizer{scanner: scanner}
}

// DefaultStreamTokenizer yields the words of a bufio.Scanner one at a time.
type DefaultStreamTokenizer struct {
	scanner *bufio.Scanner
}

// Next returns the next word, or io.EOF once the stream is drained. Other
// errors come from the underlying reader.
func (s *DefaultStreamTokenizer) Next() (*Token, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return &Token{Text: s.scanner.Text()}, nil
}
