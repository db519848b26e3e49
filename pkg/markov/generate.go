package markov

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Retryable failures of a single generation attempt.
var (
	errIndexInconsistency = errors.New("index inconsistency")
	errEmptyResult        = errors.New("empty result")
)

// generateOptions Is used by the generate functions to configure default options.
type generateOptions struct {
	maxLength int
	seedWords []string
	maxTries  int
	verbose   bool
}

// GenerateOption is a function that configures generation parameters. It's used
// as a variadic argument in Generate.
type GenerateOption func(*generateOptions)

// WithMaxLength sets the number of steps taken through the chain. The raw
// walk yields maxLength+1 words before it is trimmed back to the last
// sentence boundary.
func WithMaxLength(n int) GenerateOption {
	return func(o *generateOptions) { o.maxLength = n }
}

// WithSeedWords biases the starting pair toward one containing a seed word.
// Seeds are tried in order and only the first one found is honored. A seed
// containing a space matches a pair whose two words equal its two fields.
// If no seed is found the walk starts from a random pair.
func WithSeedWords(words ...string) GenerateOption {
	return func(o *generateOptions) { o.seedWords = words }
}

// WithMaxTries sets how many attempts are made before giving up with
// ErrGenerationExhausted.
func WithMaxTries(n int) GenerateOption {
	return func(o *generateOptions) { o.maxTries = n }
}

// WithVerbose raises the log level of failed attempts from Debug to Info.
func WithVerbose(verbose bool) GenerateOption {
	return func(o *generateOptions) { o.verbose = verbose }
}

// Generate walks the named database to produce a sentence. Each attempt picks
// a starting pair (biased by any seed words), takes maxLength random steps,
// capitalizes the result and trims it back to the last word ending a sentence.
// Attempts that hit a pair with no successors or that contain no sentence
// boundary are retried, up to maxTries times.
//
// Generate never modifies the store.
func (s *Store) Generate(ctx context.Context, database string, opts ...GenerateOption) (string, error) {
	options := &generateOptions{
		maxLength: 20,
		maxTries:  100,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.maxLength < 1 {
		return "", fmt.Errorf("max length must be at least 1, got %d: %w", options.maxLength, ErrInvalidArgument)
	}
	if options.maxTries < 1 {
		return "", fmt.Errorf("max tries must be at least 1, got %d: %w", options.maxTries, ErrInvalidArgument)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.data[database]
	if !ok {
		// Nothing has been ingested under this name yet. It is reported as
		// empty, and also matches ErrDatabaseNotFound for callers that care.
		return "", fmt.Errorf("no data has been ingested into %q: %w: %w", database, ErrEmptyDatabase, ErrDatabaseNotFound)
	}
	if len(idx) == 0 {
		return "", fmt.Errorf("no data is available yet in %q: %w", database, ErrEmptyDatabase)
	}

	// Sorted first so that a seeded source gives the same shuffle every run.
	keys := make([]Key, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	failLevel := slog.LevelDebug
	if options.verbose {
		failLevel = slog.LevelInfo
	}

	var lastErr error
	for attempt := 1; attempt <= options.maxTries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		sentence, err := s.generateSentence(ctx, idx, keys, options)
		if err == nil {
			s.logger.DebugContext(ctx, "Generation succeeded",
				slog.String("database", database),
				slog.Int("attempts", attempt),
				slog.Int("max_length", options.maxLength),
			)
			return sentence, nil
		}

		lastErr = err
		s.logger.Log(ctx, failLevel, "Error generating text",
			slog.String("database", database),
			slog.Int("attempt", attempt),
			slog.Int("remaining", options.maxTries-attempt),
			slog.String("error", err.Error()),
		)
	}

	return "", fmt.Errorf("made %d attempts on %q: %w: %w", options.maxTries, database, ErrGenerationExhausted, lastErr)
}

// generateSentence performs a single generation attempt. keys is reshuffled
// in place.
func (s *Store) generateSentence(ctx context.Context, idx Index, keys []Key, options *generateOptions) (string, error) {
	s.rng.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})

	start := keys[s.rng.IntN(len(keys))]
	if len(options.seedWords) > 0 {
		if seeded, ok := findSeed(keys, options.seedWords); ok {
			start = seeded
		} else {
			s.logger.DebugContext(ctx, "No seed word found, starting from a random pair",
				slog.Any("seed_words", options.seedWords),
			)
		}
	}

	w1, w2 := start[0], start[1]
	words := make([]string, 0, options.maxLength+1)
	for i := 0; i < options.maxLength; i++ {
		words = append(words, w1)
		choices := idx[Key{w1, w2}]
		if len(choices) == 0 {
			return "", fmt.Errorf("no successors for (%q, %q): %w", w1, w2, errIndexInconsistency)
		}
		w1, w2 = w2, choices[s.rng.IntN(len(choices))]
	}
	words = append(words, w2)

	capitalizeWords(words)

	words = trimToSentence(words)
	if len(words) == 0 {
		return "", errEmptyResult
	}
	return strings.Join(words, " "), nil
}

// findSeed returns the first key, in the order given, that holds the first
// seed word which appears anywhere in keys.
func findSeed(keys []Key, seeds []string) (Key, bool) {
	for _, seed := range seeds {
		phrase := strings.Fields(seed)
		for _, k := range keys {
			if k[0] == seed || k[1] == seed {
				return k, true
			}
			if len(phrase) == 2 && phrase[0] == k[0] && phrase[1] == k[1] {
				return k, true
			}
		}
	}
	return Key{}, false
}

// capitalizeWords capitalizes the first word, every word following one that
// contains a full stop, and every lone "i".
func capitalizeWords(words []string) {
	for i, w := range words {
		if i == 0 || strings.Contains(words[i-1], ".") || w == "i" {
			words[i] = capitalize(w)
		}
	}
}

// capitalize upper-cases the first letter of w and lower-cases the rest.
func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if size == 0 {
		return w
	}
	return string(unicode.ToTitle(r)) + strings.ToLower(w[size:])
}

// trimToSentence cuts words after the last one ending in sentence punctuation.
// A trailing comma, semicolon or colon is turned into a full stop. The first
// word is never considered, so a walk with no later boundary yields nil.
func trimToSentence(words []string) []string {
	for i := len(words) - 1; i > 0; i-- {
		w := words[i]
		if w == "" {
			continue
		}
		switch w[len(w)-1] {
		case '.', '!', '?':
			return words[:i+1]
		case ',', ';', ':':
			words[i] = w[:len(w)-1] + "."
			return words[:i+1]
		}
	}
	return nil
}
