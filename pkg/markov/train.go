package markov

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// transition Is a single observation of w3 following the pair (w1, w2).
type transition struct {
	key  Key
	next string
}

// Train processes a stream of text from an io.Reader, tokenizes it, and
// appends every qualifying word triple to the named database. A triple
// qualifies when the tokenizer accepts all three of its tokens. The stream is
// read completely before the database is touched, so a read error leaves the
// store unchanged.
//
// When overwrite is set the database is emptied first. Overwriting the
// "default" database always succeeds; overwriting any other name requires it
// to exist already, otherwise ErrDatabaseNotFound is returned.
func (s *Store) Train(ctx context.Context, database string, data io.Reader, overwrite bool) error {
	stream := s.tokenizer.NewStream(data)

	var (
		window      [3]string
		accepted    [3]bool
		tokenCount  int
		transitions []transition
	)

	for {
		token, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("tokenizer error: %w", err)
		}

		window[0], window[1], window[2] = window[1], window[2], token.Text
		accepted[0], accepted[1], accepted[2] = accepted[1], accepted[2], s.tokenizer.Accept(token.Text)
		tokenCount++

		if tokenCount >= 3 && accepted[0] && accepted[1] && accepted[2] {
			transitions = append(transitions, transition{
				key:  Key{window[0], window[1]},
				next: window[2],
			})
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if overwrite {
		if err := s.truncate(database); err != nil {
			return err
		}
	}

	idx := s.database(database)
	for _, t := range transitions {
		idx[t.key] = append(idx[t.key], t.next)
	}

	s.logger.InfoContext(ctx, "Training completed",
		slog.String("database", database),
		slog.Bool("overwrite", overwrite),
		slog.Int("tokens_read", tokenCount),
		slog.Int("transitions_added", len(transitions)),
	)

	return nil
}

// TrainString is a convenience wrapper around Train for in-memory text.
func (s *Store) TrainString(ctx context.Context, database, text string, overwrite bool) error {
	return s.Train(ctx, database, strings.NewReader(text), overwrite)
}
