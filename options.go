package fixpoint

import (
	"fmt"
	"log/slog"
)

// Option configures a Store.
type Option func(*Store)

// WithParallelism selects the scheduling backend: n <= 1 uses the
// deterministic sequential worklist, n > 1 a worker pool of n goroutines.
// Both backends reach the same fixpoint.
//
// Default: 1 (sequential).
func WithParallelism(n int) Option {
	return func(s *Store) {
		if n < 1 {
			n = 1
		}
		s.parallelism = n
	}
}

// WithDebug enables per-update diagnostics: every stored bound is logged at
// debug level, and a monotonicity violation panics immediately instead of
// only being recorded, so the offending computation is caught in the act.
func WithDebug() Option {
	return func(s *Store) { s.debug = true }
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithRecorder attaches a trace recorder receiving every slot update and
// dependency edge. Default: none.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

// WithEntitySource provides the entity-enumeration source used by eager
// scheduling. The store does not own the program model; it only pulls "all
// known entities" from this function when Schedule runs.
func WithEntitySource(entities func() []Entity) Option {
	return func(s *Store) { s.entities = entities }
}

// WithTokenGenerator overrides the run token generator. Default: UUIDv7.
func WithTokenGenerator(g RunTokenGenerator) Option {
	return func(s *Store) { s.tokens = g }
}

// WithLabeler sets the function rendering entities for logs and trace
// records. Default: fmt.Sprint.
func WithLabeler(label func(e Entity) string) Option {
	return func(s *Store) { s.labeler = label }
}

func defaultLabeler(e Entity) string {
	return fmt.Sprint(e)
}
