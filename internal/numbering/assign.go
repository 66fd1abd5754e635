package numbering

import (
	"context"
	"errors"
	"log/slog"

	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// Assign picks the next number for key and hands it to persist, which must
// write the owning document. A persist failure wrapping ErrDuplicateNumber
// moves to the following candidate; after the configured attempts the call
// fails with a NUMBERING_EXHAUSTED error that the caller may retry as a whole.
func (s *Sequencer) Assign(ctx context.Context, store Store, key Key, persist func(ctx context.Context, number int64) error) (int64, error) {
	candidate, err := s.NextNumber(ctx, store, key)
	if err != nil {
		return 0, err
	}
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := persist(ctx, candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, ErrDuplicateNumber) {
			return 0, err
		}
		if s.metrics != nil {
			s.metrics.NumberingRetry(string(key.Scope))
		}
		s.logger.Debug("receipt number collision",
			slog.String("key", key.String()),
			slog.Int64("candidate", candidate),
			slog.Int("attempt", attempt))
		candidate++
	}
	if s.metrics != nil {
		s.metrics.NumberingExhausted(string(key.Scope))
	}
	s.logger.Warn("receipt numbering exhausted",
		slog.String("key", key.String()),
		slog.Int("attempts", s.maxAttempts))
	return 0, shared.NumberingExhausted("no free receipt number for %s after %d attempts", key, s.maxAttempts)
}

// Resolution is the outcome of reconciling an externally assigned number.
type Resolution struct {
	Number   int64
	Adopted  bool
	Conflict bool
}

// Reconcile decides whether an authoritative number reported by an external
// party replaces the local one. It is adopted only when no other document in
// the same sequence holds it; otherwise the local number stays and the
// resolution is flagged as a conflict. Reconcile never fails the operation
// because of a conflict.
func (s *Sequencer) Reconcile(ctx context.Context, store Store, key Key, local, authoritative int64) (Resolution, error) {
	if authoritative <= 0 || authoritative == local {
		return Resolution{Number: local}, nil
	}
	taken, err := store.NumberTaken(ctx, key, authoritative)
	if err != nil {
		return Resolution{}, err
	}
	if taken {
		s.logger.Warn("authoritative receipt number already issued locally",
			slog.String("key", key.String()),
			slog.Int64("local", local),
			slog.Int64("authoritative", authoritative))
		return Resolution{Number: local, Conflict: true}, nil
	}
	return Resolution{Number: authoritative, Adopted: true}, nil
}
