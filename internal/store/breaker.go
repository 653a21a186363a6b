package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/abgdnv/gomarketplace/pkg/config"
	"github.com/sony/gobreaker/v2"
)

// breakerStore wraps a KVStore in a circuit breaker so that a failing device storage
// is not hammered by a write per mutation. Rejected calls fail fast with gobreaker.ErrOpenState.
type breakerStore struct {
	next KVStore
	cb   *gobreaker.CircuitBreaker[string]
}

// NewBreakerStore decorates next with a circuit breaker configured from cfg.
func NewBreakerStore(next KVStore, cfg config.CircuitBreakerConfig, logger *slog.Logger) KVStore {
	st := gobreaker.Settings{
		Name:        "cart-storage-cb",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures ||
				(counts.Requests >= cfg.ConsecutiveFailures &&
					float64(counts.TotalFailures)/float64(counts.Requests)*100 > float64(cfg.ErrorRatePercent))
		},
		IsSuccessful: func(err error) bool {
			// a cancelled caller says nothing about the health of the storage
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Storage circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
	return &breakerStore{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[string](st),
	}
}

// Get retrieves a value through the circuit breaker.
func (s *breakerStore) Get(ctx context.Context, key string) (string, bool, error) {
	var found bool
	value, err := s.cb.Execute(func() (string, error) {
		v, ok, err := s.next.Get(ctx, key)
		found = ok
		return v, err
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

// Set stores a value through the circuit breaker.
func (s *breakerStore) Set(ctx context.Context, key string, value string) error {
	_, err := s.cb.Execute(func() (string, error) {
		return "", s.next.Set(ctx, key, value)
	})
	return err
}
