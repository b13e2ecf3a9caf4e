package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/johnbachman/bioagents/internal/domain"
)

// ErrServiceUnavailable is returned while a breaker is open.
var ErrServiceUnavailable = errors.New("service unavailable")

// NewBreaker creates a circuit breaker for the named service. It trips once
// at least FailureThreshold requests were seen with a failure ratio of 60%.
// Cancelled or timed out callers do not count as service failures.
func NewBreaker(name string, config domain.CircuitBreakerConfig, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	if config.MaxRequests == 0 {
		config.MaxRequests = 5
	}
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 3
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= config.FailureThreshold && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker changed state")
		},
	})
}

func breakerError(name string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s %w (circuit breaker open)", name, ErrServiceUnavailable)
	}
	return fmt.Errorf("%s query failed: %w", name, err)
}

// ResilientStatementStore wraps a statement store with a circuit breaker
type ResilientStatementStore struct {
	store   domain.StatementStore
	breaker *gobreaker.CircuitBreaker
}

// NewResilientStatementStore wraps store
func NewResilientStatementStore(store domain.StatementStore, config domain.CircuitBreakerConfig, logger *logrus.Logger) *ResilientStatementStore {
	return &ResilientStatementStore{
		store:   store,
		breaker: NewBreaker("INDRA", config, logger),
	}
}

// GetStatements queries the wrapped store through the breaker
func (r *ResilientStatementStore) GetStatements(ctx context.Context, query domain.StatementQuery) ([]domain.Statement, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.store.GetStatements(ctx, query)
	})
	if err != nil {
		return nil, breakerError("INDRA", err)
	}
	return result.([]domain.Statement), nil
}

// State returns the breaker state
func (r *ResilientStatementStore) State() gobreaker.State {
	return r.breaker.State()
}

// ResilientGenomics wraps a cancer genomics service with a circuit breaker
type ResilientGenomics struct {
	genomics domain.CancerGenomics
	breaker  *gobreaker.CircuitBreaker
}

// NewResilientGenomics wraps genomics
func NewResilientGenomics(genomics domain.CancerGenomics, config domain.CircuitBreakerConfig, logger *logrus.Logger) *ResilientGenomics {
	return &ResilientGenomics{
		genomics: genomics,
		breaker:  NewBreaker("cBioPortal", config, logger),
	}
}

// ListStudies lists studies through the breaker
func (r *ResilientGenomics) ListStudies(ctx context.Context, prefix string) ([]string, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.genomics.ListStudies(ctx, prefix)
	})
	if err != nil {
		return nil, breakerError("cBioPortal", err)
	}
	return result.([]string), nil
}

// GetSequencedCaseCount counts sequenced cases through the breaker
func (r *ResilientGenomics) GetSequencedCaseCount(ctx context.Context, studyID string) (int, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.genomics.GetSequencedCaseCount(ctx, studyID)
	})
	if err != nil {
		return 0, breakerError("cBioPortal", err)
	}
	return result.(int), nil
}

// GetMutations fetches mutations through the breaker
func (r *ResilientGenomics) GetMutations(ctx context.Context, studyID string, genes []string) ([]domain.MutationRecord, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.genomics.GetMutations(ctx, studyID, genes)
	})
	if err != nil {
		return nil, breakerError("cBioPortal", err)
	}
	return result.([]domain.MutationRecord), nil
}

// State returns the breaker state
func (r *ResilientGenomics) State() gobreaker.State {
	return r.breaker.State()
}
