// Package retry wraps fallible calls to external services in exponential
// backoff. The delay before retry n is BaseDelay * 2^(n-1); after MaxRetries
// retries the last error is returned. Errors rejected by the Policy are
// returned after a single attempt, without sleeping.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"call-insights-go/internal/fault"
	"call-insights-go/internal/logger"
)

// Policy reports whether err is worth another attempt.
type Policy func(err error) bool

// Always retries every error except context cancellation.
func Always(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// OnKinds retries only errors tagged with one of kinds.
func OnKinds(kinds ...fault.Kind) Policy {
	return func(err error) bool {
		k := fault.KindOf(err)
		for _, want := range kinds {
			if k == want {
				return Always(err)
			}
		}
		return false
	}
}

// Except retries everything Always would, minus the listed kinds.
func Except(kinds ...fault.Kind) Policy {
	return func(err error) bool {
		k := fault.KindOf(err)
		for _, skip := range kinds {
			if k == skip {
				return false
			}
		}
		return Always(err)
	}
}

// Executor runs operations under the backoff schedule.
type Executor struct {
	MaxRetries int
	BaseDelay  time.Duration
	Policy     Policy
	Log        *logger.Logger

	// NewTimer overrides the sleep timer; each call gets a fresh one.
	NewTimer func() backoff.Timer
}

// New returns an Executor retrying every error.
func New(maxRetries int, baseDelay time.Duration, log *logger.Logger) Executor {
	return Executor{MaxRetries: maxRetries, BaseDelay: baseDelay, Policy: Always, Log: log}
}

// WithPolicy returns a copy of e using p.
func (e Executor) WithPolicy(p Policy) Executor {
	e.Policy = p
	return e
}

// Do runs fn until it succeeds, a non-retryable error occurs, retries are
// exhausted or ctx is done.
func (e Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, e, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations producing a value.
func DoValue[T any](ctx context.Context, e Executor, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	policy := e.Policy
	if policy == nil {
		policy = Always
	}
	log := e.Log
	if log == nil {
		log = logger.Discard()
	}
	maxRetries := max(e.MaxRetries, 0)

	var (
		val      T
		attempts int
	)
	operation := func() error {
		attempts++
		v, err := fn(ctx)
		if err == nil {
			val = v
			return nil
		}
		if !policy(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		log.WithFields(logrus.Fields{
			"op":          op,
			"attempt":     attempts,
			"max_retries": maxRetries,
			"delay":       delay.String(),
			"error":       err.Error(),
		}).Warn("attempt failed, retrying")
	}

	var timer backoff.Timer
	if e.NewTimer != nil {
		timer = e.NewTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, e.schedule(ctx, maxRetries), notify, timer)
	if err != nil {
		fields := logrus.Fields{"op": op, "attempts": attempts, "error": err.Error()}
		if attempts > maxRetries && policy(err) {
			log.WithFields(fields).Error("retries exhausted")
		} else {
			log.WithFields(fields).Debug("not retrying")
		}
		var zero T
		return zero, err
	}
	return val, nil
}

func (e Executor) schedule(ctx context.Context, maxRetries int) backoff.BackOff {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     e.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Duration(math.MaxInt64),
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(maxRetries)), ctx)
}
