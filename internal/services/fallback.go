package services

import (
	"context"
)

// fallbackPolicy is an ordered list of candidates plus the rule for when a
// failed attempt may move on to the next one.
type fallbackPolicy struct {
	candidates []string
	// eligible reports whether err allows trying the next candidate.
	eligible func(err error) bool
	// onFallback, if set, is called before moving from candidate to next.
	onFallback func(candidate, next string, err error)
}

// runWithFallback calls attempt for each candidate in order, with no delay
// between calls. It stops at the first success or at the first error the
// policy does not consider eligible. If every candidate fails with an
// eligible error, the result is an *ExhaustedError wrapping the last one.
// It returns the candidate that produced the result or the final error.
func runWithFallback[T any](
	ctx context.Context,
	policy fallbackPolicy,
	attempt func(ctx context.Context, candidate string) (T, error),
) (T, string, error) {
	var zero T
	if len(policy.candidates) == 0 {
		return zero, "", &ConfigError{Message: "No candidate models configured"}
	}

	var lastErr error
	for i, candidate := range policy.candidates {
		if err := ctx.Err(); err != nil {
			return zero, candidate, err
		}

		result, err := attempt(ctx, candidate)
		if err == nil {
			return result, candidate, nil
		}
		if policy.eligible == nil || !policy.eligible(err) {
			return zero, candidate, err
		}

		lastErr = err
		if i+1 < len(policy.candidates) && policy.onFallback != nil {
			policy.onFallback(candidate, policy.candidates[i+1], err)
		}
	}

	last := policy.candidates[len(policy.candidates)-1]
	return zero, last, &ExhaustedError{
		Models: append([]string(nil), policy.candidates...),
		Last:   lastErr,
	}
}
